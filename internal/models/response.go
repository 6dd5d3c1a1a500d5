package models

import "strconv"

func itoa(i int) string {
	return strconv.Itoa(i)
}

// BackendStatusSuccess is the status value the sheet backend uses for success.
const BackendStatusSuccess = "success"

// BackendResponse is the envelope shared by both sheet backend actions.
type BackendResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	Data    *Question `json:"data,omitempty"`
}

// Succeeded reports whether the backend reported success.
func (r *BackendResponse) Succeeded() bool {
	return r.Status == BackendStatusSuccess
}
