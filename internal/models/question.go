package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// QuestionNumber is the display number of a question. The sheet backend may
// send it either as a JSON number or as a string.
type QuestionNumber string

func (n *QuestionNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = QuestionNumber(s)
		return nil
	}
	var f json.Number
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("question number must be a string or number: %w", err)
	}
	*n = QuestionNumber(f.String())
	return nil
}

// MarshalJSON writes a bare number only when that keeps the text intact, so
// "007" stays a string.
func (n QuestionNumber) MarshalJSON() ([]byte, error) {
	if i, err := strconv.Atoi(string(n)); err == nil && strconv.Itoa(i) == string(n) {
		return []byte(string(n)), nil
	}
	return json.Marshal(string(n))
}

// Question is the payload returned by the get_question action.
type Question struct {
	ID           string         `json:"id"`
	Number       QuestionNumber `json:"nomorSoal"`
	Text         string         `json:"pertanyaan"`
	MediaDrive   string         `json:"mediaDrive"`
	MediaLainnya string         `json:"mediaLainnya"`
}

// HasMedia reports whether the question carries at least one media link.
func (q *Question) HasMedia() bool {
	return q.MediaDrive != "" || q.MediaLainnya != ""
}
