package services

import (
	"errors"

	"github.com/SAP-F-2025/quiro-companion/internal/backend"
	apperrors "github.com/SAP-F-2025/quiro-companion/internal/errors"
	"github.com/SAP-F-2025/quiro-companion/internal/repositories"
)

// ===== COMMON SERVICE ERRORS =====

var (
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")

	// Session controller errors
	ErrMissingIdentifier    = errors.New("no card identifier scanned or typed")
	ErrMissingConfiguration = errors.New("backend address is not configured")
	ErrInvalidTransition    = errors.New("action not allowed in current state")
	ErrRequestInFlight      = errors.New("a backend request is already in flight")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionClosed        = errors.New("session is closed")

	// Sheet backend errors
	ErrCardNotFound     = repositories.ErrCardNotFound
	ErrQuestionNotFound = repositories.ErrQuestionNotFound
	ErrNoQuestions      = repositories.ErrNoQuestions
	ErrUnknownAction    = errors.New("unknown action")
)

// Messages shown to the player. One is visible at a time.
const (
	MsgMissingIdentifier    = "Yuk scan QR code atau masukkan ID dulu ya!"
	MsgMissingConfiguration = "Waduh, URL server belum disetting nih."
	MsgQuestionNotFound     = "Yah, soalnya tidak ketemu. Coba lagi ya!"
	MsgConnectionProblem    = "Ada masalah koneksi nih. Cek internet kamu ya!"
	MsgAdvanceRejected      = "Gagal ganti nomor soal: "
	MsgAdvanceUnreachable   = "Gagal menghubungi server."
	MsgCameraUnavailable    = "Gagal memulai kamera. Pastikan izin kamera diberikan."
)

// ===== CUSTOM ERROR TYPES =====

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// ===== ERROR HELPERS =====

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrQuestionNotFound)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsConflict reports errors caused by the session being busy or in the
// wrong state for the requested action.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRequestInFlight) ||
		errors.Is(err, ErrSessionClosed)
}

// IsUserInput reports errors the player can fix themselves.
func IsUserInput(err error) bool {
	return errors.Is(err, ErrMissingIdentifier) ||
		errors.Is(err, ErrMissingConfiguration) ||
		IsValidation(err)
}

// FetchErrorMessage maps a failed question lookup to the player message.
func FetchErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingIdentifier):
		return MsgMissingIdentifier
	case errors.Is(err, ErrMissingConfiguration), errors.Is(err, backend.ErrNotConfigured):
		return MsgMissingConfiguration
	case backend.IsRejected(err):
		if msg := backend.RejectionMessage(err); msg != "" {
			return msg
		}
		return MsgQuestionNotFound
	default:
		return MsgConnectionProblem
	}
}

// AdvanceErrorMessage maps a failed number update to the player message.
func AdvanceErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingConfiguration), errors.Is(err, backend.ErrNotConfigured):
		return MsgMissingConfiguration
	case backend.IsRejected(err):
		return MsgAdvanceRejected + backend.RejectionMessage(err)
	default:
		return MsgAdvanceUnreachable
	}
}
