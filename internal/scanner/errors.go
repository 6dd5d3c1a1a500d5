package scanner

import "errors"

var (
	// ErrCameraUnavailable covers permission refusals and device failures.
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrCameraInactive    = errors.New("camera is not open")
	ErrNoFrame           = errors.New("no new frame")
	ErrNoCode            = errors.New("no code found in frame")
	ErrAlreadyStarted    = errors.New("scanner already started")
)

// IsCameraUnavailable reports whether err is a camera permission or device failure.
func IsCameraUnavailable(err error) bool {
	return errors.Is(err, ErrCameraUnavailable) || errors.Is(err, ErrPermissionDenied)
}
