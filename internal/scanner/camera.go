package scanner

import (
	"context"
	"image"
	"sync"
)

type FacingMode string

const (
	FacingEnvironment FacingMode = "environment"
	FacingUser        FacingMode = "user"
)

// Camera acquires a video device. Open may block until the user answers the
// permission prompt; it must return promptly once ctx is done.
type Camera interface {
	Open(ctx context.Context, facing FacingMode) (FrameSource, error)
}

// FrameSource yields frames from an open camera.
type FrameSource interface {
	// Frame returns the newest frame not yet returned, or ErrNoFrame.
	Frame() (image.Image, error)
	Close() error
}

// FeedCamera is a Camera whose frames are pushed from outside, typically by a
// browser that owns the real device and uploads snapshots.
type FeedCamera struct {
	mu      sync.Mutex
	granted bool
	denied  string
	facing  FacingMode
	source  *feedSource
	changed chan struct{}
}

func NewFeedCamera() *FeedCamera {
	return &FeedCamera{changed: make(chan struct{})}
}

// Grant records that the user allowed camera access.
func (f *FeedCamera) Grant() {
	f.mu.Lock()
	f.granted = true
	f.denied = ""
	f.notifyLocked()
	f.mu.Unlock()
}

// Deny records a permission refusal or device error reported by the client.
func (f *FeedCamera) Deny(reason string) {
	if reason == "" {
		reason = "permission denied"
	}
	f.mu.Lock()
	f.granted = false
	f.denied = reason
	if f.source != nil {
		f.source.fail(reason)
	}
	f.notifyLocked()
	f.mu.Unlock()
}

func (f *FeedCamera) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *FeedCamera) Open(ctx context.Context, facing FacingMode) (FrameSource, error) {
	for {
		f.mu.Lock()
		f.facing = facing
		if f.denied != "" {
			reason := f.denied
			f.mu.Unlock()
			return nil, &PermissionError{Reason: reason}
		}
		if f.granted {
			src := &feedSource{camera: f}
			if f.source != nil {
				f.source.fail("superseded by a newer stream")
			}
			f.source = src
			f.mu.Unlock()
			return src, nil
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// PushFrame hands a frame to the open stream. It fails with ErrCameraInactive
// when no scanner holds the camera.
func (f *FeedCamera) PushFrame(img image.Image) error {
	f.mu.Lock()
	src := f.source
	f.mu.Unlock()
	if src == nil {
		return ErrCameraInactive
	}
	return src.push(img)
}

// InUse reports whether a stream is currently open.
func (f *FeedCamera) InUse() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source != nil
}

// Facing returns the facing mode requested by the last Open.
func (f *FeedCamera) Facing() FacingMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.facing
}

func (f *FeedCamera) release(src *feedSource) {
	f.mu.Lock()
	if f.source == src {
		f.source = nil
	}
	f.mu.Unlock()
}

type feedSource struct {
	camera *FeedCamera

	mu     sync.Mutex
	latest image.Image
	failed string
	closed bool
}

func (s *feedSource) push(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrCameraInactive
	}
	s.latest = img
	return nil
}

func (s *feedSource) fail(reason string) {
	s.mu.Lock()
	s.failed = reason
	s.mu.Unlock()
}

func (s *feedSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrCameraInactive
	}
	if s.failed != "" {
		return nil, &PermissionError{Reason: s.failed}
	}
	if s.latest == nil {
		return nil, ErrNoFrame
	}
	img := s.latest
	s.latest = nil
	return img, nil
}

func (s *feedSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.latest = nil
	s.mu.Unlock()

	s.camera.release(s)
	return nil
}

// PermissionError carries the reason the client gave for refusing the camera.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "camera permission denied: " + e.Reason
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}
