package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/timer"
)

const (
	DefaultFPS          = 10
	DefaultRegionWidth  = 250
	DefaultRegionHeight = 250
)

type Config struct {
	FPS    int        `validate:"min=1,max=60"`
	Region Region
	Facing FacingMode `validate:"oneof=environment user"`
}

func DefaultConfig() Config {
	return Config{
		FPS:    DefaultFPS,
		Region: Region{Width: DefaultRegionWidth, Height: DefaultRegionHeight},
		Facing: FacingEnvironment,
	}
}

type status int

const (
	statusIdle status = iota
	statusStarting
	statusRunning
	statusStopped
)

// Scanner decodes codes from a camera at a bounded frame rate. A Scanner is
// single use: once stopped it cannot be restarted.
type Scanner struct {
	camera  Camera
	decoder Decoder
	cfg     Config
	clock   timer.Clock
	logger  *slog.Logger

	mu       sync.Mutex
	status   status
	cancel   context.CancelFunc
	stopCh   chan struct{}
	done     chan struct{}
	onDecode func(string)
}

type Option func(*Scanner)

func WithClock(clock timer.Clock) Option {
	return func(s *Scanner) { s.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

func New(camera Camera, decoder Decoder, cfg Config, opts ...Option) *Scanner {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Facing == "" {
		cfg.Facing = FacingEnvironment
	}
	s := &Scanner{
		camera:  camera,
		decoder: decoder,
		cfg:     cfg,
		clock:   timer.RealClock{},
		logger:  slog.Default(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start requests the camera in the background and returns immediately.
// onDecode runs for every decoded frame, duplicates included. onError runs at
// most once, when the camera cannot be opened or fails while scanning; the
// scanner is inactive afterwards.
func (s *Scanner) Start(onDecode func(string), onError func(error)) error {
	s.mu.Lock()
	if s.status != statusIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.status = statusStarting
	s.cancel = cancel
	s.onDecode = onDecode
	s.mu.Unlock()

	go s.run(ctx, onError)
	return nil
}

func (s *Scanner) run(ctx context.Context, onError func(error)) {
	defer close(s.done)

	src, err := s.camera.Open(ctx, s.cfg.Facing)

	s.mu.Lock()
	if s.status == statusStopped {
		s.mu.Unlock()
		if err == nil {
			s.logger.Debug("Scanner stopped while camera was starting, releasing it")
			s.closeQuietly(src)
		}
		return
	}
	if err != nil {
		s.status = statusStopped
		s.mu.Unlock()
		s.logger.Warn("Failed to start camera", "error", err)
		if onError != nil {
			onError(fmt.Errorf("%w: %w", ErrCameraUnavailable, err))
		}
		return
	}
	s.status = statusRunning
	ticker := s.clock.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	s.mu.Unlock()

	defer s.closeQuietly(src)
	defer ticker.Stop()

	s.logger.Debug("Scanner running", "fps", s.cfg.FPS, "facing", s.cfg.Facing)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C():
			if err := s.scanFrame(src); err != nil {
				s.mu.Lock()
				stopped := s.status == statusStopped
				s.status = statusStopped
				s.mu.Unlock()
				if !stopped && onError != nil {
					s.logger.Warn("Camera failed while scanning", "error", err)
					onError(fmt.Errorf("%w: %w", ErrCameraUnavailable, err))
				}
				return
			}
		}
	}
}

// scanFrame decodes the newest frame. Only camera failures are returned.
func (s *Scanner) scanFrame(src FrameSource) error {
	frame, err := src.Frame()
	if errors.Is(err, ErrNoFrame) {
		return nil
	}
	if err != nil {
		return err
	}

	text, err := s.decoder.Decode(s.cfg.Region.Crop(frame))
	if err != nil {
		return nil
	}

	s.mu.Lock()
	cb := s.onDecode
	running := s.status == statusRunning
	s.mu.Unlock()

	if running && cb != nil {
		cb(text)
	}
	return nil
}

// Stop tears the scanner down. It is safe to call at any time, including
// before Start or while the camera is still opening, and never fails. The
// camera is released asynchronously; Done reports when that has happened.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if s.status == statusStopped {
		s.mu.Unlock()
		return
	}
	wasIdle := s.status == statusIdle
	s.status = statusStopped
	s.onDecode = nil
	cancel := s.cancel
	close(s.stopCh)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wasIdle {
		close(s.done)
	}
}

// Active reports whether the scanner is starting or running.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == statusStarting || s.status == statusRunning
}

// Done is closed once the scanner has stopped and released the camera.
func (s *Scanner) Done() <-chan struct{} {
	return s.done
}

func (s *Scanner) closeQuietly(src FrameSource) {
	if src == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Scanner cleanup panicked", "panic", r)
		}
	}()
	if err := src.Close(); err != nil {
		s.logger.Warn("Scanner cleanup warning", "error", err)
	}
}
