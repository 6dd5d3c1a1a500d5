package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/events"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/scanner"
	"github.com/SAP-F-2025/quiro-companion/internal/timer"
	"github.com/google/uuid"
)

// Session pairs a controller with the camera feed its browser tab pushes to.
type Session struct {
	Controller *SessionController
	Camera     *scanner.FeedCamera
	CreatedAt  time.Time
}

// RegistryConfig carries what every new session is built with.
type RegistryConfig struct {
	Backend        QuestionBackend
	Decoder        scanner.Decoder
	ScannerConfig  scanner.Config
	Publisher      events.EventPublisher
	Logger         *slog.Logger
	AnswerDuration int
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
	// TimerClock and ScannerClock default to the wall clock.
	TimerClock   timer.Clock
	ScannerClock timer.Clock
}

// SessionRegistry owns all live sessions, one per browser tab.
type SessionRegistry struct {
	cfg    RegistryConfig
	logger *ServiceLogger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry(cfg RegistryConfig) *SessionRegistry {
	if cfg.Decoder == nil {
		cfg.Decoder = scanner.NewQRDecoder(true)
	}
	if cfg.ScannerConfig.FPS == 0 {
		cfg.ScannerConfig = scanner.DefaultConfig()
	}
	return &SessionRegistry{
		cfg:      cfg,
		logger:   NewServiceLogger(cfg.Logger, LogConfig{Service: "quiro-companion", Component: "session"}),
		sessions: make(map[string]*Session),
	}
}

// Create starts a fresh session in IDLE.
func (r *SessionRegistry) Create(ctx context.Context) *Session {
	id := uuid.NewString()
	camera := scanner.NewFeedCamera()

	scannerOpts := []scanner.Option{scanner.WithLogger(r.logger.Logger().With("session_id", id))}
	if r.cfg.ScannerClock != nil {
		scannerOpts = append(scannerOpts, scanner.WithClock(r.cfg.ScannerClock))
	}

	opts := []ControllerOption{
		WithServiceLogger(r.logger),
		WithEventPublisher(r.cfg.Publisher),
		WithAnswerDuration(r.cfg.AnswerDuration),
		WithRequestTimeout(r.cfg.RequestTimeout),
		WithScannerFactory(func() CodeScanner {
			return scanner.New(camera, r.cfg.Decoder, r.cfg.ScannerConfig, scannerOpts...)
		}),
	}
	if r.cfg.TimerClock != nil {
		opts = append(opts, WithTimerClock(r.cfg.TimerClock))
	}

	session := &Session{
		Controller: NewSessionController(id, r.cfg.Backend, opts...),
		Camera:     camera,
		CreatedAt:  time.Now().UTC(),
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	view := session.Controller.View()
	session.Controller.publish(ctx, events.EventSessionCreated, view)
	r.logger.LogOperation(ctx, "CreateSession", id, "", 0, nil)
	return session
}

func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Remove closes the session and forgets it.
func (r *SessionRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Controller.Close(ctx)
	r.logger.LogOperation(ctx, "CloseSession", id, "", time.Since(session.CreatedAt), nil)
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Views lists every live session.
func (r *SessionRegistry) Views() []models.SessionView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]models.SessionView, 0, len(r.sessions))
	for _, s := range r.sessions {
		views = append(views, s.Controller.View())
	}
	return views
}

// ReapIdle closes sessions nobody has touched for the idle timeout and
// returns how many were removed.
func (r *SessionRegistry) ReapIdle(ctx context.Context, now time.Time) int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}

	var stale []string
	r.mu.RLock()
	for id, s := range r.sessions {
		if now.Sub(s.Controller.LastActivity()) > r.cfg.IdleTimeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if err := r.Remove(ctx, id); err == nil {
			removed++
		}
	}
	if removed > 0 {
		r.logger.Logger().InfoContext(ctx, "Reaped idle sessions", "count", removed)
	}
	return removed
}

// RunReaper reaps idle sessions until ctx is done.
func (r *SessionRegistry) RunReaper(ctx context.Context, every time.Duration) {
	if r.cfg.IdleTimeout <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.ReapIdle(ctx, now)
		}
	}
}

// CloseAll shuts every session down.
func (r *SessionRegistry) CloseAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.Remove(ctx, id)
	}
}
