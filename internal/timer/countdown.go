package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
)

var (
	ErrInvalidDuration = errors.New("countdown duration must be positive")
	ErrAlreadyStarted  = errors.New("countdown already started")
)

// Countdown counts whole seconds down from a fixed duration. The completion
// callback runs at most once, on the tick that reaches zero, and never after
// Cancel has returned.
type Countdown struct {
	duration   int
	onComplete func()
	onTick     func(remaining int)
	clock      Clock
	interval   time.Duration

	mu        sync.Mutex
	remaining int
	started   bool
	done      bool
	stop      chan struct{}
	exited    chan struct{}
}

type Option func(*Countdown)

// WithClock replaces the wall clock used for ticking.
func WithClock(clock Clock) Option {
	return func(c *Countdown) { c.clock = clock }
}

// WithTickHandler registers a callback for every tick that leaves time on
// the clock. It runs on the ticking goroutine.
func WithTickHandler(fn func(remaining int)) Option {
	return func(c *Countdown) { c.onTick = fn }
}

// WithInterval changes the tick interval. One tick always removes one second
// from the display, so this is only useful for demos.
func WithInterval(d time.Duration) Option {
	return func(c *Countdown) { c.interval = d }
}

func NewCountdown(seconds int, onComplete func(), opts ...Option) (*Countdown, error) {
	if seconds <= 0 {
		return nil, ErrInvalidDuration
	}
	c := &Countdown{
		duration:   seconds,
		remaining:  seconds,
		onComplete: onComplete,
		clock:      RealClock{},
		interval:   time.Second,
		stop:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start begins ticking in the background.
func (c *Countdown) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	if c.done {
		c.mu.Unlock()
		close(c.exited)
		return nil
	}
	ticker := c.clock.NewTicker(c.interval)
	c.mu.Unlock()

	go c.run(ticker)
	return nil
}

func (c *Countdown) run(ticker Ticker) {
	defer close(c.exited)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C():
			if c.tick() {
				return
			}
		}
	}
}

// tick removes one second and reports whether the countdown is over.
func (c *Countdown) tick() bool {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return true
	}
	c.remaining--
	if c.remaining > 0 {
		remaining, onTick := c.remaining, c.onTick
		c.mu.Unlock()
		if onTick != nil {
			onTick(remaining)
		}
		return false
	}
	c.remaining = 0
	c.done = true
	cb := c.onComplete
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}

// Cancel stops the countdown. After Cancel returns no tick is applied and the
// completion callback is not invoked. Calling Cancel from inside the
// completion callback is allowed and returns immediately.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	started := c.started
	close(c.stop)
	c.mu.Unlock()

	if started {
		<-c.exited
	}
}

// Remaining returns the seconds left on the display.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Duration() int {
	return c.duration
}

// Done reports whether the countdown completed or was cancelled.
func (c *Countdown) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Phase maps the remaining share of the duration to a display phase.
func (c *Countdown) Phase() models.TimerPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PhaseFor(c.remaining, c.duration)
}

func PhaseFor(remaining, duration int) models.TimerPhase {
	if duration <= 0 {
		return models.TimerCritical
	}
	pct := float64(remaining) / float64(duration) * 100
	switch {
	case pct < 25:
		return models.TimerCritical
	case pct < 60:
		return models.TimerWarning
	default:
		return models.TimerCalm
	}
}
