package timer

import (
	"sync"
	"time"
)

// ManualClock is a Clock whose tickers only fire when Tick is called. Each
// delivered tick is a synchronous handoff, so the receiver has taken the tick
// before Tick returns.
type ManualClock struct {
	mu      sync.Mutex
	tickers []*ManualTicker
	created chan *ManualTicker
}

func NewManualClock() *ManualClock {
	return &ManualClock{created: make(chan *ManualTicker, 64)}
}

func (m *ManualClock) NewTicker(d time.Duration) Ticker {
	t := &ManualTicker{
		period:  d,
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
	}
	m.mu.Lock()
	m.tickers = append(m.tickers, t)
	m.mu.Unlock()

	select {
	case m.created <- t:
	default:
	}
	return t
}

// Latest returns the most recently created ticker, or nil.
func (m *ManualClock) Latest() *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

// Count returns how many tickers were created.
func (m *ManualClock) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// WaitTicker blocks until a ticker is created or the timeout elapses.
func (m *ManualClock) WaitTicker(timeout time.Duration) *ManualTicker {
	select {
	case t := <-m.created:
		return t
	case <-time.After(timeout):
		return nil
	}
}

type ManualTicker struct {
	period  time.Duration
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *ManualTicker) C() <-chan time.Time { return t.c }

func (t *ManualTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (t *ManualTicker) Period() time.Duration { return t.period }

// Stopped reports whether Stop was called.
func (t *ManualTicker) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Tick delivers one tick. It returns false if the ticker was stopped or no
// receiver took the tick within timeout.
func (t *ManualTicker) Tick(timeout time.Duration) bool {
	select {
	case <-t.stopped:
		return false
	default:
	}
	select {
	case t.c <- time.Now():
		return true
	case <-t.stopped:
		return false
	case <-time.After(timeout):
		return false
	}
}
