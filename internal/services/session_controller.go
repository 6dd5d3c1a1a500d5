package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/events"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/SAP-F-2025/quiro-companion/internal/timer"
)

const (
	DefaultAnswerDuration = 40
	DefaultRequestTimeout = 15 * time.Second
)

// ErrResponseDiscarded is returned to the caller whose backend response
// arrived after the session was reset.
var ErrResponseDiscarded = errors.New("backend response discarded after reset")

// QuestionBackend is the remote spreadsheet service.
type QuestionBackend interface {
	Configured() bool
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	UpdateNumber(ctx context.Context, id string) error
}

// CodeScanner is a single-use camera scanner.
type CodeScanner interface {
	Start(onDecode func(string), onError func(error)) error
	Stop()
	Active() bool
}

type ScannerFactory func() CodeScanner

// SessionController drives one player's round:
// IDLE -> SCANNING -> FETCHING -> DISPLAY_QUESTION -> UPDATING -> FINISHED.
// Every transition happens under mu. Backend calls run outside the lock and
// at most one is in flight at any time; a response is applied only when it
// belongs to the current request generation.
type SessionController struct {
	id             string
	backend        QuestionBackend
	newScanner     ScannerFactory
	publisher      events.EventPublisher
	logger         *ServiceLogger
	clock          timer.Clock
	answerDuration int
	requestTimeout time.Duration

	mu            sync.Mutex
	state         models.SessionState
	question      *models.Question
	scannedID     string
	typedID       string
	errMsg        string
	scanner       CodeScanner
	countdown     *timer.Countdown
	inFlight      bool
	generation    uint64
	cancelRequest context.CancelFunc
	version       uint64
	updatedAt     time.Time
	lastActivity  time.Time
	closed        bool
}

type ControllerOption func(*SessionController)

func WithScannerFactory(factory ScannerFactory) ControllerOption {
	return func(c *SessionController) { c.newScanner = factory }
}

func WithEventPublisher(publisher events.EventPublisher) ControllerOption {
	return func(c *SessionController) { c.publisher = publisher }
}

func WithServiceLogger(logger *ServiceLogger) ControllerOption {
	return func(c *SessionController) { c.logger = logger }
}

// WithTimerClock sets the clock the answer countdown ticks on.
func WithTimerClock(clock timer.Clock) ControllerOption {
	return func(c *SessionController) { c.clock = clock }
}

func WithAnswerDuration(seconds int) ControllerOption {
	return func(c *SessionController) {
		if seconds > 0 {
			c.answerDuration = seconds
		}
	}
}

func WithRequestTimeout(d time.Duration) ControllerOption {
	return func(c *SessionController) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

func NewSessionController(id string, backend QuestionBackend, opts ...ControllerOption) *SessionController {
	now := time.Now().UTC()
	c := &SessionController{
		id:             id,
		backend:        backend,
		answerDuration: DefaultAnswerDuration,
		requestTimeout: DefaultRequestTimeout,
		state:          models.StateIdle,
		updatedAt:      now,
		lastActivity:   now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = NewServiceLogger(nil, LogConfig{Service: "quiro-companion", Component: "session"})
	}
	return c
}

func (c *SessionController) ID() string {
	return c.id
}

// View returns the current snapshot.
func (c *SessionController) View() models.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// LastActivity reports when a player last acted on the session.
func (c *SessionController) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// StartScan opens the camera. It is allowed from IDLE, and from SCANNING when
// a previous camera start failed.
func (c *SessionController) StartScan(ctx context.Context) (models.SessionView, error) {
	op := c.logger.WithOperation(ctx, "StartScan", c.id)

	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult("", err)
		return view, err
	}
	retry := c.state == models.StateScanning && c.scanner == nil
	if c.state != models.StateIdle && !retry {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult("", ErrInvalidTransition)
		return view, ErrInvalidTransition
	}
	// A decode could not be fetched until the cancelled request returns.
	if c.inFlight {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult("", ErrRequestInFlight)
		return view, ErrRequestInFlight
	}

	from := c.state
	c.state = models.StateScanning
	c.errMsg = ""
	if c.newScanner == nil {
		c.errMsg = MsgCameraUnavailable
	} else {
		sc := c.newScanner()
		c.scanner = sc
		if err := sc.Start(
			func(text string) { c.handleDecode(sc, text) },
			func(err error) { c.handleScanError(sc, err) },
		); err != nil {
			c.scanner = nil
			c.errMsg = MsgCameraUnavailable
		}
	}
	view := c.touchLocked()
	c.mu.Unlock()

	c.logger.LogTransition(ctx, c.id, from, models.StateScanning, "scan requested")
	c.publish(ctx, events.EventStateChanged, view)
	op.LogResult("", nil)
	return view, nil
}

// OnCodeDetected accepts a card code and fetches its question. Scanner
// decodes count only while SCANNING; a code entered by hand is also accepted
// from IDLE. Later detections find the session no longer scanning and are
// ignored.
func (c *SessionController) OnCodeDetected(ctx context.Context, text string) (models.SessionView, error) {
	return c.acceptCode(ctx, nil, text)
}

func (c *SessionController) handleDecode(sc CodeScanner, text string) {
	_, _ = c.acceptCode(context.Background(), sc, text)
}

func (c *SessionController) acceptCode(ctx context.Context, sc CodeScanner, text string) (models.SessionView, error) {
	text = cardIDFromCode(text)
	op := c.logger.WithOperation(ctx, "OnCodeDetected", c.id)

	c.mu.Lock()
	manual := sc == nil && c.state == models.StateIdle
	if c.closed || (c.state != models.StateScanning && !manual) || (sc != nil && c.scanner != sc) || text == "" {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, ErrInvalidTransition
	}
	if c.inFlight {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult(text, ErrRequestInFlight)
		return view, ErrRequestInFlight
	}
	c.scannedID = text
	c.stopScannerLocked()
	return c.fetchLocked(ctx, op, text)
}

func (c *SessionController) handleScanError(sc CodeScanner, err error) {
	c.mu.Lock()
	if c.scanner != sc {
		c.mu.Unlock()
		return
	}
	c.scanner = nil
	c.errMsg = MsgCameraUnavailable
	view := c.touchLocked()
	c.mu.Unlock()

	c.logger.LogOperation(context.Background(), "StartCamera", c.id, "", 0, err)
	c.publish(context.Background(), events.EventStateChanged, view)
}

// SetTypedID records manual input. It also becomes the last scanned
// identifier so a following search uses it.
func (c *SessionController) SetTypedID(ctx context.Context, text string) (models.SessionView, error) {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, err
	}
	text = strings.TrimSpace(text)
	c.typedID = text
	c.scannedID = text
	view := c.touchLocked()
	c.mu.Unlock()

	c.publish(ctx, events.EventStateChanged, view)
	return view, nil
}

// FetchQuestion looks up a card. The identifier is override, else the last
// scan, else the typed input. A missing identifier or backend address only
// sets the message; the state is unchanged.
func (c *SessionController) FetchQuestion(ctx context.Context, override string) (models.SessionView, error) {
	op := c.logger.WithOperation(ctx, "FetchQuestion", c.id)

	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult("", err)
		return view, err
	}
	return c.fetchLocked(ctx, op, firstNonBlank(override, c.scannedID, c.typedID))
}

// fetchLocked runs get_question for id. It is entered with mu held and
// releases it.
func (c *SessionController) fetchLocked(ctx context.Context, op *ContextualLogger, id string) (models.SessionView, error) {
	if c.inFlight {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult(id, ErrRequestInFlight)
		return view, ErrRequestInFlight
	}
	if c.state != models.StateIdle && c.state != models.StateScanning {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult(id, ErrInvalidTransition)
		return view, ErrInvalidTransition
	}
	if id == "" {
		c.errMsg = MsgMissingIdentifier
		view := c.touchLocked()
		c.mu.Unlock()
		c.publish(ctx, events.EventStateChanged, view)
		op.LogResult("", ErrMissingIdentifier)
		return view, ErrMissingIdentifier
	}
	if c.backend == nil || !c.backend.Configured() {
		c.errMsg = MsgMissingConfiguration
		view := c.touchLocked()
		c.mu.Unlock()
		c.publish(ctx, events.EventStateChanged, view)
		op.LogResult(id, ErrMissingConfiguration)
		return view, ErrMissingConfiguration
	}

	from := c.state
	c.stopScannerLocked()
	c.state = models.StateFetching
	c.errMsg = ""
	c.question = nil
	gen, reqCtx, cancel := c.beginRequestLocked(ctx)
	view := c.touchLocked()
	c.mu.Unlock()

	c.logger.LogTransition(ctx, c.id, from, models.StateFetching, "question requested")
	c.publish(ctx, events.EventStateChanged, view)

	question, err := c.backend.GetQuestion(reqCtx, id)
	cancel()

	c.mu.Lock()
	if !c.finishRequestLocked(gen) || c.state != models.StateFetching {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult(id, ErrResponseDiscarded)
		return view, ErrResponseDiscarded
	}

	if err != nil {
		c.state = models.StateIdle
		c.errMsg = FetchErrorMessage(err)
		view := c.touchLocked()
		c.mu.Unlock()

		c.logger.LogTransition(ctx, c.id, models.StateFetching, models.StateIdle, "question lookup failed")
		c.publish(ctx, events.EventStateChanged, view)
		op.LogResult(id, err)
		return view, err
	}

	countdown, err := c.newCountdownLocked()
	if err == nil {
		err = countdown.Start()
	}
	if err != nil {
		c.state = models.StateIdle
		c.errMsg = MsgConnectionProblem
		view := c.touchLocked()
		c.mu.Unlock()

		c.logger.LogTransition(ctx, c.id, models.StateFetching, models.StateIdle, "countdown failed")
		c.publish(ctx, events.EventStateChanged, view)
		op.LogResult(id, err)
		return view, err
	}
	c.question = question
	c.state = models.StateShowingQuestion
	c.countdown = countdown
	view = c.touchLocked()
	c.mu.Unlock()

	c.logger.LogTransition(ctx, c.id, models.StateFetching, models.StateShowingQuestion, "question received")
	c.publish(ctx, events.EventStateChanged, view)
	op.LogResult(id, nil)
	return view, nil
}

// GiveUp ends the answer window early. It behaves exactly like the timer
// running out, including being a no-op outside DISPLAY_QUESTION.
func (c *SessionController) GiveUp(ctx context.Context) (models.SessionView, error) {
	return c.advance(ctx, nil, "player gave up")
}

// OnTimerComplete asks the backend to move the card to a new question.
func (c *SessionController) OnTimerComplete(ctx context.Context) (models.SessionView, error) {
	return c.advance(ctx, nil, "timer completed")
}

// advance runs the update_number step. When from is set, the call only
// proceeds if that countdown still belongs to the session.
func (c *SessionController) advance(ctx context.Context, from *timer.Countdown, reason string) (models.SessionView, error) {
	c.mu.Lock()
	if c.closed || c.state != models.StateShowingQuestion || (from != nil && c.countdown != from) {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, nil
	}
	if c.inFlight {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, ErrRequestInFlight
	}

	op := c.logger.WithOperation(ctx, "AdvanceCard", c.id)
	countdown := c.countdown
	c.countdown = nil
	c.state = models.StateUpdating
	id := c.question.ID
	if id == "" {
		id = firstNonBlank(c.scannedID, c.typedID)
	}

	configured := c.backend != nil && c.backend.Configured()
	var (
		gen    uint64
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if configured {
		gen, reqCtx, cancel = c.beginRequestLocked(ctx)
	}
	view := c.touchLocked()
	c.mu.Unlock()

	if countdown != nil {
		countdown.Cancel()
	}
	c.logger.LogTransition(ctx, c.id, models.StateShowingQuestion, models.StateUpdating, reason)
	c.publish(ctx, events.EventStateChanged, view)

	var err error
	if configured {
		err = c.backend.UpdateNumber(reqCtx, id)
		cancel()
	} else {
		err = ErrMissingConfiguration
	}

	c.mu.Lock()
	if configured && !c.finishRequestLocked(gen) || c.state != models.StateUpdating {
		view := c.viewLocked()
		c.mu.Unlock()
		op.LogResult(id, ErrResponseDiscarded)
		return view, ErrResponseDiscarded
	}
	c.state = models.StateFinished
	if err != nil {
		c.errMsg = AdvanceErrorMessage(err)
	}
	view = c.touchLocked()
	c.mu.Unlock()

	c.logger.LogTransition(ctx, c.id, models.StateUpdating, models.StateFinished, "advance finished")
	if err != nil {
		c.publish(ctx, events.EventAdvanceFailed, view)
	}
	c.publish(ctx, events.EventStateChanged, view)
	op.LogResult(id, err)
	return view, err
}

// Reset returns to IDLE from any state. The scanner and timer are stopped and
// an in-flight request is cancelled; its response will be discarded, and no
// new request starts until it has returned.
func (c *SessionController) Reset(ctx context.Context) (models.SessionView, error) {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, err
	}
	from := c.state
	countdown := c.resetLocked()
	view := c.touchLocked()
	c.mu.Unlock()

	if countdown != nil {
		countdown.Cancel()
	}
	c.logger.LogTransition(ctx, c.id, from, models.StateIdle, "reset")
	c.publish(ctx, events.EventStateChanged, view)
	return view, nil
}

// Close releases everything the session holds. Further actions fail with
// ErrSessionClosed.
func (c *SessionController) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	countdown := c.resetLocked()
	c.closed = true
	view := c.touchLocked()
	c.mu.Unlock()

	if countdown != nil {
		countdown.Cancel()
	}
	c.publish(ctx, events.EventSessionClosed, view)
}

func (c *SessionController) resetLocked() *timer.Countdown {
	c.stopScannerLocked()
	countdown := c.countdown
	c.countdown = nil
	if c.cancelRequest != nil {
		c.cancelRequest()
		c.cancelRequest = nil
	}
	c.generation++
	c.state = models.StateIdle
	c.question = nil
	c.scannedID = ""
	c.typedID = ""
	c.errMsg = ""
	return countdown
}

// beginRequestLocked marks a request in flight. The request context keeps
// the caller's values but not its cancellation, so a dropped HTTP client does
// not abort a transition halfway.
func (c *SessionController) beginRequestLocked(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	c.generation++
	c.inFlight = true
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.requestTimeout)
	c.cancelRequest = cancel
	return c.generation, reqCtx, cancel
}

// finishRequestLocked clears the in-flight flag and reports whether the
// response is still wanted.
func (c *SessionController) finishRequestLocked(gen uint64) bool {
	c.inFlight = false
	if gen != c.generation {
		return false
	}
	c.cancelRequest = nil
	return true
}

func (c *SessionController) newCountdownLocked() (*timer.Countdown, error) {
	var countdown *timer.Countdown
	opts := []timer.Option{
		timer.WithTickHandler(func(int) { c.handleTick(countdown) }),
	}
	if c.clock != nil {
		opts = append(opts, timer.WithClock(c.clock))
	}
	countdown, err := timer.NewCountdown(c.answerDuration, func() {
		_, _ = c.advance(context.Background(), countdown, "timer completed")
	}, opts...)
	return countdown, err
}

func (c *SessionController) handleTick(countdown *timer.Countdown) {
	c.mu.Lock()
	if c.countdown != countdown || c.state != models.StateShowingQuestion {
		c.mu.Unlock()
		return
	}
	c.version++
	view := c.viewLocked()
	c.mu.Unlock()

	c.publish(context.Background(), events.EventTimerTick, view)
}

func (c *SessionController) stopScannerLocked() {
	if c.scanner != nil {
		c.scanner.Stop()
		c.scanner = nil
	}
}

func (c *SessionController) checkOpenLocked() error {
	if c.closed {
		return ErrSessionClosed
	}
	return nil
}

// touchLocked records a mutation and returns the new snapshot.
func (c *SessionController) touchLocked() models.SessionView {
	now := time.Now().UTC()
	c.version++
	c.updatedAt = now
	c.lastActivity = now
	return c.viewLocked()
}

func (c *SessionController) viewLocked() models.SessionView {
	view := models.SessionView{
		SessionID:     c.id,
		State:         c.state,
		Error:         c.errMsg,
		TypedID:       c.typedID,
		ScannedID:     c.scannedID,
		ScannerActive: c.scanner != nil && c.scanner.Active(),
		Version:       c.version,
		UpdatedAt:     c.updatedAt,
	}
	if c.question != nil {
		q := *c.question
		view.Question = &q
	}
	if c.countdown != nil {
		view.Remaining = c.countdown.Remaining()
		view.Duration = c.countdown.Duration()
		view.TimerPhase = c.countdown.Phase()
	}
	return view
}

func (c *SessionController) publish(ctx context.Context, eventType events.EventType, view models.SessionView) {
	if c.publisher == nil {
		return
	}
	event := events.NewSessionEvent(eventType, view)
	if err := c.publisher.PublishSessionEvent(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Logger().WarnContext(ctx, "Failed to publish session event",
			"session_id", c.id,
			"event_type", eventType,
			"error", err)
	}
}

// cardIDFromCode unwraps codes printed as links, such as
// https://host/?id=KARTU-01, to the card id. Anything else is the id itself.
func cardIDFromCode(text string) string {
	text = strings.TrimSpace(text)
	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return text
	}
	if id := strings.TrimSpace(u.Query().Get("id")); id != "" {
		return id
	}
	return text
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
