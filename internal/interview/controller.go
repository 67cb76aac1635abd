package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/types"
)

var (
	// ErrNoQuestions is returned by [New] for a plan without questions.
	ErrNoQuestions = errors.New("interview: question list is empty")

	// ErrAlreadyStarted is returned by a second call to [Controller.Start].
	ErrAlreadyStarted = errors.New("interview: session already started")
)

// Default timings.
const (
	defaultSettleDelay         = 300 * time.Millisecond
	defaultRestartDelay        = 300 * time.Millisecond
	defaultNetworkRestartDelay = 500 * time.Millisecond
	defaultEndGrace            = 3 * time.Second
)

// Config holds controller timings. Zero values select the defaults.
type Config struct {
	// SettleDelay separates the end of agent speech (or unmuting) from the
	// next capture attempt. Default: 300ms.
	SettleDelay time.Duration

	// RestartDelay precedes a retry after a timeout, no-speech or aborted
	// attempt. Default: 300ms.
	RestartDelay time.Duration

	// NetworkRestartDelay precedes a retry after a recogniser network
	// failure. Default: 500ms.
	NetworkRestartDelay time.Duration

	// EndGrace is the pause between the closing line finishing and the
	// session ending. Default: 3s.
	EndGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = defaultRestartDelay
	}
	if c.NetworkRestartDelay <= 0 {
		c.NetworkRestartDelay = defaultNetworkRestartDelay
	}
	if c.EndGrace <= 0 {
		c.EndGrace = defaultEndGrace
	}
}

// Result is the outcome of a finished session.
type Result struct {
	Plan       Plan
	Reason     EndReason
	Transcript types.Transcript

	// QuestionsAsked counts distinct questions that were spoken.
	QuestionsAsked int

	StartedAt time.Time
	EndedAt   time.Time
}

// TranscriptSink receives the finished session exactly once.
type TranscriptSink interface {
	Deliver(ctx context.Context, res Result) error
}

// SinkFunc adapts a function to [TranscriptSink].
type SinkFunc func(ctx context.Context, res Result) error

// Deliver implements [TranscriptSink].
func (f SinkFunc) Deliver(ctx context.Context, res Result) error { return f(ctx, res) }

// Option configures a [Controller].
type Option func(*Controller)

// WithConfig sets the controller timings.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithSink sets where the finished transcript is delivered.
func WithSink(s TranscriptSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithListener sets the receiver of UI updates.
func WithListener(l Listener) Option {
	return func(c *Controller) { c.listener = l }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithClock sets the time source used for transcript timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Internal loop messages.
type (
	spoken struct {
		text string
		err  error
	}
	captured struct {
		gen uint64
		out Outcome
	}
	listenDue struct{ gen uint64 }
	graceDue  struct{ reason EndReason }
)

// Controller runs one interview. A single goroutine owns the [State] and
// serialises every input: capture outcomes, playback completions, timers,
// mute toggles and end requests.
//
// Speech output and capture never overlap: every Speak stops capture first
// and capture only starts while nothing is being spoken.
type Controller struct {
	plan       Plan
	cfg        Config
	in         Input
	out        Output
	sink       TranscriptSink
	listener   Listener
	metrics    *observe.Metrics
	log        *slog.Logger
	now        func() time.Time
	transcript *Recorder

	started atomic.Bool
	inbox   chan any
	endReq  chan struct{}
	endOnce sync.Once
	done    chan struct{}

	mu       sync.Mutex
	snapshot State
	result   *Result

	// Owned by the loop goroutine.
	state        State
	queue        []Effect
	speaking     bool
	finished     bool
	listening    bool
	listenGen    uint64
	listenTimer  *time.Timer
	listenCancel context.CancelFunc
	listenDone   chan struct{}
	graceTimer   *time.Timer
	cancel       context.CancelFunc
	startedAt    time.Time
}

// New returns a controller for plan. in and out must not be nil.
func New(plan Plan, in Input, out Output, opts ...Option) (*Controller, error) {
	if len(plan.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	c := &Controller{
		plan:     plan,
		in:       in,
		out:      out,
		sink:     SinkFunc(func(context.Context, Result) error { return nil }),
		listener: nopListener{},
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		now:      time.Now,
		inbox:    make(chan any, 16),
		endReq:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.cfg.applyDefaults()
	c.transcript = NewRecorder(c.now)
	return c, nil
}

// Start acquires the microphone and, on success, begins the interview in the
// background. A microphone error ends the session before the greeting and is
// returned wrapped. ctx bounds the whole session: cancelling it ends the
// interview like [Controller.End].
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := c.in.Acquire(ctx); err != nil {
		cause := CauseDevice
		if errors.Is(err, audio.ErrPermissionDenied) {
			cause = CausePermission
		}
		c.log.Error("microphone unavailable, interview not started", "cause", cause, "err", err)
		now := c.now()
		c.state.Stage = StageCompleted
		c.state.EndReason = EndFatal
		c.publish()
		c.setResult(Result{Plan: c.plan, Reason: EndFatal, StartedAt: now, EndedAt: now})
		c.listener.OnUpdate(Update{Kind: UpdateFatal, Cause: cause})
		c.listener.OnUpdate(Update{Kind: UpdateEnded, Reason: EndFatal})
		close(c.done)
		return fmt.Errorf("interview: acquire microphone: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.startedAt = c.now()
	c.metrics.ActiveSessions.Add(ctx, 1)
	go c.run(ctx, sessCtx)
	return nil
}

// End ends the session. Only the first call has an effect.
func (c *Controller) End() {
	c.endOnce.Do(func() { close(c.endReq) })
}

// SetMuted mutes or unmutes the candidate's microphone.
func (c *Controller) SetMuted(muted bool) {
	select {
	case c.inbox <- MuteChanged{Muted: muted}:
	case <-c.done:
	}
}

// State returns the current interview state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Transcript returns a copy of the transcript so far.
func (c *Controller) Transcript() types.Transcript {
	return c.transcript.Entries()
}

// Done is closed once the session has ended and the transcript was handed to
// the sink.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Result returns the session result, and false while the session runs.
func (c *Controller) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

func (c *Controller) run(parent, ctx context.Context) {
	defer close(c.done)

	c.dispatch(ctx, Started{})
	endReq := c.endReq
	for !c.finished {
		select {
		case <-endReq:
			endReq = nil
			c.dispatch(ctx, EndRequested{Reason: EndManual})
		case <-ctx.Done():
			c.dispatch(ctx, EndRequested{Reason: EndManual})
			c.finish(EndManual)
		case m := <-c.inbox:
			c.handle(ctx, m)
		}
	}

	res, _ := c.Result()
	c.metrics.RecordSessionEnd(parent, string(res.Reason))
	c.listener.OnUpdate(Update{Kind: UpdateEnded, Reason: res.Reason})
	c.log.Info("interview ended",
		"reason", res.Reason,
		"questions_asked", res.QuestionsAsked,
		"entries", len(res.Transcript),
	)
	if err := c.sink.Deliver(context.WithoutCancel(parent), res); err != nil {
		c.log.Error("transcript delivery failed", "err", err)
	}
}

// post hands m to the loop unless the session is over.
func (c *Controller) post(m any) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

func (c *Controller) handle(ctx context.Context, m any) {
	switch m := m.(type) {
	case Event:
		c.dispatch(ctx, m)
	case spoken:
		c.speaking = false
		if m.err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("speech output reported an error", "err", m.err)
		}
		e := c.transcript.Append(types.SpeakerAgent, m.text)
		c.listener.OnUpdate(Update{Kind: UpdateEntryAdded, Entry: e})
		c.listener.OnUpdate(Update{Kind: UpdateAgentIdle})
		// Effects queued behind the line (mute toggles) run first; the line
		// still counts as finished.
		c.drain(ctx)
		if !c.speaking && !c.finished {
			c.dispatch(ctx, SpeechDone{})
		}
	case captured:
		if m.gen != c.listenGen {
			return
		}
		c.endAttempt()
		c.outcome(ctx, m.out)
	case listenDue:
		if m.gen != c.listenGen {
			return
		}
		c.listenTimer = nil
		c.startAttempt(ctx)
	case graceDue:
		c.dispatch(ctx, EndRequested{Reason: m.reason})
	}
}

func (c *Controller) outcome(ctx context.Context, out Outcome) {
	switch out.Kind {
	case OutcomeUtterance:
		text := strings.TrimSpace(out.Text)
		if text == "" {
			c.dispatch(ctx, NothingHeard{Cause: CauseAborted})
			return
		}
		e := c.transcript.Append(types.SpeakerCandidate, text)
		c.listener.OnUpdate(Update{Kind: UpdateEntryAdded, Entry: e})
		c.dispatch(ctx, Heard{Text: text})
		c.metrics.RecordUtterance(ctx, string(c.state.Intent))
		c.log.Debug("utterance handled", "intent", c.state.Intent, "question_index", c.state.QuestionIndex)
	case OutcomeNothing:
		c.metrics.RecordListenRestart(ctx, string(out.Cause))
		c.log.Debug("nothing heard", "cause", out.Cause)
		c.dispatch(ctx, NothingHeard{Cause: out.Cause})
	case OutcomeFatal:
		c.log.Error("microphone lost, ending interview", "cause", out.Cause)
		c.listener.OnUpdate(Update{Kind: UpdateFatal, Cause: out.Cause})
		c.dispatch(ctx, InputFailed{Cause: out.Cause})
	case OutcomeCancelled:
		// Stopped from outside the controller; capture is re-armed if allowed.
		c.log.Debug("capture attempt cancelled")
		c.armListen(ctx, c.cfg.RestartDelay)
	}
}

// dispatch runs one transition and executes its effects.
func (c *Controller) dispatch(ctx context.Context, ev Event) {
	prev := c.state
	next, effects := c.plan.Transition(prev, ev)
	c.state = next
	c.publish()
	if next.Stage != prev.Stage {
		c.log.Debug("interview stage changed", "from", prev.Stage, "to", next.Stage)
		c.listener.OnUpdate(Update{Kind: UpdateStageChanged, Stage: next.Stage})
	}

	// Ending preempts anything still queued behind the current line.
	for _, eff := range effects {
		if e, ok := eff.(End); ok {
			c.finish(e.Reason)
			return
		}
	}
	c.queue = append(c.queue, effects...)
	c.drain(ctx)
}

func (c *Controller) drain(ctx context.Context) {
	for len(c.queue) > 0 && !c.speaking && !c.finished {
		eff := c.queue[0]
		c.queue = c.queue[1:]
		c.apply(ctx, eff)
	}
}

func (c *Controller) apply(ctx context.Context, eff Effect) {
	switch eff := eff.(type) {
	case Speak:
		c.stopListening()
		c.speaking = true
		c.log.Debug("speaking", "kind", eff.Kind)
		c.listener.OnUpdate(Update{Kind: UpdateAgentSpeaking})
		go func() {
			err := c.out.Speak(ctx, eff.Text)
			c.post(spoken{text: eff.Text, err: err})
		}()
	case Listen:
		c.armListen(ctx, c.delay(eff.After))
	case StopListening:
		c.stopListening()
	case ScheduleEnd:
		reason := eff.Reason
		c.graceTimer = time.AfterFunc(c.cfg.EndGrace, func() { c.post(graceDue{reason: reason}) })
	case End:
		c.finish(eff.Reason)
	}
}

func (c *Controller) delay(d Delay) time.Duration {
	switch d {
	case DelayRetry:
		return c.cfg.RestartDelay
	case DelayNetworkRetry:
		return c.cfg.NetworkRestartDelay
	default:
		return c.cfg.SettleDelay
	}
}

// armListen supersedes any pending attempt and schedules a new one.
func (c *Controller) armListen(ctx context.Context, after time.Duration) {
	c.stopListening()
	if after <= 0 {
		c.startAttempt(ctx)
		return
	}
	gen := c.listenGen
	c.listenTimer = time.AfterFunc(after, func() { c.post(listenDue{gen: gen}) })
}

func (c *Controller) canListen() bool {
	return !c.finished &&
		c.state.Active &&
		!c.state.Muted &&
		c.state.Stage.Listening() &&
		!c.speaking &&
		!c.listening
}

func (c *Controller) startAttempt(ctx context.Context) {
	if !c.canListen() {
		return
	}
	actx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	gen := c.listenGen
	c.listening = true
	c.listenCancel = cancel
	c.listenDone = done
	c.listener.OnUpdate(Update{Kind: UpdateListeningStarted})

	go func() {
		defer close(done)
		out := c.in.Listen(actx)
		select {
		case c.inbox <- captured{gen: gen, out: out}:
		case <-actx.Done():
		}
	}()
}

// endAttempt cancels the running attempt and waits for its goroutine.
func (c *Controller) endAttempt() {
	if !c.listening {
		return
	}
	c.listenCancel()
	<-c.listenDone
	c.listening = false
	c.listenCancel = nil
	c.listenDone = nil
	c.listener.OnUpdate(Update{Kind: UpdateListeningStopped})
}

// stopListening invalidates pending timers and results, then stops capture.
func (c *Controller) stopListening() {
	c.listenGen++
	if c.listenTimer != nil {
		c.listenTimer.Stop()
		c.listenTimer = nil
	}
	c.endAttempt()
}

func (c *Controller) finish(reason EndReason) {
	if c.finished {
		return
	}
	c.finished = true
	c.queue = nil
	c.stopListening()
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	c.cancel()

	c.state.Active = false
	c.state.Stage = StageCompleted
	if c.state.EndReason == "" {
		c.state.EndReason = reason
	}
	c.publish()

	asked := 0
	if c.state.LastQuestion != "" {
		asked = c.state.QuestionIndex + 1
	}
	c.setResult(Result{
		Plan:           c.plan,
		Reason:         c.state.EndReason,
		Transcript:     c.transcript.Entries(),
		QuestionsAsked: asked,
		StartedAt:      c.startedAt,
		EndedAt:        c.now(),
	})
}

func (c *Controller) publish() {
	c.mu.Lock()
	c.snapshot = c.state
	c.mu.Unlock()
}

func (c *Controller) setResult(r Result) {
	c.mu.Lock()
	c.result = &r
	c.mu.Unlock()
}
