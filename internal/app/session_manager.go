package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/feedback"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/questionset"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/types"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("app: session not found")

	// ErrSessionExists is returned when a candidate connects to a session
	// that already has a connected candidate.
	ErrSessionExists = errors.New("app: session already has a connected candidate")

	// ErrSetInactive is returned when a session is requested for a question
	// set that is not active.
	ErrSetInactive = errors.New("app: question set is not active")

	// ErrNotStarted is returned by controls issued before a candidate has
	// connected.
	ErrNotStarted = errors.New("app: session has not started")
)

// SessionInfo is a point-in-time view of one interview session.
type SessionInfo struct {
	ID            string                  `json:"id"`
	QuestionSetID string                  `json:"questionSetId"`
	CandidateName string                  `json:"candidateName"`
	JobPosition   string                  `json:"jobPosition"`
	CreatedAt     time.Time               `json:"createdAt"`
	Started       bool                    `json:"started"`
	Stage         string                  `json:"stage"`
	QuestionIndex int                     `json:"questionIndex"`
	Questions     int                     `json:"questions"`
	Muted         bool                    `json:"muted"`
	EndReason     string                  `json:"endReason,omitempty"`
	Transcript    []types.TranscriptEntry `json:"transcript"`
	Report        *types.Report           `json:"report,omitempty"`
}

// session is one interview, from creation until it is reaped.
type session struct {
	id        string
	set       questionset.QuestionSet
	plan      interview.Plan
	createdAt time.Time

	mu       sync.Mutex
	ctrl     *interview.Controller
	endedAt  time.Time
	report   *types.Report
	reported chan struct{}
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	STT       stt.Provider
	TTS       tts.Provider
	Voice     tts.VoiceProfile
	Questions questionset.Store
	Pipeline  *feedback.Pipeline
	Interview config.InterviewConfig
	Metrics   *observe.Metrics
}

// SessionManager owns the live interview sessions. Sessions are created for
// a question set and a candidate, then started when the candidate's browser
// connects. All exported methods are safe for concurrent use.
type SessionManager struct {
	stt      stt.Provider
	tts      tts.Provider
	voice    tts.VoiceProfile
	pipeline *feedback.Pipeline
	metrics  *observe.Metrics
	now      func() time.Time

	// base bounds every running session; cancel ends them all.
	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	questions questionset.Store
	ivCfg     config.InterviewConfig
	sessions  map[string]*session
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	base, cancel := context.WithCancel(context.Background())
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	p := cfg.Pipeline
	if p == nil {
		p = feedback.NewPipeline(nil, nil)
	}
	return &SessionManager{
		stt:       cfg.STT,
		tts:       cfg.TTS,
		voice:     cfg.Voice,
		pipeline:  p,
		metrics:   m,
		now:       time.Now,
		base:      base,
		cancel:    cancel,
		questions: cfg.Questions,
		ivCfg:     cfg.Interview,
		sessions:  make(map[string]*session),
	}
}

// SetQuestionStore swaps the store used for new sessions.
func (sm *SessionManager) SetQuestionStore(s questionset.Store) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.questions = s
}

// QuestionStore returns the store used for new sessions.
func (sm *SessionManager) QuestionStore() questionset.Store {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.questions
}

// SetInterviewConfig changes the timings used by sessions started from now
// on. Running sessions keep theirs.
func (sm *SessionManager) SetInterviewConfig(cfg config.InterviewConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.ivCfg = cfg
}

// Create registers a new session for candidate on the question set setID.
// The interview begins once [SessionManager.Attach] connects the candidate.
func (sm *SessionManager) Create(ctx context.Context, setID, candidate string) (SessionInfo, error) {
	store := sm.QuestionStore()
	set, err := store.Get(ctx, setID)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: create session: %w", err)
	}
	if set.Status != questionset.StatusActive {
		return SessionInfo{}, fmt.Errorf("app: create session for %q: %w", setID, ErrSetInactive)
	}

	s := &session{
		id:  uuid.NewString(),
		set: set,
		plan: interview.Plan{
			CandidateName: candidate,
			JobPosition:   set.JobPosition,
			Questions:     slices.Clone(set.Questions),
		},
		createdAt: sm.now(),
		reported:  make(chan struct{}),
	}

	sm.mu.Lock()
	sm.sessions[s.id] = s
	sm.mu.Unlock()

	slog.Info("session created",
		"session_id", s.id,
		"question_set", setID,
		"questions", len(s.plan.Questions),
	)
	return s.info(), nil
}

// Attach connects ep to the session and starts the interview. It blocks
// until the microphone has been acquired. listener receives UI updates; it
// may be nil.
func (sm *SessionManager) Attach(id string, ep audio.Endpoint, listener interview.Listener) (*interview.Controller, error) {
	s, err := sm.lookup(id)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	ivCfg := sm.ivCfg
	sm.mu.Unlock()

	log := slog.Default().With("session_id", id)
	in := interview.NewSpeechInput(sm.stt, ep,
		interview.WithListenTimeout(ivCfg.ListenTimeout),
		interview.WithSampleRate(ivCfg.SampleRate),
		interview.WithLanguage(ivCfg.Language),
		interview.WithKeywords(stt.KeywordBoost{Keyword: s.plan.JobPosition, Boost: 2}),
	)
	out := interview.NewSpeechOutput(sm.tts, ep, ep,
		interview.WithVoice(sm.voice),
		interview.WithOutputMetrics(sm.metrics),
		interview.WithOutputLogger(log),
	)

	meta := feedback.Meta{
		SessionID:     id,
		QuestionSetID: s.set.ID,
		Job: feedback.Job{
			Position:        s.set.JobPosition,
			Description:     s.set.JobDescription,
			ExperienceLevel: s.set.ExperienceLevel,
			Questions:       s.plan.Questions,
		},
	}
	sink := interview.SinkFunc(func(ctx context.Context, res interview.Result) error {
		err := sm.pipeline.Sink(meta, s.setReport).Deliver(ctx, res)
		s.markReported(sm.now())
		return err
	})

	opts := []interview.Option{
		interview.WithConfig(interview.Config{
			SettleDelay:         ivCfg.SettleDelay,
			RestartDelay:        ivCfg.RestartDelay,
			NetworkRestartDelay: ivCfg.NetworkRestartDelay,
			EndGrace:            ivCfg.EndGrace,
		}),
		interview.WithSink(sink),
		interview.WithMetrics(sm.metrics),
		interview.WithLogger(log),
	}
	if listener != nil {
		opts = append(opts, interview.WithListener(listener))
	}
	ctrl, err := interview.New(s.plan, in, out, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: attach %s: %w", id, err)
	}

	s.mu.Lock()
	if s.ctrl != nil {
		s.mu.Unlock()
		return nil, ErrSessionExists
	}
	s.ctrl = ctrl
	s.mu.Unlock()

	if err := ctrl.Start(sm.base); err != nil {
		// A fatal start still produced a result; record it like any other end.
		s.markReported(sm.now())
		return ctrl, fmt.Errorf("app: start %s: %w", id, err)
	}
	log.Info("interview started", "candidate", s.plan.CandidateName)
	return ctrl, nil
}

// Mute mutes or unmutes the candidate of a running session.
func (sm *SessionManager) Mute(id string, muted bool) error {
	ctrl, err := sm.controller(id)
	if err != nil {
		return err
	}
	ctrl.SetMuted(muted)
	return nil
}

// End ends a session. A session that never started is removed.
func (sm *SessionManager) End(id string) error {
	s, err := sm.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		sm.remove(id)
		slog.Info("session discarded before start", "session_id", id)
		return nil
	}
	ctrl.End()
	return nil
}

// Get returns the current view of a session.
func (sm *SessionManager) Get(id string) (SessionInfo, error) {
	s, err := sm.lookup(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.info(), nil
}

// List returns every known session ordered by creation time.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	all := make([]*session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		all = append(all, s)
	}
	sm.mu.Unlock()

	slices.SortFunc(all, func(a, b *session) int { return a.createdAt.Compare(b.createdAt) })
	out := make([]SessionInfo, len(all))
	for i, s := range all {
		out[i] = s.info()
	}
	return out
}

// WaitReport blocks until the session's transcript has been processed and
// returns the report, which is nil when nothing was said.
func (sm *SessionManager) WaitReport(ctx context.Context, id string) (*types.Report, error) {
	s, err := sm.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-s.reported:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report, nil
}

// Reap removes sessions that finished more than ttl ago and discards
// sessions nobody connected to within ttl. It returns the number removed.
func (sm *SessionManager) Reap(ttl time.Duration) int {
	now := sm.now()
	sm.mu.Lock()
	defer sm.mu.Unlock()

	n := 0
	for id, s := range sm.sessions {
		s.mu.Lock()
		started, endedAt := s.ctrl != nil, s.endedAt
		s.mu.Unlock()

		switch {
		case !endedAt.IsZero() && now.Sub(endedAt) > ttl:
		case !started && now.Sub(s.createdAt) > ttl:
		default:
			continue
		}
		delete(sm.sessions, id)
		n++
	}
	if n > 0 {
		slog.Debug("reaped sessions", "count", n)
	}
	return n
}

// Active returns the number of sessions with a running interview.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for _, s := range sm.sessions {
		s.mu.Lock()
		if s.ctrl != nil && s.endedAt.IsZero() {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Shutdown ends every running session and waits until their transcripts
// have been delivered or ctx expires.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.cancel()

	sm.mu.Lock()
	var running []*session
	for _, s := range sm.sessions {
		s.mu.Lock()
		if s.ctrl != nil {
			running = append(running, s)
		}
		s.mu.Unlock()
	}
	sm.mu.Unlock()

	for _, s := range running {
		select {
		case <-s.reported:
		case <-ctx.Done():
			return fmt.Errorf("app: session shutdown: %w", ctx.Err())
		}
	}
	return nil
}

func (sm *SessionManager) lookup(id string) (*session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (sm *SessionManager) controller(id string) (*interview.Controller, error) {
	s, err := sm.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return nil, ErrNotStarted
	}
	return s.ctrl, nil
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

func (s *session) setReport(r types.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = &r
}

func (s *session) markReported(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endedAt.IsZero() {
		return
	}
	s.endedAt = at
	close(s.reported)
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	ctrl, report := s.ctrl, s.report
	s.mu.Unlock()

	info := SessionInfo{
		ID:            s.id,
		QuestionSetID: s.set.ID,
		CandidateName: s.plan.CandidateName,
		JobPosition:   s.plan.JobPosition,
		CreatedAt:     s.createdAt,
		Questions:     len(s.plan.Questions),
		Stage:         interview.StageGreeting.String(),
		Transcript:    []types.TranscriptEntry{},
		Report:        report,
	}
	if ctrl == nil {
		return info
	}
	st := ctrl.State()
	info.Started = true
	info.Stage = st.Stage.String()
	info.QuestionIndex = st.QuestionIndex
	info.Muted = st.Muted
	info.EndReason = string(st.EndReason)
	info.Transcript = ctrl.Transcript()
	return info
}
