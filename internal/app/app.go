// Package app wires all intervox subsystems into a running server.
//
// The App struct owns the full lifecycle: New loads question sets, opens the
// report stores and builds the session manager, Run serves HTTP until the
// context is cancelled, and Shutdown ends running interviews and tears
// everything down in order.
//
// For testing, inject test doubles via functional options
// (WithQuestionStore, WithReportStore, ...). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/feedback"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/questionset"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

const (
	reapInterval    = time.Minute
	shutdownTimeout = 15 * time.Second
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry,
// already wrapped in their fallback chains.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
	LLM llm.Provider

	// LLMName labels feedback requests in metrics.
	LLMName string
}

// App owns all subsystem lifetimes of the interview server.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	questions questionset.Store
	reports   feedback.Store
	pipeline  *feedback.Pipeline
	sessions  *SessionManager
	health    *health.Handler
	metrics   *observe.Metrics
	level     *slog.LevelVar
	listener  net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithQuestionStore injects a question set store instead of loading the
// configured directory.
func WithQuestionStore(s questionset.Store) Option {
	return func(a *App) { a.questions = s }
}

// WithReportStore injects a report store instead of opening the configured
// JSONL file and database.
func WithReportStore(s feedback.Store) Option {
	return func(a *App) { a.reports = s }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar sets the variable holding the root log level, so config
// reloads can change it.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: a speech-to-text provider is required")
	}

	// ── 1. Question sets ─────────────────────────────────────────────────
	if a.questions == nil {
		store, err := loadQuestionSets(ctx, cfg.QuestionSets)
		if err != nil {
			return nil, fmt.Errorf("app: init question sets: %w", err)
		}
		a.questions = store
	}

	// ── 2. Report stores ─────────────────────────────────────────────────
	if err := a.initReports(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init reports: %w", err)
	}

	// ── 3. Feedback pipeline ─────────────────────────────────────────────
	var gen *feedback.Generator
	if providers.LLM != nil {
		name := providers.LLMName
		if name == "" {
			name = "llm"
		}
		gen = feedback.NewGenerator(providers.LLM,
			feedback.WithMetrics(a.metrics),
			feedback.WithProviderName(name),
		)
	} else {
		slog.Warn("no llm provider configured, reports will carry no feedback")
	}
	a.pipeline = feedback.NewPipeline(gen, a.reports)

	// ── 4. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		STT:       providers.STT,
		TTS:       providers.TTS,
		Voice:     tts.VoiceProfile{ID: cfg.Providers.TTS.Voice, Provider: cfg.Providers.TTS.Name},
		Questions: a.questions,
		Pipeline:  a.pipeline,
		Interview: cfg.Interview,
		Metrics:   a.metrics,
	})

	// ── 5. Health ────────────────────────────────────────────────────────
	a.health = health.New(a.checkers()...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// loadQuestionSets reads every template in dir into a fresh store.
func loadQuestionSets(ctx context.Context, dir string) (*questionset.MemStore, error) {
	store := questionset.NewMemStore()
	n, err := questionset.LoadDir(ctx, store, dir)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		slog.Warn("no question sets found", "dir", dir)
	}
	slog.Info("loaded question sets", "dir", dir, "count", n)
	return store, nil
}

// initReports opens the configured report stores or keeps the injected one.
func (a *App) initReports(ctx context.Context) error {
	if a.reports != nil {
		return nil
	}

	var stores feedback.MultiStore
	if path := a.cfg.Feedback.JSONLPath; path != "" {
		stores = append(stores, feedback.NewFileStore(path))
		slog.Info("report file store enabled", "path", path)
	}
	if dsn := a.cfg.Feedback.PostgresDSN; dsn != "" {
		pg, closeDB, err := feedback.OpenPostgres(ctx, dsn)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			closeDB()
			return nil
		})
		stores = append(stores, pg)
		slog.Info("report database store enabled")
	}

	switch len(stores) {
	case 0:
		// Reports are still produced and shown to the caller.
	case 1:
		a.reports = stores[0]
	default:
		a.reports = stores
	}
	return nil
}

// pinger is implemented by report stores that can check their backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// checkers builds the readiness checks for the configured subsystems.
func (a *App) checkers() []health.Checker {
	checks := []health.Checker{{
		Name: "question_sets",
		Check: func(ctx context.Context) error {
			sets, err := a.sessions.QuestionStore().List(ctx, questionset.ListOptions{Status: questionset.StatusActive})
			if err != nil {
				return err
			}
			if len(sets) == 0 {
				return errors.New("no active question sets")
			}
			return nil
		},
	}}

	// A remote report store is optional while a local store still keeps
	// every report.
	var (
		pingers  []pinger
		hasLocal bool
	)
	switch s := a.reports.(type) {
	case feedback.MultiStore:
		for _, inner := range s {
			if p, ok := inner.(pinger); ok {
				pingers = append(pingers, p)
			} else {
				hasLocal = true
			}
		}
	case pinger:
		pingers = append(pingers, s)
	}
	for i, p := range pingers {
		name := "report_store"
		if i > 0 {
			name = fmt.Sprintf("report_store_%d", i+1)
		}
		checks = append(checks, health.Checker{Name: name, Check: p.Ping, Optional: hasLocal})
	}
	return checks
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a changed config. It is
// meant as the [config.Watcher] callback.
func (a *App) ApplyConfig(_, newCfg *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.InterviewChanged {
		a.sessions.SetInterviewConfig(newCfg.Interview)
		slog.Info("interview settings changed, applied to new sessions")
	}
	if d.QuestionSetsChanged {
		store, err := loadQuestionSets(context.Background(), newCfg.QuestionSets)
		if err != nil {
			slog.Error("question set reload failed, keeping the previous sets", "dir", newCfg.QuestionSets, "err", err)
			return
		}
		a.sessions.SetQuestionStore(store)
	}
}

// SlogLevel converts a config log level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and reaps finished sessions until ctx is cancelled. It
// returns nil after a clean stop.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		a.reapLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.health.SetDraining(true)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		// Interviews end first so their closing lines reach the candidates.
		if err := a.sessions.Shutdown(shutdownCtx); err != nil {
			slog.Warn("sessions did not finish in time", "err", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) reapLoop(ctx context.Context) {
	ttl := a.cfg.Server.SessionTTL
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(min(reapInterval, ttl))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sessions.Reap(ttl)
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends any interviews still running and closes the subsystems. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.sessions.Shutdown(ctx); err != nil {
			shutdownErr = err
			return
		}
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
