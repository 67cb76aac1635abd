package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/questionset"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/wsbridge"
)

const (
	maxBodyBytes = 64 << 10
	reportWait   = 2 * time.Minute
	updateBuffer = 64
)

// Handler returns the HTTP API, wrapped in the metrics middleware.
//
//	POST /interviews/{setID}/sessions        create a session for {candidate_name}
//	GET  /interviews/sessions/{id}/ws        connect the candidate's browser
//	POST /interviews/sessions/{id}/mute      {muted}
//	POST /interviews/sessions/{id}/end
//	GET  /interviews/sessions/{id}           stage, transcript and report
//	GET  /interviews/sessions                all sessions
//	GET  /interviews/sets                    active question sets
//	GET  /healthz, /readyz, /metrics
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /interviews/{setID}/sessions", a.handleCreate)
	mux.HandleFunc("GET /interviews/sessions", a.handleListSessions)
	mux.HandleFunc("GET /interviews/sessions/{id}", a.handleGet)
	mux.HandleFunc("GET /interviews/sessions/{id}/ws", a.handleConnect)
	mux.HandleFunc("POST /interviews/sessions/{id}/mute", a.handleMute)
	mux.HandleFunc("POST /interviews/sessions/{id}/end", a.handleEnd)
	mux.HandleFunc("GET /interviews/sets", a.handleListSets)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

type createRequest struct {
	CandidateName string `json:"candidate_name"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	info, err := a.sessions.Create(r.Context(), r.PathValue("setID"), req.CandidateName)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	info, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *App) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.sessions.List())
}

func (a *App) handleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.sessions.Mute(r.PathValue("id"), req.Muted); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.End(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleListSets(w http.ResponseWriter, r *http.Request) {
	opts := questionset.ListOptions{
		Status:        questionset.Status(r.URL.Query().Get("status")),
		InterviewType: r.URL.Query().Get("type"),
	}
	if opts.Status == "" {
		opts.Status = questionset.StatusActive
	}
	sets, err := a.sessions.QuestionStore().List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

// handleConnect upgrades to a WebSocket, starts the interview on it and
// serves it until the interview ends or the browser goes away.
func (a *App) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.sessions.Get(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	ctx := observe.WithSessionID(r.Context(), id)
	log := observe.Logger(ctx)

	controls := make(chan wsbridge.Control, 8)
	ep, err := wsbridge.Accept(w, r, nil,
		wsbridge.WithLogger(log),
		wsbridge.WithOnControl(func(c wsbridge.Control) {
			select {
			case controls <- c:
			default:
				log.Warn("dropping candidate control, queue full", "type", c.Type)
			}
		}),
	)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer ep.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- ep.Run(ctx) }()

	updates := make(chan interview.Update, updateBuffer)
	listener := interview.ListenerFunc(func(u interview.Update) {
		select {
		case updates <- u:
		default:
		}
	})
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		forwardUpdates(ep, updates)
	}()
	var flushOnce sync.Once
	flush := func() {
		flushOnce.Do(func() {
			close(updates)
			<-forwarded
		})
	}
	defer flush()

	ctrl, err := a.sessions.Attach(id, ep, listener)
	if err != nil {
		log.Warn("interview did not start", "err", err)
		ep.Notify("error", errorResponse{Error: err.Error()})
		if ctrl == nil {
			return
		}
	}

	for {
		select {
		case c := <-controls:
			switch c.Type {
			case "mute":
				ctrl.SetMuted(c.Muted)
			case "end":
				ctrl.End()
			}
		case <-ctrl.Done():
			flush()
			a.sendReport(ctx, ep, id)
			return
		case err := <-runErr:
			if err != nil {
				log.Info("candidate connection lost", "err", err)
			}
			ctrl.End()
			<-ctrl.Done()
			return
		}
	}
}

// sendReport forwards the finished session's report to the browser.
func (a *App) sendReport(ctx context.Context, ep *wsbridge.Endpoint, id string) {
	ctx, cancel := context.WithTimeout(ctx, reportWait)
	defer cancel()
	report, err := a.sessions.WaitReport(ctx, id)
	if err != nil || report == nil {
		return
	}
	ep.Notify("report", report)
}

// forwardUpdates relays controller updates to the browser until updates is
// closed.
func forwardUpdates(ep *wsbridge.Endpoint, updates <-chan interview.Update) {
	for u := range updates {
		ep.Notify(u.Kind.String(), updateDetail(u))
	}
}

type updatePayload struct {
	Stage   string `json:"stage,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

func updateDetail(u interview.Update) updatePayload {
	switch u.Kind {
	case interview.UpdateStageChanged:
		return updatePayload{Stage: u.Stage.String()}
	case interview.UpdateEntryAdded:
		return updatePayload{Speaker: string(u.Entry.Speaker), Text: u.Entry.Text}
	case interview.UpdateEnded:
		return updatePayload{Reason: string(u.Reason)}
	case interview.UpdateFatal:
		return updatePayload{Cause: string(u.Cause)}
	default:
		return updatePayload{}
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, questionset.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, ErrSetInactive), errors.Is(err, ErrNotStarted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
