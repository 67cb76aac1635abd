package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/types"
)

// Meta identifies the interview a transcript belongs to.
type Meta struct {
	SessionID     string
	QuestionSetID string
	Job           Job
}

// Pipeline evaluates finished interviews and saves the resulting reports.
// Either the generator or the store may be nil: without a generator reports
// carry no feedback, without a store they are only handed to the caller.
type Pipeline struct {
	gen   *Generator
	store Store
	now   func() time.Time
}

// NewPipeline returns a pipeline that evaluates with gen and saves to store.
func NewPipeline(gen *Generator, store Store) *Pipeline {
	return &Pipeline{gen: gen, store: store, now: time.Now}
}

// Process builds the report for res, saves it and returns it. An empty
// transcript produces no report and a nil result.
//
// Evaluation failures are logged and leave the report without feedback; only
// storage failures are returned, together with the report.
func (p *Pipeline) Process(ctx context.Context, meta Meta, res interview.Result) (*types.Report, error) {
	if len(res.Transcript) == 0 {
		return nil, nil
	}
	ctx = observe.WithSessionID(ctx, meta.SessionID)
	log := observe.Logger(ctx)

	r := &types.Report{
		ID:            uuid.NewString(),
		SessionID:     meta.SessionID,
		QuestionSetID: meta.QuestionSetID,
		CandidateName: res.Plan.CandidateName,
		JobPosition:   meta.Job.Position,
		EndReason:     string(res.Reason),
		Transcript:    res.Transcript,
		CreatedAt:     p.now().UTC(),
	}
	if r.JobPosition == "" {
		r.JobPosition = res.Plan.JobPosition
	}

	if p.gen != nil {
		job := meta.Job
		if job.Position == "" {
			job.Position = res.Plan.JobPosition
		}
		if len(job.Questions) == 0 {
			job.Questions = res.Plan.Questions
		}
		a, err := p.gen.Assess(ctx, job, res.Transcript)
		switch {
		case errors.Is(err, ErrNoAnswers):
			log.Info("feedback: no candidate answers, skipping evaluation")
		case err != nil:
			log.Warn("feedback: evaluation failed, saving report without feedback", "err", err)
		default:
			r.Feedback = a.Feedback
			r.RawFeedback = a.Raw
			r.Rating = a.Rating
			r.Summary = a.Summary
			r.Recommended = a.Recommended()
		}
	}

	if p.store != nil {
		if err := p.store.SaveReport(ctx, *r); err != nil {
			return r, fmt.Errorf("feedback: save: %w", err)
		}
	}
	log.Info("feedback: report saved", "report_id", r.ID, "rating", r.Rating, "recommended", r.Recommended)
	return r, nil
}

// Sink returns the [interview.TranscriptSink] for one session. notify, when
// non-nil, receives the report once it is built, even if saving failed.
func (p *Pipeline) Sink(meta Meta, notify func(types.Report)) interview.TranscriptSink {
	return interview.SinkFunc(func(ctx context.Context, res interview.Result) error {
		r, err := p.Process(ctx, meta, res)
		if r != nil && notify != nil {
			notify(*r)
		}
		return err
	})
}
