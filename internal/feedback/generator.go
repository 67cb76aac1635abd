// Package feedback turns finished interview transcripts into evaluation
// reports and persists them.
//
// The [Generator] asks an [llm.Provider] for a structured assessment of the
// candidate. A [Pipeline] ties a generator to a [Store] and hands out one
// [interview.TranscriptSink] per session; the sink builds the
// [types.Report], saves it and notifies the caller.
//
// Evaluation failures never lose the transcript: when the model is
// unreachable the report is saved without feedback, and when its reply is not
// valid JSON the raw text is kept in [types.Report.RawFeedback].
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/types"
)

// ErrNoAnswers is returned by [Generator.Assess] when the transcript holds no
// candidate entries. There is nothing to evaluate.
var ErrNoAnswers = errors.New("feedback: transcript has no candidate answers")

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024

	minRating = 1
	maxRating = 10
)

const systemPrompt = `You are an experienced technical interviewer reviewing a finished job interview.

You receive the job position, the job description when known, the questions that were planned and the full conversation between interviewer and candidate.

Evaluate the candidate fairly. Base every statement only on what the candidate actually said. If the candidate ended the interview early, take that into account.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "feedback": {
    "overall": "<overall assessment>",
    "technicalSkills": "<assessment of technical skills>",
    "communicationSkills": "<assessment of communication skills>",
    "problemSolving": "<assessment of problem solving>",
    "areasOfImprovement": "<concrete areas to improve>",
    "recommendation": "Yes" or "No"
  },
  "rating": <integer from 1 to 10>,
  "summary": "<two or three sentence summary>"
}`

// Job describes the position the interview was held for.
type Job struct {
	Position        string
	Description     string
	ExperienceLevel string
	Questions       []types.Question
}

// Assessment is the parsed evaluation of one interview.
type Assessment struct {
	// Feedback is nil when the model reply could not be parsed.
	Feedback *types.Feedback
	Rating   int
	Summary  string

	// Raw is the model reply verbatim when parsing failed.
	Raw string
}

// Recommended reports whether the model recommends hiring the candidate.
func (a *Assessment) Recommended() bool {
	return a != nil && a.Feedback != nil && strings.EqualFold(strings.TrimSpace(a.Feedback.Recommendation), "yes")
}

// modelReply is the JSON object the system prompt asks for.
type modelReply struct {
	Feedback *types.Feedback `json:"feedback"`
	Rating   json.Number     `json:"rating"`
	Summary  string          `json:"summary"`
}

// Option configures a [Generator].
type Option func(*Generator)

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens caps the completion length. Default: 1024.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithMetrics records provider latency on m instead of the default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithProviderName sets the provider label used in metrics. Default: "llm".
func WithProviderName(name string) Option {
	return func(g *Generator) { g.providerName = name }
}

// Generator produces interview assessments with an [llm.Provider].
// It is safe for concurrent use.
type Generator struct {
	llm          llm.Provider
	temperature  float64
	maxTokens    int
	metrics      *observe.Metrics
	providerName string
}

// NewGenerator returns a [Generator] backed by provider.
func NewGenerator(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		llm:          provider,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
		metrics:      observe.DefaultMetrics(),
		providerName: "llm",
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Assess asks the model to evaluate the interview in transcript.
//
// An unparseable reply is not an error: the returned assessment carries the
// reply in Raw and a nil Feedback. Provider failures and context
// cancellation are returned as errors.
func (g *Generator) Assess(ctx context.Context, job Job, transcript types.Transcript) (*Assessment, error) {
	if transcript.Count(types.SpeakerCandidate) == 0 {
		return nil, ErrNoAnswers
	}

	ctx, span := observe.StartSpan(ctx, "feedback.assess")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.position", job.Position),
		attribute.Int("transcript.entries", len(transcript)),
	)

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: "user", Content: buildPrompt(job, transcript)}},
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
		JSON:         true,
	}

	start := time.Now()
	resp, err := g.llm.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordProviderRequest(ctx, g.providerName, "llm", status, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("feedback: complete: %w", err)
	}
	if resp == nil {
		return nil, errors.New("feedback: complete: empty response")
	}

	a, err := parseReply(resp.Content)
	if err != nil {
		observe.Logger(ctx).Warn("feedback: unparseable model reply, keeping raw text", "err", err)
		return &Assessment{Raw: resp.Content}, nil
	}
	span.SetAttributes(attribute.Int("feedback.rating", a.Rating))
	return a, nil
}

// buildPrompt renders the user message for one interview.
func buildPrompt(job Job, transcript types.Transcript) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job position: %s\n", job.Position)
	if job.ExperienceLevel != "" {
		fmt.Fprintf(&b, "Experience level: %s\n", job.ExperienceLevel)
	}
	if job.Description != "" {
		fmt.Fprintf(&b, "Job description: %s\n", job.Description)
	}
	if len(job.Questions) > 0 {
		b.WriteString("\nPlanned questions:\n")
		for i, q := range job.Questions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
		}
	}
	b.WriteString("\nConversation:\n")
	b.WriteString(transcript.String())
	return b.String()
}

// parseReply decodes the model output. Markdown code fences are tolerated.
func parseReply(content string) (*Assessment, error) {
	var r modelReply
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return nil, fmt.Errorf("feedback: parse reply: %w", err)
	}
	if r.Feedback == nil {
		return nil, errors.New("feedback: parse reply: missing feedback object")
	}
	rating, err := parseRating(r.Rating)
	if err != nil {
		return nil, err
	}
	return &Assessment{
		Feedback: r.Feedback,
		Rating:   rating,
		Summary:  strings.TrimSpace(r.Summary),
	}, nil
}

// parseRating accepts integer and fractional ratings and clamps them to
// [minRating, maxRating]. A missing rating stays 0.
func parseRating(n json.Number) (int, error) {
	if n == "" {
		return 0, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("feedback: parse rating %q: %w", n, err)
	}
	f = min(max(f, minRating), maxRating)
	return int(math.Round(f)), nil
}

// stripMarkdown removes a surrounding ```json or ``` fence.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
	}
	s, _ = strings.CutSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
