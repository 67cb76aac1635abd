// Package types defines the value types shared across intervox packages.
//
// Providers, the interview controller, feedback sinks, and the HTTP layer all
// exchange these structures. Each package still owns its own domain types;
// only data that crosses package boundaries lives here.
package types

import (
	"strings"
	"time"
)

// Question is a single interview question. A question set is an ordered slice
// of Question values; the slice index defines the presentation order.
type Question struct {
	// ID is the stable identifier of the question within its set.
	ID string `json:"id" yaml:"id"`

	// Text is spoken to the candidate verbatim.
	Text string `json:"text" yaml:"text"`

	// Type is the interview category the question belongs to (for example
	// "technical" or "behavioral"). Optional.
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	// SpeakerAgent is the AI interviewer.
	SpeakerAgent Speaker = "agent"

	// SpeakerCandidate is the person being interviewed.
	SpeakerCandidate Speaker = "candidate"
)

// IsValid reports whether s is a recognised speaker.
func (s Speaker) IsValid() bool {
	return s == SpeakerAgent || s == SpeakerCandidate
}

// TranscriptEntry is one utterance in an interview transcript.
//
// Entries are appended in the order they became audible (agent lines) or were
// recognised (candidate lines). That order is the conversational order and is
// handed to feedback sinks unchanged.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`

	// TimestampMs is milliseconds since the Unix epoch.
	TimestampMs int64 `json:"timestampMs"`
}

// Time returns the entry timestamp as a [time.Time].
func (e TranscriptEntry) Time() time.Time {
	return time.UnixMilli(e.TimestampMs)
}

// Transcript is an ordered interview transcript.
type Transcript []TranscriptEntry

// Count returns the number of entries spoken by s.
func (t Transcript) Count(s Speaker) int {
	n := 0
	for _, e := range t {
		if e.Speaker == s {
			n++
		}
	}
	return n
}

// String renders the transcript one line per entry, prefixed with the
// speaker. It is the format used in feedback prompts.
func (t Transcript) String() string {
	var b strings.Builder
	for _, e := range t {
		switch e.Speaker {
		case SpeakerAgent:
			b.WriteString("Interviewer: ")
		default:
			b.WriteString("Candidate: ")
		}
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the model can be asked for a JSON object response.
	SupportsJSONMode bool
}

// Feedback is the qualitative part of an interview evaluation.
type Feedback struct {
	Overall             string `json:"overall"`
	TechnicalSkills     string `json:"technicalSkills"`
	CommunicationSkills string `json:"communicationSkills"`
	ProblemSolving      string `json:"problemSolving"`
	AreasOfImprovement  string `json:"areasOfImprovement"`

	// Recommendation is "Yes" or "No".
	Recommendation string `json:"recommendation"`
}

// Report is the finished evaluation of one interview session, together with
// the transcript it was derived from.
type Report struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"sessionId"`
	QuestionSetID string     `json:"questionSetId"`
	CandidateName string     `json:"candidateName"`
	JobPosition   string     `json:"jobPosition"`
	EndReason     string     `json:"endReason"`
	Transcript    Transcript `json:"transcript"`

	// Feedback is nil when no evaluation could be produced (for example an
	// empty transcript or an unavailable LLM).
	Feedback *Feedback `json:"feedback,omitempty"`

	// RawFeedback holds the model output verbatim when it could not be
	// parsed into Feedback.
	RawFeedback string `json:"rawFeedback,omitempty"`

	// Rating is the overall score between 1 and 10, or 0 when unrated.
	Rating      int       `json:"rating"`
	Summary     string    `json:"summary,omitempty"`
	Recommended bool      `json:"recommended"`
	CreatedAt   time.Time `json:"createdAt"`
}
