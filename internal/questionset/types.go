// Package questionset manages interview templates: a job position together
// with the ordered questions a candidate is asked.
//
// Templates are authored as YAML files ([LoadFile], [LoadDir]) and served from
// a [Store]. A question set is immutable once a session has started with it;
// the interview controller receives a copy of its questions.
//
// All store operations are safe for concurrent use.
package questionset

import "github.com/MrWong99/intervox/pkg/types"

// Status is the lifecycle state of a question set.
type Status string

const (
	// StatusDraft sets are listed but cannot host sessions.
	StatusDraft Status = "draft"

	// StatusActive sets accept new interview sessions.
	StatusActive Status = "active"

	// StatusArchived sets are kept for their reports only.
	StatusArchived Status = "archived"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	default:
		return false
	}
}

// QuestionSet is one interview template.
type QuestionSet struct {
	// ID is a unique identifier. Generated on Add if empty.
	ID string `yaml:"id" json:"id"`

	// JobPosition is the role title spoken in the greeting.
	JobPosition string `yaml:"job_position" json:"jobPosition"`

	// JobDescription is free text handed to the feedback generator.
	JobDescription string `yaml:"job_description,omitempty" json:"jobDescription,omitempty"`

	// ExperienceLevel is e.g. "junior", "mid" or "senior".
	ExperienceLevel string `yaml:"experience_level,omitempty" json:"experienceLevel,omitempty"`

	// DurationMinutes is the advertised interview length. Informational.
	DurationMinutes int `yaml:"duration_minutes,omitempty" json:"durationMinutes,omitempty"`

	// InterviewTypes lists the question categories used by this set. When
	// non-empty, every question's Type must be one of them.
	InterviewTypes []string `yaml:"interview_types,omitempty" json:"interviewTypes,omitempty"`

	// Status defaults to active when empty.
	Status Status `yaml:"status,omitempty" json:"status"`

	// Questions are asked in slice order.
	Questions []types.Question `yaml:"questions" json:"questions"`
}
