// Package interview runs a single voice interview session.
//
// The package is split into a pure state machine ([Plan.Transition]) and a
// [Controller] that executes the effects the state machine asks for: speaking
// lines through an [Output], capturing utterances through an [Input], and
// arming the timers between them. The controller is the only writer of
// [State]; providers report outcomes and never touch it directly.
package interview

import "fmt"

// Stage is the phase of an interview.
type Stage int

const (
	// StageGreeting is the initial stage: the greeting is being spoken.
	StageGreeting Stage = iota

	// StageAwaitingReadiness waits for the candidate to confirm they are ready.
	StageAwaitingReadiness

	// StageAsking covers speaking a question (and the acknowledgment before it).
	StageAsking

	// StageAwaitingAnswer waits for the candidate's answer to the current question.
	StageAwaitingAnswer

	// StageCompleted is terminal. No further input is accepted.
	StageCompleted
)

// String returns the stage name used in logs and the HTTP API.
func (s Stage) String() string {
	switch s {
	case StageGreeting:
		return "greeting"
	case StageAwaitingReadiness:
		return "awaiting_readiness"
	case StageAsking:
		return "asking"
	case StageAwaitingAnswer:
		return "awaiting_answer"
	case StageCompleted:
		return "completed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Listening reports whether the stage expects candidate speech.
func (s Stage) Listening() bool {
	return s == StageAwaitingReadiness || s == StageAwaitingAnswer
}

// EndReason says why a session ended.
type EndReason string

const (
	// EndCompleted means every question was answered.
	EndCompleted EndReason = "completed"

	// EndTerminated means the candidate asked to stop.
	EndTerminated EndReason = "terminated"

	// EndManual means the session was ended from outside (UI action, shutdown).
	EndManual EndReason = "manual"

	// EndFatal means the microphone became unusable.
	EndFatal EndReason = "fatal"
)

// Intent is how the last recognised utterance was interpreted.
type Intent string

const (
	IntentReadiness Intent = "readiness"
	IntentAnswer    Intent = "answer"
	IntentRepeat    Intent = "repeat"
	IntentTerminate Intent = "terminate"

	// IntentIgnored marks utterances that arrived in a stage that does not
	// listen.
	IntentIgnored Intent = "ignored"
)

// State is the complete interview state. It is a plain value; transitions
// return a modified copy.
type State struct {
	Stage Stage

	// QuestionIndex is the index of the question currently being asked or
	// answered.
	QuestionIndex int

	// LastQuestion is the exact text of the most recently asked question, or
	// empty before the first one.
	LastQuestion string

	// Intent is the interpretation of the most recent utterance.
	Intent Intent

	// EndReason is set once the session is on its way out.
	EndReason EndReason

	Muted  bool
	Active bool
}
