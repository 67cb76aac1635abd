package interview

import (
	"fmt"
	"strings"

	"github.com/MrWong99/intervox/pkg/types"
)

// Fixed agent lines.
const (
	lineReady            = "Okay, let's start this interview."
	lineNext             = "Okay."
	lineClosingTerminate = "I understand. Thank you for your time and good luck!"
	lineClosingComplete  = "That concludes our interview. Thank you for your time and good luck!"
)

// LineKind classifies an agent line.
type LineKind string

const (
	LineGreeting LineKind = "greeting"
	LineQuestion LineKind = "question"
	LineClosing  LineKind = "closing"
)

// Plan is the fixed content of one interview. It never changes once the
// session starts.
type Plan struct {
	CandidateName string
	JobPosition   string
	Questions     []types.Question
}

// Greeting returns the opening line for the candidate.
func (p Plan) Greeting() string {
	name := strings.TrimSpace(p.CandidateName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, how are you? Ready for your interview for the %s position?", name, p.JobPosition)
}

// Event is an input to [Plan.Transition].
type Event interface{ isEvent() }

type (
	// Started begins the session.
	Started struct{}

	// SpeechDone reports that every queued line has finished playing.
	SpeechDone struct{}

	// Heard carries one recognised candidate utterance.
	Heard struct{ Text string }

	// NothingHeard reports a capture attempt that produced no utterance.
	NothingHeard struct{ Cause Cause }

	// InputFailed reports that capture can no longer work.
	InputFailed struct{ Cause Cause }

	// MuteChanged toggles the candidate's microphone mute.
	MuteChanged struct{ Muted bool }

	// EndRequested asks for the session to end now.
	EndRequested struct{ Reason EndReason }
)

func (Started) isEvent()      {}
func (SpeechDone) isEvent()   {}
func (Heard) isEvent()        {}
func (NothingHeard) isEvent() {}
func (InputFailed) isEvent()  {}
func (MuteChanged) isEvent()  {}
func (EndRequested) isEvent() {}

// Effect is an action the controller must perform, in order.
type Effect interface{ isEffect() }

// Delay names the pause before capture is (re)started.
type Delay int

const (
	// DelaySettle lets the tail of the agent's own voice fade out.
	DelaySettle Delay = iota
	// DelayRetry follows a timeout, no-speech or aborted attempt.
	DelayRetry
	// DelayNetworkRetry follows a recogniser network failure.
	DelayNetworkRetry
)

type (
	// Speak renders a line and waits for playback to finish. Effects after
	// it run only once it has.
	Speak struct {
		Text string
		Kind LineKind
	}

	// Listen arms one capture attempt after the given delay.
	Listen struct{ After Delay }

	// StopListening cancels any pending or running capture attempt.
	StopListening struct{}

	// ScheduleEnd ends the session after the grace delay.
	ScheduleEnd struct{ Reason EndReason }

	// End ends the session immediately.
	End struct{ Reason EndReason }
)

func (Speak) isEffect()         {}
func (Listen) isEffect()        {}
func (StopListening) isEffect() {}
func (ScheduleEnd) isEffect()   {}
func (End) isEffect()           {}

// Transition applies ev to s and returns the next state together with the
// effects to execute. It has no side effects.
func (p Plan) Transition(s State, ev Event) (State, []Effect) {
	switch ev := ev.(type) {
	case Started:
		if s.Active || s.Stage != StageGreeting {
			return s, nil
		}
		s.Active = true
		return s, []Effect{Speak{Text: p.Greeting(), Kind: LineGreeting}}
	case EndRequested:
		if !s.Active {
			return s, nil
		}
		// A closing line may already be playing; its reason wins.
		if s.EndReason == "" {
			s.EndReason = ev.Reason
		}
		s.Stage = StageCompleted
		s.Active = false
		return s, []Effect{End{Reason: s.EndReason}}
	}

	if !s.Active {
		return s, nil
	}

	switch ev := ev.(type) {
	case SpeechDone:
		switch s.Stage {
		case StageGreeting:
			s.Stage = StageAwaitingReadiness
		case StageAsking:
			s.Stage = StageAwaitingAnswer
		case StageCompleted:
			return s, []Effect{ScheduleEnd{Reason: s.EndReason}}
		}
		return s, listen(s, DelaySettle)
	case Heard:
		return p.heard(s, ev.Text)
	case NothingHeard:
		after := DelayRetry
		if ev.Cause == CauseNetwork {
			after = DelayNetworkRetry
		}
		return s, listen(s, after)
	case InputFailed:
		s.Stage = StageCompleted
		s.EndReason = EndFatal
		s.Active = false
		return s, []Effect{StopListening{}, End{Reason: EndFatal}}
	case MuteChanged:
		if s.Muted == ev.Muted {
			return s, nil
		}
		s.Muted = ev.Muted
		if s.Muted {
			return s, []Effect{StopListening{}}
		}
		return s, listen(s, DelaySettle)
	}
	return s, nil
}

func (p Plan) heard(s State, text string) (State, []Effect) {
	if !s.Stage.Listening() {
		s.Intent = IntentIgnored
		return s, nil
	}

	switch {
	case IsTermination(text):
		s.Intent = IntentTerminate
		s.Stage = StageCompleted
		s.EndReason = EndTerminated
		return s, []Effect{Speak{Text: lineClosingTerminate, Kind: LineClosing}}
	case IsRepeat(text) && s.LastQuestion != "":
		s.Intent = IntentRepeat
		return s, []Effect{Speak{Text: s.LastQuestion, Kind: LineQuestion}}
	}

	var next int
	ack := lineNext
	if s.Stage == StageAwaitingReadiness {
		s.Intent = IntentReadiness
		ack = lineReady
	} else {
		s.Intent = IntentAnswer
		next = s.QuestionIndex + 1
	}

	if next >= len(p.Questions) {
		s.Stage = StageCompleted
		s.EndReason = EndCompleted
		return s, []Effect{Speak{Text: lineClosingComplete, Kind: LineClosing}}
	}

	q := p.Questions[next].Text
	s.Stage = StageAsking
	s.QuestionIndex = next
	s.LastQuestion = q
	// The acknowledgment and the question form one line so the transcript
	// alternates between agent and candidate.
	return s, []Effect{Speak{Text: ack + " " + q, Kind: LineQuestion}}
}

// listen returns a Listen effect when s wants capture running.
func listen(s State, after Delay) []Effect {
	if !s.Active || s.Muted || !s.Stage.Listening() {
		return nil
	}
	return []Effect{Listen{After: after}}
}
