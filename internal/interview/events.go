package interview

import "github.com/MrWong99/intervox/pkg/types"

// UpdateKind identifies a session [Update].
type UpdateKind int

const (
	UpdateListeningStarted UpdateKind = iota
	UpdateListeningStopped
	UpdateAgentSpeaking
	UpdateAgentIdle
	UpdateStageChanged
	UpdateEntryAdded
	UpdateEnded
	UpdateFatal
)

// String returns the name used on the browser wire.
func (k UpdateKind) String() string {
	switch k {
	case UpdateListeningStarted:
		return "listening_started"
	case UpdateListeningStopped:
		return "listening_stopped"
	case UpdateAgentSpeaking:
		return "agent_speaking"
	case UpdateAgentIdle:
		return "agent_idle"
	case UpdateStageChanged:
		return "stage_changed"
	case UpdateEntryAdded:
		return "entry_added"
	case UpdateEnded:
		return "ended"
	case UpdateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Update is a UI-facing notification from a [Controller]. Only the fields
// relevant to Kind are set.
type Update struct {
	Kind   UpdateKind
	Stage  Stage
	Entry  types.TranscriptEntry
	Reason EndReason
	Cause  Cause
}

// Listener receives session updates. OnUpdate is called from the
// controller's goroutine and must not block.
type Listener interface {
	OnUpdate(Update)
}

// ListenerFunc adapts a function to [Listener].
type ListenerFunc func(Update)

// OnUpdate implements [Listener].
func (f ListenerFunc) OnUpdate(u Update) { f(u) }

type nopListener struct{}

func (nopListener) OnUpdate(Update) {}
