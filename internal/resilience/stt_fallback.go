package resilience

import (
	"context"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across recognisers,
// typically a hosted streaming service first and a local whisper.cpp server
// second. Failover covers opening the stream only; an error that ends a
// running session is reported through the session's Err and handled by the
// caller's restart policy.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the recogniser names in failover order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// StartStream opens a session on the first healthy provider.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
