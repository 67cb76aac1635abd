package resilience

import (
	"context"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker. Because a clip is
// synthesised whole before playback starts, a failing backend is replaced
// before the listener hears anything.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// Synthesize renders text with the first healthy provider.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Clip, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
