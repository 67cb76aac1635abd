// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (ElevenLabs, a local Coqui
// server, ...) and turns one line of interviewer speech into a playable,
// self-contained audio clip. Clips are synthesised whole rather than streamed
// so that a failed request can fall back to another renderer before the
// candidate has heard anything.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/intervox/pkg/audio"
)

// ErrEmptyAudio is returned when a service answers successfully but the
// response carries no audio.
var ErrEmptyAudio = errors.New("tts: empty audio response")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns the encoded clip.
	// Any non-success response, network failure, timeout, or empty body is
	// an error; callers treat all of them alike and fall back.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Clip, error)

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
