// Package audio defines the endpoint abstractions the interview controller
// uses to hear and address the candidate.
//
// The three primary abstractions are:
//
//   - [Capture]: the candidate's microphone. It must be acquired once
//     (permission) and is then opened once per listening attempt.
//   - [Player]: plays synthesised audio clips to the candidate and reports
//     when playback has actually finished.
//   - [LocalSynth]: offline speech synthesis running next to the candidate
//     (for example the browser's speechSynthesis API), used when remote
//     synthesis is unavailable.
//
// An [Endpoint] bundles all three; the browser bridge in audio/wsbridge is the
// production implementation and audio/mock provides scripted test doubles.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned by [Capture.Acquire] when the candidate
	// (or the platform) refuses microphone access. It is never retried.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrDeviceClosed is returned when the endpoint went away, e.g. the
	// browser tab was closed or the microphone was unplugged.
	ErrDeviceClosed = errors.New("audio: device closed")
)

// Capture is the microphone side of an endpoint.
//
// Implementations must be safe for concurrent use, but callers open at most
// one capture stream at a time.
type Capture interface {
	// Acquire requests microphone access. It blocks until the platform has
	// answered. Returns [ErrPermissionDenied] if access was refused.
	Acquire(ctx context.Context) error

	// Open starts capture and returns a channel of PCM frames. Capture stops
	// and the channel is closed when ctx is cancelled. If the channel closes
	// while ctx is still live the device was lost.
	Open(ctx context.Context) (<-chan Frame, error)
}

// Player is the speaker side of an endpoint.
type Player interface {
	// Play sends clip to the listener and blocks until it has finished
	// playing. Cancelling ctx stops playback immediately and returns ctx.Err().
	// A non-nil error means the clip could not be played at all.
	Play(ctx context.Context, clip Clip) error
}

// LocalSynth speaks text using synthesis that runs on the listener's side.
type LocalSynth interface {
	// Say speaks text and blocks until speech has finished. Cancelling ctx
	// stops speech and returns ctx.Err().
	Say(ctx context.Context, text string) error
}

// Endpoint is a connected candidate: a microphone, a speaker, and a local
// synthesiser.
type Endpoint interface {
	Capture
	Player
	LocalSynth
}
