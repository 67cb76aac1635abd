// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (Deepgram, a local whisper.cpp
// server, ...) behind a uniform streaming interface. A SessionHandle accepts
// raw PCM and emits low-latency partials plus authoritative finals. When a
// session ends on its own, Err reports why, classified with the sentinel
// errors below so callers can decide whether to retry.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrNoSpeech means the recogniser finished without hearing any speech.
	ErrNoSpeech = errors.New("stt: no speech detected")

	// ErrAborted means the recogniser abandoned the session, e.g. because the
	// service closed the stream.
	ErrAborted = errors.New("stt: recognition aborted")

	// ErrSessionClosed is returned by SendAudio after Close.
	ErrSessionClosed = errors.New("stt: session closed")
)

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is what most recognisers
	// are optimised for.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider use its default.
	Language string

	// Keywords boosts vocabulary the recogniser would otherwise miss, such as
	// technology names from the job description.
	Keywords []KeywordBoost
}

// SessionHandle represents an open STT streaming session. All methods must be
// safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit PCM matching the StreamConfig.
	// Calling SendAudio after Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Err reports why the session ended after Finals has been closed. It is
	// nil when the session was ended by Close. Errors wrap ErrNoSpeech or
	// ErrAborted where the provider can tell; anything else is a transport
	// failure.
	Err() error

	// Close terminates the session and releases its resources. After Close
	// returns, Partials and Finals are closed. Calling Close more than once is
	// safe.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new transcription session. The caller owns the
	// returned handle and must call Close. The session ends when ctx is
	// cancelled.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
