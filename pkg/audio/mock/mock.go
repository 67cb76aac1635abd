// Package mock provides an in-memory implementation of [audio.Endpoint] for
// use in unit tests.
//
// The mock is safe for concurrent use. It records every call so that tests can
// assert on call counts and arguments, and exposes fields that control return
// values and timing.
//
// Typical usage:
//
//	ep := &mock.Endpoint{PlayDelay: 5 * time.Millisecond}
//	err := ep.Acquire(ctx)
//	frames, _ := ep.Open(ctx)
//	ep.Push(audio.Frame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

var _ audio.Endpoint = (*Endpoint)(nil)

// Endpoint is a mock implementation of [audio.Endpoint].
// Set the exported control fields before use; inspect the recorded calls after.
type Endpoint struct {
	mu sync.Mutex

	// AcquireErr is returned by Acquire.
	AcquireErr error

	// OpenErr is returned by Open.
	OpenErr error

	// LoseDevice makes every stream returned by Open close immediately,
	// simulating an unplugged microphone.
	LoseDevice bool

	// PlayErr is returned by Play without waiting for PlayDelay.
	PlayErr error

	// PlayDelay is how long Play pretends the clip takes to play.
	PlayDelay time.Duration

	// SayErr is returned by Say without waiting for SayDelay.
	SayErr error

	// SayDelay is how long Say pretends local speech takes.
	SayDelay time.Duration

	// OnOpen, if set, is called (without the lock held) each time a capture
	// stream is opened.
	OnOpen func()

	// ── Call records ──────────────────────────────────────────────────────────

	AcquireCalls int
	OpenCalls    int
	PlayedClips  []audio.Clip
	SaidTexts    []string

	open    chan audio.Frame
	opened  int
	playing int
}

// Acquire implements [audio.Capture].
func (e *Endpoint) Acquire(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.AcquireCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.AcquireErr
}

// Open implements [audio.Capture]. The returned channel delivers frames
// passed to [Endpoint.Push] and closes when ctx is cancelled.
func (e *Endpoint) Open(ctx context.Context) (<-chan audio.Frame, error) {
	e.mu.Lock()
	e.OpenCalls++
	if e.OpenErr != nil {
		err := e.OpenErr
		e.mu.Unlock()
		return nil, err
	}
	ch := make(chan audio.Frame, 16)
	if e.LoseDevice {
		e.mu.Unlock()
		close(ch)
		return ch, nil
	}
	e.open = ch
	e.opened++
	hook := e.OnOpen
	e.mu.Unlock()

	if hook != nil {
		hook()
	}

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.open == ch {
			e.open = nil
		}
		e.opened--
		close(ch)
	}()
	return ch, nil
}

// Push delivers f to the currently open capture stream. It reports false if
// no stream is open or its buffer is full.
func (e *Endpoint) Push(f audio.Frame) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open == nil {
		return false
	}
	select {
	case e.open <- f:
		return true
	default:
		return false
	}
}

// Capturing reports whether a capture stream is currently open.
func (e *Endpoint) Capturing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened > 0
}

// Play implements [audio.Player].
func (e *Endpoint) Play(ctx context.Context, clip audio.Clip) error {
	e.mu.Lock()
	if e.PlayErr != nil {
		err := e.PlayErr
		e.mu.Unlock()
		return err
	}
	e.playing++
	delay := e.PlayDelay
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.playing--
		e.mu.Unlock()
	}()
	if err := sleep(ctx, delay); err != nil {
		return err
	}

	e.mu.Lock()
	e.PlayedClips = append(e.PlayedClips, clip)
	e.mu.Unlock()
	return nil
}

// Say implements [audio.LocalSynth].
func (e *Endpoint) Say(ctx context.Context, text string) error {
	e.mu.Lock()
	if e.SayErr != nil {
		err := e.SayErr
		e.mu.Unlock()
		return err
	}
	e.playing++
	delay := e.SayDelay
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.playing--
		e.mu.Unlock()
	}()
	if err := sleep(ctx, delay); err != nil {
		return err
	}

	e.mu.Lock()
	e.SaidTexts = append(e.SaidTexts, text)
	e.mu.Unlock()
	return nil
}

// Playing reports whether Play or Say is in progress.
func (e *Endpoint) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing > 0
}

// Played returns a copy of the clips that finished playing.
func (e *Endpoint) Played() []audio.Clip {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]audio.Clip(nil), e.PlayedClips...)
}

// Said returns a copy of the texts that were spoken locally.
func (e *Endpoint) Said() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.SaidTexts...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
