// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out scripted sessions: each call to StartStream pops the
// next Script and plays it back on a fresh Session. This lets tests describe
// a sequence of recognition attempts (an utterance, a no-speech error, a
// network drop, ...) without a live recogniser.
//
// Example:
//
//	p := &mock.Provider{Scripts: []mock.Script{
//	    {Err: stt.ErrNoSpeech},
//	    {Finals: []string{"I'm ready"}},
//	}}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)

// Script describes what one session does after it starts.
type Script struct {
	// Delay is waited before anything is emitted.
	Delay time.Duration

	// Partials are emitted first, in order.
	Partials []string

	// Finals are emitted after the partials, in order.
	Finals []string

	// Err, if non-nil, ends the session after the finals with this error.
	Err error

	// Hang keeps the session open after emitting, until it is closed or its
	// context is cancelled.
	Hang bool

	// SendErr, if non-nil, is returned by every SendAudio call.
	SendErr error
}

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Scripts are consumed one per StartStream call. When exhausted, Default
	// is used.
	Scripts []Script

	// Default is the script used once Scripts is exhausted. The zero value
	// hangs forever.
	Default *Script

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	// Sessions holds every session handed out, in order.
	Sessions []*Session
}

// StartStream records the call and starts the next scripted session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Cfg: cfg})
	if p.StartStreamErr != nil {
		err := p.StartStreamErr
		p.mu.Unlock()
		return nil, err
	}
	script := Script{Hang: true}
	switch {
	case len(p.Scripts) > 0:
		script = p.Scripts[0]
		p.Scripts = p.Scripts[1:]
	case p.Default != nil:
		script = *p.Default
	}
	s := newSession()
	s.sendErr = script.SendErr
	p.Sessions = append(p.Sessions, s)
	p.mu.Unlock()

	go s.play(ctx, script)
	return s, nil
}

// Calls returns how many sessions were started. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	partials chan stt.Transcript
	finals   chan stt.Transcript
	done     chan struct{}
	once     sync.Once
	err      error
	sendErr  error

	// SendAudioCalls counts SendAudio calls.
	SendAudioCalls int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

func newSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
		done:     make(chan struct{}),
	}
}

func (s *Session) play(ctx context.Context, sc Script) {
	defer close(s.finals)
	defer close(s.partials)

	if sc.Delay > 0 {
		t := time.NewTimer(sc.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
	for _, text := range sc.Partials {
		if !s.emit(ctx, s.partials, stt.Transcript{Text: text}) {
			return
		}
	}
	for _, text := range sc.Finals {
		if !s.emit(ctx, s.finals, stt.Transcript{Text: text, IsFinal: true}) {
			return
		}
	}
	if sc.Err != nil {
		s.mu.Lock()
		s.err = sc.Err
		s.mu.Unlock()
		return
	}
	if sc.Hang || len(sc.Finals) == 0 {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
	}
}

func (s *Session) emit(ctx context.Context, ch chan stt.Transcript, t stt.Transcript) bool {
	select {
	case ch <- t:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// SendAudio records the call.
func (s *Session) SendAudio([]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.SendAudioCalls++
	return nil
}

// AudioChunks returns how many chunks SendAudio accepted. Thread-safe.
func (s *Session) AudioChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SendAudioCalls
}

// Partials implements stt.SessionHandle.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// Err implements stt.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements stt.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount > 0
}
