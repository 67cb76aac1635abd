// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled clips (or failures) to consumers and to
// verify which texts and voices reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Clip:             audio.Clip{Format: "audio/mpeg", Data: []byte("mp3")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Rachel"}},
//	}
//	clip, _ := p.Synthesize(ctx, "Hello", voice)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize. When Data is empty, the synthesised
	// text itself is used as the clip data so tests can tell clips apart.
	Clip audio.Clip

	// SynthesizeErr, if non-nil, is returned from every Synthesize call.
	SynthesizeErr error

	// Delay is waited before Synthesize returns.
	Delay time.Duration

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCallCount counts ListVoices calls.
	ListVoicesCallCount int
}

// Synthesize records the call and returns Clip or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	delay, clip, err := p.Delay, p.Clip, p.SynthesizeErr
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		}
	}
	if err != nil {
		return audio.Clip{}, err
	}
	if len(clip.Data) == 0 {
		clip.Data = []byte(text)
	}
	if clip.Format == "" {
		clip.Format = "audio/mpeg"
	}
	return clip, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCallCount++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Texts returns the texts passed to Synthesize, in order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// SetErr replaces SynthesizeErr. Thread-safe.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeErr = err
}
