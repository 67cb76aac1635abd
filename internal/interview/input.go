package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// Cause explains an [Outcome] that carries no utterance.
type Cause string

const (
	CauseTimeout    Cause = "timeout"
	CauseNoSpeech   Cause = "noSpeech"
	CauseAborted    Cause = "aborted"
	CauseNetwork    Cause = "network"
	CausePermission Cause = "permission"
	CauseDevice     Cause = "device"
)

// OutcomeKind is the result class of one capture attempt.
type OutcomeKind int

const (
	// OutcomeUtterance carries recognised text.
	OutcomeUtterance OutcomeKind = iota
	// OutcomeNothing means the attempt ended without speech; it may be retried.
	OutcomeNothing
	// OutcomeFatal means capture cannot continue.
	OutcomeFatal
	// OutcomeCancelled means the attempt was stopped by its caller.
	OutcomeCancelled
)

// Outcome is what one capture attempt produced.
type Outcome struct {
	Kind  OutcomeKind
	Text  string
	Cause Cause
}

// Input captures candidate speech.
type Input interface {
	// Acquire obtains the microphone. It is called once before the greeting;
	// an error ends the session before it starts.
	Acquire(ctx context.Context) error

	// Listen runs one capture attempt until an utterance is recognised, the
	// attempt gives up, or ctx is cancelled.
	Listen(ctx context.Context) Outcome
}

// Default capture parameters.
const (
	defaultListenTimeout = 4 * time.Second
	defaultSampleRate    = 16000
	defaultLanguage      = "en-US"
)

// SpeechInput is an [Input] that streams microphone audio into a
// speech-to-text provider.
type SpeechInput struct {
	recognizer stt.Provider
	capture    audio.Capture

	timeout    time.Duration
	sampleRate int
	language   string
	keywords   []stt.KeywordBoost
}

var _ Input = (*SpeechInput)(nil)

// InputOption configures a [SpeechInput].
type InputOption func(*SpeechInput)

// WithListenTimeout sets the inactivity window after which an attempt gives
// up. Partial results reset the window. Default: 4s.
func WithListenTimeout(d time.Duration) InputOption {
	return func(s *SpeechInput) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSampleRate sets the PCM rate sent to the recogniser. Default: 16000.
func WithSampleRate(hz int) InputOption {
	return func(s *SpeechInput) {
		if hz > 0 {
			s.sampleRate = hz
		}
	}
}

// WithLanguage sets the BCP-47 recognition language. Default: "en-US".
func WithLanguage(lang string) InputOption {
	return func(s *SpeechInput) {
		if lang != "" {
			s.language = lang
		}
	}
}

// WithKeywords boosts vocabulary such as the job title.
func WithKeywords(kw ...stt.KeywordBoost) InputOption {
	return func(s *SpeechInput) { s.keywords = append(s.keywords, kw...) }
}

// NewSpeechInput returns a [SpeechInput] reading from capture and
// recognising with recognizer.
func NewSpeechInput(recognizer stt.Provider, capture audio.Capture, opts ...InputOption) *SpeechInput {
	s := &SpeechInput{
		recognizer: recognizer,
		capture:    capture,
		timeout:    defaultListenTimeout,
		sampleRate: defaultSampleRate,
		language:   defaultLanguage,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Acquire implements [Input].
func (s *SpeechInput) Acquire(ctx context.Context) error {
	return s.capture.Acquire(ctx)
}

// Listen implements [Input]. Capture and the recogniser stream are closed
// before it returns.
func (s *SpeechInput) Listen(ctx context.Context) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := s.capture.Open(ctx)
	if err != nil {
		switch {
		case errors.Is(err, audio.ErrPermissionDenied):
			return Outcome{Kind: OutcomeFatal, Cause: CausePermission}
		case errors.Is(err, audio.ErrDeviceClosed):
			return Outcome{Kind: OutcomeFatal, Cause: CauseDevice}
		case ctx.Err() != nil:
			return Outcome{Kind: OutcomeCancelled}
		default:
			return Outcome{Kind: OutcomeNothing, Cause: CauseAborted}
		}
	}

	sess, err := s.recognizer.StartStream(ctx, stt.StreamConfig{
		SampleRate: s.sampleRate,
		Channels:   1,
		Language:   s.language,
		Keywords:   s.keywords,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Kind: OutcomeCancelled}
		}
		return Outcome{Kind: OutcomeNothing, Cause: CauseNetwork}
	}
	defer sess.Close()

	lost := make(chan struct{})
	sendFailed := make(chan struct{})
	go func() {
		failed := false
		for f := range audio.ConvertStream(frames, audio.Format{SampleRate: s.sampleRate, Channels: 1}) {
			if failed {
				continue
			}
			if err := sess.SendAudio(f.Data); err != nil {
				failed = true
				close(sendFailed)
			}
		}
		if ctx.Err() == nil && !failed {
			close(lost)
		}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var last string
	partials, finals := sess.Partials(), sess.Finals()
	for {
		select {
		case <-ctx.Done():
			return Outcome{Kind: OutcomeCancelled}
		case <-lost:
			return Outcome{Kind: OutcomeFatal, Cause: CauseDevice}
		case <-sendFailed:
			if ctx.Err() != nil {
				return Outcome{Kind: OutcomeCancelled}
			}
			return Outcome{Kind: OutcomeNothing, Cause: CauseNetwork}
		case <-timer.C:
			if last != "" {
				return Outcome{Kind: OutcomeUtterance, Text: last}
			}
			return Outcome{Kind: OutcomeNothing, Cause: CauseTimeout}
		case p, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if t := strings.TrimSpace(p.Text); t != "" {
				last = t
				timer.Reset(s.timeout)
			}
		case f, ok := <-finals:
			if !ok {
				if ctx.Err() != nil {
					return Outcome{Kind: OutcomeCancelled}
				}
				return Outcome{Kind: OutcomeNothing, Cause: recognitionCause(sess.Err())}
			}
			if t := strings.TrimSpace(f.Text); t != "" {
				return Outcome{Kind: OutcomeUtterance, Text: t}
			}
		}
	}
}

// recognitionCause maps a recogniser stream error to a retry cause.
func recognitionCause(err error) Cause {
	switch {
	case err == nil, errors.Is(err, stt.ErrAborted), errors.Is(err, stt.ErrSessionClosed):
		return CauseAborted
	case errors.Is(err, stt.ErrNoSpeech):
		return CauseNoSpeech
	default:
		return CauseNetwork
	}
}
