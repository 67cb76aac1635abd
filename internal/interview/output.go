package interview

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// Output renders agent lines audibly.
type Output interface {
	// Speak returns once text has finished playing. It returns an error only
	// when ctx was cancelled; rendering failures are absorbed.
	Speak(ctx context.Context, text string) error
}

// SpeechOutput is an [Output] that synthesizes a clip with a remote voice and
// plays it, falling back to the endpoint's local synthesis.
type SpeechOutput struct {
	voice   tts.Provider
	profile tts.VoiceProfile
	player  audio.Player
	local   audio.LocalSynth
	metrics *observe.Metrics
	log     *slog.Logger
}

var _ Output = (*SpeechOutput)(nil)

// OutputOption configures a [SpeechOutput].
type OutputOption func(*SpeechOutput)

// WithVoice selects the remote voice profile.
func WithVoice(v tts.VoiceProfile) OutputOption {
	return func(o *SpeechOutput) { o.profile = v }
}

// WithOutputMetrics records fallbacks and speak durations to m.
func WithOutputMetrics(m *observe.Metrics) OutputOption {
	return func(o *SpeechOutput) { o.metrics = m }
}

// WithOutputLogger sets the logger used for swallowed failures.
func WithOutputLogger(l *slog.Logger) OutputOption {
	return func(o *SpeechOutput) { o.log = l }
}

// NewSpeechOutput returns a [SpeechOutput]. voice may be nil, in which case
// every line goes straight to local synthesis.
func NewSpeechOutput(voice tts.Provider, player audio.Player, local audio.LocalSynth, opts ...OutputOption) *SpeechOutput {
	o := &SpeechOutput{
		voice:   voice,
		player:  player,
		local:   local,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Speak implements [Output].
func (o *SpeechOutput) Speak(ctx context.Context, text string) error {
	start := time.Now()
	defer func() {
		o.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if o.voice != nil {
		err := o.remote(ctx, text)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.log.Warn("remote speech failed, using local synthesis", "err", err)
	}

	o.metrics.TTSFallbacks.Add(ctx, 1)
	if err := o.local.Say(ctx, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.log.Error("local speech failed, line not rendered", "err", err, "text", text)
	}
	return nil
}

func (o *SpeechOutput) remote(ctx context.Context, text string) error {
	clip, err := o.voice.Synthesize(ctx, text, o.profile)
	if err != nil {
		return err
	}
	return o.player.Play(ctx, clip)
}
