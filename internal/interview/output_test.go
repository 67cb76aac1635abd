package interview

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/audio"
	audiomock "github.com/MrWong99/intervox/pkg/audio/mock"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/intervox/pkg/provider/tts/mock"
)

// newTestMetrics returns metrics backed by a manual reader.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// counterTotal sums every data point of the named int64 counter.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestSpeechOutput_RemoteVoice(t *testing.T) {
	t.Parallel()

	voice := &ttsmock.Provider{Clip: audio.Clip{Format: "audio/mpeg"}}
	ep := &audiomock.Endpoint{PlayDelay: 10 * time.Millisecond}
	m, reader := newTestMetrics(t)
	out := NewSpeechOutput(voice, ep, ep,
		WithVoice(tts.VoiceProfile{ID: "rachel"}),
		WithOutputMetrics(m),
	)

	if err := out.Speak(t.Context(), "Hello there."); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	played := ep.Played()
	if len(played) != 1 || string(played[0].Data) != "Hello there." || played[0].Format != "audio/mpeg" {
		t.Errorf("played = %+v", played)
	}
	if len(ep.Said()) != 0 {
		t.Errorf("local synthesis used: %v", ep.Said())
	}
	if got := voice.SynthesizeCalls[0].Voice.ID; got != "rachel" {
		t.Errorf("voice = %q, want rachel", got)
	}
	if got := counterTotal(t, reader, "intervox.tts.fallbacks"); got != 0 {
		t.Errorf("fallbacks = %d, want 0", got)
	}
}

func TestSpeechOutput_FallsBackToLocal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		voice tts.Provider
		ep    *audiomock.Endpoint
	}{
		{
			name:  "synthesis fails",
			voice: &ttsmock.Provider{SynthesizeErr: errors.New("503 service unavailable")},
			ep:    &audiomock.Endpoint{},
		},
		{
			name:  "playback fails",
			voice: &ttsmock.Provider{},
			ep:    &audiomock.Endpoint{PlayErr: errors.New("decoder error")},
		},
		{
			name: "no remote voice",
			ep:   &audiomock.Endpoint{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, reader := newTestMetrics(t)
			out := NewSpeechOutput(tc.voice, tc.ep, tc.ep, WithOutputMetrics(m))

			if err := out.Speak(t.Context(), "Okay."); err != nil {
				t.Fatalf("Speak: %v", err)
			}
			if got := tc.ep.Said(); !slices.Equal(got, []string{"Okay."}) {
				t.Errorf("said = %v, want [Okay.]", got)
			}
			if got := counterTotal(t, reader, "intervox.tts.fallbacks"); got != 1 {
				t.Errorf("fallbacks = %d, want 1", got)
			}
		})
	}
}

func TestSpeechOutput_EverythingFails(t *testing.T) {
	t.Parallel()

	voice := &ttsmock.Provider{SynthesizeErr: errors.New("down")}
	ep := &audiomock.Endpoint{SayErr: errors.New("no voices installed")}
	m, _ := newTestMetrics(t)
	out := NewSpeechOutput(voice, ep, ep, WithOutputMetrics(m))

	if err := out.Speak(t.Context(), "Okay."); err != nil {
		t.Errorf("Speak() = %v, want nil when every path fails", err)
	}
}

func TestSpeechOutput_Cancelled(t *testing.T) {
	t.Parallel()

	voice := &ttsmock.Provider{}
	ep := &audiomock.Endpoint{PlayDelay: time.Minute}
	m, reader := newTestMetrics(t)
	out := NewSpeechOutput(voice, ep, ep, WithOutputMetrics(m))

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := out.Speak(ctx, "A long question"); !errors.Is(err, context.Canceled) {
		t.Errorf("Speak() = %v, want context.Canceled", err)
	}
	if len(ep.Said()) != 0 {
		t.Error("local synthesis used after cancellation")
	}
	if got := counterTotal(t, reader, "intervox.tts.fallbacks"); got != 0 {
		t.Errorf("fallbacks = %d, want 0", got)
	}
}
