package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervox/pkg/provider/stt/mock"
)

func TestSTTFallback_StartStream_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{})
	fb.AddFallback("whisper", secondary)

	handle, err := fb.StartStream(t.Context(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer handle.Close()

	if primary.Calls() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.Calls())
	}
	if secondary.Calls() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.Calls())
	}
	if got := primary.StartStreamCalls[0].Cfg.SampleRate; got != 16000 {
		t.Errorf("sample rate forwarded = %d, want 16000", got)
	}
}

func TestSTTFallback_StartStream_Failover(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errors.New("dial: connection refused")}
	secondary := &sttmock.Provider{Scripts: []sttmock.Script{{Finals: []string{"hello"}}}}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{})
	fb.AddFallback("whisper", secondary)

	handle, err := fb.StartStream(t.Context(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer handle.Close()

	if secondary.Calls() != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.Calls())
	}
	if tr := <-handle.Finals(); tr.Text != "hello" {
		t.Errorf("final = %q, want hello", tr.Text)
	}
	if names := fb.Names(); len(names) != 2 || names[0] != "deepgram" {
		t.Errorf("Names() = %v", names)
	}
}

func TestSTTFallback_StartStream_AllFail(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errors.New("down")}
	secondary := &sttmock.Provider{StartStreamErr: errors.New("also down")}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{})
	fb.AddFallback("whisper", secondary)

	_, err := fb.StartStream(t.Context(), stt.StreamConfig{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_StartStream_Cancelled(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: context.Canceled}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{})
	fb.AddFallback("whisper", secondary)

	if _, err := fb.StartStream(t.Context(), stt.StreamConfig{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if secondary.Calls() != 0 {
		t.Error("secondary must not be tried after cancellation")
	}
}
