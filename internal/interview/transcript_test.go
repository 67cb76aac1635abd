package interview

import (
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/types"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	base := time.UnixMilli(1_700_000_000_000)
	tick := 0
	r := NewRecorder(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	r.Append(types.SpeakerAgent, "Hi")
	e := r.Append(types.SpeakerCandidate, "Hello")
	if e.TimestampMs != base.Add(2*time.Second).UnixMilli() {
		t.Errorf("timestamp = %d", e.TimestampMs)
	}

	got := r.Entries()
	if len(got) != 2 || r.Len() != 2 {
		t.Fatalf("entries = %+v", got)
	}
	got[0].Text = "mutated"
	if r.Entries()[0].Text != "Hi" {
		t.Error("Entries() returned the internal slice")
	}
}
