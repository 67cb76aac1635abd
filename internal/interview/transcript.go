package interview

import (
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/types"
)

// Recorder is an append-only, concurrency-safe transcript.
type Recorder struct {
	mu      sync.Mutex
	entries types.Transcript
	now     func() time.Time
}

// NewRecorder returns an empty Recorder. now stamps entries; nil means
// [time.Now].
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Append records text spoken by sp and returns the stored entry.
func (r *Recorder) Append(sp types.Speaker, text string) types.TranscriptEntry {
	e := types.TranscriptEntry{Speaker: sp, Text: text, TimestampMs: r.now().UnixMilli()}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e
}

// Entries returns a copy of the transcript.
func (r *Recorder) Entries() types.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(types.Transcript(nil), r.entries...)
}

// Len returns the number of entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
