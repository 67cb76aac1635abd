package audio

import "time"

// Frame is a chunk of captured audio.
type Frame struct {
	// Data holds 16-bit signed little-endian PCM.
	Data []byte

	// SampleRate in Hz (e.g., 48000 from a browser AudioContext, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Clip is an encoded, self-contained piece of synthesised audio.
type Clip struct {
	// Format is the MIME type of Data, e.g. "audio/mpeg" or "audio/wav".
	Format string

	// Data is the encoded audio.
	Data []byte
}
