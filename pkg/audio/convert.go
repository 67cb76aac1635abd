package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Converter normalises captured frames to the format a recogniser expects.
// Stereo input is downmixed before resampling so only one channel is
// interpolated. Create one per stream; a Converter is not safe for concurrent
// use.
type Converter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. Frames that already match are
// returned unchanged. Frames with an odd byte count cannot be int16 PCM and
// come back with nil Data.
func (c *Converter) Convert(frame Frame) Frame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"format", Format{frame.SampleRate, frame.Channels}.String(),
			)
		})
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio converter: converting capture format",
			"from", Format{frame.SampleRate, frame.Channels}.String(),
			"to", c.Target.String(),
		)
	})

	pcm := frame.Data
	if frame.Channels == 2 && c.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
	}
	if frame.SampleRate != c.Target.SampleRate {
		pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
	}
	return Frame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream converts every frame from in to target on a separate
// goroutine. The returned channel closes when in closes. Frames that convert
// to nothing are dropped.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// Float32ToPCM16 converts little-endian IEEE-754 float32 samples in [-1, 1]
// (the native Web Audio representation) to 16-bit little-endian PCM.
// Out-of-range samples are clipped. Trailing bytes that do not form a whole
// sample are ignored.
func Float32ToPCM16(raw []byte) []byte {
	n := len(raw) / 4
	out := make([]byte, n*2)
	for i := range n {
		f := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		var s int16
		if f < 0 {
			s = int16(f * 32768)
		} else {
			s = int16(f * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. If the rates match or are invalid the input is
// returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) float64 {
		if i >= srcSamples {
			i = srcSamples - 1
		}
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := make([]byte, dstSamples*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		v := sample(idx)*(1-frac) + sample(idx+1)*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(int32(v))))
	}
	return out
}

// RMS returns the root-mean-square level of 16-bit mono PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
