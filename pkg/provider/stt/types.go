package stt

import "time"

// Transcript is a recognition result. Partial and final results share the type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal is true for committed results.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report one.
	Confidence float64

	// Duration is the length of the utterance, when known.
	Duration time.Duration
}

// KeywordBoost is a vocabulary hint for recognition.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Kubernetes").
	Keyword string

	// Boost is the provider-specific intensity.
	Boost float64
}
