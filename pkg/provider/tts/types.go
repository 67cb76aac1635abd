package tts

// VoiceProfile describes the interviewer voice used for synthesis.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. An empty ID selects the
	// provider's default voice.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}
