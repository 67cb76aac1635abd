package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; provider and
// server changes are reported so the operator knows a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterviewChanged is true if any timing or recognition setting changed.
	// New values apply to sessions created after the reload.
	InterviewChanged bool

	// QuestionSetsChanged is true if the template directory moved or a
	// template in it was added, removed or edited.
	QuestionSetsChanged bool

	// RestartRequired lists the sections that changed but are only read at
	// startup (e.g. "server.listen_addr", "providers.stt").
	RestartRequired []string
}

// Empty reports whether d holds no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.InterviewChanged && !d.QuestionSetsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.InterviewChanged = old.Interview != new.Interview
	d.QuestionSetsChanged = old.QuestionSets != new.QuestionSets

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	for _, p := range []struct {
		name     string
		old, new ProviderEntry
	}{
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.stt_fallback", old.Providers.STTFallback, new.Providers.STTFallback},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"providers.tts_fallback", old.Providers.TTSFallback, new.Providers.TTSFallback},
		{"providers.llm", old.Providers.LLM, new.Providers.LLM},
		{"providers.llm_fallback", old.Providers.LLMFallback, new.Providers.LLMFallback},
	} {
		if !sameProvider(p.old, p.new) {
			d.RestartRequired = append(d.RestartRequired, p.name)
		}
	}
	if old.Feedback != new.Feedback {
		d.RestartRequired = append(d.RestartRequired, "feedback")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameProvider compares the scalar fields of two entries. Options maps are
// compared by length only.
func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Voice == b.Voice && len(a.Options) == len(b.Options)
}
