package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr          = ":8080"
	DefaultQuestionSets        = "./questions"
	DefaultSessionTTL          = time.Hour
	DefaultListenTimeout       = 4 * time.Second
	DefaultSettleDelay         = 300 * time.Millisecond
	DefaultEndGrace            = 3 * time.Second
	DefaultRestartDelay        = 300 * time.Millisecond
	DefaultNetworkRestartDelay = 500 * time.Millisecond
	DefaultLanguage            = "en-US"
	DefaultSampleRate          = 16000
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, fills in defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = DefaultSessionTTL
	}
	if cfg.QuestionSets == "" {
		cfg.QuestionSets = DefaultQuestionSets
	}

	iv := &cfg.Interview
	if iv.ListenTimeout == 0 {
		iv.ListenTimeout = DefaultListenTimeout
	}
	if iv.SettleDelay == 0 {
		iv.SettleDelay = DefaultSettleDelay
	}
	if iv.EndGrace == 0 {
		iv.EndGrace = DefaultEndGrace
	}
	if iv.RestartDelay == 0 {
		iv.RestartDelay = DefaultRestartDelay
	}
	if iv.NetworkRestartDelay == 0 {
		iv.NetworkRestartDelay = DefaultNetworkRestartDelay
	}
	if iv.Language == "" {
		iv.Language = DefaultLanguage
	}
	if iv.SampleRate == 0 {
		iv.SampleRate = DefaultSampleRate
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("server.session_ttl %s must not be negative", cfg.Server.SessionTTL))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	p := cfg.Providers
	if !p.STT.Configured() {
		errs = append(errs, errors.New("providers.stt is required; the interview cannot hear the candidate without it"))
	}
	for _, pair := range []struct {
		kind              string
		primary, fallback ProviderEntry
	}{
		{"stt", p.STT, p.STTFallback},
		{"tts", p.TTS, p.TTSFallback},
		{"llm", p.LLM, p.LLMFallback},
	} {
		validateProviderName(pair.kind, pair.primary.Name)
		validateProviderName(pair.kind, pair.fallback.Name)
		if pair.fallback.Configured() && !pair.primary.Configured() {
			errs = append(errs, fmt.Errorf("providers.%s_fallback is set but providers.%s is not", pair.kind, pair.kind))
		}
	}
	if !p.TTS.Configured() {
		slog.Warn("providers.tts is empty; all agent lines will use the candidate's local speech synthesis")
	}
	if !p.LLM.Configured() {
		slog.Warn("providers.llm is empty; interview reports will not contain AI feedback")
	}

	// Interview
	iv := cfg.Interview
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"listen_timeout", iv.ListenTimeout},
		{"settle_delay", iv.SettleDelay},
		{"end_grace", iv.EndGrace},
		{"restart_delay", iv.RestartDelay},
		{"network_restart_delay", iv.NetworkRestartDelay},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("interview.%s %s must not be negative", d.name, d.value))
		}
	}
	if iv.SampleRate != 0 && (iv.SampleRate < 8000 || iv.SampleRate > 48000) {
		errs = append(errs, fmt.Errorf("interview.sample_rate %d is out of range [8000, 48000]", iv.SampleRate))
	}

	// Feedback
	if cfg.Feedback.JSONLPath == "" && cfg.Feedback.PostgresDSN == "" {
		slog.Warn("feedback has no store configured; reports are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
