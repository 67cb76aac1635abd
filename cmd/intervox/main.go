// Command intervox is the entry point for the intervox interview server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/llm/anyllm"
	"github.com/MrWong99/intervox/pkg/provider/llm/openai"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/stt/deepgram"
	"github.com/MrWong99/intervox/pkg/provider/stt/whisper"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/provider/tts/coqui"
	"github.com/MrWong99/intervox/pkg/provider/tts/elevenlabs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	watch := flag.Bool("watch", true, "reload the config file when it changes")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "intervox: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "intervox: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "intervox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("intervox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMBackends are the LLM names served through any-llm-go. "openai" uses
// the dedicated openai-go backend instead.
var anyLLMBackends = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyLLMBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "endpointing_ms"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(ms))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if entry.Voice != "" {
			opts = append(opts, coqui.WithDefaultSpeaker(entry.Voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// fallbackConfig logs every failover with the kind of provider involved.
func fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("provider circuit changed", "kind", kind, "name", name, "from", from, "to", to)
			},
		},
		OnFailover: func(from string, err error) {
			slog.Warn("provider failed, trying fallback", "kind", kind, "from", from, "err", err)
		},
	}
}

// buildProviders instantiates the configured providers and wraps each
// primary with its fallback when one is configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	// STT is required.
	primarySTT, err := reg.CreateSTT(pc.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", pc.STT.Name, err)
	}
	ps.STT = primarySTT
	if pc.STTFallback.Configured() {
		fb, err := reg.CreateSTT(pc.STTFallback)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", pc.STTFallback.Name, err)
		}
		group := resilience.NewSTTFallback(primarySTT, pc.STT.Name, fallbackConfig("stt"))
		group.AddFallback(pc.STTFallback.Name, fb)
		ps.STT = group
	}
	slog.Info("provider created", "kind", "stt", "name", pc.STT.Name, "fallback", pc.STTFallback.Name)

	if pc.TTS.Configured() {
		primary, err := reg.CreateTTS(pc.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", pc.TTS.Name, err)
		}
		ps.TTS = primary
		if pc.TTSFallback.Configured() {
			fb, err := reg.CreateTTS(pc.TTSFallback)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", pc.TTSFallback.Name, err)
			}
			group := resilience.NewTTSFallback(primary, pc.TTS.Name, fallbackConfig("tts"))
			group.AddFallback(pc.TTSFallback.Name, fb)
			ps.TTS = group
		}
		slog.Info("provider created", "kind", "tts", "name", pc.TTS.Name, "fallback", pc.TTSFallback.Name)
	}

	if pc.LLM.Configured() {
		primary, err := reg.CreateLLM(pc.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", pc.LLM.Name, err)
		}
		ps.LLM = primary
		ps.LLMName = pc.LLM.Name
		if pc.LLMFallback.Configured() {
			fb, err := reg.CreateLLM(pc.LLMFallback)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", pc.LLMFallback.Name, err)
			}
			group := resilience.NewLLMFallback(primary, pc.LLM.Name, fallbackConfig("llm"))
			group.AddFallback(pc.LLMFallback.Name, fb)
			ps.LLM = group
		}
		slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", pc.LLM.Model, "fallback", pc.LLMFallback.Name)
	}

	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes numbers as int; quoted
// numbers are parsed.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
