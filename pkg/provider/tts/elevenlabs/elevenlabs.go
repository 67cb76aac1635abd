// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs text-to-speech REST API. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_turbo_v2_5"
	defaultTimeout = 30 * time.Second

	// DefaultVoiceID is the "Rachel" premade voice.
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

	// maxErrorBody bounds how much of an error response is kept for logs.
	maxErrorBody = 512
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_turbo_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithDefaultVoice sets the voice used when a request carries no voice ID.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) {
		p.defaultVoice = id
	}
}

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithVoiceSettings overrides the stability and similarity boost sent with
// every request (both default to 0.5).
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) {
		p.settings.Stability = stability
		p.settings.SimilarityBoost = similarity
	}
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	defaultVoice string
	settings     voiceSettings
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		defaultVoice: DefaultVoiceID,
		settings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
			Style:           0,
			UseSpeakerBoost: true,
		},
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- request types ----

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize requests an MPEG clip for text from
// POST /v1/text-to-speech/{voice}.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, errors.New("elevenlabs: text must not be empty")
	}
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = p.defaultVoice
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:          text,
		ModelID:       p.model,
		VoiceSettings: p.settings,
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := p.baseURL + "/v1/text-to-speech/" + voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return audio.Clip{}, fmt.Errorf("elevenlabs: synthesize: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(data) == 0 {
		return audio.Clip{}, fmt.Errorf("elevenlabs: %w", tts.ErrEmptyAudio)
	}

	format := resp.Header.Get("Content-Type")
	if format == "" || !strings.HasPrefix(format, "audio/") {
		format = "audio/mpeg"
	}
	return audio.Clip{Format: format, Data: data}, nil
}

// ---- voices ----

type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toProfiles(vr), nil
}

func toProfiles(vr voicesResponse) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}
