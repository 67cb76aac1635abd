// Package coqui provides a TTS provider backed by a self-hosted Coqui TTS
// server. It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is a GET /api/tts with query
//     parameters; the voice catalogue comes from GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is a POST
//     /tts_to_audio/ with a JSON body; the voice catalogue comes from
//     GET /studio_speakers.
//
// Both servers answer with a complete WAV file, which is validated and returned
// unchanged as an "audio/wav" clip.
//
//	p, _ := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	clip, err := p.Synthesize(ctx, "Okay.", voice)
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	clipFormat = "audio/wav"
)

// ---- APIMode ----

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// ---- options ----

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de"). Region suffixes such as "en-US" are cut to the base language.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		lang, _, _ = strings.Cut(lang, "-")
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithDefaultSpeaker sets the speaker used when a request carries no voice
// ID. XTTS mode requires one of the two.
func WithDefaultSpeaker(id string) Option {
	return func(p *Provider) {
		p.defaultSpeaker = id
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL      string
	language       string
	defaultSpeaker string
	httpClient     *http.Client
	apiMode        APIMode
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- internal request/response types ----

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// studioSpeakersResponse is the raw map[name]any returned by GET /studio_speakers.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ---- Synthesize ----

// Synthesize renders text into a single WAV clip.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, errors.New("coqui: text must not be empty")
	}
	speaker := voice.ID
	if speaker == "" {
		speaker = p.defaultSpeaker
	}

	var (
		req *http.Request
		err error
	)
	switch p.apiMode {
	case APIModeXTTS:
		if speaker == "" {
			return audio.Clip{}, errors.New("coqui: a speaker is required in XTTS mode")
		}
		req, err = p.xttsRequest(ctx, text, speaker)
	default:
		req, err = p.standardRequest(ctx, text, speaker)
	}
	if err != nil {
		return audio.Clip{}, err
	}
	req.Header.Set("Accept", clipFormat)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	info, err := parseWAV(wav)
	if err != nil {
		return audio.Clip{}, err
	}
	if info.DataOffset >= len(wav) {
		return audio.Clip{}, fmt.Errorf("coqui: %w", tts.ErrEmptyAudio)
	}
	return audio.Clip{Format: clipFormat, Data: wav}, nil
}

func (p *Provider) xttsRequest(ctx context.Context, text, speaker string) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: speaker,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, text, speaker string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if speaker != "" {
		params.Set("speaker_id", speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// ---- ListVoices ----

// ListVoices retrieves the list of available voices from the Coqui server.
//
// In APIModeXTTS, it calls GET /studio_speakers and maps each entry to a
// VoiceProfile. In APIModeStandard, it calls GET /details and returns one
// VoiceProfile per speaker for multi-speaker models, or a single VoiceProfile
// (identified by model name) for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

// listVoicesXTTS retrieves the list of studio speaker voices from the XTTS server via
// GET /studio_speakers and maps each entry to a VoiceProfile.
func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+studioSpeakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", studioSpeakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", studioSpeakersEndpoint, resp.StatusCode)
	}

	var raw studioSpeakersResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
	}

	// Sort keys for deterministic output.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{
				"type": "studio",
			},
		})
	}
	return profiles, nil
}

// listVoicesStandard retrieves model info from the standard Coqui TTS server via
// GET /details. For multi-speaker models it returns one VoiceProfile per speaker;
// for single-speaker models it returns a single VoiceProfile identified by the
// model name.
func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	// Multi-speaker model: return one profile per speaker.
	if len(details.Speakers) > 0 {
		// Sort for deterministic output.
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		profiles := make([]tts.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return profiles, nil
	}

	// Single-speaker model: return one profile identified by the model name.
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.VoiceProfile{
		{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{
				"type":       "single-speaker",
				"model_name": name,
			},
		},
	}, nil
}

// ---- WAV ----

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second (e.g., 22050, 44100, 48000)
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
//
// Returns an error if wav is not a valid RIFF/WAVE container or if the fmt
// or data chunk cannot be located.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data, but be defensive.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
