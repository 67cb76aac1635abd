// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference) and simulates streaming by buffering incoming PCM, using an
// energy-based silence detector to find the end of the utterance, and
// submitting the utterance as one batch inference request.
//
// whisper.cpp cannot produce real interim results. When speech energy is first
// detected the session emits an empty partial so callers can tell that the
// candidate has started talking; the final carries the recognised text.
//
// A session ends after the first inference: with a final on success, with
// [stt.ErrNoSpeech] if whisper returned no text, or with the transport error.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8081", whisper.WithLanguage("en"))
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	transcript := <-handle.Finals()
//	handle.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the PCM whisper.cpp expects.
	bitsPerSample = 16

	// defaultRMSThreshold is the RMS level (16-bit PCM units) below which a
	// chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 700
	defaultMaxBufferDurationMs = 30_000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server.
// When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSilenceThresholdMs sets how much trailing silence ends the utterance.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) {
		p.silenceThresholdMs = ms
	}
}

// WithMaxBufferDurationMs caps the utterance length; reaching it forces
// inference even without trailing silence.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) {
		p.maxBufferDurationMs = ms
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	model               string
	language            string
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8081").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		language:            defaultLanguage,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a new transcription session. No network connection is
// made until the utterance is complete.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	// whisper.cpp wants a bare language code.
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		provider:   p,
		language:   lang,
		sampleRate: sr,
		channels:   ch,
		audioCh:    make(chan []byte, 256),
		partials:   make(chan stt.Transcript, 4),
		finals:     make(chan stt.Transcript, 1),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// ---- session ----------------------------------------------------------------

// session is a single-utterance whisper transcription. Buffer state is
// confined to processLoop.
type session struct {
	provider   *Provider
	language   string
	sampleRate int
	channels   int

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu  sync.Mutex
	err error
}

// SendAudio queues a chunk of 16-bit little-endian PCM.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Partials emits one empty transcript when speech starts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals emits the recognised utterance.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Err reports why the session ended.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close discards any buffered audio and releases the session.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// processLoop detects the utterance, runs inference once, and ends the session.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.provider.maxBufferDurationMs * bytesPerMs

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case chunk := <-s.audioCh:
			if audio.RMS(chunk) < defaultRMSThreshold {
				if !hadSpeech {
					continue
				}
				silenceMs += chunkDurationMs(chunk, s.sampleRate, s.channels)
				buffer = append(buffer, chunk...)
				if silenceMs < s.provider.silenceThresholdMs {
					continue
				}
			} else {
				if !hadSpeech {
					hadSpeech = true
					select {
					case s.partials <- stt.Transcript{}:
					default:
					}
				}
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes <= 0 || len(buffer) < maxBufferBytes {
					continue
				}
			}

			text, err := s.infer(ctx, buffer)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					s.fail(err)
				}
			case text == "":
				s.fail(fmt.Errorf("whisper: empty inference result: %w", stt.ErrNoSpeech))
			default:
				s.finals <- stt.Transcript{Text: text, IsFinal: true}
			}
			return
		}
	}
}

// infer encodes pcm as WAV and POSTs it to /inference as multipart/form-data.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, s.sampleRate, s.channels)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write field: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.provider.model != "" {
		if err := mw.WriteField("model", s.provider.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.provider.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.provider.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// ---- helpers ----------------------------------------------------------------

// encodeWAV wraps 16-bit PCM in a RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// chunkDurationMs returns the duration of a PCM chunk in milliseconds.
func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return len(chunk) * 1000 / (sampleRate * channels * (bitsPerSample / 8))
}
