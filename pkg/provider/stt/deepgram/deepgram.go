// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
	defaultEndpointMs = 300
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpointing sets how much trailing silence (in ms) Deepgram waits for
// before it commits a final result.
func WithEndpointing(ms int) Option {
	return func(p *Provider) {
		p.endpointingMs = ms
	}
}

// WithEndpoint overrides the streaming endpoint URL. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey        string
	endpoint      string
	model         string
	language      string
	sampleRate    int
	endpointingMs int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:        apiKey,
		endpoint:      deepgramEndpoint,
		model:         defaultModel,
		language:      defaultLanguage,
		sampleRate:    defaultSampleRate,
		endpointingMs: defaultEndpointMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch == 0 {
		ch = 1
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(ch))
	if p.endpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(p.endpointingMs))
	}

	for _, kw := range cfg.Keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type        string  `json:"type"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Duration    float64 `json:"duration"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu  sync.Mutex
	err error
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Err reports why the session ended.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// CloseStream asks Deepgram to flush and close from its side.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

func (s *session) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				s.fail(fmt.Errorf("deepgram: write: %w", err))
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// partials and finals channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.fail(classifyReadError(err))
			}
			return
		}

		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}

		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.done:
			return
		}
	}
}

// classifyReadError maps a read failure to the stt error taxonomy. A clean
// close from the server means Deepgram gave up on the stream.
func classifyReadError(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return fmt.Errorf("deepgram: server closed stream: %w", stt.ErrAborted)
	}
	return fmt.Errorf("deepgram: read: %w", err)
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a Transcript.
// Returns (Transcript, true) on success, or (zero, false) if the message should be ignored.
// Interim results with empty text are dropped; empty finals are kept so callers
// can observe that Deepgram committed silence.
func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	final := resp.IsFinal || resp.SpeechFinal
	text := strings.TrimSpace(alt.Transcript)
	if !final && text == "" {
		return stt.Transcript{}, false
	}

	return stt.Transcript{
		Text:       text,
		IsFinal:    final,
		Confidence: alt.Confidence,
		Duration:   time.Duration(resp.Duration * float64(time.Second)),
	}, true
}
