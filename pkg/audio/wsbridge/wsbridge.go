// Package wsbridge connects a candidate's browser to the interview server
// over a single WebSocket and exposes it as an [audio.Endpoint].
//
// Protocol (all control messages are JSON text frames):
//
//	browser → server
//	  {"type":"hello","sampleRate":48000,"channels":1}   capture format
//	  binary frame                                       PCM16 LE microphone audio
//	  {"type":"permission","granted":true}               answer to "acquire"
//	  {"type":"played","id":3,"error":""}                clip finished (or failed)
//	  {"type":"said","id":4,"error":""}                  local speech finished
//	  {"type":"devicelost"}                              microphone went away
//	  {"type":"mute","muted":true} / {"type":"end"}      candidate controls
//
//	server → browser
//	  {"type":"acquire"}                                 ask for microphone access
//	  {"type":"capture","on":true}                       start/stop sending PCM
//	  {"type":"play","id":3,"format":"audio/mpeg","data":"<base64>"}
//	  {"type":"say","id":4,"text":"..."}                 use speechSynthesis
//	  {"type":"stop","id":3}                             abort playback / speech
//	  {"type":"update","kind":"...","data":{...}}        UI notifications
//
// [Endpoint.Run] owns the read side of the socket and must be running for
// any of the audio methods to make progress.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/intervox/pkg/audio"
)

const (
	defaultSampleRate = 48000
	defaultChannels   = 1
	readLimit         = 4 << 20
	notifyTimeout     = 5 * time.Second
	captureBuffer     = 64
)

var _ audio.Endpoint = (*Endpoint)(nil)

// Control is a command the candidate issued from the browser.
type Control struct {
	// Type is "mute" or "end".
	Type  string
	Muted bool
}

// inbound is any JSON message sent by the browser.
type inbound struct {
	Type       string `json:"type"`
	ID         uint64 `json:"id,omitempty"`
	Error      string `json:"error,omitempty"`
	Granted    bool   `json:"granted,omitempty"`
	Muted      bool   `json:"muted,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// outbound is any JSON message sent to the browser.
type outbound struct {
	Type   string `json:"type"`
	ID     uint64 `json:"id,omitempty"`
	On     *bool  `json:"on,omitempty"`
	Format string `json:"format,omitempty"`
	Data   []byte `json:"data,omitempty"`
	Text   string `json:"text,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// capture is one open microphone stream.
type capture struct {
	ch      chan audio.Frame
	lost    chan struct{}
	elapsed time.Duration
}

// Option configures an [Endpoint].
type Option func(*Endpoint)

// WithOnControl sets the handler for candidate control messages. It is
// called from the read loop and must not block.
func WithOnControl(fn func(Control)) Option {
	return func(e *Endpoint) { e.onControl = fn }
}

// WithLogger sets the endpoint logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Endpoint) { e.log = l }
}

// Endpoint is a browser connected over WebSocket. It is safe for concurrent
// use.
type Endpoint struct {
	conn      *websocket.Conn
	onControl func(Control)
	log       *slog.Logger

	nextID atomic.Uint64
	done   chan struct{}

	mu         sync.Mutex
	closed     bool
	sampleRate int
	channels   int
	granted    bool
	permission []chan bool
	pending    map[uint64]chan error
	cur        *capture
}

// AcceptOptions configures the WebSocket handshake in [Accept].
type AcceptOptions = websocket.AcceptOptions

// Accept upgrades the HTTP request to a WebSocket and returns the endpoint.
// Call [Endpoint.Run] to start serving it.
func Accept(w http.ResponseWriter, r *http.Request, accept *AcceptOptions, opts ...Option) (*Endpoint, error) {
	conn, err := websocket.Accept(w, r, accept)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: accept: %w", err)
	}
	return New(conn, opts...), nil
}

// New wraps an established WebSocket connection.
func New(conn *websocket.Conn, opts ...Option) *Endpoint {
	conn.SetReadLimit(readLimit)
	e := &Endpoint{
		conn:       conn,
		log:        slog.Default(),
		done:       make(chan struct{}),
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
		pending:    make(map[uint64]chan error),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Done is closed once the connection has gone away.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

// Run reads browser messages until the connection closes or ctx is
// cancelled. It returns nil on a normal closure.
func (e *Endpoint) Run(ctx context.Context) error {
	defer e.shutdown()
	for {
		typ, data, err := e.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wsbridge: read: %w", err)
		}
		if typ == websocket.MessageBinary {
			e.pushPCM(data)
			continue
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			e.log.Warn("wsbridge: malformed message", "err", err)
			continue
		}
		e.handle(msg)
	}
}

// Close closes the WebSocket with a normal closure.
func (e *Endpoint) Close() error {
	err := e.conn.Close(websocket.StatusNormalClosure, "interview finished")
	e.shutdown()
	return err
}

func (e *Endpoint) handle(msg inbound) {
	switch msg.Type {
	case "hello":
		e.mu.Lock()
		if msg.SampleRate > 0 {
			e.sampleRate = msg.SampleRate
		}
		if msg.Channels > 0 {
			e.channels = msg.Channels
		}
		e.mu.Unlock()
	case "permission":
		e.mu.Lock()
		e.granted = msg.Granted
		waiters := e.permission
		e.permission = nil
		e.mu.Unlock()
		for _, w := range waiters {
			w <- msg.Granted
		}
	case "played", "said":
		e.mu.Lock()
		w, ok := e.pending[msg.ID]
		delete(e.pending, msg.ID)
		e.mu.Unlock()
		if ok {
			var err error
			if msg.Error != "" {
				err = errors.New(msg.Error)
			}
			w <- err
		}
	case "devicelost":
		e.mu.Lock()
		if e.cur != nil {
			close(e.cur.lost)
			e.cur = nil
		}
		e.mu.Unlock()
	case "mute", "end":
		if e.onControl != nil {
			e.onControl(Control{Type: msg.Type, Muted: msg.Muted})
		}
	default:
		e.log.Debug("wsbridge: ignoring message", "type", msg.Type)
	}
}

// pushPCM forwards a binary frame to the open capture stream. Frames that
// arrive while nothing is capturing, or while the consumer lags, are dropped.
func (e *Endpoint) pushPCM(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.cur
	if c == nil {
		return
	}
	f := audio.Frame{Data: data, SampleRate: e.sampleRate, Channels: e.channels, Timestamp: c.elapsed}
	c.elapsed += f.Duration()
	select {
	case c.ch <- f:
	default:
	}
}

// shutdown fails every pending request with [audio.ErrDeviceClosed].
func (e *Endpoint) shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	pending := e.pending
	e.pending = make(map[uint64]chan error)
	waiters := e.permission
	e.permission = nil
	e.cur = nil
	e.mu.Unlock()

	close(e.done)
	for _, w := range pending {
		w <- audio.ErrDeviceClosed
	}
	for _, w := range waiters {
		close(w)
	}
}

// Acquire implements [audio.Capture]. It asks the browser for microphone
// access and waits for the answer.
func (e *Endpoint) Acquire(ctx context.Context) error {
	w := make(chan bool, 1)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return audio.ErrDeviceClosed
	}
	if e.granted {
		e.mu.Unlock()
		return nil
	}
	e.permission = append(e.permission, w)
	e.mu.Unlock()

	if err := e.send(ctx, outbound{Type: "acquire"}); err != nil {
		return err
	}
	select {
	case granted, ok := <-w:
		if !ok {
			return audio.ErrDeviceClosed
		}
		if !granted {
			return audio.ErrPermissionDenied
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open implements [audio.Capture]. The browser is told to start streaming
// PCM; it is told to stop when ctx is cancelled.
func (e *Endpoint) Open(ctx context.Context) (<-chan audio.Frame, error) {
	c := &capture{ch: make(chan audio.Frame, captureBuffer), lost: make(chan struct{})}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, audio.ErrDeviceClosed
	}
	if e.cur != nil {
		close(e.cur.lost)
	}
	e.cur = c
	e.mu.Unlock()

	on := true
	if err := e.send(ctx, outbound{Type: "capture", On: &on}); err != nil {
		e.detach(c)
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			off := false
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			_ = e.send(sendCtx, outbound{Type: "capture", On: &off})
			cancel()
		case <-c.lost:
		case <-e.done:
		}
		e.detach(c)
	}()
	return c.ch, nil
}

// detach removes c as the current capture and closes its channel.
func (e *Endpoint) detach(c *capture) {
	e.mu.Lock()
	if e.cur == c {
		e.cur = nil
	}
	close(c.ch)
	e.mu.Unlock()
}

// Play implements [audio.Player].
func (e *Endpoint) Play(ctx context.Context, clip audio.Clip) error {
	return e.request(ctx, outbound{Type: "play", Format: clip.Format, Data: clip.Data})
}

// Say implements [audio.LocalSynth] with the browser's speech synthesis.
func (e *Endpoint) Say(ctx context.Context, text string) error {
	return e.request(ctx, outbound{Type: "say", Text: text})
}

// request sends msg with a fresh ID and waits for the browser's reply.
func (e *Endpoint) request(ctx context.Context, msg outbound) error {
	msg.ID = e.nextID.Add(1)
	w := make(chan error, 1)
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return audio.ErrDeviceClosed
	}
	e.pending[msg.ID] = w
	e.mu.Unlock()

	if err := e.send(ctx, msg); err != nil {
		e.forget(msg.ID)
		return err
	}
	select {
	case err := <-w:
		return err
	case <-ctx.Done():
		e.forget(msg.ID)
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		_ = e.send(sendCtx, outbound{Type: "stop", ID: msg.ID})
		cancel()
		return ctx.Err()
	}
}

func (e *Endpoint) forget(id uint64) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

// Notify sends a UI update to the browser. Failures are logged, not
// returned, since updates are advisory.
func (e *Endpoint) Notify(kind string, detail any) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := e.send(ctx, outbound{Type: "update", Kind: kind, Detail: detail}); err != nil && !errors.Is(err, audio.ErrDeviceClosed) {
		e.log.Debug("wsbridge: notify failed", "kind", kind, "err", err)
	}
}

func (e *Endpoint) send(ctx context.Context, msg outbound) error {
	select {
	case <-e.done:
		return audio.ErrDeviceClosed
	default:
	}
	if err := wsjson.Write(ctx, e.conn, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wsbridge: write %s: %w", msg.Type, err)
	}
	return nil
}
