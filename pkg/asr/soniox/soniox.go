// Package soniox provides a Soniox-backed streaming recognition protocol
// using the Soniox real-time WebSocket API. It implements the
// session.Protocol interface.
package soniox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/verbatim-ai/streamasr/pkg/asr"
	"github.com/verbatim-ai/streamasr/pkg/asr/session"
)

const (
	sonioxEndpoint = "wss://stt-rt.soniox.com/transcribe-websocket"
	defaultModel   = "stt-rt-preview"

	// keepaliveTick paces the idle check; keepalives themselves are sent at
	// the configured interval.
	keepaliveTick = time.Second
)

// Option is a functional option for configuring the Soniox Protocol.
type Option func(*Protocol)

// WithEndpoint overrides the WebSocket endpoint URL.
func WithEndpoint(url string) Option {
	return func(p *Protocol) {
		p.endpoint = url
	}
}

// WithModel sets the Soniox model to use (e.g., "stt-rt-preview").
func WithModel(model string) Option {
	return func(p *Protocol) {
		p.model = model
	}
}

// WithLanguageHints biases recognition toward the given BCP-47 language codes.
func WithLanguageHints(codes ...string) Option {
	return func(p *Protocol) {
		p.languageHints = codes
	}
}

// WithKeepalive sends a keepalive control message whenever no audio has been
// written for the given interval, so Soniox does not drop an idle stream.
// Zero disables keepalives.
func WithKeepalive(interval time.Duration) Option {
	return func(p *Protocol) {
		p.keepalive = interval
	}
}

// Protocol implements session.Protocol backed by the Soniox real-time API.
type Protocol struct {
	apiKey        string
	endpoint      string
	model         string
	languageHints []string
	keepalive     time.Duration
	stream        asr.StreamConfig
}

// New creates a Soniox Protocol. apiKey must be non-empty.
func New(apiKey string, stream asr.StreamConfig, opts ...Option) (*Protocol, error) {
	if apiKey == "" {
		return nil, asr.NewConfigError("soniox: api key must not be empty")
	}
	p := &Protocol{
		apiKey:   apiKey,
		endpoint: sonioxEndpoint,
		model:    defaultModel,
		stream:   stream,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// startRequest is the first text frame sent after the WebSocket opens.
type startRequest struct {
	APIKey        string   `json:"api_key"`
	Model         string   `json:"model"`
	AudioFormat   string   `json:"audio_format"`
	SampleRate    int      `json:"sample_rate"`
	NumChannels   int      `json:"num_channels"`
	LanguageHints []string `json:"language_hints,omitempty"`
}

// Dial opens the transport and sends the start request. Recognition state is
// connection-local; each Dial begins a fresh vendor clock at zero.
func (p *Protocol) Dial(ctx context.Context) (session.Conn, error) {
	ws, _, err := websocket.Dial(ctx, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("soniox: dial: %w", err)
	}

	req, err := json.Marshal(startRequest{
		APIKey:        p.apiKey,
		Model:         p.model,
		AudioFormat:   "pcm_s16le",
		SampleRate:    p.stream.SampleRate,
		NumChannels:   p.stream.Channels,
		LanguageHints: p.languageHints,
	})
	if err != nil {
		ws.Close(websocket.StatusInternalError, "")
		return nil, fmt.Errorf("soniox: encode start request: %w", err)
	}
	if err := ws.Write(ctx, websocket.MessageText, req); err != nil {
		ws.Close(websocket.StatusProtocolError, "")
		return nil, fmt.Errorf("soniox: send start request: %w", err)
	}

	c := &conn{
		ws:   ws,
		send: ws.Write,
		done: make(chan struct{}),
	}
	c.touch()
	if p.keepalive > 0 {
		go c.keepaliveLoop(p.keepalive)
	}
	return c, nil
}

// conn is one live Soniox connection. It implements session.Conn.
type conn struct {
	ws *websocket.Conn

	// send is the socket write; a seam for tests.
	send func(ctx context.Context, typ websocket.MessageType, data []byte) error

	// writeMu serializes control and audio frames from different goroutines.
	writeMu sync.Mutex

	lastAudio atomic.Int64 // unix nanos of the last audio write
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) touch() {
	c.lastAudio.Store(time.Now().UnixNano())
}

// WriteAudio sends one chunk of raw PCM as a binary frame.
func (c *conn) WriteAudio(ctx context.Context, chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.send(ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("soniox: write audio: %w", err)
	}
	c.touch()
	return nil
}

// finalizeRequest asks Soniox to flush final tokens for audio received so
// far. The trailing-silence hint lowers finalization latency when the caller
// knows how much silence follows the utterance.
type finalizeRequest struct {
	Type              string `json:"type"`
	TrailingSilenceMS int64  `json:"trailing_silence_ms,omitempty"`
}

// WriteFinalize sends the finalize control message. Soniox has a native
// finalize, so no silence is injected into the stream.
func (c *conn) WriteFinalize(ctx context.Context, trailingSilence time.Duration) (time.Duration, error) {
	req, err := json.Marshal(finalizeRequest{
		Type:              "finalize",
		TrailingSilenceMS: trailingSilence.Milliseconds(),
	})
	if err != nil {
		return 0, fmt.Errorf("soniox: encode finalize: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.send(ctx, websocket.MessageText, req); err != nil {
		return 0, fmt.Errorf("soniox: write finalize: %w", err)
	}
	return 0, nil
}

// WriteEndOfStream sends Soniox's end-of-stream marker, an empty text frame.
// The server flushes remaining tokens and answers with a finished message.
func (c *conn) WriteEndOfStream(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.send(ctx, websocket.MessageText, []byte{}); err != nil {
		return fmt.Errorf("soniox: write end of stream: %w", err)
	}
	return nil
}

// serverMessage is the JSON structure of every inbound Soniox frame.
type serverMessage struct {
	Tokens           []token `json:"tokens"`
	FinalAudioProcMS int64   `json:"final_audio_proc_ms"`
	TotalAudioProcMS int64   `json:"total_audio_proc_ms"`
	Finished         bool    `json:"finished"`
	ErrorCode        int     `json:"error_code"`
	ErrorMessage     string  `json:"error_message"`
}

// Read decodes the next inbound frame into a session message.
func (c *conn) Read(ctx context.Context) (session.Message, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("soniox: read: %w", err)
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return session.Malformed{Err: fmt.Errorf("soniox: decode message: %w", err)}, nil
	}

	switch {
	case msg.ErrorMessage != "" || msg.ErrorCode != 0:
		return session.VendorError{
			Code:    fmt.Sprintf("%d", msg.ErrorCode),
			Message: msg.ErrorMessage,
		}, nil
	case msg.Finished:
		return session.Finished{}, nil
	default:
		batch, fin := normalizeTokens(msg.Tokens)
		return session.Results{Batch: batch, FinalizeEnd: fin}, nil
	}
}

// Close tears the connection down. Idempotent.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// keepaliveDue reports whether the stream has been silent for at least
// interval. Audio writes and sent keepalives both reset the idle clock.
func (c *conn) keepaliveDue(interval time.Duration) bool {
	last := time.Unix(0, c.lastAudio.Load())
	return time.Since(last) >= interval
}

// sendKeepalive writes one keepalive control message and resets the idle
// clock so the next keepalive waits a full interval again.
func (c *conn) sendKeepalive(ctx context.Context) error {
	c.writeMu.Lock()
	err := c.send(ctx, websocket.MessageText, []byte(`{"type":"keepalive"}`))
	c.writeMu.Unlock()
	if err != nil {
		return err
	}
	c.touch()
	return nil
}

// keepaliveLoop sends a keepalive control message whenever the stream has
// been silent for longer than interval.
func (c *conn) keepaliveLoop(interval time.Duration) {
	ticker := time.NewTicker(keepaliveTick)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.keepaliveDue(interval) {
				continue
			}
			if err := c.sendKeepalive(context.Background()); err != nil {
				return
			}
		}
	}
}

// Ensure the interfaces are implemented at compile time.
var (
	_ session.Protocol = (*Protocol)(nil)
	_ session.Conn     = (*conn)(nil)
)
