// Package tencent provides a Tencent Cloud-backed streaming recognition
// protocol using the realtime ASR WebSocket API. It implements the
// session.Protocol interface.
//
// Tencent authenticates through a signed URL rather than a start request:
// every query parameter is folded into an HMAC-SHA1 signature, so each Dial
// produces a freshly signed URL with a new voice ID, timestamp, and nonce.
package tencent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/verbatim-ai/streamasr/pkg/asr"
	"github.com/verbatim-ai/streamasr/pkg/asr/session"
)

const (
	tencentEndpoint   = "asr.cloud.tencent.com/asr/v2"
	defaultEngine     = "16k_zh"
	signatureLifetime = 24 * time.Hour

	// voiceFormatPCM is Tencent's enum value for raw 16-bit PCM.
	voiceFormatPCM = 1

	// defaultFinalizeSilence is how much mute audio a finalize injects when
	// the caller gives no hint. It must exceed the VAD silence threshold or
	// the server will not cut the sentence.
	defaultFinalizeSilence = 1200 * time.Millisecond

	// muteFrame is the size of each injected silence frame.
	muteFrame = 1280
)

// Slice types in recognition results.
const (
	sliceStart      = 0
	sliceProcessing = 1
	sliceEnd        = 2
)

// Option is a functional option for configuring the Tencent Protocol.
type Option func(*Protocol)

// WithEndpoint overrides the API endpoint (host and path, no scheme).
func WithEndpoint(endpoint string) Option {
	return func(p *Protocol) {
		p.endpoint = endpoint
	}
}

// WithEngineModelType sets the engine model (e.g., "16k_zh", "16k_en").
func WithEngineModelType(engine string) Option {
	return func(p *Protocol) {
		p.engine = engine
	}
}

// WithVADSilenceTime sets the server-side VAD silence threshold. Tencent
// accepts 240ms to 2000ms.
func WithVADSilenceTime(d time.Duration) Option {
	return func(p *Protocol) {
		p.vadSilence = d
	}
}

// WithFinalizeSilence sets how much mute audio a finalize with no hint
// injects to force a sentence cut.
func WithFinalizeSilence(d time.Duration) Option {
	return func(p *Protocol) {
		p.finalizeSilence = d
	}
}

// WithHotwordID selects a prebuilt hot word table.
func WithHotwordID(id string) Option {
	return func(p *Protocol) {
		p.hotwordID = id
	}
}

// Protocol implements session.Protocol backed by the Tencent realtime ASR API.
type Protocol struct {
	appID     string
	secretID  string
	secretKey string

	endpoint        string
	engine          string
	vadSilence      time.Duration
	finalizeSilence time.Duration
	hotwordID       string
	stream          asr.StreamConfig
}

// New creates a Tencent Protocol. All three credentials must be non-empty.
func New(appID, secretID, secretKey string, stream asr.StreamConfig, opts ...Option) (*Protocol, error) {
	switch {
	case appID == "":
		return nil, asr.NewConfigError("tencent: app id must not be empty")
	case secretID == "":
		return nil, asr.NewConfigError("tencent: secret id must not be empty")
	case secretKey == "":
		return nil, asr.NewConfigError("tencent: secret key must not be empty")
	}
	p := &Protocol{
		appID:           appID,
		secretID:        secretID,
		secretKey:       secretKey,
		endpoint:        tencentEndpoint,
		engine:          defaultEngine,
		finalizeSilence: defaultFinalizeSilence,
		stream:          stream,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// queryParams builds the unsigned query parameters for one connection.
func (p *Protocol) queryParams(voiceID string, now time.Time) map[string]string {
	params := map[string]string{
		"secretid":          p.secretID,
		"timestamp":         strconv.FormatInt(now.Unix(), 10),
		"expired":           strconv.FormatInt(now.Add(signatureLifetime).Unix(), 10),
		"nonce":             strconv.FormatInt(rand.Int64N(10_000_000_000), 10),
		"engine_model_type": p.engine,
		"voice_id":          voiceID,
		"voice_format":      strconv.Itoa(voiceFormatPCM),
		"needvad":           "1",
		"word_info":         "2",
	}
	if p.vadSilence > 0 {
		params["vad_silence_time"] = strconv.FormatInt(p.vadSilence.Milliseconds(), 10)
	}
	if p.hotwordID != "" {
		params["hotword_id"] = p.hotwordID
	}
	return params
}

// Dial signs a fresh URL and opens the connection. Tencent has no start
// request; the handshake is the signed URL itself.
func (p *Protocol) Dial(ctx context.Context) (session.Conn, error) {
	voiceID := uuid.NewString()
	u := signedURL(p.endpoint, p.appID, p.secretKey, p.queryParams(voiceID, time.Now()))

	ws, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("tencent: dial: %w", err)
	}

	return &conn{
		ws:              ws,
		send:            ws.Write,
		voiceID:         voiceID,
		language:        engineLanguage(p.engine),
		stream:          p.stream,
		finalizeSilence: p.finalizeSilence,
		lastFinalIndex:  -1,
	}, nil
}

// conn is one live Tencent connection. It implements session.Conn.
type conn struct {
	ws      *websocket.Conn
	voiceID string

	// send is the socket write; a seam for tests.
	send func(ctx context.Context, typ websocket.MessageType, data []byte) error

	language        string
	stream          asr.StreamConfig
	finalizeSilence time.Duration

	// writeMu serializes audio, mute injection, and control frames.
	writeMu sync.Mutex

	// lastFinalIndex suppresses duplicate sentence-end results: Tencent may
	// repeat an END slice for a segment that already ended. Indexes are
	// monotonic per connection.
	lastFinalIndex int
	closeOnce      sync.Once
}

// WriteAudio sends one chunk of raw PCM as a binary frame.
func (c *conn) WriteAudio(ctx context.Context, chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.send(ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("tencent: write audio: %w", err)
	}
	return nil
}

// WriteFinalize injects mute audio to trip the server-side VAD, since the
// protocol has no finalize control message. The injected duration is returned
// so the caller can account for it as silence rather than speech.
func (c *conn) WriteFinalize(ctx context.Context, trailingSilence time.Duration) (time.Duration, error) {
	silence := trailingSilence
	if silence <= 0 {
		silence = c.finalizeSilence
	}

	total := c.stream.Bytes(silence)
	frame := make([]byte, muteFrame)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for sent := 0; sent < total; sent += muteFrame {
		n := min(muteFrame, total-sent)
		if err := c.send(ctx, websocket.MessageBinary, frame[:n]); err != nil {
			injected := c.stream.Duration(sent)
			return injected, fmt.Errorf("tencent: write mute audio: %w", err)
		}
	}
	return silence, nil
}

// WriteEndOfStream sends the end control message; the server answers with a
// final response once the remaining audio is recognized.
func (c *conn) WriteEndOfStream(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.send(ctx, websocket.MessageText, []byte(`{"type":"end"}`)); err != nil {
		return fmt.Errorf("tencent: write end of stream: %w", err)
	}
	return nil
}

// response is the JSON structure of every inbound Tencent frame.
type response struct {
	Code      int              `json:"code"`
	Message   string           `json:"message"`
	VoiceID   string           `json:"voice_id"`
	MessageID string           `json:"message_id"`
	Final     int              `json:"final"`
	Result    *recognizeResult `json:"result"`
}

type recognizeResult struct {
	SliceType    int        `json:"slice_type"`
	Index        int        `json:"index"`
	StartTime    int64      `json:"start_time"`
	EndTime      int64      `json:"end_time"`
	VoiceTextStr string     `json:"voice_text_str"`
	WordList     []wordInfo `json:"word_list"`
}

type wordInfo struct {
	Word       string `json:"word"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
	StableFlag int    `json:"stable_flag"`
}

// Read decodes the next inbound frame into a session message.
func (c *conn) Read(ctx context.Context) (session.Message, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("tencent: read: %w", err)
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return session.Malformed{Err: fmt.Errorf("tencent: decode message: %w", err)}, nil
	}

	if resp.Code != 0 {
		return session.VendorError{
			Code:    strconv.Itoa(resp.Code),
			Message: resp.Message,
			Fatal:   fatalCode(resp.Code),
		}, nil
	}
	if resp.Final != 0 {
		return session.Finished{}, nil
	}
	if resp.Result == nil {
		// Handshake acknowledgement or an empty keepalive response.
		return session.Results{}, nil
	}
	return c.normalize(resp.Result), nil
}

// normalize converts one recognition slice into a result. Sentence ends
// double as the finalize acknowledgement; the session ignores that flag when
// no finalize is pending.
func (c *conn) normalize(r *recognizeResult) session.Message {
	final := r.SliceType == sliceEnd
	if final {
		if r.Index <= c.lastFinalIndex {
			return session.Results{}
		}
		c.lastFinalIndex = r.Index
	}

	words := make([]asr.Word, 0, len(r.WordList))
	for _, w := range r.WordList {
		words = append(words, asr.Word{
			Text:       w.Word,
			StartMS:    w.StartTime,
			DurationMS: w.EndTime - w.StartTime,
			Stable:     w.StableFlag == 1,
		})
	}

	return session.Results{
		Batch: []asr.Result{{
			ID:         fmt.Sprintf("%s-%d", c.voiceID, r.Index),
			Text:       r.VoiceTextStr,
			Final:      final,
			StartMS:    r.StartTime,
			DurationMS: r.EndTime - r.StartTime,
			Language:   c.language,
			Words:      words,
		}},
		FinalizeEnd: final,
	}
}

// Close tears the connection down. Idempotent.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.ws.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// fatalCode reports server error codes that end the stream for good:
// authentication, signature, and parameter failures that a reconnect with
// the same credentials cannot fix.
func fatalCode(code int) bool {
	return code >= 4001 && code <= 4005
}

// engineLanguage derives the language code from an engine model type like
// "16k_zh" or "16k_en".
func engineLanguage(engine string) string {
	if i := strings.IndexByte(engine, '_'); i >= 0 && i+1 < len(engine) {
		return engine[i+1:]
	}
	return engine
}

// Ensure the interfaces are implemented at compile time.
var (
	_ session.Protocol = (*Protocol)(nil)
	_ session.Conn     = (*conn)(nil)
)
