package tencent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/verbatim-ai/streamasr/pkg/asr"
	"github.com/verbatim-ai/streamasr/pkg/asr/session"
)

var stream16k = asr.StreamConfig{SampleRate: 16000, Channels: 1}

func TestNewValidatesCredentials(t *testing.T) {
	tests := []struct {
		name                       string
		appID, secretID, secretKey string
	}{
		{"missing app id", "", "sid", "skey"},
		{"missing secret id", "app", "", "skey"},
		{"missing secret key", "app", "sid", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.appID, tt.secretID, tt.secretKey, stream16k)
			var aerr *asr.Error
			if !errors.As(err, &aerr) || aerr.Kind != asr.KindConfig || !aerr.Fatal {
				t.Fatalf("error = %v, want a fatal config error", err)
			}
		})
	}

	if _, err := New("app", "sid", "skey", stream16k); err != nil {
		t.Fatalf("New with full credentials: %v", err)
	}
}

func TestQueryParams(t *testing.T) {
	p, err := New("app", "AKIDtest", "skey", stream16k,
		WithVADSilenceTime(800*time.Millisecond),
		WithHotwordID("hw-1"),
	)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Unix(1755007200, 0)
	params := p.queryParams("voice-1", now)

	want := map[string]string{
		"secretid":          "AKIDtest",
		"timestamp":         "1755007200",
		"expired":           "1755093600",
		"engine_model_type": "16k_zh",
		"voice_id":          "voice-1",
		"voice_format":      "1",
		"needvad":           "1",
		"word_info":         "2",
		"vad_silence_time":  "800",
		"hotword_id":        "hw-1",
	}
	for k, v := range want {
		if params[k] != v {
			t.Errorf("params[%s] = %q, want %q", k, params[k], v)
		}
	}
	if params["nonce"] == "" {
		t.Error("nonce is empty")
	}
}

func TestNormalizeSlices(t *testing.T) {
	c := &conn{voiceID: "v1", language: "zh", stream: stream16k, lastFinalIndex: -1}

	msg := c.normalize(&recognizeResult{
		SliceType: sliceProcessing, Index: 0, StartTime: 0, EndTime: 480,
		VoiceTextStr: "你好",
	})
	partial := msg.(session.Results)
	if partial.FinalizeEnd {
		t.Error("processing slice flagged as finalize end")
	}
	if r := partial.Batch[0]; r.Final || r.Text != "你好" || r.Language != "zh" {
		t.Errorf("partial = %+v", r)
	}

	msg = c.normalize(&recognizeResult{
		SliceType: sliceEnd, Index: 0, StartTime: 0, EndTime: 900,
		VoiceTextStr: "你好世界",
		WordList: []wordInfo{
			{Word: "你好", StartTime: 0, EndTime: 450, StableFlag: 1},
			{Word: "世界", StartTime: 450, EndTime: 900, StableFlag: 0},
		},
	})
	final := msg.(session.Results)
	if !final.FinalizeEnd {
		t.Error("sentence end not flagged as finalize end")
	}
	r := final.Batch[0]
	if !r.Final || r.DurationMS != 900 || r.ID != "v1-0" {
		t.Errorf("final = %+v", r)
	}
	if len(r.Words) != 2 || !r.Words[0].Stable || r.Words[1].Stable {
		t.Errorf("words = %+v", r.Words)
	}
}

func TestNormalizeSuppressesDuplicateFinals(t *testing.T) {
	c := &conn{voiceID: "v1", language: "zh", stream: stream16k, lastFinalIndex: -1}

	first := c.normalize(&recognizeResult{SliceType: sliceEnd, Index: 0, VoiceTextStr: "一"})
	if len(first.(session.Results).Batch) != 1 {
		t.Fatal("first sentence end was dropped")
	}

	dup := c.normalize(&recognizeResult{SliceType: sliceEnd, Index: 0, VoiceTextStr: "一"})
	if len(dup.(session.Results).Batch) != 0 {
		t.Error("duplicate sentence end was not suppressed")
	}

	// A later partial for the next segment still flows.
	next := c.normalize(&recognizeResult{SliceType: sliceStart, Index: 1, VoiceTextStr: "二"})
	if len(next.(session.Results).Batch) != 1 {
		t.Error("next segment start was dropped")
	}
	nextEnd := c.normalize(&recognizeResult{SliceType: sliceEnd, Index: 1, VoiceTextStr: "二"})
	if len(nextEnd.(session.Results).Batch) != 1 {
		t.Error("next sentence end was dropped")
	}
}

func TestFatalCode(t *testing.T) {
	for code := 4001; code <= 4005; code++ {
		if !fatalCode(code) {
			t.Errorf("code %d not fatal", code)
		}
	}
	for _, code := range []int{0, 4000, 4006, 5000} {
		if fatalCode(code) {
			t.Errorf("code %d wrongly fatal", code)
		}
	}
}

func TestEngineLanguage(t *testing.T) {
	tests := []struct{ engine, want string }{
		{"16k_zh", "zh"},
		{"16k_en", "en"},
		{"8k_zh", "zh"},
		{"zh", "zh"},
	}
	for _, tt := range tests {
		if got := engineLanguage(tt.engine); got != tt.want {
			t.Errorf("engineLanguage(%q) = %q, want %q", tt.engine, got, tt.want)
		}
	}
}

// muteConn returns a conn whose writes are captured instead of hitting a
// socket.
func muteConn(frames *[][]byte, sendErr func(call int) error) *conn {
	calls := 0
	return &conn{
		send: func(_ context.Context, typ websocket.MessageType, data []byte) error {
			calls++
			if sendErr != nil {
				if err := sendErr(calls); err != nil {
					return err
				}
			}
			if typ != websocket.MessageBinary {
				return errors.New("mute audio must be a binary frame")
			}
			cp := make([]byte, len(data))
			copy(cp, data)
			*frames = append(*frames, cp)
			return nil
		},
		stream:          stream16k,
		finalizeSilence: defaultFinalizeSilence,
		lastFinalIndex:  -1,
	}
}

func TestWriteFinalizeInjectsMuteFrames(t *testing.T) {
	var frames [][]byte
	c := muteConn(&frames, nil)

	injected, err := c.WriteFinalize(context.Background(), 0)
	if err != nil {
		t.Fatalf("WriteFinalize: %v", err)
	}
	if injected != defaultFinalizeSilence {
		t.Errorf("injected = %v, want %v", injected, defaultFinalizeSilence)
	}

	// 1200 ms at 16 kHz mono 16-bit is 38400 bytes, 30 full frames.
	if len(frames) != 30 {
		t.Fatalf("frames = %d, want 30", len(frames))
	}
	for i, f := range frames {
		if len(f) != muteFrame {
			t.Fatalf("frame %d length = %d, want %d", i, len(f), muteFrame)
		}
		for _, b := range f {
			if b != 0 {
				t.Fatalf("frame %d carries non-zero audio", i)
			}
		}
	}
}

func TestWriteFinalizeHonorsSilenceHint(t *testing.T) {
	var frames [][]byte
	c := muteConn(&frames, nil)

	injected, err := c.WriteFinalize(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("WriteFinalize: %v", err)
	}
	if injected != 100*time.Millisecond {
		t.Errorf("injected = %v, want 100ms", injected)
	}

	// 100 ms is 3200 bytes: two full frames and a 640-byte tail.
	wantLens := []int{1280, 1280, 640}
	if len(frames) != len(wantLens) {
		t.Fatalf("frames = %d, want %d", len(frames), len(wantLens))
	}
	for i, want := range wantLens {
		if len(frames[i]) != want {
			t.Errorf("frame %d length = %d, want %d", i, len(frames[i]), want)
		}
	}
}

func TestWriteFinalizeReportsPartialInjection(t *testing.T) {
	var frames [][]byte
	c := muteConn(&frames, func(call int) error {
		if call == 2 {
			return errors.New("socket gone")
		}
		return nil
	})

	injected, err := c.WriteFinalize(context.Background(), 0)
	if err == nil {
		t.Fatal("WriteFinalize succeeded past a dead socket")
	}
	// Exactly one frame made it out before the failure.
	if want := c.stream.Duration(muteFrame); injected != want {
		t.Errorf("injected = %v, want %v", injected, want)
	}
	if len(frames) != 1 {
		t.Errorf("frames = %d, want 1", len(frames))
	}
}
