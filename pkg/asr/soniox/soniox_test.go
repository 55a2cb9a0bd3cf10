package soniox

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// recordingConn captures control frames written through the send seam.
func recordingConn(frames *[][]byte, types *[]websocket.MessageType) *conn {
	c := &conn{
		send: func(_ context.Context, typ websocket.MessageType, data []byte) error {
			cp := make([]byte, len(data))
			copy(cp, data)
			*frames = append(*frames, cp)
			*types = append(*types, typ)
			return nil
		},
		done: make(chan struct{}),
	}
	c.touch()
	return c
}

func TestKeepaliveOnlyWhenIdle(t *testing.T) {
	var (
		frames [][]byte
		types  []websocket.MessageType
	)
	c := recordingConn(&frames, &types)
	interval := 50 * time.Millisecond

	if c.keepaliveDue(interval) {
		t.Fatal("keepalive due immediately after an audio write")
	}

	// Backdate the last audio write well past the idle interval.
	c.lastAudio.Store(time.Now().Add(-100 * time.Millisecond).UnixNano())
	if !c.keepaliveDue(interval) {
		t.Fatal("keepalive not due after the idle interval elapsed")
	}

	if err := c.sendKeepalive(context.Background()); err != nil {
		t.Fatalf("sendKeepalive: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if got := string(frames[0]); got != `{"type":"keepalive"}` {
		t.Errorf("frame = %q", got)
	}
	if types[0] != websocket.MessageText {
		t.Errorf("message type = %v, want text", types[0])
	}

	// The keepalive itself counts as traffic and resets the idle clock.
	if c.keepaliveDue(interval) {
		t.Error("keepalive still due right after one was sent")
	}
}

func TestWriteAudioResetsIdleClock(t *testing.T) {
	var (
		frames [][]byte
		types  []websocket.MessageType
	)
	c := recordingConn(&frames, &types)
	interval := 50 * time.Millisecond

	c.lastAudio.Store(time.Now().Add(-100 * time.Millisecond).UnixNano())
	if !c.keepaliveDue(interval) {
		t.Fatal("keepalive not due after the idle interval elapsed")
	}

	if err := c.WriteAudio(context.Background(), make([]byte, 640)); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	if c.keepaliveDue(interval) {
		t.Error("keepalive due right after an audio write")
	}
	if len(frames) != 1 || types[0] != websocket.MessageBinary {
		t.Errorf("got %d frames, first type %v, want one binary frame", len(frames), types[0])
	}
}
