package audiobuf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestManager_ByteFidelity(t *testing.T) {
	m := New(Config{Threshold: 7})

	var pushed []byte
	for i := range 40 {
		chunk := bytes.Repeat([]byte{byte(i)}, i%11+1)
		pushed = append(pushed, chunk...)
		if err := m.Push(chunk); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	m.Close()

	var pulled []byte
	for {
		chunk, err := m.Pull(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Pull: %v", err)
		}
		if len(chunk) == 0 || len(chunk) > 7 {
			t.Fatalf("chunk size %d outside (0, threshold]", len(chunk))
		}
		pulled = append(pulled, chunk...)
	}

	if !bytes.Equal(pushed, pulled) {
		t.Errorf("pulled bytes differ from pushed: %d vs %d bytes", len(pulled), len(pushed))
	}
}

func TestManager_PushAfterClose(t *testing.T) {
	m := New(Config{})
	m.Close()
	if err := m.Push([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Push after Close = %v, want ErrClosed", err)
	}
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := New(Config{})
	m.Close()
	m.Close()

	if _, err := m.Pull(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Pull after Close = %v, want io.EOF", err)
	}
}

func TestManager_EOFAfterDrain(t *testing.T) {
	m := New(Config{Threshold: 64})
	if err := m.Push([]byte("hello")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	m.Close()

	chunk, err := m.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if string(chunk) != "hello" {
		t.Errorf("Pull = %q, want %q", chunk, "hello")
	}

	for range 2 {
		if _, err := m.Pull(context.Background()); !errors.Is(err, io.EOF) {
			t.Fatalf("Pull after drain = %v, want io.EOF", err)
		}
	}
}

func TestManager_PullBlocksUntilPush(t *testing.T) {
	m := New(Config{})

	got := make(chan []byte, 1)
	go func() {
		chunk, err := m.Pull(context.Background())
		if err != nil {
			t.Errorf("Pull: %v", err)
		}
		got <- chunk
	}()

	// Give the consumer time to block.
	time.Sleep(10 * time.Millisecond)
	if err := m.Push([]byte{0xAB}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	select {
	case chunk := <-got:
		if len(chunk) != 1 || chunk[0] != 0xAB {
			t.Errorf("unexpected chunk %v", chunk)
		}
	case <-time.After(time.Second):
		t.Fatal("Pull did not wake after Push")
	}
}

func TestManager_PullCancellable(t *testing.T) {
	m := New(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Pull(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Pull = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pull did not unwind after cancel")
	}
}

func TestManager_DropOldest(t *testing.T) {
	m := New(Config{Threshold: 100, MaxBuffered: 10})

	if err := m.Push(bytes.Repeat([]byte{1}, 10)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	// Exceeds the bound by 5: the 5 oldest bytes must go.
	if err := m.Push(bytes.Repeat([]byte{2}, 5)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if got := m.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}

	chunk, err := m.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	want := append(bytes.Repeat([]byte{1}, 5), bytes.Repeat([]byte{2}, 5)...)
	if !bytes.Equal(chunk, want) {
		t.Errorf("Pull = %v, want newest bytes %v", chunk, want)
	}
}

func TestManager_ChunkOrderPreserved(t *testing.T) {
	m := New(Config{Threshold: 2})
	if err := m.Push([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	m.Close()

	var got []byte
	for {
		chunk, err := m.Pull(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("pulled %v, want in-order 1..5", got)
	}
}
