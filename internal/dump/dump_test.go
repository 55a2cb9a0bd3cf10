package dump

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSinkWritesChunksInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcm")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	chunks := [][]byte{
		bytes.Repeat([]byte{0x01}, 640),
		bytes.Repeat([]byte{0x02}, 640),
		bytes.Repeat([]byte{0x03}, 320),
	}
	for _, c := range chunks {
		if err := s.Write(c); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := bytes.Join(chunks, nil)
	if !bytes.Equal(got, want) {
		t.Errorf("file contents = %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestSinkCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "session.pcm")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("dump file missing: %v", err)
	}
}

func TestSinkWriteAfterClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.pcm"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Write([]byte{0x00}); err != ErrClosed {
		t.Errorf("Write after close = %v, want ErrClosed", err)
	}
}

func TestSinkCloseIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "session.pcm"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestSinkEmptyChunkIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pcm")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Write(nil); err != nil {
		t.Fatalf("Write(nil): %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, _ := os.ReadFile(path)
	if len(got) != 0 {
		t.Errorf("file has %d bytes, want 0", len(got))
	}
}
