package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/evidence")
	if err != nil {
		t.Fatalf("NewLocalStorage failed: %v", err)
	}
	ctx := context.Background()

	key := "proofs/tx-1.jpg"
	if err := s.Put(ctx, key, bytes.NewReader([]byte("jpeg-bytes")), "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := s.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected file to exist, got exists=%v err=%v", exists, err)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg-bytes" {
		t.Errorf("unexpected content: %q", data)
	}

	if got := s.GetURL(key); got != "http://localhost:8080/evidence/proofs/tx-1.jpg" {
		t.Errorf("unexpected url: %q", got)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = s.Exists(ctx, key)
	if exists {
		t.Error("expected file to be gone after delete")
	}

	// Deleting a missing key is a no-op.
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("expected nil on double delete, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(Config{Backend: "local", LocalPath: t.TempDir(), LocalURL: "http://x"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := s.(*LocalStorage); !ok {
		t.Errorf("expected LocalStorage, got %T", s)
	}

	if _, err := New(Config{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
