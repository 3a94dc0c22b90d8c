package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"wallet-chat/go-core/internal/contracts"
)

func exerciseBlobStore(t *testing.T, s *BlobStore) {
	t.Helper()
	ctx := context.Background()
	data := []byte("sealed message bytes")

	cid, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if cid != ContentID(data) {
		t.Fatalf("unexpected cid %q", cid)
	}
	again, err := s.Put(ctx, data)
	if err != nil || again != cid {
		t.Fatalf("same content must map to the same id, got %q err=%v", again, err)
	}
	got, err := s.Get(ctx, cid)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("get: %q err=%v", got, err)
	}
	got[0] = 'X'
	if fresh, _ := s.Get(ctx, cid); !bytes.Equal(fresh, data) {
		t.Fatal("returned slice must not alias stored data")
	}
	ids, err := s.List()
	if err != nil || len(ids) != 1 || ids[0] != cid {
		t.Fatalf("unexpected list %v err=%v", ids, err)
	}

	if _, err := s.Get(ctx, ContentID([]byte("other"))); !errors.Is(err, ErrBlobNotFound) || !errors.Is(err, contracts.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Get(ctx, "../../etc/passwd"); !errors.Is(err, ErrInvalidCID) {
		t.Fatalf("expected ErrInvalidCID, got %v", err)
	}
	if _, err := s.Put(ctx, nil); !errors.Is(err, ErrBlobEmpty) {
		t.Fatalf("expected ErrBlobEmpty, got %v", err)
	}
	if err := s.Delete(ctx, cid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, cid); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected deleted blob to be gone, got %v", err)
	}
}

func TestMemoryBlobStore(t *testing.T) {
	s, err := NewBlobStore("", 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	exerciseBlobStore(t, s)
}

func TestDirectoryBlobStore(t *testing.T) {
	s, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"), 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	exerciseBlobStore(t, s)
}

func TestBlobStoreSizeLimit(t *testing.T) {
	s, _ := NewBlobStore("", 4)
	if _, err := s.Put(context.Background(), []byte("12345")); !errors.Is(err, ErrBlobTooLarge) {
		t.Fatalf("expected ErrBlobTooLarge, got %v", err)
	}
}

func TestBlobStoreDetectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewBlobStore(dir, 0)
	cid, err := s.Put(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, cid+".blob"), []byte("tampered"), 0o600); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := s.Get(context.Background(), cid); !errors.Is(err, ErrBlobCorrupt) {
		t.Fatalf("expected ErrBlobCorrupt, got %v", err)
	}
}

func TestBlobStoreWipe(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	s, _ := NewBlobStore(dir, 0)
	ctx := context.Background()
	if _, err := s.Put(ctx, []byte("a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Wipe(); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	ids, err := s.List()
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty store after wipe, ids=%v err=%v", ids, err)
	}
	if _, err := s.Put(ctx, []byte("b")); err != nil {
		t.Fatalf("store must stay usable after wipe: %v", err)
	}
}
