// Package storage holds the content-addressed store for encrypted message
// blobs.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"wallet-chat/go-core/internal/contracts"
)

const DefaultMaxBlobBytes = 16 << 20

var (
	ErrBlobNotFound = contracts.New(contracts.ErrorCategoryNotFound, "blob not found")
	ErrBlobEmpty    = contracts.New(contracts.ErrorCategoryValidation, "blob data is empty")
	ErrBlobTooLarge = contracts.New(contracts.ErrorCategoryValidation, "blob exceeds the size limit")
	ErrInvalidCID   = contracts.New(contracts.ErrorCategoryValidation, "content id is malformed")
	ErrBlobCorrupt  = contracts.New(contracts.ErrorCategoryStorage, "blob content does not match its id")
)

// BlobStore addresses blobs by the base58 BLAKE2b-256 digest of their bytes.
// With an empty dir it keeps everything in memory.
type BlobStore struct {
	mu       sync.RWMutex
	dir      string
	maxBytes int
	blobs    map[string][]byte
}

func NewBlobStore(dir string, maxBytes int) (*BlobStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBlobBytes
	}
	s := &BlobStore{
		dir:      strings.TrimSpace(dir),
		maxBytes: maxBytes,
		blobs:    make(map[string][]byte),
	}
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o700); err != nil {
			return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
		}
	}
	return s, nil
}

// ContentID returns the id Put assigns to data.
func ContentID(data []byte) string {
	sum := blake2b.Sum256(data)
	return base58.Encode(sum[:])
}

func (s *BlobStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrBlobEmpty
	}
	if len(data) > s.maxBytes {
		return "", ErrBlobTooLarge
	}
	cid := ContentID(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		if _, ok := s.blobs[cid]; !ok {
			s.blobs[cid] = append([]byte(nil), data...)
		}
		return cid, nil
	}
	path := s.path(cid)
	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	return cid, nil
}

// Get returns the blob for cid after checking its digest.
func (s *BlobStore) Get(ctx context.Context, cid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validCID(cid) {
		return nil, ErrInvalidCID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	if s.dir == "" {
		blob, ok := s.blobs[cid]
		if !ok {
			return nil, ErrBlobNotFound
		}
		data = append([]byte(nil), blob...)
	} else {
		raw, err := os.ReadFile(s.path(cid))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrBlobNotFound
			}
			return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
		}
		data = raw
	}
	if ContentID(data) != cid {
		return nil, ErrBlobCorrupt
	}
	return data, nil
}

func (s *BlobStore) Delete(ctx context.Context, cid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validCID(cid) {
		return ErrInvalidCID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, cid)
	if s.dir == "" {
		return nil
	}
	if err := os.Remove(s.path(cid)); err != nil && !os.IsNotExist(err) {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	return nil
}

// List returns every stored content id in sorted order.
func (s *BlobStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	if s.dir == "" {
		for cid := range s.blobs {
			ids = append(ids, cid)
		}
	} else {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
		}
		for _, e := range entries {
			name, ok := strings.CutSuffix(e.Name(), ".blob")
			if ok && !e.IsDir() && validCID(name) {
				ids = append(ids, name)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Wipe removes every blob.
func (s *BlobStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string][]byte)
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil && !os.IsNotExist(err) {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	return os.MkdirAll(s.dir, 0o700)
}

func (s *BlobStore) path(cid string) string {
	return filepath.Join(s.dir, cid+".blob")
}

func validCID(cid string) bool {
	raw, err := base58.Decode(cid)
	return err == nil && len(raw) == blake2b.Size256
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
