package bytestore

import (
	"context"
	"time"

	"wallet-chat/go-core/internal/contracts"

	"github.com/boltdb/bolt"
)

const (
	// boltOpenTimeout bounds the wait for the file lock held by another process.
	boltOpenTimeout = time.Second
)

var keystoreBucket = []byte("keystore")

// BoltStore keeps all values in a single bolt database bucket.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(keystoreBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(keystoreBucket).Get([]byte(key))
		if v != nil {
			// Values returned by bolt are only valid inside the transaction.
			out = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	return out, out != nil, nil
}

func (s *BoltStore) Set(ctx context.Context, key string, value []byte, _ contracts.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(keystoreBucket).Put([]byte(key), append([]byte{}, value...))
	})
	return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(keystoreBucket).Delete([]byte(key))
	})
	return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
