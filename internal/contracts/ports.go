package contracts

import "context"

// SetOptions is opaque metadata passed through to the platform store.
type SetOptions struct {
	// RequireUserAuthentication asks the backend to gate reads behind a
	// platform user-presence check (biometric or device credential).
	RequireUserAuthentication bool
	// Sensitive marks values that hold key material.
	Sensitive bool
}

// ByteStore is the platform key-value store for key material. Get reports
// absence with ok=false rather than an error.
type ByteStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error
	Delete(ctx context.Context, key string) error
}

// PeerKeyRegistry resolves the X25519 public key a peer published for direct
// messaging. ok=false means the peer has not enrolled yet.
type PeerKeyRegistry interface {
	LookupPublicKey(ctx context.Context, peerAddress string) (publicKey []byte, ok bool, err error)
}

type PeerKeyPublisher interface {
	PublishPublicKey(ctx context.Context, peerAddress string, publicKey []byte) error
}

// BlobStore is a content-addressed store: Put returns the content id of data.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (cid string, err error)
	Get(ctx context.Context, cid string) ([]byte, error)
}
