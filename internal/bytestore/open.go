package bytestore

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/securestore"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"

	headerFile = "storage.header"
)

var ErrUnknownBackend = contracts.New(contracts.ErrorCategoryValidation, "unknown storage backend")

type Options struct {
	Backend string
	Dir     string
	// Encrypt seals values with the device storage key. A persistent backend
	// with Encrypt=false is returned as a DegradedStore.
	Encrypt bool
	// Passphrase overrides StoragePassphrase(Dir) when set.
	Passphrase string
	KDF        securestore.KDFParams
}

// Handle is an opened store plus whatever must be released on shutdown.
type Handle struct {
	Store  contracts.ByteStore
	Mode   Mode
	closer io.Closer
	sealer *securestore.Sealer
}

func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.sealer.Close()
	if h.closer != nil {
		return h.closer.Close()
	}
	return nil
}

// Open selects and builds the backend once at startup.
func Open(opts Options) (*Handle, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendFile
	}
	if backend == BackendMemory {
		return &Handle{Store: NewMemoryStore(), Mode: ModeEphemeral}, nil
	}
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, contracts.New(contracts.ErrorCategoryValidation, "storage directory is required")
	}

	var (
		inner  contracts.ByteStore
		closer io.Closer
	)
	switch backend {
	case BackendFile:
		fs, err := NewFileStore(filepath.Join(opts.Dir, "keystore"))
		if err != nil {
			return nil, err
		}
		inner = fs
	case BackendBolt:
		bs, err := OpenBoltStore(filepath.Join(opts.Dir, "keystore.db"))
		if err != nil {
			return nil, err
		}
		inner, closer = bs, bs
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}

	if !opts.Encrypt {
		return &Handle{Store: DegradedStore{ByteStore: inner}, Mode: ModeDegraded, closer: closer}, nil
	}

	sealer, err := openSealer(opts)
	if err != nil {
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return nil, err
	}
	return &Handle{
		Store:  NewSealedStore(inner, sealer),
		Mode:   ModeSealed,
		closer: closer,
		sealer: sealer,
	}, nil
}

func openSealer(opts Options) (*securestore.Sealer, error) {
	passphrase := strings.TrimSpace(opts.Passphrase)
	if passphrase == "" {
		var err error
		passphrase, err = StoragePassphrase(opts.Dir)
		if err != nil {
			return nil, err
		}
	}
	params := opts.KDF
	if params == (securestore.KDFParams{}) {
		params = securestore.DefaultKDFParams()
	}
	header, err := securestore.LoadOrCreateHeader(filepath.Join(opts.Dir, headerFile), params)
	if err != nil {
		return nil, err
	}
	return securestore.NewSealer(passphrase, header)
}
