package app

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"wallet-chat/go-core/internal/bytestore"
	"wallet-chat/go-core/internal/config"
	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/keystore"
	"wallet-chat/go-core/internal/metrics"
	"wallet-chat/go-core/internal/platform/privacylog"
	"wallet-chat/go-core/internal/platform/ratelimiter"
	"wallet-chat/go-core/internal/registry"
	"wallet-chat/go-core/internal/storage"
)

// Runtime is a Session built from configuration plus the resources it holds
// open.
type Runtime struct {
	*Session
	store *bytestore.Handle
}

func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.Lock()
	return r.store.Close()
}

type OpenOptions struct {
	// Registerer receives the metrics collectors; nil leaves them unregistered.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	// Directory replaces the registry selected from configuration.
	Directory KeyDirectory
}

// Open selects the storage backend, registry client and blob store once from
// cfg and builds a Session over them.
func Open(cfg config.Config, opts OpenOptions) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = privacylog.NewLogger(os.Stderr, privacylog.ParseLevel(cfg.Log.Level))
	}

	handle, err := bytestore.Open(bytestore.Options{
		Backend: cfg.Storage.Backend,
		Dir:     cfg.DataDir,
		Encrypt: cfg.Storage.Encrypt,
	})
	if err != nil {
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}

	directory := opts.Directory
	if directory == nil {
		directory, err = openDirectory(cfg.Registry)
		if err != nil {
			return nil, errors.Join(err, handle.Close())
		}
	}

	blobDir := ""
	if cfg.Storage.Backend != bytestore.BackendMemory {
		blobDir = filepath.Join(cfg.DataDir, "blobs")
	}
	blobs, err := storage.NewBlobStore(blobDir, cfg.Storage.MaxBlobBytes)
	if err != nil {
		return nil, errors.Join(err, handle.Close())
	}

	session, err := NewSession(SessionDeps{
		Store:     handle.Store,
		Directory: directory,
		Blobs:     blobs,
		Policy: keystore.AutoLockPolicy{
			Timeout:         cfg.Security.AutoLockTimeout,
			TickInterval:    cfg.Security.AutoLockTick,
			BackgroundGrace: cfg.Security.BackgroundGrace,
		},
		Iterations:    cfg.Security.PBKDF2Iterations,
		StoreTimeout:  cfg.Storage.Timeout,
		Recheck:       ratelimiter.New(cfg.Registry.RecheckPerSecond, cfg.Registry.RecheckBurst, 0),
		AllowDegraded: cfg.Storage.AllowDegraded,
		Logger:        logger,
		Metrics:       metrics.New(opts.Registerer),
	})
	if err != nil {
		return nil, errors.Join(err, handle.Close())
	}
	logger.Info("session opened",
		"component", "session", "storage_backend", cfg.Storage.Backend, "storage_mode", string(handle.Mode))
	return &Runtime{Session: session, store: handle}, nil
}

func openDirectory(cfg config.RegistryConfig) (KeyDirectory, error) {
	if cfg.URL == "" {
		return registry.NewMemoryRegistry(), nil
	}
	client, err := registry.NewHTTPRegistry(cfg.URL, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return client, nil
}
