package bytestore

import (
	"context"
	"errors"
	"testing"

	"wallet-chat/go-core/internal/contracts"
)

func TestOpenSelectsBackendAndMode(t *testing.T) {
	cases := []struct {
		name    string
		opts    Options
		want    Mode
		wantErr error
	}{
		{name: "memory", opts: Options{Backend: BackendMemory}, want: ModeEphemeral},
		{name: "sealed file", opts: Options{Backend: BackendFile, Encrypt: true, Passphrase: "p", KDF: testKDF}, want: ModeSealed},
		{name: "sealed bolt", opts: Options{Backend: BackendBolt, Encrypt: true, Passphrase: "p", KDF: testKDF}, want: ModeSealed},
		{name: "plaintext file is degraded", opts: Options{Backend: BackendFile}, want: ModeDegraded},
		{name: "unknown backend", opts: Options{Backend: "sqlite"}, wantErr: ErrUnknownBackend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := tc.opts
			if opts.Backend != BackendMemory {
				opts.Dir = t.TempDir()
			}
			h, err := Open(opts)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			defer h.Close()
			if h.Mode != tc.want || StoreMode(h.Store) != tc.want {
				t.Fatalf("expected mode %s, got %s/%s", tc.want, h.Mode, StoreMode(h.Store))
			}
			if err := h.Store.Set(context.Background(), "pin-record", []byte("x"), contracts.SetOptions{}); err != nil {
				t.Fatalf("set failed: %v", err)
			}
		})
	}
}

func TestOpenRequiresDirForPersistentBackends(t *testing.T) {
	if _, err := Open(Options{Backend: BackendBolt}); !errors.Is(err, contracts.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
