package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wallet-chat/go-core/internal/contracts"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if !cfg.Storage.Encrypt || cfg.Storage.AllowDegraded {
		t.Fatal("storage must be encrypted by default")
	}
	if cfg.Security.AutoLockTimeout != 5*time.Minute || cfg.Security.AutoLockTick != 30*time.Second || cfg.Security.BackgroundGrace != time.Minute {
		t.Fatalf("unexpected auto-lock defaults %+v", cfg.Security)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletcore.yaml")
	data := `
dataDir: /var/lib/wallet
storage:
  backend: FILE
  encrypt: false
  allowDegraded: true
security:
  pbkdf2Iterations: 300000
  autoLockTimeout: 2m
  backgroundGrace: 0s
registry:
  url: https://keys.example.test
  recheckPerSecond: 0.5
  recheckBurst: 2
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/wallet" || cfg.Storage.Backend != "file" {
		t.Fatalf("unexpected storage settings %+v dataDir=%q", cfg.Storage, cfg.DataDir)
	}
	if cfg.Storage.Encrypt || !cfg.Storage.AllowDegraded {
		t.Fatal("explicit false/true must override defaults")
	}
	if cfg.Security.PBKDF2Iterations != 300000 || cfg.Security.AutoLockTimeout != 2*time.Minute {
		t.Fatalf("unexpected security settings %+v", cfg.Security)
	}
	if cfg.Security.AutoLockTick != 30*time.Second {
		t.Fatal("unset fields must keep their defaults")
	}
	if cfg.Security.BackgroundGrace != 0 {
		t.Fatal("explicit zero grace must be kept")
	}
	if cfg.Registry.URL != "https://keys.example.test" || cfg.Registry.RecheckPerSecond != 0.5 || cfg.Registry.RecheckBurst != 2 {
		t.Fatalf("unexpected registry settings %+v", cfg.Registry)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level %q", cfg.Log.Level)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, contracts.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("storage: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, contracts.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvStorageBackend, "memory")
	t.Setenv(EnvStorageEncrypt, "no")
	t.Setenv(EnvPBKDF2Iterations, "250000")
	t.Setenv(EnvAutoLockTimeout, "90s")
	t.Setenv(EnvLogLevel, "WARN")

	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Storage.Backend != "memory" || cfg.Storage.Encrypt {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Security.PBKDF2Iterations != 250000 || cfg.Security.AutoLockTimeout != 90*time.Second {
		t.Fatalf("unexpected security %+v", cfg.Security)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("unexpected log level %q", cfg.Log.Level)
	}

	t.Setenv(EnvAllowDegraded, "maybe")
	if err := ApplyEnvOverrides(&cfg); !errors.Is(err, contracts.ErrValidation) {
		t.Fatalf("expected validation error for bad bool, got %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "sqlite"
	cfg.Security.PBKDF2Iterations = 10
	cfg.Security.AutoLockTick = time.Hour
	cfg.Log.Level = "trace"
	err := cfg.Validate()
	if !errors.Is(err, contracts.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, want := range []string{"storage.backend", "pbkdf2Iterations", "autoLockTick", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
