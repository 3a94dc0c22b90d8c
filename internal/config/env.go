package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wallet-chat/go-core/internal/contracts"
)

const (
	EnvDataDir          = "WALLET_DATA_DIR"
	EnvStorageBackend   = "WALLET_STORAGE_BACKEND"
	EnvStorageEncrypt   = "WALLET_STORAGE_ENCRYPT"
	EnvAllowDegraded    = "WALLET_ALLOW_DEGRADED"
	EnvPBKDF2Iterations = "WALLET_PBKDF2_ITERATIONS"
	EnvAutoLockTimeout  = "WALLET_AUTOLOCK_TIMEOUT"
	EnvRegistryURL      = "WALLET_REGISTRY_URL"
	EnvLogLevel         = "WALLET_LOG_LEVEL"
)

// ApplyEnvOverrides applies WALLET_* variables over cfg. Unset variables are
// ignored; malformed ones are an error.
func ApplyEnvOverrides(cfg *Config) error {
	if v := envString(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := envString(EnvStorageBackend); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := envString(EnvRegistryURL); v != "" {
		cfg.Registry.URL = v
	}
	if v := envString(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if err := envBool(EnvStorageEncrypt, &cfg.Storage.Encrypt); err != nil {
		return err
	}
	if err := envBool(EnvAllowDegraded, &cfg.Storage.AllowDegraded); err != nil {
		return err
	}
	if raw := envString(EnvPBKDF2Iterations); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return envError(EnvPBKDF2Iterations, err)
		}
		cfg.Security.PBKDF2Iterations = uint32(n)
	}
	if raw := envString(EnvAutoLockTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return envError(EnvAutoLockTimeout, err)
		}
		cfg.Security.AutoLockTimeout = d
	}
	return nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envBool(key string, dst *bool) error {
	switch strings.ToLower(envString(key)) {
	case "":
		return nil
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return envError(key, fmt.Errorf("not a boolean"))
	}
	return nil
}

func envError(key string, err error) error {
	return contracts.WrapCategorizedError(contracts.ErrorCategoryValidation, fmt.Errorf("%s: %w", key, err))
}
