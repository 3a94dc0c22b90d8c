// Package config loads the core's settings from YAML with WALLET_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wallet-chat/go-core/internal/bytestore"
	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/crypto"
)

const (
	minIterations = 10_000
	maxIterations = 10_000_000
)

type Config struct {
	DataDir  string
	Storage  StorageConfig
	Security SecurityConfig
	Registry RegistryConfig
	Log      LogConfig
}

type StorageConfig struct {
	Backend       string
	Encrypt       bool
	AllowDegraded bool
	Timeout       time.Duration
	MaxBlobBytes  int
}

type SecurityConfig struct {
	PBKDF2Iterations uint32
	AutoLockTimeout  time.Duration
	AutoLockTick     time.Duration
	BackgroundGrace  time.Duration
}

type RegistryConfig struct {
	// URL empty means an in-process registry.
	URL              string
	Timeout          time.Duration
	RecheckPerSecond float64
	RecheckBurst     int
}

type LogConfig struct {
	Level string
}

// fileConfig mirrors Config with pointers so unset fields keep defaults.
type fileConfig struct {
	DataDir string `yaml:"dataDir"`
	Storage struct {
		Backend       string        `yaml:"backend"`
		Encrypt       *bool         `yaml:"encrypt"`
		AllowDegraded *bool         `yaml:"allowDegraded"`
		Timeout       time.Duration `yaml:"timeout"`
		MaxBlobBytes  int           `yaml:"maxBlobBytes"`
	} `yaml:"storage"`
	Security struct {
		PBKDF2Iterations uint32         `yaml:"pbkdf2Iterations"`
		AutoLockTimeout  time.Duration  `yaml:"autoLockTimeout"`
		AutoLockTick     time.Duration  `yaml:"autoLockTick"`
		BackgroundGrace  *time.Duration `yaml:"backgroundGrace"`
	} `yaml:"security"`
	Registry struct {
		URL              string        `yaml:"url"`
		Timeout          time.Duration `yaml:"timeout"`
		RecheckPerSecond *float64      `yaml:"recheckPerSecond"`
		RecheckBurst     *int          `yaml:"recheckBurst"`
	} `yaml:"registry"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	return Config{
		DataDir: defaultDataDir(),
		Storage: StorageConfig{
			Backend: bytestore.BackendBolt,
			Encrypt: true,
			Timeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			PBKDF2Iterations: crypto.DefaultIterations,
			AutoLockTimeout:  5 * time.Minute,
			AutoLockTick:     30 * time.Second,
			BackgroundGrace:  time.Minute,
		},
		Registry: RegistryConfig{
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "wallet-chat")
	}
	return ".wallet-chat"
}

// Load reads configPath, or the first default location that exists when
// configPath is empty, then applies environment overrides and validates.
func Load(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{"configs/walletcore.yaml", "walletcore.yaml"}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && configPath == "" {
				continue
			}
			return Config{}, contracts.WrapCategorizedError(contracts.ErrorCategoryValidation,
				fmt.Errorf("read config %s: %w", path, err))
		}
		if err := Parse(&cfg, data); err != nil {
			return Config{}, err
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse merges YAML data over cfg.
func Parse(cfg *Config, data []byte) error {
	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryValidation,
			fmt.Errorf("parse config: %w", err))
	}
	merge(cfg, parsed)
	return nil
}

func merge(dst *Config, src fileConfig) {
	if v := strings.TrimSpace(src.DataDir); v != "" {
		dst.DataDir = v
	}
	if v := strings.TrimSpace(src.Storage.Backend); v != "" {
		dst.Storage.Backend = strings.ToLower(v)
	}
	if src.Storage.Encrypt != nil {
		dst.Storage.Encrypt = *src.Storage.Encrypt
	}
	if src.Storage.AllowDegraded != nil {
		dst.Storage.AllowDegraded = *src.Storage.AllowDegraded
	}
	if src.Storage.Timeout != 0 {
		dst.Storage.Timeout = src.Storage.Timeout
	}
	if src.Storage.MaxBlobBytes != 0 {
		dst.Storage.MaxBlobBytes = src.Storage.MaxBlobBytes
	}
	if src.Security.PBKDF2Iterations != 0 {
		dst.Security.PBKDF2Iterations = src.Security.PBKDF2Iterations
	}
	if src.Security.AutoLockTimeout != 0 {
		dst.Security.AutoLockTimeout = src.Security.AutoLockTimeout
	}
	if src.Security.AutoLockTick != 0 {
		dst.Security.AutoLockTick = src.Security.AutoLockTick
	}
	if src.Security.BackgroundGrace != nil {
		dst.Security.BackgroundGrace = *src.Security.BackgroundGrace
	}
	if v := strings.TrimSpace(src.Registry.URL); v != "" {
		dst.Registry.URL = v
	}
	if src.Registry.Timeout != 0 {
		dst.Registry.Timeout = src.Registry.Timeout
	}
	if src.Registry.RecheckPerSecond != nil {
		dst.Registry.RecheckPerSecond = *src.Registry.RecheckPerSecond
	}
	if src.Registry.RecheckBurst != nil {
		dst.Registry.RecheckBurst = *src.Registry.RecheckBurst
	}
	if v := strings.TrimSpace(src.Log.Level); v != "" {
		dst.Log.Level = strings.ToLower(v)
	}
}

func (c Config) Validate() error {
	var problems []string
	switch c.Storage.Backend {
	case bytestore.BackendMemory, bytestore.BackendFile, bytestore.BackendBolt:
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not one of memory, file, bolt", c.Storage.Backend))
	}
	if c.Storage.Backend != bytestore.BackendMemory && strings.TrimSpace(c.DataDir) == "" {
		problems = append(problems, "dataDir is required for persistent storage")
	}
	if c.Storage.Timeout <= 0 {
		problems = append(problems, "storage.timeout must be positive")
	}
	if c.Storage.MaxBlobBytes < 0 {
		problems = append(problems, "storage.maxBlobBytes must not be negative")
	}
	if c.Security.PBKDF2Iterations < minIterations || c.Security.PBKDF2Iterations > maxIterations {
		problems = append(problems, fmt.Sprintf("security.pbkdf2Iterations must be within [%d, %d]", minIterations, maxIterations))
	}
	if c.Security.AutoLockTimeout <= 0 {
		problems = append(problems, "security.autoLockTimeout must be positive")
	}
	if c.Security.AutoLockTick <= 0 || c.Security.AutoLockTick > c.Security.AutoLockTimeout {
		problems = append(problems, "security.autoLockTick must be positive and not exceed autoLockTimeout")
	}
	if c.Security.BackgroundGrace < 0 {
		problems = append(problems, "security.backgroundGrace must not be negative")
	}
	if c.Registry.Timeout <= 0 {
		problems = append(problems, "registry.timeout must be positive")
	}
	if c.Registry.RecheckPerSecond < 0 || c.Registry.RecheckBurst < 0 {
		problems = append(problems, "registry recheck limits must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if len(problems) == 0 {
		return nil
	}
	return contracts.WrapCategorizedError(contracts.ErrorCategoryValidation,
		fmt.Errorf("invalid config: %s", strings.Join(problems, "; ")))
}
