package bytestore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"wallet-chat/go-core/internal/contracts"
)

const (
	storagePassphraseEnv = "WALLET_STORAGE_PASSPHRASE"
	storageKeyWrappedEnv = "WALLET_STORAGE_KEY_WRAPPED"
	walletEnv            = "WALLET_ENV"
	storageKeyFile       = "storage.key"
	storageKeyBytes      = 32
)

// ErrInsecureStorageKey is returned in production when the device storage key
// would come from a plain file that no OS keystore protects.
var ErrInsecureStorageKey = contracts.New(contracts.ErrorCategoryStorage, "plain storage.key is not allowed in production")

type keySource int

const (
	keyFromFile keySource = iota
	keyGenerated
)

// StoragePassphrase resolves the device storage passphrase. WALLET_STORAGE_PASSPHRASE
// wins; otherwise dataDir/storage.key is reused or created on first run.
func StoragePassphrase(dataDir string) (string, error) {
	if secret := strings.TrimSpace(os.Getenv(storagePassphraseEnv)); secret != "" {
		return secret, nil
	}
	path := filepath.Join(dataDir, storageKeyFile)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil && strings.TrimSpace(string(raw)) != "":
		if err := checkKeySource(keyFromFile); err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}

	if err := checkKeySource(keyGenerated); err != nil {
		return "", err
	}
	buf := make([]byte, storageKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := base64.RawStdEncoding.EncodeToString(buf)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	return secret, nil
}

// checkKeySource applies the production policy: generation is refused, and an
// existing file is accepted only when the platform reports it as wrapped.
func checkKeySource(src keySource) error {
	if !productionEnv() {
		return nil
	}
	if src == keyFromFile && envFlag(storageKeyWrappedEnv) {
		return nil
	}
	return ErrInsecureStorageKey
}

func productionEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(walletEnv))) {
	case "prod", "production":
		return true
	}
	return false
}

func envFlag(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	switch strings.ToLower(v) {
	case "yes", "on":
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
