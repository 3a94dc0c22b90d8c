package bytestore

import (
	"wallet-chat/go-core/internal/contracts"
)

var ErrInvalidKey = contracts.New(contracts.ErrorCategoryValidation, "store key must be 1-64 chars of [a-z0-9._-]")

func validateKey(key string) error {
	if len(key) == 0 || len(key) > 64 || key[0] == '.' {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return ErrInvalidKey
		}
	}
	return nil
}
