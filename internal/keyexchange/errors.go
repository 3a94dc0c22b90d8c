package keyexchange

import "wallet-chat/go-core/internal/contracts"

var (
	ErrWalletLocked      = contracts.New(contracts.ErrorCategoryAuthentication, "wallet key is not available")
	ErrPeerNotEnrolled   = contracts.New(contracts.ErrorCategoryNotFound, "peer has not published a messaging key")
	ErrInvalidPeer       = contracts.New(contracts.ErrorCategoryValidation, "peer address is required")
	ErrInvalidPublicKey  = contracts.New(contracts.ErrorCategoryValidation, "public key must be 32 bytes")
	ErrKeyPairUnreadable = contracts.New(contracts.ErrorCategoryCrypto, "stored key pair does not decrypt with the wallet key")
	ErrCorruptKeyPair    = contracts.New(contracts.ErrorCategoryStorage, "stored key pair is corrupt")
)
