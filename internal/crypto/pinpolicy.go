package crypto

import (
	"wallet-chat/go-core/internal/contracts"
)

const (
	MinPINLength = 6

	maxMonotonicRun = 4
)

var (
	ErrPINTooShort   = contracts.New(contracts.ErrorCategoryValidation, "pin must be at least 6 digits")
	ErrPINNotNumeric = contracts.New(contracts.ErrorCategoryValidation, "pin must contain digits only")
	ErrPINTrivial    = contracts.New(contracts.ErrorCategoryValidation, "pin is too easy to guess")
	ErrPINSequential = contracts.New(contracts.ErrorCategoryValidation, "pin must not contain a run of 4 ascending or descending digits")
)

var trivialPINs = map[string]struct{}{
	"123456":   {},
	"654321":   {},
	"012345":   {},
	"543210":   {},
	"123123":   {},
	"321321":   {},
	"112233":   {},
	"121212":   {},
	"696969":   {},
	"123321":   {},
	"1234567":  {},
	"12345678": {},
	"87654321": {},
}

// ValidatePIN enforces the PIN policy. It runs before any derivation.
func ValidatePIN(pin string) error {
	if len(pin) < MinPINLength {
		return ErrPINTooShort
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrPINNotNumeric
		}
	}
	if _, ok := trivialPINs[pin]; ok {
		return ErrPINTrivial
	}
	if allSameDigit(pin) {
		return ErrPINTrivial
	}
	if hasMonotonicRun(pin, maxMonotonicRun) {
		return ErrPINSequential
	}
	return nil
}

func allSameDigit(pin string) bool {
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			return false
		}
	}
	return true
}

// hasMonotonicRun reports whether pin has n consecutive digits that strictly
// increase or strictly decrease.
func hasMonotonicRun(pin string, n int) bool {
	up, down := 1, 1
	for i := 1; i < len(pin); i++ {
		switch {
		case pin[i] > pin[i-1]:
			up++
			down = 1
		case pin[i] < pin[i-1]:
			down++
			up = 1
		default:
			up, down = 1, 1
		}
		if up >= n || down >= n {
			return true
		}
	}
	return false
}
