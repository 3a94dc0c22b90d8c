package contracts

import (
	"context"
	"errors"
	"strings"
)

const (
	ErrorCategoryValidation     = "validation"
	ErrorCategoryAuthentication = "authentication"
	ErrorCategoryCrypto         = "crypto"
	ErrorCategoryNotFound       = "not_found"
	ErrorCategoryNetwork        = "network"
	ErrorCategoryTimeout        = "timeout"
	ErrorCategoryStorage        = "storage"
)

// Category sentinels. A CategorizedError matches the sentinel of its category
// under errors.Is, so callers can branch on the kind without knowing the
// concrete error.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrCrypto         = errors.New("cannot decrypt")
	ErrNotFound       = errors.New("not found")
	ErrNetwork        = errors.New("network unavailable")
	ErrTimeout        = errors.New("operation timed out")
	ErrStorage        = errors.New("storage error")
)

var categorySentinels = map[string]error{
	ErrorCategoryValidation:     ErrValidation,
	ErrorCategoryAuthentication: ErrAuthentication,
	ErrorCategoryCrypto:         ErrCrypto,
	ErrorCategoryNotFound:       ErrNotFound,
	ErrorCategoryNetwork:        ErrNetwork,
	ErrorCategoryTimeout:        ErrTimeout,
	ErrorCategoryStorage:        ErrStorage,
}

type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	if e == nil || e.Err == nil {
		return "uncategorized error"
	}
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *CategorizedError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := categorySentinels[normalizeErrorCategory(e.Category)]
	return ok && target == sentinel
}

// New returns a categorized sentinel suitable for package-level error vars.
func New(category, message string) error {
	return &CategorizedError{
		Category: normalizeErrorCategory(category),
		Err:      errors.New(message),
	}
}

func normalizeErrorCategory(category string) string {
	normalized := strings.ToLower(strings.TrimSpace(category))
	if _, ok := categorySentinels[normalized]; ok {
		return normalized
	}
	return ErrorCategoryStorage
}

func WrapCategorizedError(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{
		Category: normalizeErrorCategory(category),
		Err:      err,
	}
}

// ErrorCategory reports the category of err. Uncategorized errors count as storage
// failures since every untyped error in this module comes from a backend.
func ErrorCategory(err error) string {
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeErrorCategory(classified.Category)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryTimeout
	default:
		return ErrorCategoryStorage
	}
}

// Retryable reports whether retrying the same call later can succeed.
func Retryable(err error) bool {
	switch ErrorCategory(err) {
	case ErrorCategoryNetwork, ErrorCategoryTimeout:
		return err != nil
	default:
		return false
	}
}

// FromContext classifies an error returned by a blocking backend call. Deadline
// expiry becomes a timeout; cancellation is passed through untouched.
func FromContext(category string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapCategorizedError(ErrorCategoryTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return WrapCategorizedError(category, err)
}
