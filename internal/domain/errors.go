package domain

import "errors"

// Sentinel errors for every failure kind the ledger can surface. Validation
// failures are detected before any state mutation; callers match with
// errors.Is and wrapping preserves the specific violated condition.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrConflict               = errors.New("already exists")
	ErrNothingToSettle        = errors.New("no balance to settle")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrCannotPaySelf          = errors.New("cannot pay yourself")
	ErrConversionRateMismatch = errors.New("conversion rate mismatch")
	ErrTransferFailed         = errors.New("transfer failed")
)

// ErrLockHeld reports that the writer lock is held by another instance.
var ErrLockHeld = errors.New("lock held")
