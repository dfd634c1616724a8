package service

import "errors"

// Failure classes the engines distinguish. Anything else wrapped and
// returned is treated as transient: the caller may retry the whole
// operation safely.
var (
	// ErrNotFound: a referenced user, product, purchase or rank is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig: a rebate config row is malformed. Rejected when the
	// config is written, never at payout time.
	ErrInvalidConfig = errors.New("invalid rebate config")

	// ErrAlreadyClaimed: another run took this unit of work first. Benign,
	// counted as a no-op by batch passes.
	ErrAlreadyClaimed = errors.New("already claimed")
)
