package engine

import "errors"

// Errors returned by engine operations. A rejected operation never alters its
// input, so callers may retry with corrected arguments. Details are attached
// with %w wrapping; match with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidBid           = errors.New("invalid bid")
	ErrOutOfTurn            = errors.New("out of turn")
	ErrTrickCountMismatch   = errors.New("trick count mismatch")
	ErrIllegalTransition    = errors.New("illegal transition")
	ErrNotFound             = errors.New("not found")

	// ErrAlreadyCompleted is returned when completing a game twice. It also
	// matches ErrIllegalTransition.
	ErrAlreadyCompleted error = &alreadyCompletedError{}
)

type alreadyCompletedError struct{}

func (*alreadyCompletedError) Error() string { return "game already completed" }

func (*alreadyCompletedError) Is(target error) bool { return target == ErrIllegalTransition }
