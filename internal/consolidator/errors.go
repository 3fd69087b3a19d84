package consolidator

import "errors"

var (
	// ErrMissingInput is returned when the used or total sizes are absent.
	ErrMissingInput = errors.New("used and total sizes must both be provided")
	// ErrLengthMismatch is returned when used and total sizes differ in length.
	ErrLengthMismatch = errors.New("used and total sizes must have the same length")
	// ErrCapacityExceeded is returned when a drive uses more space than it holds.
	ErrCapacityExceeded = errors.New("used size exceeds total size")
	// ErrNilMove is returned when an absent entry is appended to a MoveLog.
	ErrNilMove = errors.New("move entry must not be nil")
	// ErrInvalidMove is returned for moves that cannot be applied.
	ErrInvalidMove = errors.New("invalid move")
)
