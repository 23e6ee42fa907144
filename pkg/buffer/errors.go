package buffer

import "errors"

// Sentinel errors surfaced by every Buffer implementation, as
// package-level errors.New values rather than a custom error hierarchy.
var (
	// ErrReadOnly is returned by any write or SetCapacity call against a
	// buffer opened at ProtectionReadOnly.
	ErrReadOnly = errors.New("buffer: write attempted on read-only buffer")

	// ErrClosed is returned by any operation performed after Close.
	ErrClosed = errors.New("buffer: operation on closed buffer")

	// ErrUnderflow is returned by a stream read that would cross the
	// stream's bound, and by any Get or Put whose range exceeds the
	// buffer's capacity (no buffer variant grows on Put).
	ErrUnderflow = errors.New("buffer: read past end")

	// ErrOverflow is returned by a stream write that would cross the
	// stream's bound.
	ErrOverflow = errors.New("buffer: write past end")

	// ErrLocked is returned when another process already holds the
	// whole-file advisory lock this buffer variant requires at open.
	ErrLocked = errors.New("buffer: file is locked by another process")

	// ErrCapacityTooLarge is returned when a requested capacity exceeds
	// what the chosen buffer variant can address.
	ErrCapacityTooLarge = errors.New("buffer: capacity exceeds variant's addressable range")
)
