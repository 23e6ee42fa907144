// Package block implements the allocatable-block layer over pkg/buffer:
// a fixed-size bitmap-backed variant and a power-of-two buddy variant,
// both exposing the same PersistentBlockBuffer interface so pkg/list can
// be written against either.
package block

import (
	"errors"

	"pll/pkg/buffer"
)

// Sentinel errors shared by both allocator variants, following the
// package-level errors.New convention pkg/buffer already established.
var (
	// ErrAlreadyDeallocated is returned by Deallocate when the id's
	// allocation bit is already clear. Deallocating an already-free
	// block is a programmer error, not a recoverable runtime fault
	//, so callers should treat it as fatal rather than retry.
	ErrAlreadyDeallocated = errors.New("block: id already deallocated")

	// ErrNotAllocated is returned by Get/Put-style accesses against an
	// id whose bit is clear, and by any block-relative access whose
	// bounds exceed the block's payload capacity.
	ErrNotAllocated = errors.New("block: id is not allocated")

	// ErrConcurrentModification is returned by an iterator operation
	// performed after the allocator's mutation counter has advanced
	// since the iterator was created.
	ErrConcurrentModification = errors.New("block: concurrent modification detected")

	// ErrCorrupt is returned at open when the allocator's on-disk
	// layout cannot be trusted (truncated header region, size class
	// out of range).
	ErrCorrupt = errors.New("block: corrupt allocator state")
)

// PersistentBlockBuffer is the allocatable-block abstraction both the
// fixed-size and dynamic allocators implement.
// A block id is stable for the block's lifetime. The dynamic allocator's
// ids are block start offsets in the underlying buffer; the fixed
// allocator's ids are slot index times block size, which does not count
// the interleaved bitmaps and so is not the slot's byte offset.
type PersistentBlockBuffer interface {
	// Allocate reserves a block able to hold at least minimumSize bytes
	// of payload and returns its id. The first block ever allocated has
	// id 0.
	Allocate(minimumSize int64) (int64, error)

	// Deallocate releases the block at id. Returns ErrAlreadyDeallocated
	// if id is not currently allocated.
	Deallocate(id int64) error

	// Capacity returns the block's usable payload size in bytes.
	Capacity(id int64) (int64, error)

	// Get reads len(out) bytes from the block's payload starting at the
	// block-relative offset. Returns ErrNotAllocated if id is not
	// allocated or the range exceeds the block's capacity.
	Get(id int64, offset int64, out []byte) error

	// Put writes data into the block's payload starting at the
	// block-relative offset.
	Put(id int64, offset int64, data []byte) error

	// Iterate returns a cursor over every currently allocated block id,
	// in ascending address order, starting with the first block ever
	// allocated.
	Iterate() Iterator

	// Buffer exposes the underlying byte buffer so callers that need
	// buffer-level barrier control (pkg/list) can reach it directly.
	Buffer() buffer.Buffer

	// Close releases the block buffer's resources, closing the
	// underlying buffer.
	Close() error
}

// Iterator walks the allocated blocks of a PersistentBlockBuffer.
type Iterator interface {
	// HasNext reports whether another allocated block remains.
	HasNext() (bool, error)

	// Next returns the next allocated block's id and advances the
	// cursor. Returns ErrConcurrentModification if the allocator has
	// mutated since the iterator was created or since its own last Remove.
	Next() (int64, error)

	// Remove deallocates the block most recently returned by Next.
	Remove() error
}
