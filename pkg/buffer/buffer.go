// Package buffer implements the persistent byte-buffer layer: a
// resizable, position-addressed byte array backed by a file, with a
// configurable durability policy and the barrier write-ordering
// primitive every higher layer in this module is built on.
package buffer

import "encoding/binary"

// Buffer is a resizable byte array of length Capacity(), addressed by a
// 64-bit position. Every multi-byte integer accessor uses big-endian
// encoding — this is a hard
// invariant of the on-disk format and must not be changed to host byte
// order by any implementation.
type Buffer interface {
	// Capacity returns the current logical length in bytes.
	Capacity() int64

	// SetCapacity resizes the buffer. Growing zero-fills the newly
	// exposed range; shrinking discards bytes beyond the new capacity.
	// Fails with ErrReadOnly at ProtectionReadOnly.
	SetCapacity(n int64) error

	// ProtectionLevel reports the durability policy this buffer honors.
	ProtectionLevel() ProtectionLevel

	// Get reads exactly len(out) bytes starting at pos. Returns
	// ErrUnderflow if pos+len(out) exceeds Capacity().
	Get(pos int64, out []byte) error

	// GetSome reads up to len(out) bytes starting at pos, stopping at
	// Capacity() without error, and returns the number of bytes read.
	GetSome(pos int64, out []byte) (int, error)

	GetBool(pos int64) (bool, error)
	GetByte(pos int64) (byte, error)
	GetI32(pos int64) (int32, error)
	GetI64(pos int64) (int64, error)

	// EnsureZeros guarantees bytes in [pos, pos+length) are zero upon
	// return. Implementations must skip the write when the range is
	// already zero.
	EnsureZeros(pos, length int64) error

	PutByte(pos int64, b byte) error
	Put(pos int64, data []byte) error
	PutI32(pos int64, v int32) error
	PutI64(pos int64, v int64) error

	// Barrier establishes a happens-before boundary: every write issued
	// before Barrier is durably ordered before every write issued after
	// it. force additionally requests synchronous flush to physical
	// media, honored only at ProtectionForce.
	Barrier(force bool) error

	// InputStream returns a read cursor bounded to [pos, pos+length).
	InputStream(pos, length int64) (*InputStream, error)

	// OutputStream returns a write cursor bounded to [pos, pos+length).
	OutputStream(pos, length int64) (*OutputStream, error)

	// Close releases the buffer's resources, committing any cached
	// writes first.
	Close() error
}

func decodeI32(b []byte) int32 { return int32(binary.BigEndian.Uint32(b)) }
func encodeI32(b []byte, v int32) { binary.BigEndian.PutUint32(b, uint32(v)) }
func decodeI64(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }
func encodeI64(b []byte, v int64) { binary.BigEndian.PutUint64(b, uint64(v)) }

// zeroed reports whether every byte in b is zero.
func zeroed(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
