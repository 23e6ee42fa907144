package buffer

import (
	"os"
	"sync"
)

const (
	segmentBits = 30
	segmentSize = int64(1) << segmentBits // 2^30 bytes per segment

	// maxSegmentedCapacity is 2^30 * (2^31 - 2), the largest capacity a
	// segmented mapping can address.
	maxSegmentedCapacity = segmentSize * ((int64(1) << 31) - 2)
)

// SegmentedMappingBuffer splits the address space into independently
// mapped 2^30-byte segments, lifting SingleMappingBuffer's 2^31-1 ceiling.
// Multi-byte reads or writes that straddle a segment boundary are
// reconstructed byte-wise across the adjoining mappings.
type SegmentedMappingBuffer struct {
	mu       sync.Mutex
	file     *os.File
	segments []*mmapRegion
	capacity int64
	level    ProtectionLevel
	closed   bool
}

// OpenSegmentedMappingBuffer opens or creates path, mapping it as a
// sequence of 2^30-byte segments.
func OpenSegmentedMappingBuffer(path string, level ProtectionLevel) (*SegmentedMappingBuffer, error) {
	flag := os.O_RDWR | os.O_CREATE
	if level == ProtectionReadOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}

	if level == ProtectionReadOnly {
		err = flockShared(f)
	} else {
		err = flockExclusive(f)
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		funlock(f)
		f.Close()
		return nil, err
	}
	size := info.Size()
	if size > maxSegmentedCapacity {
		funlock(f)
		f.Close()
		return nil, ErrCapacityTooLarge
	}

	b := &SegmentedMappingBuffer{file: f, level: level}
	if err := b.mapTo(size); err != nil {
		funlock(f)
		f.Close()
		return nil, err
	}
	b.capacity = size
	return b, nil
}

func segmentLen(capacity int64, index int) int64 {
	start := int64(index) * segmentSize
	if start >= capacity {
		return 0
	}
	if capacity-start >= segmentSize {
		return segmentSize
	}
	return capacity - start
}

func numSegments(capacity int64) int {
	if capacity == 0 {
		return 0
	}
	return int((capacity + segmentSize - 1) / segmentSize)
}

// mapTo resizes b.segments to match a new capacity, unmapping segments
// that are no longer needed, remapping a shrunk/grown tail segment, and
// creating new ones.
func (b *SegmentedMappingBuffer) mapTo(newCapacity int64) error {
	newCount := numSegments(newCapacity)

	for len(b.segments) > newCount {
		last := b.segments[len(b.segments)-1]
		if err := last.unmap(); err != nil {
			return err
		}
		b.segments = b.segments[:len(b.segments)-1]
	}

	for i := 0; i < len(b.segments) && i < newCount; i++ {
		want := segmentLen(newCapacity, i)
		have := int64(len(b.segments[i].data))
		if want != have {
			if err := b.segments[i].remap(b.file, int64(i)*segmentSize, want); err != nil {
				return err
			}
		}
	}

	for i := len(b.segments); i < newCount; i++ {
		length := segmentLen(newCapacity, i)
		region, err := mmapCreate2(b.file, int64(i)*segmentSize, length)
		if err != nil {
			return err
		}
		b.segments = append(b.segments, region)
	}

	return nil
}

// mmapCreate2 maps length bytes at offset; on the unix/windows builds
// this is equivalent to creating an empty region and remapping it.
func mmapCreate2(f *os.File, offset, length int64) (*mmapRegion, error) {
	r := &mmapRegion{}
	if length == 0 {
		return r, nil
	}
	if err := r.remap(f, offset, length); err != nil {
		return nil, err
	}
	return r, nil
}

func (b *SegmentedMappingBuffer) Capacity() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

func (b *SegmentedMappingBuffer) ProtectionLevel() ProtectionLevel { return b.level }

func (b *SegmentedMappingBuffer) SetCapacity(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.level == ProtectionReadOnly {
		return ErrReadOnly
	}
	if n > maxSegmentedCapacity {
		return ErrCapacityTooLarge
	}
	if n == b.capacity {
		return nil
	}
	if err := b.file.Truncate(n); err != nil {
		return err
	}
	if err := b.mapTo(n); err != nil {
		return err
	}
	b.capacity = n
	return nil
}

func (b *SegmentedMappingBuffer) checkRange(pos, length int64) error {
	if pos < 0 || length < 0 || pos+length > b.capacity {
		return ErrUnderflow
	}
	return nil
}

// forEachChunk invokes fn once per segment the [pos, pos+length) range
// touches, passing the segment slice covering that sub-range.
func (b *SegmentedMappingBuffer) forEachChunk(pos, length int64, fn func(seg []byte)) {
	for length > 0 {
		idx := int(pos / segmentSize)
		offset := pos % segmentSize
		avail := segmentSize - offset
		n := length
		if n > avail {
			n = avail
		}
		fn(b.segments[idx].data[offset : offset+n])
		pos += n
		length -= n
	}
}

func (b *SegmentedMappingBuffer) Get(pos int64, out []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.checkRange(pos, int64(len(out))); err != nil {
		return err
	}
	cursor := 0
	b.forEachChunk(pos, int64(len(out)), func(seg []byte) {
		copy(out[cursor:], seg)
		cursor += len(seg)
	})
	return nil
}

func (b *SegmentedMappingBuffer) GetSome(pos int64, out []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	if pos < 0 || pos > b.capacity {
		return 0, ErrUnderflow
	}
	n := int64(len(out))
	if pos+n > b.capacity {
		n = b.capacity - pos
	}
	cursor := 0
	b.forEachChunk(pos, n, func(seg []byte) {
		copy(out[cursor:], seg)
		cursor += len(seg)
	})
	return int(n), nil
}

func (b *SegmentedMappingBuffer) GetBool(pos int64) (bool, error) {
	v, err := b.GetByte(pos)
	return v != 0, err
}

func (b *SegmentedMappingBuffer) GetByte(pos int64) (byte, error) {
	var tmp [1]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return tmp[0], nil
}

func (b *SegmentedMappingBuffer) GetI32(pos int64) (int32, error) {
	var tmp [4]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI32(tmp[:]), nil
}

func (b *SegmentedMappingBuffer) GetI64(pos int64) (int64, error) {
	var tmp [8]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI64(tmp[:]), nil
}

func (b *SegmentedMappingBuffer) EnsureZeros(pos, length int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.level == ProtectionReadOnly {
		return ErrReadOnly
	}
	if err := b.checkRange(pos, length); err != nil {
		return err
	}
	allZero := true
	b.forEachChunk(pos, length, func(seg []byte) {
		if allZero && !zeroed(seg) {
			allZero = false
		}
	})
	if allZero {
		return nil
	}
	b.forEachChunk(pos, length, func(seg []byte) {
		for i := range seg {
			seg[i] = 0
		}
	})
	return nil
}

func (b *SegmentedMappingBuffer) PutByte(pos int64, v byte) error {
	return b.Put(pos, []byte{v})
}

func (b *SegmentedMappingBuffer) Put(pos int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.level == ProtectionReadOnly {
		return ErrReadOnly
	}
	if err := b.checkRange(pos, int64(len(data))); err != nil {
		return err
	}
	cursor := 0
	b.forEachChunk(pos, int64(len(data)), func(seg []byte) {
		copy(seg, data[cursor:])
		cursor += len(seg)
	})
	return nil
}

func (b *SegmentedMappingBuffer) PutI32(pos int64, v int32) error {
	var tmp [4]byte
	encodeI32(tmp[:], v)
	return b.Put(pos, tmp[:])
}

func (b *SegmentedMappingBuffer) PutI64(pos int64, v int64) error {
	var tmp [8]byte
	encodeI64(tmp[:], v)
	return b.Put(pos, tmp[:])
}

func (b *SegmentedMappingBuffer) Barrier(force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.level != ProtectionForce || !force {
		return nil
	}
	for _, seg := range b.segments {
		if err := seg.sync(); err != nil {
			return err
		}
	}
	return nil
}

func (b *SegmentedMappingBuffer) InputStream(pos, length int64) (*InputStream, error) {
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newInputStream(b, pos, length), nil
}

func (b *SegmentedMappingBuffer) OutputStream(pos, length int64) (*OutputStream, error) {
	if b.level == ProtectionReadOnly {
		return nil, ErrReadOnly
	}
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newOutputStream(b, pos, length), nil
}

func (b *SegmentedMappingBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for _, seg := range b.segments {
		if b.level != ProtectionReadOnly {
			if err := seg.sync(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := seg.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := funlock(b.file); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ Buffer = (*SegmentedMappingBuffer)(nil)
