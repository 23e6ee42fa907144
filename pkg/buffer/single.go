package buffer

import (
	"os"
	"sync"
)

// maxSingleMappingCapacity is the largest capacity a single contiguous
// mmap can address: 2^31 - 1 bytes.
const maxSingleMappingCapacity = (1 << 31) - 1

// SingleMappingBuffer maps the whole file into one contiguous region.
// Limited to capacities of at most 2^31 - 1 bytes; SegmentedMappingBuffer
// lifts that ceiling by mapping in independent 2^30-byte segments.
type SingleMappingBuffer struct {
	mu       sync.Mutex
	file     *os.File
	region   *mmapRegion
	capacity int64
	level    ProtectionLevel
	closed   bool
}

// OpenSingleMappingBuffer opens or creates path and maps it entirely
// into memory. level controls Barrier behavior; ProtectionReadOnly
// takes a shared lock instead of exclusive.
func OpenSingleMappingBuffer(path string, level ProtectionLevel) (*SingleMappingBuffer, error) {
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
	if size > maxSingleMappingCapacity {
		funlock(f)
		f.Close()
		return nil, ErrCapacityTooLarge
	}

	var region *mmapRegion
	if size > 0 {
		region, err = mmapCreate(f, size)
		if err != nil {
			funlock(f)
			f.Close()
			return nil, err
		}
	} else {
		region = &mmapRegion{}
	}

	return &SingleMappingBuffer{file: f, region: region, capacity: size, level: level}, nil
}

func (b *SingleMappingBuffer) Capacity() int64 { b.mu.Lock(); defer b.mu.Unlock(); return b.capacity }

func (b *SingleMappingBuffer) ProtectionLevel() ProtectionLevel { return b.level }

func (b *SingleMappingBuffer) SetCapacity(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.level == ProtectionReadOnly {
		return ErrReadOnly
	}
	if n > maxSingleMappingCapacity {
		return ErrCapacityTooLarge
	}
	if n == b.capacity {
		return nil
	}
	if err := b.file.Truncate(n); err != nil {
		return err
	}
	if err := b.region.remap(b.file, 0, n); err != nil {
		return err
	}
	b.capacity = n
	return nil
}

func (b *SingleMappingBuffer) checkRange(pos, length int64) error {
	if pos < 0 || length < 0 || pos+length > b.capacity {
		return ErrUnderflow
	}
	return nil
}

func (b *SingleMappingBuffer) Get(pos int64, out []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.checkRange(pos, int64(len(out))); err != nil {
		return err
	}
	copy(out, b.region.data[pos:pos+int64(len(out))])
	return nil
}

func (b *SingleMappingBuffer) GetSome(pos int64, out []byte) (int, error) {
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
	copy(out[:n], b.region.data[pos:pos+n])
	return int(n), nil
}

func (b *SingleMappingBuffer) GetBool(pos int64) (bool, error) {
	v, err := b.GetByte(pos)
	return v != 0, err
}

func (b *SingleMappingBuffer) GetByte(pos int64) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	if err := b.checkRange(pos, 1); err != nil {
		return 0, err
	}
	return b.region.data[pos], nil
}

func (b *SingleMappingBuffer) GetI32(pos int64) (int32, error) {
	var tmp [4]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI32(tmp[:]), nil
}

func (b *SingleMappingBuffer) GetI64(pos int64) (int64, error) {
	var tmp [8]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI64(tmp[:]), nil
}

func (b *SingleMappingBuffer) EnsureZeros(pos, length int64) error {
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
	region := b.region.data[pos : pos+length]
	if zeroed(region) {
		return nil
	}
	for i := range region {
		region[i] = 0
	}
	return nil
}

func (b *SingleMappingBuffer) PutByte(pos int64, v byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.level == ProtectionReadOnly {
		return ErrReadOnly
	}
	if err := b.checkRange(pos, 1); err != nil {
		return err
	}
	b.region.data[pos] = v
	return nil
}

func (b *SingleMappingBuffer) Put(pos int64, data []byte) error {
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
	copy(b.region.data[pos:pos+int64(len(data))], data)
	return nil
}

func (b *SingleMappingBuffer) PutI32(pos int64, v int32) error {
	var tmp [4]byte
	encodeI32(tmp[:], v)
	return b.Put(pos, tmp[:])
}

func (b *SingleMappingBuffer) PutI64(pos int64, v int64) error {
	var tmp [8]byte
	encodeI64(tmp[:], v)
	return b.Put(pos, tmp[:])
}

func (b *SingleMappingBuffer) Barrier(force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	switch b.level {
	case ProtectionReadOnly, ProtectionNone:
		return nil
	case ProtectionBarrier:
		return nil
	case ProtectionForce:
		if !force {
			return nil
		}
		return b.region.sync()
	}
	return nil
}

func (b *SingleMappingBuffer) InputStream(pos, length int64) (*InputStream, error) {
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newInputStream(b, pos, length), nil
}

func (b *SingleMappingBuffer) OutputStream(pos, length int64) (*OutputStream, error) {
	if b.level == ProtectionReadOnly {
		return nil, ErrReadOnly
	}
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newOutputStream(b, pos, length), nil
}

func (b *SingleMappingBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	if b.level != ProtectionReadOnly {
		if err := b.region.sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.region.unmap(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := funlock(b.file); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ Buffer = (*SingleMappingBuffer)(nil)
