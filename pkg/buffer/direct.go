package buffer

import (
	"os"
	"sync"
)

// DirectBuffer performs no memory mapping; every Get/Put seeks and
// reads/writes directly against the file. At ProtectionForce,
// Barrier(true) calls the OS sync-file primitive; Barrier(false) is a
// no-op because the OS already orders seeks with respect to each other,
// and Barrier at any lower protection level is a no-op as well.
type DirectBuffer struct {
	mu       sync.Mutex
	file     *os.File
	capacity int64
	level    ProtectionLevel
	closed   bool
}

// OpenDirectBuffer opens or creates path for unmapped, seek-based access.
func OpenDirectBuffer(path string, level ProtectionLevel) (*DirectBuffer, error) {
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

	return &DirectBuffer{file: f, capacity: info.Size(), level: level}, nil
}

func (b *DirectBuffer) Capacity() int64 { b.mu.Lock(); defer b.mu.Unlock(); return b.capacity }

func (b *DirectBuffer) ProtectionLevel() ProtectionLevel { return b.level }

func (b *DirectBuffer) SetCapacity(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.level == ProtectionReadOnly {
		return ErrReadOnly
	}
	if n == b.capacity {
		return nil
	}
	if err := b.file.Truncate(n); err != nil {
		return err
	}
	b.capacity = n
	return nil
}

func (b *DirectBuffer) checkRange(pos, length int64) error {
	if pos < 0 || length < 0 || pos+length > b.capacity {
		return ErrUnderflow
	}
	return nil
}

func (b *DirectBuffer) Get(pos int64, out []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.checkRange(pos, int64(len(out))); err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	_, err := b.file.ReadAt(out, pos)
	return err
}

func (b *DirectBuffer) GetSome(pos int64, out []byte) (int, error) {
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
	if n == 0 {
		return 0, nil
	}
	read, err := b.file.ReadAt(out[:n], pos)
	return read, err
}

func (b *DirectBuffer) GetBool(pos int64) (bool, error) {
	v, err := b.GetByte(pos)
	return v != 0, err
}

func (b *DirectBuffer) GetByte(pos int64) (byte, error) {
	var tmp [1]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return tmp[0], nil
}

func (b *DirectBuffer) GetI32(pos int64) (int32, error) {
	var tmp [4]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI32(tmp[:]), nil
}

func (b *DirectBuffer) GetI64(pos int64) (int64, error) {
	var tmp [8]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI64(tmp[:]), nil
}

func (b *DirectBuffer) EnsureZeros(pos, length int64) error {
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
	if length == 0 {
		return nil
	}
	current := make([]byte, length)
	if _, err := b.file.ReadAt(current, pos); err != nil {
		return err
	}
	if zeroed(current) {
		return nil
	}
	zeros := make([]byte, length)
	_, err := b.file.WriteAt(zeros, pos)
	return err
}

func (b *DirectBuffer) PutByte(pos int64, v byte) error {
	return b.Put(pos, []byte{v})
}

func (b *DirectBuffer) Put(pos int64, data []byte) error {
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
	if len(data) == 0 {
		return nil
	}
	_, err := b.file.WriteAt(data, pos)
	return err
}

func (b *DirectBuffer) PutI32(pos int64, v int32) error {
	var tmp [4]byte
	encodeI32(tmp[:], v)
	return b.Put(pos, tmp[:])
}

func (b *DirectBuffer) PutI64(pos int64, v int64) error {
	var tmp [8]byte
	encodeI64(tmp[:], v)
	return b.Put(pos, tmp[:])
}

func (b *DirectBuffer) Barrier(force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	switch b.level {
	case ProtectionReadOnly, ProtectionNone, ProtectionBarrier:
		return nil
	case ProtectionForce:
		if !force {
			return nil
		}
		return fdatasync(b.file)
	}
	return nil
}

func (b *DirectBuffer) InputStream(pos, length int64) (*InputStream, error) {
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newInputStream(b, pos, length), nil
}

func (b *DirectBuffer) OutputStream(pos, length int64) (*OutputStream, error) {
	if b.level == ProtectionReadOnly {
		return nil, ErrReadOnly
	}
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newOutputStream(b, pos, length), nil
}

func (b *DirectBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	if err := funlock(b.file); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ Buffer = (*DirectBuffer)(nil)
