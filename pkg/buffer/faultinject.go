package buffer

import (
	"math/rand"
	"sync"
)

// FaultInjectingBuffer wraps an arbitrary Buffer and simulates torn
// writes at sector granularity: writes are cached in memory until
// Barrier, at which point each dirty sector is flushed to the wrapped
// buffer independently, and, at the configured probability, the flush
// stops partway through the sector set and the buffer reports itself
// closed, simulating a crash mid-commit. This is the fault model every
// crash-recovery path in pkg/block and pkg/list is tested against; it
// is a required component, not a test-only convenience.
//
// The simulated crash only ever reorders or truncates the set of
// sectors flushed within a single Barrier call; it never tears a single
// sector in half, matching the assumption that physical sector writes
// are themselves atomic even when a multi-sector commit is not.
type FaultInjectingBuffer struct {
	mu sync.Mutex

	inner      Buffer
	sectorSize int64
	rng        *rand.Rand

	crashProbability float64
	crashed          bool

	dirty map[int64][]byte
}

// NewFaultInjectingBuffer wraps inner. crashProbability is evaluated
// once per Barrier(true) call (the boundary a caller relies on for
// durability) and must be in [0, 1]. seed makes the injected crash
// pattern reproducible across runs of the same test.
func NewFaultInjectingBuffer(inner Buffer, sectorSize int64, crashProbability float64, seed int64) *FaultInjectingBuffer {
	if sectorSize <= 0 {
		sectorSize = defaultSectorSize
	}
	return &FaultInjectingBuffer{
		inner:            inner,
		sectorSize:       sectorSize,
		rng:              rand.New(rand.NewSource(seed)),
		crashProbability: crashProbability,
		dirty:            make(map[int64][]byte),
	}
}

// ErrSimulatedCrash is returned by every operation performed after a
// simulated crash, the same way a real process death would make the
// buffer unreachable until the next open.
var ErrSimulatedCrash = newError("buffer: simulated crash, buffer is unusable until reopened")

func (b *FaultInjectingBuffer) sectorOf(pos int64) int64 { return (pos / b.sectorSize) * b.sectorSize }

func (b *FaultInjectingBuffer) Capacity() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.Capacity()
}

func (b *FaultInjectingBuffer) ProtectionLevel() ProtectionLevel { return b.inner.ProtectionLevel() }

func (b *FaultInjectingBuffer) SetCapacity(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.crashed {
		return ErrSimulatedCrash
	}
	return b.inner.SetCapacity(n)
}

func (b *FaultInjectingBuffer) checkRange(pos, length int64) error {
	if pos < 0 || length < 0 || pos+length > b.inner.Capacity() {
		return ErrUnderflow
	}
	return nil
}

func (b *FaultInjectingBuffer) Get(pos int64, out []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.crashed {
		return ErrSimulatedCrash
	}
	if err := b.checkRange(pos, int64(len(out))); err != nil {
		return err
	}
	return b.readLocked(pos, out)
}

func (b *FaultInjectingBuffer) readLocked(pos int64, out []byte) error {
	remaining := out
	cur := pos
	for len(remaining) > 0 {
		sectorOff := b.sectorOf(cur)
		within := cur - sectorOff
		n := b.sectorSize - within
		if n > int64(len(remaining)) {
			n = int64(len(remaining))
		}
		if cached, ok := b.dirty[sectorOff]; ok {
			end := within + n
			if end > int64(len(cached)) {
				end = int64(len(cached))
			}
			have := end - within
			if have > 0 {
				copy(remaining[:have], cached[within:end])
			}
			for i := have; i < n; i++ {
				remaining[i] = 0
			}
		} else {
			if err := b.inner.Get(sectorOff+within, remaining[:n]); err != nil {
				return err
			}
		}
		remaining = remaining[n:]
		cur += n
	}
	return nil
}

func (b *FaultInjectingBuffer) GetSome(pos int64, out []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.crashed {
		return 0, ErrSimulatedCrash
	}
	cap := b.inner.Capacity()
	if pos < 0 || pos > cap {
		return 0, ErrUnderflow
	}
	n := int64(len(out))
	if pos+n > cap {
		n = cap - pos
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.readLocked(pos, out[:n]); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (b *FaultInjectingBuffer) GetBool(pos int64) (bool, error) {
	v, err := b.GetByte(pos)
	return v != 0, err
}

func (b *FaultInjectingBuffer) GetByte(pos int64) (byte, error) {
	var tmp [1]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return tmp[0], nil
}

func (b *FaultInjectingBuffer) GetI32(pos int64) (int32, error) {
	var tmp [4]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI32(tmp[:]), nil
}

func (b *FaultInjectingBuffer) GetI64(pos int64) (int64, error) {
	var tmp [8]byte
	if err := b.Get(pos, tmp[:]); err != nil {
		return 0, err
	}
	return decodeI64(tmp[:]), nil
}

func (b *FaultInjectingBuffer) EnsureZeros(pos, length int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.crashed {
		return ErrSimulatedCrash
	}
	if err := b.checkRange(pos, length); err != nil {
		return err
	}
	current := make([]byte, length)
	if err := b.readLocked(pos, current); err != nil {
		return err
	}
	if zeroed(current) {
		return nil
	}
	return b.writeLocked(pos, make([]byte, length))
}

func (b *FaultInjectingBuffer) PutByte(pos int64, v byte) error { return b.Put(pos, []byte{v}) }

func (b *FaultInjectingBuffer) Put(pos int64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.crashed {
		return ErrSimulatedCrash
	}
	if err := b.checkRange(pos, int64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return b.writeLocked(pos, data)
}

func (b *FaultInjectingBuffer) writeLocked(pos int64, data []byte) error {
	remaining := data
	cur := pos
	for len(remaining) > 0 {
		sectorOff := b.sectorOf(cur)
		within := cur - sectorOff
		n := b.sectorSize - within
		if n > int64(len(remaining)) {
			n = int64(len(remaining))
		}

		sectorLen := b.sectorSize
		if sectorOff+sectorLen > b.inner.Capacity() {
			sectorLen = b.inner.Capacity() - sectorOff
		}
		content, ok := b.dirty[sectorOff]
		if !ok {
			content = make([]byte, sectorLen)
			if err := b.inner.Get(sectorOff, content); err != nil {
				return err
			}
		}
		copy(content[within:within+n], remaining[:n])
		b.dirty[sectorOff] = content

		remaining = remaining[n:]
		cur += n
	}
	return nil
}

func (b *FaultInjectingBuffer) PutI32(pos int64, v int32) error {
	var tmp [4]byte
	encodeI32(tmp[:], v)
	return b.Put(pos, tmp[:])
}

func (b *FaultInjectingBuffer) PutI64(pos int64, v int64) error {
	var tmp [8]byte
	encodeI64(tmp[:], v)
	return b.Put(pos, tmp[:])
}

// Barrier flushes every dirty sector to the wrapped buffer in
// randomized order. At crashProbability it stops after a random prefix
// of that order (at least zero sectors, at most all but one), forwards
// Barrier(force) to the inner buffer only for the sectors actually
// written, and marks itself crashed so every subsequent call fails with
// ErrSimulatedCrash — standing in for the process dying mid-commit.
func (b *FaultInjectingBuffer) Barrier(force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.crashed {
		return ErrSimulatedCrash
	}
	if len(b.dirty) == 0 {
		return nil
	}

	offsets := make([]int64, 0, len(b.dirty))
	for off := range b.dirty {
		offsets = append(offsets, off)
	}
	b.rng.Shuffle(len(offsets), func(i, j int) { offsets[i], offsets[j] = offsets[j], offsets[i] })

	crashing := force && b.crashProbability > 0 && b.rng.Float64() < b.crashProbability
	writeCount := len(offsets)
	if crashing && writeCount > 0 {
		writeCount = b.rng.Intn(writeCount)
	}

	for i := 0; i < writeCount; i++ {
		off := offsets[i]
		if err := b.inner.Put(off, b.dirty[off]); err != nil {
			return err
		}
		delete(b.dirty, off)
	}

	if crashing {
		b.crashed = true
		if err := b.inner.Barrier(force); err != nil {
			return err
		}
		return ErrSimulatedCrash
	}

	for _, off := range offsets[writeCount:] {
		if err := b.inner.Put(off, b.dirty[off]); err != nil {
			return err
		}
		delete(b.dirty, off)
	}

	return b.inner.Barrier(force)
}

func (b *FaultInjectingBuffer) InputStream(pos, length int64) (*InputStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newInputStream(b, pos, length), nil
}

func (b *FaultInjectingBuffer) OutputStream(pos, length int64) (*OutputStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkRange(pos, length); err != nil {
		return nil, err
	}
	return newOutputStream(b, pos, length), nil
}

// Crashed reports whether a simulated crash has already occurred.
func (b *FaultInjectingBuffer) Crashed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.crashed
}

func (b *FaultInjectingBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.crashed {
		return ErrSimulatedCrash
	}
	return b.inner.Close()
}

var _ Buffer = (*FaultInjectingBuffer)(nil)
