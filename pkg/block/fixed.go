package block

import (
	"container/heap"
	"errors"
	"math/bits"

	ibits "pll/internal/bits"
	"pll/pkg/buffer"
)

// singleBitmapThreshold is the block size at or above which the fixed
// allocator switches from interleaved per-group bitmaps to one
// up-front bitmap sized to index the whole addressable range.
const singleBitmapThreshold = int64(1) << 30

const fixedGrowthPageSize = 4096

// FixedPersistentBlockBuffer allocates uniform B-byte blocks, tracked by
// a bitmap (one bit per slot, least-significant bit first within each
// byte). Below 2^30 bytes per block the bitmap is interleaved with its
// data region every 8*B slots; at or above it, one bitmap up front
// indexes the entire addressable range.
type FixedPersistentBlockBuffer struct {
	buf       buffer.Buffer
	blockSize int64

	singleBitmap bool
	bitmapSize   int64 // M, single-bitmap mode only
	groupSlots   int64 // 8*B, interleaved mode only
	groupByte    int64 // B + groupSlots*B, interleaved mode only

	capacitySlots int64 // slots currently backed by real storage
	lowestFreeId  int64 // monotonic scan cursor, in slot-index units
	knownFree     int64Heap

	mutationCounter uint64
}

// OpenFixedPersistentBlockBuffer wraps buf as a fixed-size block
// allocator with the given block size B. If buf is empty, the first
// bitmap region (and, for interleaved layouts, its first group) is
// created.
func OpenFixedPersistentBlockBuffer(buf buffer.Buffer, blockSize int64) (*FixedPersistentBlockBuffer, error) {
	if blockSize <= 0 {
		return nil, errors.New("block: blockSize must be positive")
	}

	f := &FixedPersistentBlockBuffer{buf: buf, blockSize: blockSize}

	if blockSize >= singleBitmapThreshold {
		f.singleBitmap = true
		lz := bits.LeadingZeros64(uint64(blockSize))
		exp := 64 - 1 - lz - 3
		if exp < 0 {
			exp = 0
		}
		m := int64(1) << uint(exp)
		if m < 1 {
			m = 1
		}
		f.bitmapSize = m
	} else {
		f.groupSlots = 8 * blockSize
		f.groupByte = blockSize + f.groupSlots*blockSize
	}

	if buf.Capacity() == 0 {
		if f.singleBitmap {
			if err := buf.SetCapacity(f.bitmapSize); err != nil {
				return nil, err
			}
			f.capacitySlots = 0
		} else {
			if err := buf.SetCapacity(f.groupByte); err != nil {
				return nil, err
			}
			f.capacitySlots = f.groupSlots
		}
	} else {
		if f.singleBitmap {
			f.capacitySlots = (buf.Capacity() - f.bitmapSize) / blockSize
		} else {
			groups := buf.Capacity() / f.groupByte
			f.capacitySlots = groups * f.groupSlots
		}
	}

	return f, nil
}

func (f *FixedPersistentBlockBuffer) payloadCapacity() int64 { return f.blockSize }

// bitLocation returns the file byte offset of the bitmap byte holding
// slotIndex's bit, and the bit's position (0-7) within that byte.
func (f *FixedPersistentBlockBuffer) bitLocation(slotIndex int64) (int64, uint) {
	if f.singleBitmap {
		byteOff := slotIndex / 8
		return byteOff, uint(slotIndex % 8)
	}
	group := slotIndex / f.groupSlots
	within := slotIndex % f.groupSlots
	groupStart := group * f.groupByte
	return groupStart + within/8, uint(within % 8)
}

// slotOffset returns the file byte offset of slotIndex's data region.
func (f *FixedPersistentBlockBuffer) slotOffset(slotIndex int64) int64 {
	if f.singleBitmap {
		return f.bitmapSize + slotIndex*f.blockSize
	}
	group := slotIndex / f.groupSlots
	within := slotIndex % f.groupSlots
	groupStart := group * f.groupByte
	return groupStart + f.blockSize + within*f.blockSize
}

func (f *FixedPersistentBlockBuffer) bitSet(slotIndex int64) (bool, error) {
	off, bit := f.bitLocation(slotIndex)
	b, err := f.buf.GetByte(off)
	if err != nil {
		return false, err
	}
	return b&(1<<bit) != 0, nil
}

func (f *FixedPersistentBlockBuffer) setBit(slotIndex int64, allocated bool) error {
	off, bit := f.bitLocation(slotIndex)
	b, err := f.buf.GetByte(off)
	if err != nil {
		return err
	}
	if allocated {
		b |= 1 << bit
	} else {
		b &^= 1 << bit
	}
	return f.buf.PutByte(off, b)
}

// growOneUnit extends the backing store by one interleaved group, or by
// enough data slots to admit at least one more allocation in
// single-bitmap mode, rounding the new file length up to a 4 KiB
// boundary either way.
func (f *FixedPersistentBlockBuffer) growOneUnit() error {
	if f.singleBitmap {
		newSlots := f.capacitySlots + 1
		newLen := f.bitmapSize + newSlots*f.blockSize
		newLen = ibits.RoundUp(newLen, fixedGrowthPageSize)
		if err := f.buf.SetCapacity(newLen); err != nil {
			return err
		}
		f.capacitySlots = (newLen - f.bitmapSize) / f.blockSize
		return nil
	}

	groups := f.buf.Capacity() / f.groupByte
	newLen := (groups + 1) * f.groupByte
	newLen = ibits.RoundUp(newLen, fixedGrowthPageSize)
	if err := f.buf.SetCapacity(newLen); err != nil {
		return err
	}
	f.capacitySlots = (newLen / f.groupByte) * f.groupSlots
	return nil
}

// scanForFreeBit scans forward from slotIndex (inclusive) for the first
// clear bit within [from, capacitySlots), byte-at-a-time, skipping
// whole 0xFF bytes. Returns -1 if none found in the current capacity.
func (f *FixedPersistentBlockBuffer) scanForFreeBit(from int64) (int64, error) {
	cur := from
	for cur < f.capacitySlots {
		off, startBit := f.bitLocation(cur)
		b, err := f.buf.GetByte(off)
		if err != nil {
			return -1, err
		}
		if b != 0xFF {
			for bit := startBit; bit < 8; bit++ {
				base := cur - int64(startBit) + int64(bit)
				if base >= f.capacitySlots {
					break
				}
				if b&(1<<bit) == 0 {
					return base, nil
				}
			}
		}
		cur = (cur - int64(startBit)) + 8
	}
	return -1, nil
}

// Allocate implements PersistentBlockBuffer.
func (f *FixedPersistentBlockBuffer) Allocate(minimumSize int64) (int64, error) {
	if minimumSize > f.payloadCapacity() {
		return 0, errors.New("block: requested size exceeds fixed block size")
	}

	if f.knownFree.Len() > 0 {
		slot := heap.Pop(&f.knownFree).(int64)
		if err := f.setBit(slot, true); err != nil {
			return 0, err
		}
		f.mutationCounter++
		return slot * f.blockSize, nil
	}

	for {
		if f.lowestFreeId >= f.capacitySlots {
			if err := f.growOneUnit(); err != nil {
				return 0, err
			}
		}
		slot, err := f.scanForFreeBit(f.lowestFreeId)
		if err != nil {
			return 0, err
		}
		if slot >= 0 {
			f.lowestFreeId = slot + 1
			if err := f.setBit(slot, true); err != nil {
				return 0, err
			}
			f.mutationCounter++
			return slot * f.blockSize, nil
		}
		f.lowestFreeId = f.capacitySlots
	}
}

// Deallocate implements PersistentBlockBuffer.
func (f *FixedPersistentBlockBuffer) Deallocate(id int64) error {
	slot := id / f.blockSize
	set, err := f.bitSet(slot)
	if err != nil {
		return err
	}
	if !set {
		return ErrAlreadyDeallocated
	}
	if err := f.setBit(slot, false); err != nil {
		return err
	}
	heap.Push(&f.knownFree, slot)
	if slot < f.lowestFreeId {
		f.lowestFreeId = slot
	}
	f.mutationCounter++
	return nil
}

func (f *FixedPersistentBlockBuffer) Capacity(id int64) (int64, error) {
	slot := id / f.blockSize
	set, err := f.bitSet(slot)
	if err != nil {
		return 0, err
	}
	if !set {
		return 0, ErrNotAllocated
	}
	return f.blockSize, nil
}

func (f *FixedPersistentBlockBuffer) checkAccess(id, offset, length int64) error {
	slot := id / f.blockSize
	set, err := f.bitSet(slot)
	if err != nil {
		return err
	}
	if !set {
		return ErrNotAllocated
	}
	if offset < 0 || length < 0 || offset+length > f.blockSize {
		return ErrNotAllocated
	}
	return nil
}

func (f *FixedPersistentBlockBuffer) Get(id, offset int64, out []byte) error {
	if err := f.checkAccess(id, offset, int64(len(out))); err != nil {
		return err
	}
	slot := id / f.blockSize
	return f.buf.Get(f.slotOffset(slot)+offset, out)
}

func (f *FixedPersistentBlockBuffer) Put(id, offset int64, data []byte) error {
	if err := f.checkAccess(id, offset, int64(len(data))); err != nil {
		return err
	}
	slot := id / f.blockSize
	return f.buf.Put(f.slotOffset(slot)+offset, data)
}

func (f *FixedPersistentBlockBuffer) Buffer() buffer.Buffer { return f.buf }

func (f *FixedPersistentBlockBuffer) Close() error { return f.buf.Close() }

func (f *FixedPersistentBlockBuffer) Iterate() Iterator {
	return &fixedIterator{f: f, mutationSnapshot: f.mutationCounter, cursor: 0, lastReturned: -1}
}

type fixedIterator struct {
	f                *FixedPersistentBlockBuffer
	mutationSnapshot uint64
	cursor           int64
	lastReturned     int64
}

func (it *fixedIterator) checkModified() error {
	if it.mutationSnapshot != it.f.mutationCounter {
		return ErrConcurrentModification
	}
	return nil
}

// scanForSetBit is the set-bit counterpart of scanForFreeBit, used by
// iteration to find the next allocated slot.
func (it *fixedIterator) scanForSetBit(from int64) (int64, error) {
	f := it.f
	cur := from
	for cur < f.capacitySlots {
		off, startBit := f.bitLocation(cur)
		b, err := f.buf.GetByte(off)
		if err != nil {
			return -1, err
		}
		if b != 0 {
			for bit := startBit; bit < 8; bit++ {
				base := cur - int64(startBit) + int64(bit)
				if base >= f.capacitySlots {
					break
				}
				if b&(1<<bit) != 0 {
					return base, nil
				}
			}
		}
		cur = (cur - int64(startBit)) + 8
	}
	return -1, nil
}

func (it *fixedIterator) HasNext() (bool, error) {
	if err := it.checkModified(); err != nil {
		return false, err
	}
	slot, err := it.scanForSetBit(it.cursor)
	if err != nil {
		return false, err
	}
	return slot >= 0, nil
}

func (it *fixedIterator) Next() (int64, error) {
	if err := it.checkModified(); err != nil {
		return 0, err
	}
	slot, err := it.scanForSetBit(it.cursor)
	if err != nil {
		return 0, err
	}
	if slot < 0 {
		return 0, ErrNotAllocated
	}
	it.cursor = slot + 1
	it.lastReturned = slot
	return slot * it.f.blockSize, nil
}

func (it *fixedIterator) Remove() error {
	if it.lastReturned < 0 {
		return errors.New("block: Remove called before Next")
	}
	if err := it.f.Deallocate(it.lastReturned * it.f.blockSize); err != nil {
		return err
	}
	it.mutationSnapshot = it.f.mutationCounter
	it.lastReturned = -1
	return nil
}

var _ PersistentBlockBuffer = (*FixedPersistentBlockBuffer)(nil)

// int64Heap is a container/heap min-heap of slot indices, backing the
// fixed allocator's known-free set.
type int64Heap []int64

func (h int64Heap) Len() int            { return len(h) }
func (h int64Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h int64Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *int64Heap) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *int64Heap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
