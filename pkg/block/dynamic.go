package block

import (
	"errors"

	ibits "pll/internal/bits"
	"pll/pkg/buffer"
)

const dynamicInitialCapacity = 4096
const dynamicPageSize = 4096

// maxSizeClass is the largest size-class exponent the one-byte header
// can carry (bits 0-5). Coalescing intentionally stops here rather
// than attempting to represent a 2^64-byte block.
const maxSizeClass = 63

// DynamicPersistentBlockBuffer is the power-of-two buddy allocator.
// Every block is preceded by a one-byte header: bits 0-5 carry
// the size class k (the block occupies 2^k bytes including the
// header), bit 6 is reserved zero, bit 7 is the allocated flag. Block
// starts are aligned to 2^k.
type DynamicPersistentBlockBuffer struct {
	buf buffer.Buffer

	freeSets [maxSizeClass + 1]addrSet

	mutationCounter uint64
}

// ErrSizeClassTooLarge is returned by Allocate when the requested size
// needs size class maxSizeClass or above. The header can name class 63,
// but a 2^63-byte block does not fit the int64 address space.
var ErrSizeClassTooLarge = errors.New("block: requested size exceeds the largest representable size class")

type dynamicHeader struct {
	k         uint
	allocated bool
}

func decodeHeader(b byte) dynamicHeader {
	return dynamicHeader{k: uint(b & 0x3F), allocated: b&0x80 != 0}
}

func encodeHeader(h dynamicHeader) byte {
	b := byte(h.k & 0x3F)
	if h.allocated {
		b |= 0x80
	}
	return b
}

// OpenDynamicPersistentBlockBuffer wraps buf as a buddy allocator. If
// buf is empty it is initialized to one 4 KiB page decomposed into
// free blocks; otherwise the free-space map is rebuilt by a single
// linear scan.
func OpenDynamicPersistentBlockBuffer(buf buffer.Buffer) (*DynamicPersistentBlockBuffer, error) {
	d := &DynamicPersistentBlockBuffer{buf: buf}

	if buf.Capacity() == 0 {
		if err := buf.SetCapacity(dynamicInitialCapacity); err != nil {
			return nil, err
		}
		if err := d.populateRegion(0, dynamicInitialCapacity); err != nil {
			return nil, err
		}
		return d, nil
	}

	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

// scan performs the open-time linear walk over every block: each
// header is read in turn, unallocated blocks are registered into their
// size class's free set, and a capacity that ends mid-block (a crash
// during a prior extend) is rounded up to complete the dangling block.
func (d *DynamicPersistentBlockBuffer) scan() error {
	offset := int64(0)
	capacity := d.buf.Capacity()
	for offset < capacity {
		raw, err := d.buf.GetByte(offset)
		if err != nil {
			return err
		}
		hdr := decodeHeader(raw)
		size := int64(1) << hdr.k

		if offset+size > capacity {
			newCapacity := offset + size
			if err := d.buf.SetCapacity(newCapacity); err != nil {
				return err
			}
			capacity = newCapacity
		}

		if !hdr.allocated {
			d.freeSets[hdr.k].Insert(offset)
		}
		offset += size
	}
	return nil
}

// populateRegion decomposes [offset, offset+length) into the largest
// self-aligned power-of-two pieces that fit, writing each piece's
// header as unallocated and registering it in the matching free set.
func (d *DynamicPersistentBlockBuffer) populateRegion(offset, length int64) error {
	for length > 0 {
		k := uint(maxSizeClass)
		for k > 0 && offset&((int64(1)<<k)-1) != 0 {
			k--
		}
		// 1<<maxSizeClass overflows int64, so the top class never fits.
		for k > 0 && (k == maxSizeClass || (int64(1)<<k) > length) {
			k--
		}
		size := int64(1) << k
		if err := d.writeHeader(offset, k, false); err != nil {
			return err
		}
		d.freeSets[k].Insert(offset)
		offset += size
		length -= size
	}
	return nil
}

func (d *DynamicPersistentBlockBuffer) readHeader(addr int64) (dynamicHeader, error) {
	b, err := d.buf.GetByte(addr)
	if err != nil {
		return dynamicHeader{}, err
	}
	return decodeHeader(b), nil
}

func (d *DynamicPersistentBlockBuffer) writeHeader(addr int64, k uint, allocated bool) error {
	return d.buf.PutByte(addr, encodeHeader(dynamicHeader{k: k, allocated: allocated}))
}

// sizeClassFor returns the smallest k with 2^k >= minimumSize+1, the
// room needed for minimumSize payload bytes plus the one-byte header.
func sizeClassFor(minimumSize int64) uint {
	return ibits.SizeClassFor(uint64(minimumSize) + 1)
}

// Allocate implements PersistentBlockBuffer.
func (d *DynamicPersistentBlockBuffer) Allocate(minimumSize int64) (int64, error) {
	if minimumSize < 0 {
		return 0, errors.New("block: minimumSize must be non-negative")
	}
	k := sizeClassFor(minimumSize)
	if k >= maxSizeClass {
		return 0, ErrSizeClassTooLarge
	}
	return d.allocateClass(k)
}

func (d *DynamicPersistentBlockBuffer) allocateClass(k uint) (int64, error) {
	found := k
	for found <= maxSizeClass && d.freeSets[found].Len() == 0 {
		found++
	}
	if found > maxSizeClass {
		if err := d.extend(k); err != nil {
			return 0, err
		}
		found = k
		for found <= maxSizeClass && d.freeSets[found].Len() == 0 {
			found++
		}
		if found > maxSizeClass {
			return 0, errors.New("block: allocation failed to find space after extending")
		}
	}

	addr, _ := d.freeSets[found].PopMin()
	for found > k {
		half := int64(1) << (found - 1)
		right := addr + half
		if err := d.writeHeader(right, found-1, false); err != nil {
			return 0, err
		}
		if err := d.buf.Barrier(false); err != nil {
			return 0, err
		}
		if err := d.writeHeader(addr, found-1, false); err != nil {
			return 0, err
		}
		d.freeSets[found-1].Insert(right)
		found--
	}

	if err := d.writeHeader(addr, k, true); err != nil {
		return 0, err
	}
	d.mutationCounter++
	return addr, nil
}

// extend grows the backing buffer to admit a block of size class k,
// aligning the new region's start to 2^k, growing by at least 25% of
// the prior capacity and to a 4 KiB boundary, then decomposing the
// newly exposed range into free blocks.
func (d *DynamicPersistentBlockBuffer) extend(k uint) error {
	prior := d.buf.Capacity()
	blockSize := int64(1) << k

	newStart := ibits.RoundUp(prior, blockSize)
	minGrowth := prior / 4
	if minGrowth < blockSize {
		minGrowth = blockSize
	}
	target := ibits.RoundUp(newStart+minGrowth, dynamicPageSize)

	if err := d.buf.SetCapacity(target); err != nil {
		return err
	}
	return d.populateRegion(prior, target-prior)
}

// Deallocate implements PersistentBlockBuffer.
func (d *DynamicPersistentBlockBuffer) Deallocate(id int64) error {
	hdr, err := d.readHeader(id)
	if err != nil {
		return err
	}
	if !hdr.allocated {
		return ErrAlreadyDeallocated
	}

	k := hdr.k
	addr := id
	if err := d.writeHeader(addr, k, false); err != nil {
		return err
	}

	for k < maxSizeClass {
		buddy := addr ^ (int64(1) << k)
		if buddy < 0 || buddy+(int64(1)<<k) > d.buf.Capacity() {
			break
		}
		bHdr, err := d.readHeader(buddy)
		if err != nil {
			return err
		}
		if bHdr.allocated || bHdr.k != k {
			break
		}
		if !d.freeSets[k].Remove(buddy) {
			break
		}
		if buddy < addr {
			addr = buddy
		}
		k++
	}

	if err := d.writeHeader(addr, k, false); err != nil {
		return err
	}
	d.freeSets[k].Insert(addr)
	d.mutationCounter++
	return nil
}

func (d *DynamicPersistentBlockBuffer) Capacity(id int64) (int64, error) {
	hdr, err := d.readHeader(id)
	if err != nil {
		return 0, err
	}
	if !hdr.allocated {
		return 0, ErrNotAllocated
	}
	return (int64(1) << hdr.k) - 1, nil
}

func (d *DynamicPersistentBlockBuffer) checkAccess(id, offset, length int64) error {
	hdr, err := d.readHeader(id)
	if err != nil {
		return err
	}
	if !hdr.allocated {
		return ErrNotAllocated
	}
	payload := (int64(1) << hdr.k) - 1
	if offset < 0 || length < 0 || offset+length > payload {
		return ErrNotAllocated
	}
	return nil
}

func (d *DynamicPersistentBlockBuffer) Get(id, offset int64, out []byte) error {
	if err := d.checkAccess(id, offset, int64(len(out))); err != nil {
		return err
	}
	return d.buf.Get(id+1+offset, out)
}

func (d *DynamicPersistentBlockBuffer) Put(id, offset int64, data []byte) error {
	if err := d.checkAccess(id, offset, int64(len(data))); err != nil {
		return err
	}
	return d.buf.Put(id+1+offset, data)
}

func (d *DynamicPersistentBlockBuffer) Buffer() buffer.Buffer { return d.buf }

func (d *DynamicPersistentBlockBuffer) Close() error { return d.buf.Close() }

func (d *DynamicPersistentBlockBuffer) Iterate() Iterator {
	return &dynamicIterator{d: d, mutationSnapshot: d.mutationCounter, cursor: 0, lastReturned: -1, lastReturnedSize: 0}
}

type dynamicIterator struct {
	d                *DynamicPersistentBlockBuffer
	mutationSnapshot uint64
	cursor           int64
	lastReturned     int64
	lastReturnedSize int64
}

func (it *dynamicIterator) checkModified() error {
	if it.mutationSnapshot != it.d.mutationCounter {
		return ErrConcurrentModification
	}
	return nil
}

func (it *dynamicIterator) peek() (int64, dynamicHeader, bool, error) {
	offset := it.cursor
	capacity := it.d.buf.Capacity()
	for offset < capacity {
		hdr, err := it.d.readHeader(offset)
		if err != nil {
			return 0, dynamicHeader{}, false, err
		}
		if hdr.allocated {
			return offset, hdr, true, nil
		}
		offset += int64(1) << hdr.k
	}
	return 0, dynamicHeader{}, false, nil
}

func (it *dynamicIterator) HasNext() (bool, error) {
	if err := it.checkModified(); err != nil {
		return false, err
	}
	_, _, ok, err := it.peek()
	return ok, err
}

func (it *dynamicIterator) Next() (int64, error) {
	if err := it.checkModified(); err != nil {
		return 0, err
	}
	offset, hdr, ok, err := it.peek()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotAllocated
	}
	size := int64(1) << hdr.k
	it.cursor = offset + size
	it.lastReturned = offset
	it.lastReturnedSize = size
	return offset, nil
}

func (it *dynamicIterator) Remove() error {
	if it.lastReturned < 0 {
		return errors.New("block: Remove called before Next")
	}
	if err := it.d.Deallocate(it.lastReturned); err != nil {
		return err
	}
	it.mutationSnapshot = it.d.mutationCounter
	it.lastReturned = -1
	return nil
}

var _ PersistentBlockBuffer = (*DynamicPersistentBlockBuffer)(nil)
