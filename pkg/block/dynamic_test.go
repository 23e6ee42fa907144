package block

import (
	"path/filepath"
	"testing"

	"pll/pkg/buffer"
)

func openDynamicTestBuffer(t *testing.T) (*DynamicPersistentBlockBuffer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	buf, err := buffer.OpenDirectBuffer(path, buffer.ProtectionForce)
	if err != nil {
		t.Fatalf("open buffer: %v", err)
	}
	d, err := OpenDynamicPersistentBlockBuffer(buf)
	if err != nil {
		t.Fatalf("open dynamic buffer: %v", err)
	}
	return d, path
}

func TestDynamicAllocateDeallocateRoundTrip(t *testing.T) {
	d, _ := openDynamicTestBuffer(t)

	id, err := d.Allocate(100)
	if err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := d.Put(id, 0, payload); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 100)
	if err := d.Get(id, 0, got); err != nil {
		t.Fatal(err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], payload[i])
		}
	}

	if err := d.Deallocate(id); err != nil {
		t.Fatal(err)
	}
	if err := d.Deallocate(id); err != ErrAlreadyDeallocated {
		t.Fatalf("second deallocate err = %v, want ErrAlreadyDeallocated", err)
	}
}

func TestDynamicRejectsSizeClassTooLarge(t *testing.T) {
	d, _ := openDynamicTestBuffer(t)
	if _, err := d.Allocate(1 << 62); err != ErrSizeClassTooLarge {
		t.Fatalf("err = %v, want ErrSizeClassTooLarge", err)
	}
}

// TestDynamicMixedSizesGrowAndFreeFully allocates blocks of varied
// sizes and confirms the allocator grows the backing file
// rather than silently failing, while every block stays independently
// addressable, and that deallocating them all frees every byte.
func TestDynamicMixedSizesGrowAndFreeFully(t *testing.T) {
	d, _ := openDynamicTestBuffer(t)

	sizes := []int64{7, 17, 260, 1025}
	var ids []int64
	for round := 0; round < 50; round++ {
		for _, size := range sizes {
			id, err := d.Allocate(size)
			if err != nil {
				t.Fatalf("allocate %d: %v", size, err)
			}
			cap, err := d.Capacity(id)
			if err != nil {
				t.Fatal(err)
			}
			if cap < size {
				t.Fatalf("capacity %d < requested %d", cap, size)
			}
			ids = append(ids, id)
		}
	}

	capacityBefore := d.buf.Capacity()
	if capacityBefore <= 0 {
		t.Fatal("expected backing file to have grown")
	}

	for _, id := range ids {
		if err := d.Deallocate(id); err != nil {
			t.Fatalf("deallocate %d: %v", id, err)
		}
	}

	// Full deallocation returns every byte to the free sets, so their
	// blocks add up to the whole capacity.
	total := int64(0)
	for k := 0; k <= maxSizeClass; k++ {
		total += int64(d.freeSets[k].Len()) * (int64(1) << uint(k))
	}
	if total != d.buf.Capacity() {
		t.Fatalf("free space accounts for %d bytes, want %d (every byte free)", total, d.buf.Capacity())
	}
}

// TestDynamicNoBuddyPairLeftUncoalesced is invariant 8: after any sequence
// of allocate/deallocate, no two free blocks of the same size class are
// buddies of one another (full deallocation forces this to its limit).
func TestDynamicNoBuddyPairLeftUncoalesced(t *testing.T) {
	d, _ := openDynamicTestBuffer(t)

	var ids []int64
	for i := 0; i < 64; i++ {
		id, err := d.Allocate(int64(8 + i*3))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	// Deallocate every other block, then the rest, so coalescing runs
	// through a realistic mix of orders rather than strict LIFO.
	for i := 0; i < len(ids); i += 2 {
		if err := d.Deallocate(ids[i]); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i < len(ids); i += 2 {
		if err := d.Deallocate(ids[i]); err != nil {
			t.Fatal(err)
		}
	}

	for k := 0; k <= maxSizeClass; k++ {
		present := make(map[int64]bool, len(d.freeSets[k].addrs))
		for _, addr := range d.freeSets[k].addrs {
			present[addr] = true
		}
		for addr := range present {
			buddy := addr ^ (int64(1) << uint(k))
			if present[buddy] {
				t.Fatalf("found uncoalesced buddy pair at size class %d: %d and %d", k, addr, buddy)
			}
		}
	}
}

func TestDynamicIteratorDetectsConcurrentModification(t *testing.T) {
	d, _ := openDynamicTestBuffer(t)
	if _, err := d.Allocate(8); err != nil {
		t.Fatal(err)
	}
	id2, err := d.Allocate(8)
	if err != nil {
		t.Fatal(err)
	}

	it := d.Iterate()
	if _, err := it.Next(); err != nil {
		t.Fatal(err)
	}
	if err := d.Deallocate(id2); err != nil {
		t.Fatal(err)
	}
	if _, err := it.Next(); err != ErrConcurrentModification {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestDynamicIterateYieldsAllAllocatedIds(t *testing.T) {
	d, _ := openDynamicTestBuffer(t)

	ids := make(map[int64]bool)
	for i := 0; i < 200; i++ {
		id, err := d.Allocate(int64(4 + i%40))
		if err != nil {
			t.Fatal(err)
		}
		ids[id] = true
	}
	for id := range ids {
		if id%3 == 0 {
			if err := d.Deallocate(id); err != nil {
				t.Fatal(err)
			}
			delete(ids, id)
		}
	}

	it := d.Iterate()
	seen := map[int64]bool{}
	for {
		more, err := it.HasNext()
		if err != nil {
			t.Fatal(err)
		}
		if !more {
			break
		}
		id, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		seen[id] = true
	}
	if len(seen) != len(ids) {
		t.Fatalf("iterate yielded %d ids, want %d", len(seen), len(ids))
	}
	for id := range ids {
		if !seen[id] {
			t.Fatalf("iterate missed live id %d", id)
		}
	}
}

func TestDynamicPersistsAcrossReopen(t *testing.T) {
	d, path := openDynamicTestBuffer(t)
	id, err := d.Allocate(64)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("sixty-four bytes of payload data for this block test 0123")
	if len(payload) > 64 {
		payload = payload[:64]
	}
	if err := d.Put(id, 0, payload); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	buf, err := buffer.OpenDirectBuffer(path, buffer.ProtectionForce)
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := OpenDynamicPersistentBlockBuffer(buf)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got := make([]byte, len(payload))
	if err := reopened.Get(id, 0, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
