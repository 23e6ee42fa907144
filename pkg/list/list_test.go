package list

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"

	"pll/pkg/block"
	"pll/pkg/buffer"
	"pll/pkg/serializer"
)

func openTestList(t *testing.T, path string) *PersistentLinkedList[string] {
	t.Helper()
	buf, err := buffer.OpenDirectBuffer(path, buffer.ProtectionForce)
	if err != nil {
		t.Fatalf("open buffer: %v", err)
	}
	blocks, err := block.OpenDynamicPersistentBlockBuffer(buf)
	if err != nil {
		t.Fatalf("open blocks: %v", err)
	}
	l, err := Open[string](blocks, serializer.Opaque[string](), logr.Discard())
	if err != nil {
		t.Fatalf("open list: %v", err)
	}
	return l
}

func strPtr(s string) *string { return &s }

func TestListAddFirstAddFirstAddLastScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	l := openTestList(t, path)

	if err := l.AddFirst(strPtr("A")); err != nil {
		t.Fatal(err)
	}
	if err := l.AddFirst(strPtr("B")); err != nil {
		t.Fatal(err)
	}
	if err := l.AddLast(strPtr("C")); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	buf, err := buffer.OpenDirectBuffer(path, buffer.ProtectionReadOnly)
	if err != nil {
		t.Fatalf("reopen buffer: %v", err)
	}
	blocks, err := block.OpenDynamicPersistentBlockBuffer(buf)
	if err != nil {
		t.Fatalf("reopen blocks: %v", err)
	}
	reopened, err := OpenReadOnly[string](blocks, serializer.Opaque[string](), logr.Discard())
	if err != nil {
		t.Fatalf("reopen list: %v", err)
	}
	defer reopened.Close()

	if reopened.Size() != 3 {
		t.Fatalf("size = %d, want 3", reopened.Size())
	}

	it := reopened.Forward()
	want := []string{"B", "A", "C"}
	for _, w := range want {
		v, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if v == nil || *v != w {
			t.Fatalf("got %v, want %s", v, w)
		}
	}
	if more, _ := it.HasNext(); more {
		t.Fatal("expected iterator to be exhausted")
	}
}

func openIntList(t *testing.T, path string) *PersistentLinkedList[int32] {
	t.Helper()
	buf, err := buffer.OpenDirectBuffer(path, buffer.ProtectionForce)
	if err != nil {
		t.Fatalf("open buffer: %v", err)
	}
	blocks, err := block.OpenDynamicPersistentBlockBuffer(buf)
	if err != nil {
		t.Fatalf("open blocks: %v", err)
	}
	l, err := Open[int32](blocks, serializer.Int32(), logr.Discard())
	if err != nil {
		t.Fatalf("open list: %v", err)
	}
	return l
}

func i32Ptr(v int32) *int32 { return &v }

func TestListRemoveIndexScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	l := openIntList(t, path)
	defer l.Close()

	for _, v := range []int32{1, 2, 3, 4, 5} {
		if err := l.AddLast(i32Ptr(v)); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := l.Remove(2)
	if err != nil {
		t.Fatal(err)
	}
	if removed == nil || *removed != 3 {
		t.Fatalf("removed = %v, want 3", removed)
	}

	fwd := l.Forward()
	var gotFwd []int32
	for {
		more, err := fwd.HasNext()
		if err != nil {
			t.Fatal(err)
		}
		if !more {
			break
		}
		v, err := fwd.Next()
		if err != nil {
			t.Fatal(err)
		}
		gotFwd = append(gotFwd, *v)
	}
	wantFwd := []int32{1, 2, 4, 5}
	if len(gotFwd) != len(wantFwd) {
		t.Fatalf("forward = %v, want %v", gotFwd, wantFwd)
	}
	for i := range wantFwd {
		if gotFwd[i] != wantFwd[i] {
			t.Fatalf("forward = %v, want %v", gotFwd, wantFwd)
		}
	}

	desc := l.Descending()
	var gotDesc []int32
	for {
		more, err := desc.HasNext()
		if err != nil {
			t.Fatal(err)
		}
		if !more {
			break
		}
		v, err := desc.Next()
		if err != nil {
			t.Fatal(err)
		}
		gotDesc = append(gotDesc, *v)
	}
	wantDesc := []int32{5, 4, 2, 1}
	for i := range wantDesc {
		if gotDesc[i] != wantDesc[i] {
			t.Fatalf("descending = %v, want %v", gotDesc, wantDesc)
		}
	}
}

func TestListRoundTripNullElement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	l := openTestList(t, path)
	defer l.Close()

	if err := l.AddLast(nil); err != nil {
		t.Fatal(err)
	}
	if err := l.AddLast(strPtr("x")); err != nil {
		t.Fatal(err)
	}

	v0, err := l.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if v0 != nil {
		t.Fatalf("got %v, want nil", v0)
	}
	v1, err := l.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if v1 == nil || *v1 != "x" {
		t.Fatalf("got %v, want x", v1)
	}
}

func TestListSetReplacesElement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	l := openTestList(t, path)
	defer l.Close()

	for _, v := range []string{"a", "b", "c"} {
		if err := l.AddLast(strPtr(v)); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Set(1, strPtr("B")); err != nil {
		t.Fatal(err)
	}
	got, err := l.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != "B" {
		t.Fatalf("got %v, want B", got)
	}
	if l.Size() != 3 {
		t.Fatalf("size = %d, want 3", l.Size())
	}
}

func TestListConcurrentModificationDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	l := openTestList(t, path)
	defer l.Close()

	for _, v := range []string{"a", "b", "c"} {
		if err := l.AddLast(strPtr(v)); err != nil {
			t.Fatal(err)
		}
	}

	it := l.Forward()
	if _, err := it.Next(); err != nil {
		t.Fatal(err)
	}
	if err := l.AddLast(strPtr("d")); err != nil {
		t.Fatal(err)
	}
	if _, err := it.Next(); err != ErrConcurrentModification {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
}

// TestListFaultInjectionRandomBatches runs repeated random batches of
// addFirst/removeLast/addLast/removeFirst, checking that absent any
// crash the list tracks an in-memory reference exactly.
func TestListFaultInjectionRandomBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	rng := rand.New(rand.NewSource(1))

	inner, err := buffer.OpenDirectBuffer(path, buffer.ProtectionForce)
	if err != nil {
		t.Fatalf("open inner: %v", err)
	}
	if err := inner.SetCapacity(8192); err != nil {
		t.Fatal(err)
	}
	fault := buffer.NewFaultInjectingBuffer(inner, 4096, 0, 2)

	blocks, err := block.OpenDynamicPersistentBlockBuffer(fault)
	if err != nil {
		t.Fatalf("open blocks: %v", err)
	}
	l, err := Open[int32](blocks, serializer.Int32(), logr.Discard())
	if err != nil {
		t.Fatalf("open list: %v", err)
	}

	var reference []int32
	counter := int32(0)

	for iter := 0; iter < 10; iter++ {
		batchSize := 1 + rng.Intn(5)
		for i := 0; i < batchSize; i++ {
			op := rng.Intn(4)
			switch op {
			case 0:
				counter++
				reference = append([]int32{counter}, reference...)
				if err := l.AddFirst(i32Ptr(counter)); err != nil {
					t.Fatal(err)
				}
			case 1:
				if len(reference) > 0 {
					reference = reference[:len(reference)-1]
					if _, err := l.RemoveLast(); err != nil {
						t.Fatal(err)
					}
				}
			case 2:
				counter++
				reference = append(reference, counter)
				if err := l.AddLast(i32Ptr(counter)); err != nil {
					t.Fatal(err)
				}
			case 3:
				if len(reference) > 0 {
					reference = reference[1:]
					if _, err := l.RemoveFirst(); err != nil {
						t.Fatal(err)
					}
				}
			}
		}

		if int64(len(reference)) != l.Size() {
			t.Fatalf("iteration %d: reference size %d != list size %d", iter, len(reference), l.Size())
		}
		if got := listContents(t, l); !int32SliceEqual(got, reference) {
			t.Fatalf("iteration %d: list %v != reference %v", iter, got, reference)
		}
	}

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func listContents(t *testing.T, l *PersistentLinkedList[int32]) []int32 {
	t.Helper()
	var got []int32
	it := l.Forward()
	for {
		more, err := it.HasNext()
		if err != nil {
			t.Fatal(err)
		}
		if !more {
			break
		}
		v, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, *v)
	}
	return got
}

// TestListFaultInjectionCrashRecovery injects real simulated crashes: a
// nonzero crash probability means some batches are interrupted mid
// operation. After every batch the file is reopened (forcing recovery)
// and the reconstructed list must differ from the reference applied so
// far by at most the one operation that was in flight at crash time.
func TestListFaultInjectionCrashRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	rng := rand.New(rand.NewSource(7))

	openCrashy := func(seed int64) (*PersistentLinkedList[int32], *buffer.FaultInjectingBuffer, *buffer.DirectBuffer) {
		inner, err := buffer.OpenDirectBuffer(path, buffer.ProtectionForce)
		if err != nil {
			t.Fatalf("open inner: %v", err)
		}
		if inner.Capacity() == 0 {
			if err := inner.SetCapacity(8192); err != nil {
				t.Fatal(err)
			}
		}
		fault := buffer.NewFaultInjectingBuffer(inner, 4096, 0.3, seed)
		blocks, err := block.OpenDynamicPersistentBlockBuffer(fault)
		if err != nil {
			t.Fatalf("open blocks: %v", err)
		}
		l, err := Open[int32](blocks, serializer.Int32(), logr.Discard())
		if err != nil {
			t.Fatalf("open list (recovery): %v", err)
		}
		return l, fault, inner
	}

	l, fault, inner := openCrashy(100)
	var reference []int32
	counter := int32(0)
	seed := int64(100)

	for iter := 0; iter < 10; iter++ {
		batchSize := 1 + rng.Intn(5)
		priorReference := append([]int32(nil), reference...)

		for i := 0; i < batchSize; i++ {
			if fault.Crashed() {
				break
			}
			op := rng.Intn(4)
			var err error
			switch op {
			case 0:
				counter++
				reference = append([]int32{counter}, reference...)
				err = l.AddFirst(i32Ptr(counter))
			case 1:
				if len(reference) == 0 {
					continue
				}
				reference = reference[:len(reference)-1]
				_, err = l.RemoveLast()
			case 2:
				counter++
				reference = append(reference, counter)
				err = l.AddLast(i32Ptr(counter))
			case 3:
				if len(reference) == 0 {
					continue
				}
				reference = reference[1:]
				_, err = l.RemoveFirst()
			}
			var crashedMidOp bool
			if err == buffer.ErrSimulatedCrash {
				crashedMidOp = true
			} else if err != nil {
				t.Fatal(err)
			}
			if crashedMidOp {
				break
			}
			priorReference = append([]int32(nil), reference...)
		}

		if fault.Crashed() {
			// The process is gone; the OS reclaims the descriptor and
			// its advisory lock along with it.
			inner.Close()
		} else if err := l.Close(); err != nil {
			t.Fatal(err)
		}
		seed++
		l, fault, inner = openCrashy(seed)
		got := listContents(t, l)

		// The recovered list must equal the reference either exactly,
		// or with exactly the one operation in flight at crash time
		// missing: it has to match the fully-applied reference or the
		// pre-op reference, nothing else.
		if !int32SliceEqual(got, reference) && !int32SliceEqual(got, priorReference) {
			t.Fatalf("iteration %d: recovered list %v matches neither post-op reference %v nor pre-op reference %v",
				iter, got, reference, priorReference)
		}
		reference = got
	}

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func int32SliceEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
