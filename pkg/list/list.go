// Package list implements the persistent doubly-linked list:
// PersistentLinkedList, backed by a pkg/block.PersistentBlockBuffer and
// an element pkg/serializer.Serializer, durable across crashes via the
// two-barrier add/remove protocol and the open-time recovery algorithm.
package list

import (
	"errors"

	"github.com/go-logr/logr"

	"pll/pkg/block"
	"pll/pkg/serializer"
)

var (
	// ErrCorrupt is returned at open when the list graph cannot be
	// restored within the single-operation recovery envelope.
	ErrCorrupt = errors.New("list: on-disk state is not recoverable")

	// ErrIndexOutOfRange is returned by Get/Set/Add/Remove(index) when
	// index is negative or not less than Size() (or, for Add, not
	// less than or equal to Size()).
	ErrIndexOutOfRange = errors.New("list: index out of range")

	// ErrEmpty is returned by RemoveFirst/RemoveLast on an empty list.
	ErrEmpty = errors.New("list: list is empty")

	// ErrConcurrentModification is returned by an iterator operation
	// performed after the list's mutation counter has advanced since
	// the iterator was created.
	ErrConcurrentModification = errors.New("list: concurrent modification detected")

	// ErrReadOnly is returned by any mutating operation on a list
	// opened with OpenReadOnly.
	ErrReadOnly = errors.New("list: list was opened read-only")
)

// PersistentLinkedList is a crash-consistent doubly-linked list over a
// block allocator. Elements are codec'd by Serializer; a nil *T
// represents a null element, mirroring the original's nullable entries.
type PersistentLinkedList[T any] struct {
	blocks   block.PersistentBlockBuffer
	codec    serializer.Serializer[T]
	log      logr.Logger
	readOnly bool

	metaID int64
	head   int64
	tail   int64
	size   int64

	mutationCounter uint64
}

// Open opens or initializes a persistent list over blocks. On an empty
// block buffer it creates the metadata block; otherwise it runs the
// recovery algorithm, repairing any single-operation inconsistency left
// by a prior crash.
func Open[T any](blocks block.PersistentBlockBuffer, codec serializer.Serializer[T], log logr.Logger) (*PersistentLinkedList[T], error) {
	return open(blocks, codec, log, false)
}

// OpenReadOnly opens a list for inspection only: the same recovery
// checks run, but any inconsistency that would otherwise be repaired is
// reported as ErrCorrupt instead.
func OpenReadOnly[T any](blocks block.PersistentBlockBuffer, codec serializer.Serializer[T], log logr.Logger) (*PersistentLinkedList[T], error) {
	return open(blocks, codec, log, true)
}

func open[T any](blocks block.PersistentBlockBuffer, codec serializer.Serializer[T], log logr.Logger, readOnly bool) (*PersistentLinkedList[T], error) {
	l := &PersistentLinkedList[T]{blocks: blocks, codec: codec, log: log, readOnly: readOnly}

	hasBlocks, err := blocks.Iterate().HasNext()
	if err != nil {
		return nil, err
	}
	if !hasBlocks {
		if readOnly {
			return nil, ErrCorrupt
		}
		id, err := blocks.Allocate(metaBlockSize)
		if err != nil {
			return nil, err
		}
		l.metaID = id
		l.head = endPtr
		l.tail = endPtr
		if err := l.writeMeta(metaBlock{head: endPtr, tail: endPtr}); err != nil {
			return nil, err
		}
		if err := l.blocks.Buffer().Barrier(true); err != nil {
			return nil, err
		}
		return l, nil
	}

	if err := l.recover(readOnly); err != nil {
		return nil, err
	}
	return l, nil
}

// Size returns the cached element count, maintained incrementally by
// every add/remove and recomputed at open by recovery.
func (l *PersistentLinkedList[T]) Size() int64 { return l.size }

func (l *PersistentLinkedList[T]) checkReadOnly() error {
	if l.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (l *PersistentLinkedList[T]) checkIndex(index int64, inclusive bool) error {
	if index < 0 {
		return ErrIndexOutOfRange
	}
	limit := l.size
	if inclusive {
		limit++
	}
	if index >= limit {
		return ErrIndexOutOfRange
	}
	return nil
}

// pointerAt walks from head or tail, whichever is closer, and returns
// the entry id at index.
func (l *PersistentLinkedList[T]) pointerAt(index int64) (int64, error) {
	if index < l.size/2 {
		id := l.head
		for i := int64(0); i < index; i++ {
			h, err := l.readEntryHeader(id)
			if err != nil {
				return 0, err
			}
			id = h.next
		}
		return id, nil
	}
	id := l.tail
	for i := l.size - 1; i > index; i-- {
		h, err := l.readEntryHeader(id)
		if err != nil {
			return 0, err
		}
		id = h.prev
	}
	return id, nil
}

// AddFirst inserts value at the head of the list.
func (l *PersistentLinkedList[T]) AddFirst(value *T) error {
	return l.insertBetween(endPtr, l.head, value)
}

// AddLast inserts value at the tail of the list.
func (l *PersistentLinkedList[T]) AddLast(value *T) error {
	return l.insertBetween(l.tail, endPtr, value)
}

// Add inserts value so that it becomes element index, shifting the
// existing element at index (if any) and everything after it back by
// one. index may equal Size() to append.
func (l *PersistentLinkedList[T]) Add(index int64, value *T) error {
	if err := l.checkReadOnly(); err != nil {
		return err
	}
	if err := l.checkIndex(index, true); err != nil {
		return err
	}
	if index == l.size {
		return l.insertBetween(l.tail, endPtr, value)
	}
	next, err := l.pointerAt(index)
	if err != nil {
		return err
	}
	h, err := l.readEntryHeader(next)
	if err != nil {
		return err
	}
	return l.insertBetween(h.prev, next, value)
}

// insertBetween implements the add operation's two-barrier protocol
// between the blocks currently at prevID and nextID (either may be
// endPtr).
func (l *PersistentLinkedList[T]) insertBetween(prevID, nextID int64, value *T) error {
	if err := l.checkReadOnly(); err != nil {
		return err
	}

	newID, err := l.allocateEntry(nextID, prevID, value)
	if err != nil {
		return err
	}
	if err := l.blocks.Buffer().Barrier(false); err != nil {
		return err
	}

	newHead, newTail := l.head, l.tail
	if prevID == endPtr {
		newHead = newID
	}
	if nextID == endPtr {
		newTail = newID
	}
	if prevID == endPtr || nextID == endPtr {
		if err := l.writeMeta(metaBlock{head: newHead, tail: newTail}); err != nil {
			return err
		}
	}
	if prevID != endPtr {
		if err := l.writeNext(prevID, newID); err != nil {
			return err
		}
	}
	if nextID != endPtr {
		if err := l.writePrev(nextID, newID); err != nil {
			return err
		}
	}
	l.head, l.tail = newHead, newTail

	if err := l.blocks.Buffer().Barrier(true); err != nil {
		return err
	}
	l.size++
	l.mutationCounter++
	return nil
}

// Get returns the element at index.
func (l *PersistentLinkedList[T]) Get(index int64) (*T, error) {
	if err := l.checkIndex(index, false); err != nil {
		return nil, err
	}
	id, err := l.pointerAt(index)
	if err != nil {
		return nil, err
	}
	h, err := l.readEntryHeader(id)
	if err != nil {
		return nil, err
	}
	return l.readValue(id, h.dataSize)
}

// Set replaces the element at index with value. Implemented as a remove
// followed by an insert and is explicitly not atomic with respect to a
// crash between the two.
func (l *PersistentLinkedList[T]) Set(index int64, value *T) error {
	if err := l.checkReadOnly(); err != nil {
		return err
	}
	if err := l.checkIndex(index, false); err != nil {
		return err
	}
	if index == 0 {
		if _, err := l.removeAt(index); err != nil {
			return err
		}
		return l.insertBetween(endPtr, l.head, value)
	}
	prevID, err := l.pointerAt(index - 1)
	if err != nil {
		return err
	}
	if _, err := l.removeAt(index); err != nil {
		return err
	}
	h, err := l.readEntryHeader(prevID)
	if err != nil {
		return err
	}
	return l.insertBetween(prevID, h.next, value)
}

// RemoveFirst removes and returns the head element.
func (l *PersistentLinkedList[T]) RemoveFirst() (*T, error) {
	if l.size == 0 {
		return nil, ErrEmpty
	}
	return l.removeAt(0)
}

// RemoveLast removes and returns the tail element.
func (l *PersistentLinkedList[T]) RemoveLast() (*T, error) {
	if l.size == 0 {
		return nil, ErrEmpty
	}
	return l.removeAt(l.size - 1)
}

// Remove removes and returns the element at index.
func (l *PersistentLinkedList[T]) Remove(index int64) (*T, error) {
	if err := l.checkIndex(index, false); err != nil {
		return nil, err
	}
	return l.removeAt(index)
}

// removeAt implements the remove operation's two-barrier protocol.
func (l *PersistentLinkedList[T]) removeAt(index int64) (*T, error) {
	if err := l.checkReadOnly(); err != nil {
		return nil, err
	}

	id, err := l.pointerAt(index)
	if err != nil {
		return nil, err
	}
	h, err := l.readEntryHeader(id)
	if err != nil {
		return nil, err
	}
	value, err := l.readValue(id, h.dataSize)
	if err != nil {
		return nil, err
	}

	newHead, newTail := l.head, l.tail
	if h.prev == endPtr {
		newHead = h.next
	}
	if h.next == endPtr {
		newTail = h.prev
	}
	if h.prev == endPtr || h.next == endPtr {
		if err := l.writeMeta(metaBlock{head: newHead, tail: newTail}); err != nil {
			return nil, err
		}
	}
	if h.prev != endPtr {
		if err := l.writeNext(h.prev, h.next); err != nil {
			return nil, err
		}
	}
	if h.next != endPtr {
		if err := l.writePrev(h.next, h.prev); err != nil {
			return nil, err
		}
	}
	l.head, l.tail = newHead, newTail

	if err := l.blocks.Buffer().Barrier(false); err != nil {
		return nil, err
	}
	if err := l.blocks.Deallocate(id); err != nil {
		return nil, err
	}
	if err := l.blocks.Buffer().Barrier(true); err != nil {
		return nil, err
	}

	l.size--
	l.mutationCounter++
	return value, nil
}

// Blocks exposes the underlying block allocator, for callers (cmd/plltool)
// that need direct structural access.
func (l *PersistentLinkedList[T]) Blocks() block.PersistentBlockBuffer { return l.blocks }

// Close commits any pending writes and releases the underlying block
// buffer.
func (l *PersistentLinkedList[T]) Close() error {
	return l.blocks.Close()
}
