package list

// Deque is a java.util.Deque-shaped convenience view over a
// PersistentLinkedList: push/pop/peek aliases over AddFirst/AddLast/
// RemoveFirst/Get, with no on-disk semantics of its own.
type Deque[T any] struct {
	list *PersistentLinkedList[T]
}

// NewDeque wraps an already-open list as a Deque.
func NewDeque[T any](list *PersistentLinkedList[T]) *Deque[T] {
	return &Deque[T]{list: list}
}

// Push adds value at the front, matching java.util.Deque.push.
func (d *Deque[T]) Push(value *T) error { return d.list.AddFirst(value) }

// Pop removes and returns the front element, matching java.util.Deque.pop.
func (d *Deque[T]) Pop() (*T, error) { return d.list.RemoveFirst() }

// Offer appends value at the back, matching java.util.Deque.offer.
func (d *Deque[T]) Offer(value *T) error { return d.list.AddLast(value) }

// Poll removes and returns the front element, matching java.util.Queue.poll
// (Deque's offer/poll pair is the FIFO queue contract: offer enqueues at
// the tail, poll dequeues from the head).
func (d *Deque[T]) Poll() (*T, error) { return d.list.RemoveFirst() }

// PeekFirst returns the front element without removing it.
func (d *Deque[T]) PeekFirst() (*T, error) {
	if d.list.Size() == 0 {
		return nil, ErrEmpty
	}
	return d.list.Get(0)
}

// PeekLast returns the back element without removing it.
func (d *Deque[T]) PeekLast() (*T, error) {
	if d.list.Size() == 0 {
		return nil, ErrEmpty
	}
	return d.list.Get(d.list.Size() - 1)
}

// Len returns the number of elements.
func (d *Deque[T]) Len() int64 { return d.list.Size() }
