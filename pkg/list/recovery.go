package list

// recover walks the list's on-disk graph and repairs any inconsistency
// a prior crash could have left behind. Called at every open against a
// non-empty buffer, not only after an unclean
// shutdown: the walk is cheap relative to the I/O already required to
// open the file, and running it unconditionally means there is only
// one code path to trust.
func (l *PersistentLinkedList[T]) recover(readOnly bool) error {
	it := l.blocks.Iterate()
	ok, err := it.HasNext()
	if err != nil {
		return err
	}
	if !ok {
		return ErrCorrupt
	}
	metaID, err := it.Next()
	if err != nil {
		return err
	}
	l.metaID = metaID

	meta, err := l.readMeta()
	if err != nil {
		return err
	}
	head, tail := meta.head, meta.tail

	allocated := make(map[int64]bool)
	for {
		more, err := it.HasNext()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		id, err := it.Next()
		if err != nil {
			return err
		}
		allocated[id] = true
	}
	isAllocated := func(id int64) bool { return id == endPtr || allocated[id] }

	if !isAllocated(head) || !isAllocated(tail) {
		return ErrCorrupt
	}

	repaired := false

	// Step 4: exactly one of head/tail is END_PTR.
	if (head == endPtr) != (tail == endPtr) {
		if readOnly {
			return ErrCorrupt
		}
		nonEnd := head
		if head == endPtr {
			nonEnd = tail
		}
		e, err := l.readEntryHeader(nonEnd)
		if err != nil {
			return err
		}
		if e.prev != endPtr || e.next != endPtr {
			return ErrCorrupt
		}
		head, tail = nonEnd, nonEnd
		repaired = true
	}

	// Step 5: symmetric head/tail self-consistency repair.
	if head != endPtr {
		he, err := l.readEntryHeader(head)
		if err != nil {
			return err
		}
		if he.prev != endPtr {
			if readOnly {
				return ErrCorrupt
			}
			if !allocated[he.prev] {
				return ErrCorrupt
			}
			candidate, err := l.readEntryHeader(he.prev)
			if err != nil {
				return err
			}
			if candidate.prev != endPtr || candidate.next != head {
				return ErrCorrupt
			}
			head = he.prev
			repaired = true
		}
	}
	if tail != endPtr {
		te, err := l.readEntryHeader(tail)
		if err != nil {
			return err
		}
		if te.next != endPtr {
			if readOnly {
				return ErrCorrupt
			}
			if !allocated[te.next] {
				return ErrCorrupt
			}
			candidate, err := l.readEntryHeader(te.next)
			if err != nil {
				return err
			}
			if candidate.next != endPtr || candidate.prev != tail {
				return ErrCorrupt
			}
			tail = te.next
			repaired = true
		}
	}

	// Step 6: walk head -> tail.
	seen := make(map[int64]bool)
	count := int64(0)
	cur := head
	prev := int64(endPtr)
	for cur != endPtr {
		if seen[cur] || !allocated[cur] {
			return ErrCorrupt
		}
		e, err := l.readEntryHeader(cur)
		if err != nil {
			return err
		}
		if e.prev != prev {
			return ErrCorrupt
		}
		seen[cur] = true
		count++
		prev = cur
		cur = e.next
	}
	if prev != tail {
		// The walk terminated at a node whose own next is END_PTR (that's
		// what stopped the loop), so it is internally consistent; only
		// the cached tail disagrees with it. Mirror step 5's symmetric
		// repair and accept the walked node as the corrected tail.
		if readOnly {
			return ErrCorrupt
		}
		tail = prev
		repaired = true
	}

	// Step 7: at most one allocated-but-unseen block.
	var orphan int64 = -1
	orphanCount := 0
	for id := range allocated {
		if !seen[id] {
			orphanCount++
			orphan = id
		}
	}
	if orphanCount >= 2 {
		return ErrCorrupt
	}
	if orphanCount == 1 {
		if readOnly {
			return ErrCorrupt
		}
		if err := l.blocks.Deallocate(orphan); err != nil {
			return err
		}
		repaired = true
	}

	if repaired {
		if err := l.writeMeta(metaBlock{head: head, tail: tail}); err != nil {
			return err
		}
		if err := l.blocks.Buffer().Barrier(true); err != nil {
			return err
		}
		l.log.Info("repaired persistent list after unclean shutdown",
			"head", head, "tail", tail, "orphan", orphan)
	}

	l.head = head
	l.tail = tail
	l.size = count
	return nil
}
