package list

import (
	"fmt"
	"io"
)

// DebugDump writes the list's block-graph chain to w as
// "id -> next, prev, size" lines, head first, mirroring the original
// source's toDebugString assertion-failure dumper. It reads the graph
// exactly as stored, independent of the cached head/tail/size fields,
// so it remains useful for diagnosing a recovery failure.
func (l *PersistentLinkedList[T]) DebugDump(w io.Writer) error {
	meta, err := l.readMeta()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "meta(id=%d) head=%d tail=%d\n", l.metaID, meta.head, meta.tail)

	cur := meta.head
	for cur != endPtr {
		h, err := l.readEntryHeader(cur)
		if err != nil {
			fmt.Fprintf(w, "%d -> <error: %v>\n", cur, err)
			return err
		}
		capacity, err := l.blocks.Capacity(cur)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d -> next=%d, prev=%d, dataSize=%d, blockCapacity=%d\n",
			cur, h.next, h.prev, h.dataSize, capacity)
		cur = h.next
	}
	return nil
}
