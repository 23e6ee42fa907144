package block

import "sort"

// addrSet is an ordered set of block start addresses, backing each size
// class's free list in the dynamic allocator. A sorted slice is
// sufficient here: the allocator is single-threaded and free-set sizes
// rarely approach a scale where O(n) insert/remove would matter.
type addrSet struct {
	addrs []int64
}

func (s *addrSet) Len() int { return len(s.addrs) }

func (s *addrSet) Insert(v int64) {
	i := sort.Search(len(s.addrs), func(i int) bool { return s.addrs[i] >= v })
	if i < len(s.addrs) && s.addrs[i] == v {
		return
	}
	s.addrs = append(s.addrs, 0)
	copy(s.addrs[i+1:], s.addrs[i:])
	s.addrs[i] = v
}

// Remove deletes v from the set, reporting whether it was present.
func (s *addrSet) Remove(v int64) bool {
	i := sort.Search(len(s.addrs), func(i int) bool { return s.addrs[i] >= v })
	if i >= len(s.addrs) || s.addrs[i] != v {
		return false
	}
	s.addrs = append(s.addrs[:i], s.addrs[i+1:]...)
	return true
}

// PopMin removes and returns the smallest address in the set.
func (s *addrSet) PopMin() (int64, bool) {
	if len(s.addrs) == 0 {
		return 0, false
	}
	v := s.addrs[0]
	s.addrs = s.addrs[1:]
	return v, true
}
