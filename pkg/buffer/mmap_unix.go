//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package buffer

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapRegion is a single contiguous memory mapping of part (or all) of a
// file. SingleMappingBuffer uses one; SegmentedMappingBuffer uses many,
// one per 2^30-byte segment.
type mmapRegion struct {
	data []byte
}

func mmapCreate(f *os.File, size int64) (*mmapRegion, error) {
	if size == 0 {
		return &mmapRegion{data: nil}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), mmapProt(f), unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mmapRegion{data: data}, nil
}

// mmapProt returns PROT_READ alone for a descriptor opened read-only,
// which the kernel refuses to map writable.
func mmapProt(f *os.File) int {
	if fl, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0); err == nil && fl&unix.O_ACCMODE == unix.O_RDONLY {
		return unix.PROT_READ
	}
	return unix.PROT_READ | unix.PROT_WRITE
}

// remap unmaps the current region (syncing first) and maps size bytes
// starting at the given file offset.
func (r *mmapRegion) remap(f *os.File, offset, size int64) error {
	if err := r.sync(); err != nil {
		return err
	}
	if err := r.unmap(); err != nil {
		return err
	}
	if size == 0 {
		r.data = nil
		return nil
	}
	data, err := unix.Mmap(int(f.Fd()), offset, int(size), mmapProt(f), unix.MAP_SHARED)
	if err != nil {
		return err
	}
	r.data = data
	return nil
}

func (r *mmapRegion) sync() error {
	if len(r.data) == 0 {
		return nil
	}
	return unix.Msync(r.data, unix.MS_SYNC)
}

func (r *mmapRegion) unmap() error {
	if len(r.data) == 0 {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

func flockExclusive(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

func flockShared(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func fdatasync(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
