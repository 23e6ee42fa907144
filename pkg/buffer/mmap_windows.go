//go:build windows

package buffer

import (
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmapRegion mirrors the unix variant's shape but carries the Windows
// mapping handle alongside the mapped slice, following pkg/pager's
// mmapHandle split between file-mapping-object and mapped-view.
type mmapRegion struct {
	data      []byte
	mapHandle windows.Handle
}

func mmapCreate(f *os.File, size int64) (*mmapRegion, error) {
	if size == 0 {
		return &mmapRegion{}, nil
	}
	return mapAt(f, 0, size)
}

func mapAt(f *os.File, offset, size int64) (*mmapRegion, error) {
	mapHandle, err := windows.CreateFileMapping(
		windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE,
		uint32(size>>32), uint32(size&0xFFFFFFFF), nil)
	if err != nil {
		return nil, err
	}

	addr, err := windows.MapViewOfFile(mapHandle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE,
		uint32(offset>>32), uint32(offset&0xFFFFFFFF), uintptr(size))
	if err != nil {
		windows.CloseHandle(mapHandle)
		return nil, err
	}

	var data []byte
	header := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Data = addr
	header.Len = int(size)
	header.Cap = int(size)

	return &mmapRegion{data: data, mapHandle: mapHandle}, nil
}

func (r *mmapRegion) remap(f *os.File, offset, size int64) error {
	if err := r.unmap(); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	next, err := mapAt(f, offset, size)
	if err != nil {
		return err
	}
	*r = *next
	return nil
}

func (r *mmapRegion) sync() error {
	if len(r.data) == 0 {
		return nil
	}
	return windows.FlushViewOfFile(uintptr(unsafe.Pointer(&r.data[0])), uintptr(len(r.data)))
}

func (r *mmapRegion) unmap() error {
	if len(r.data) == 0 {
		return nil
	}
	err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&r.data[0])))
	r.data = nil
	if r.mapHandle != 0 {
		windows.CloseHandle(r.mapHandle)
		r.mapHandle = 0
	}
	return err
}

const (
	lockfileExclusiveLock   = 0x00000002
	lockfileFailImmediately = 0x00000001
)

var (
	modkernel32      = windows.NewLazySystemDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

func flockExclusive(f *os.File) error {
	return lockFileEx(f, lockfileExclusiveLock|lockfileFailImmediately)
}

func flockShared(f *os.File) error {
	return lockFileEx(f, lockfileFailImmediately)
}

func lockFileEx(f *os.File, flags uint32) error {
	var overlapped windows.Overlapped
	r1, _, err := procLockFileEx.Call(
		uintptr(f.Fd()), uintptr(flags), 0, 1, 0, uintptr(unsafe.Pointer(&overlapped)))
	if r1 == 0 {
		if errno, ok := err.(windows.Errno); ok && errno == 33 {
			return ErrLocked
		}
		return err
	}
	return nil
}

func funlock(f *os.File) error {
	var overlapped windows.Overlapped
	r1, _, err := procUnlockFileEx.Call(uintptr(f.Fd()), 0, 1, 0, uintptr(unsafe.Pointer(&overlapped)))
	if r1 == 0 {
		return err
	}
	return nil
}

func fdatasync(f *os.File) error {
	return f.Sync()
}
