//go:build windows

package flock

import "golang.org/x/sys/windows"

// The whole file is locked through a one-byte range at offset zero.
const (
	rangeLow  = 1
	rangeHigh = 0
)

// Exclusive tries once to take an exclusive lock on fd.
func Exclusive(fd uintptr) error {
	return windows.LockFileEx(windows.Handle(fd),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, rangeLow, rangeHigh, new(windows.Overlapped))
}

// Unlock releases the lock on fd.
func Unlock(fd uintptr) error {
	return windows.UnlockFileEx(windows.Handle(fd), 0, rangeLow, rangeHigh, new(windows.Overlapped))
}
