//go:build unix

package hv

import "golang.org/x/sys/unix"

func hostPageSize() int { return unix.Getpagesize() }

func allocGuestMemory(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeGuestMemory(b []byte) error {
	return unix.Munmap(b)
}
