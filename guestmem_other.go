//go:build !unix

package hv

import (
	"os"
	"unsafe"
)

func hostPageSize() int { return os.Getpagesize() }

// allocGuestMemory over-allocates on the Go heap and returns a page-aligned
// window. Mapping pins it for the lifetime of the mapping.
func allocGuestMemory(size int) ([]byte, error) {
	ps := PageSize()
	buf := make([]byte, size+ps)
	off := 0
	if r := int(uintptr(unsafe.Pointer(unsafe.SliceData(buf))) & uintptr(ps-1)); r != 0 {
		off = ps - r
	}
	return buf[off : off+size : off+size], nil
}

func freeGuestMemory([]byte) error { return nil }
