package hv

import (
	"fmt"
	"math"
	"sync"
	"unsafe"
)

var (
	cachedPageSize int
	cachedPageMask uint64 // For fast alignment checks: addr & mask == 0
	pageSizeOnce   sync.Once
)

func initPageSize() {
	cachedPageSize = hostPageSize()
	cachedPageMask = uint64(cachedPageSize - 1)
}

// PageSize returns the host page size that guest mappings must be aligned to.
func PageSize() int {
	pageSizeOnce.Do(initPageSize)
	return cachedPageSize
}

// isPageAligned returns true if addr is page-aligned (fast path)
func isPageAligned(addr uint64) bool {
	pageSizeOnce.Do(initPageSize)
	return addr&cachedPageMask == 0
}

// validateRange checks a guest physical range shared by map, unmap and protect.
func validateRange(gpa, size uint64) error {
	if size == 0 {
		return fmt.Errorf("hv: guest range must have non-zero size")
	}
	// Security: Prevent integer overflow vulnerabilities
	if gpa > math.MaxUint64-size {
		return fmt.Errorf("hv: guest address range 0x%x+%d would overflow", gpa, size)
	}
	if !isPageAligned(gpa) {
		return fmt.Errorf("hv: guest address not page-aligned: 0x%x (page size: %d): %w", gpa, PageSize(), ErrInvalidAlignment)
	}
	if !isPageAligned(size) {
		return fmt.Errorf("hv: size not page multiple: %d (page size: %d): %w", size, PageSize(), ErrInvalidAlignment)
	}
	return nil
}

func validatePerms(perms MemPerm) error {
	// Validate permissions - must have at least one permission set
	if perms == 0 {
		return fmt.Errorf("hv: at least one permission (read, write, or exec) is required: %w", ErrInvalidPermissions)
	}
	if perms&^memPermMask != 0 {
		return fmt.Errorf("hv: invalid permission bits 0x%x (valid: 0x%x): %w", uint(perms), uint(memPermMask), ErrInvalidPermissions)
	}
	return nil
}

// validateMap checks a host buffer and its target guest range.
func validateMap(host []byte, gpa uint64, perms MemPerm) error {
	if len(host) == 0 {
		return fmt.Errorf("hv: map requires non-empty host buffer")
	}
	if err := validateRange(gpa, uint64(len(host))); err != nil {
		return err
	}
	if err := validatePerms(perms); err != nil {
		return err
	}
	ptr := unsafe.Pointer(unsafe.SliceData(host))
	if !isPageAligned(uint64(uintptr(ptr))) {
		return fmt.Errorf("hv: host base not page-aligned: %p (page size: %d): %w", ptr, PageSize(), ErrInvalidAlignment)
	}
	return nil
}

// GuestMemory is page-aligned anonymous host memory suitable for mapping
// into a guest. It lives outside the Go heap.
type GuestMemory struct {
	mu   sync.Mutex
	data []byte
}

// NewGuestMemory allocates size bytes rounded up to a page multiple.
func NewGuestMemory(size int) (*GuestMemory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("hv: guest memory size must be positive, got %d", size)
	}
	ps := PageSize()
	if size > math.MaxInt-ps {
		return nil, fmt.Errorf("hv: guest memory size %d too large", size)
	}
	size = (size + ps - 1) &^ (ps - 1)
	data, err := allocGuestMemory(size)
	if err != nil {
		return nil, fmt.Errorf("hv: failed to allocate %d bytes of guest memory: %w", size, err)
	}
	return &GuestMemory{data: data}, nil
}

// Bytes returns the backing memory. It is nil after Close.
func (m *GuestMemory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Len returns the allocation size in bytes.
func (m *GuestMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Close releases the memory. It must not be mapped into a guest anymore.
// Idempotent.
func (m *GuestMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	err := freeGuestMemory(m.data)
	m.data = nil
	return err
}
