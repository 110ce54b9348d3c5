package hv

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// addressSpace maps host memory into one guest physical address space and
// keeps the region table in step with the framework.
type addressSpace struct {
	fw      framework
	id      uint32
	regions regionTable
}

func (as *addressSpace) mapHost(host []byte, gpa uint64, perms MemPerm) error {
	if err := validateMap(host, gpa, perms); err != nil {
		recordValidationError()
		return err
	}
	err := as.regions.add(host, gpa, perms, func() error {
		return resourceErr(as.fw.vmMap(as.id, host, gpa, perms))
	})
	if err != nil {
		return fmt.Errorf("failed to map %d bytes at 0x%x with perms %s: %w", len(host), gpa, perms, err)
	}
	recordMapOperation()
	return nil
}

func (as *addressSpace) unmap(gpa, size uint64) error {
	if err := validateRange(gpa, size); err != nil {
		recordValidationError()
		return err
	}
	err := as.regions.remove(gpa, size, func() error {
		return resourceErr(as.fw.vmUnmap(as.id, gpa, size))
	})
	if err != nil {
		return fmt.Errorf("failed to unmap region 0x%x+%d: %w", gpa, size, err)
	}
	recordUnmapOperation()
	return nil
}

func (as *addressSpace) protect(gpa, size uint64, perms MemPerm) error {
	if err := validateRange(gpa, size); err != nil {
		recordValidationError()
		return err
	}
	if err := validatePerms(perms); err != nil {
		recordValidationError()
		return err
	}
	err := as.regions.protect(gpa, size, perms, func() error {
		return resourceErr(as.fw.vmProtect(as.id, gpa, size, perms))
	})
	if err != nil {
		return fmt.Errorf("failed to protect region 0x%x+%d as %s: %w", gpa, size, perms, err)
	}
	recordProtectOperation()
	return nil
}

// resourceErr counts framework failures.
func resourceErr(err error) error {
	if err != nil {
		recordResourceError()
	}
	return err
}

// Space is an additional guest physical address space (hv_vm_space_t).
// vCPUs are switched to it with VCPU.SetSpace on Intel hosts.
type Space struct {
	vm  *VM
	mem addressSpace

	mu     sync.RWMutex
	closed bool
}

// ID returns the framework address space identifier.
func (s *Space) ID() uint32 { return s.mem.id }

func (s *Space) rlock() error {
	if s == nil {
		return fmt.Errorf("hv: Space is nil")
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSpaceClosed
	}
	return nil
}

// Map maps host memory into the address space. See VM.Map.
func (s *Space) Map(host []byte, gpa uint64, perms MemPerm) error {
	if err := s.rlock(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.mem.mapHost(host, gpa, perms)
}

// Unmap removes a mapped range from the address space.
func (s *Space) Unmap(gpa, size uint64) error {
	if err := s.rlock(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.mem.unmap(gpa, size)
}

// Protect changes the permissions of a mapped range.
func (s *Space) Protect(gpa, size uint64, perms MemPerm) error {
	if err := s.rlock(); err != nil {
		return err
	}
	defer s.mu.RUnlock()
	return s.mem.protect(gpa, size, perms)
}

// Regions lists the mappings of the address space by address.
func (s *Space) Regions() []Region { return s.mem.regions.list() }

// GuestBytes returns the host memory backing n bytes at gpa.
func (s *Space) GuestBytes(gpa uint64, n int) ([]byte, error) {
	return s.mem.regions.translate(gpa, n)
}

// Close destroys the address space. Idempotent.
func (s *Space) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if err := s.mem.fw.spaceDestroy(s.mem.id); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to destroy address space %d: %w", s.mem.id, err)
	}
	s.closed = true
	s.mem.regions.clear()
	s.vm.releaseSpace()

	runtime.SetFinalizer(s, nil)
	recordSpaceDestroy()
	logger().Debug("address space destroyed", slog.Uint64("id", uint64(s.mem.id)))
	return nil
}

func (s *Space) finalize() {
	if !s.mu.TryLock() {
		return
	}
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.mem.regions.clear()

	logger().Warn("hv: address space was not closed, destroying it in finalizer",
		slog.Uint64("id", uint64(s.mem.id)))
	if err := s.mem.fw.spaceDestroy(s.mem.id); err != nil {
		logger().Warn("hv: finalizer failed to destroy address space",
			slog.Uint64("id", uint64(s.mem.id)), slog.Any("error", err))
		return
	}
	s.vm.releaseSpace()
	recordSpaceDestroy()
}
