package hv

import (
	"fmt"
	"time"

	"github.com/blacktop/hv/x86"
	"github.com/blacktop/hv/x86/vmx"
)

// SyncTSC synchronizes the guest TSC of all vCPUs to tsc.
func (vm *VM) SyncTSC(tsc uint64) error {
	if err := vm.rlock(); err != nil {
		return err
	}
	defer vm.mu.RUnlock()
	if err := vm.fw.vmSyncTSC(tsc); err != nil {
		return fmt.Errorf("failed to sync TSC: %w", err)
	}
	return nil
}

// VMXCapability returns a VMX capability value. The low 32 bits are the
// allowed-0 settings and the high 32 bits the allowed-1 settings; see
// vmx.AdjustControls.
func (vm *VM) VMXCapability(c vmx.Capability) (uint64, error) {
	if err := vm.rlock(); err != nil {
		return 0, err
	}
	defer vm.mu.RUnlock()
	v, err := vm.fw.vmxCapability(c)
	if err != nil {
		return 0, fmt.Errorf("failed to read VMX capability %s: %w", c, err)
	}
	return v, nil
}

// ReadRegister returns the value of an architectural x86 register.
func (c *VCPU) ReadRegister(r x86.Reg) (uint64, error) {
	if !r.Valid() {
		recordValidationError()
		return 0, fmt.Errorf("hv: register %d: %w", uint32(r), ErrInvalidRegister)
	}
	var v uint64
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuReadRegister(c.h, r)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read register %s: %w", r, err)
	}
	recordRegisterOp()
	return v, nil
}

// WriteRegister sets the value of an architectural x86 register.
func (c *VCPU) WriteRegister(r x86.Reg, v uint64) error {
	if !r.Valid() {
		recordValidationError()
		return fmt.Errorf("hv: register %d: %w", uint32(r), ErrInvalidRegister)
	}
	err := c.call(func(fw framework) error { return fw.vcpuWriteRegister(c.h, r, v) })
	if err != nil {
		return fmt.Errorf("failed to write register %s: %w", r, err)
	}
	recordRegisterOp()
	return nil
}

// ReadMSR returns the value of a model specific register.
func (c *VCPU) ReadMSR(msr uint32) (uint64, error) {
	var v uint64
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuReadMSR(c.h, msr)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read MSR 0x%x: %w", msr, err)
	}
	recordRegisterOp()
	return v, nil
}

// WriteMSR sets the value of a model specific register.
func (c *VCPU) WriteMSR(msr uint32, v uint64) error {
	err := c.call(func(fw framework) error { return fw.vcpuWriteMSR(c.h, msr, v) })
	if err != nil {
		return fmt.Errorf("failed to write MSR 0x%x: %w", msr, err)
	}
	recordRegisterOp()
	return nil
}

// EnableNativeMSR lets the guest access msr without exiting.
func (c *VCPU) EnableNativeMSR(msr uint32, enable bool) error {
	err := c.call(func(fw framework) error { return fw.vcpuEnableNativeMSR(c.h, msr, enable) })
	if err != nil {
		return fmt.Errorf("failed to set native MSR 0x%x to %t: %w", msr, enable, err)
	}
	return nil
}

// ReadFPState copies the XSAVE-format floating point and SIMD state into
// buf. The layout and size are those of the host XSAVE feature set.
func (c *VCPU) ReadFPState(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("hv: empty FP state buffer")
	}
	if err := c.call(func(fw framework) error { return fw.vcpuReadFPState(c.h, buf) }); err != nil {
		return fmt.Errorf("failed to read FP state: %w", err)
	}
	return nil
}

// WriteFPState loads the floating point and SIMD state from buf.
func (c *VCPU) WriteFPState(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("hv: empty FP state buffer")
	}
	if err := c.call(func(fw framework) error { return fw.vcpuWriteFPState(c.h, buf) }); err != nil {
		return fmt.Errorf("failed to write FP state: %w", err)
	}
	return nil
}

// Flush forces flushing of cached vCPU state.
func (c *VCPU) Flush() error {
	if err := c.call(func(fw framework) error { return fw.vcpuFlush(c.h) }); err != nil {
		return fmt.Errorf("failed to flush vCPU: %w", err)
	}
	return nil
}

// InvalidateTLB invalidates the TLB of the vCPU.
func (c *VCPU) InvalidateTLB() error {
	if err := c.call(func(fw framework) error { return fw.vcpuInvalidateTLB(c.h) }); err != nil {
		return fmt.Errorf("failed to invalidate TLB: %w", err)
	}
	return nil
}

// SetSpace moves the vCPU to address space s. A nil s selects the default
// address space.
func (c *VCPU) SetSpace(s *Space) error {
	id := defaultSpace
	if s != nil {
		if err := s.rlock(); err != nil {
			return err
		}
		defer s.mu.RUnlock()
		if s.vm != c.vm {
			return fmt.Errorf("hv: address space %d belongs to another VM", s.ID())
		}
		id = s.ID()
	}
	if err := c.call(func(fw framework) error { return fw.vcpuSetSpace(c.h, id) }); err != nil {
		return fmt.Errorf("failed to set address space %d: %w", id, err)
	}
	return nil
}

// RunUntil executes the vCPU until it exits or the host absolute time
// deadline, in mach_absolute_time units, passes. Unlike Run it does not
// return on exits caused outside the guest.
func (c *VCPU) RunUntil(deadline uint64) (ExitInfo, error) {
	start := time.Now()
	var info ExitInfo
	err := c.call(func(fw framework) error {
		if err := fw.vcpuRunUntil(c.h, deadline); err != nil {
			return err
		}
		var err error
		info, err = c.readExit()
		return err
	})
	if err != nil {
		return info, fmt.Errorf("failed to run vCPU: %w", err)
	}
	recordRun(time.Since(start))
	return info, nil
}

// ReadVMCS returns the value of a VMCS field.
func (c *VCPU) ReadVMCS(f vmx.Field) (uint64, error) {
	var v uint64
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuReadVMCS(c.h, f)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read VMCS %s: %w", f, err)
	}
	return v, nil
}

// WriteVMCS sets a VMCS field. Read-only fields are rejected.
func (c *VCPU) WriteVMCS(f vmx.Field, v uint64) error {
	if f.ReadOnly() {
		recordValidationError()
		return fmt.Errorf("hv: VMCS field %s is read-only: %w", f, ErrBadArgument)
	}
	if err := c.call(func(fw framework) error { return fw.vcpuWriteVMCS(c.h, f, v) }); err != nil {
		return fmt.Errorf("failed to write VMCS %s: %w", f, err)
	}
	return nil
}

// ReadShadowVMCS returns the value of a shadow VMCS field.
func (c *VCPU) ReadShadowVMCS(f vmx.Field) (uint64, error) {
	var v uint64
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuReadShadowVMCS(c.h, f)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read shadow VMCS %s: %w", f, err)
	}
	return v, nil
}

// WriteShadowVMCS sets a shadow VMCS field.
func (c *VCPU) WriteShadowVMCS(f vmx.Field, v uint64) error {
	if err := c.call(func(fw framework) error { return fw.vcpuWriteShadowVMCS(c.h, f, v) }); err != nil {
		return fmt.Errorf("failed to write shadow VMCS %s: %w", f, err)
	}
	return nil
}

// SetShadowAccess controls whether the guest may read or write a shadow
// VMCS field without exiting.
func (c *VCPU) SetShadowAccess(f vmx.Field, flags vmx.ShadowFlags) error {
	if err := c.call(func(fw framework) error { return fw.vcpuSetShadowAccess(c.h, f, flags) }); err != nil {
		return fmt.Errorf("failed to set shadow access %s for %s: %w", flags, f, err)
	}
	return nil
}
