package hv

import (
	"fmt"
	"maps"
	"slices"

	"github.com/blacktop/hv/arm64"
)

// GetReg returns the value of a general purpose or special register.
func (c *VCPU) GetReg(r arm64.Reg) (uint64, error) {
	if !r.Valid() {
		recordValidationError()
		return 0, fmt.Errorf("hv: register %d (must be %s-%s): %w", uint32(r), arm64.X0, arm64.CPSR, ErrInvalidRegister)
	}
	var v uint64
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuGetReg(c.h, r)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get register %s: %w", r, err)
	}
	recordRegisterOp()
	return v, nil
}

// SetReg sets the value of a general purpose or special register.
func (c *VCPU) SetReg(r arm64.Reg, v uint64) error {
	if !r.Valid() {
		recordValidationError()
		return fmt.Errorf("hv: register %d (must be %s-%s): %w", uint32(r), arm64.X0, arm64.CPSR, ErrInvalidRegister)
	}
	err := c.call(func(fw framework) error { return fw.vcpuSetReg(c.h, r, v) })
	if err != nil {
		return fmt.Errorf("failed to set register %s: %w", r, err)
	}
	recordRegisterOp()
	return nil
}

func (c *VCPU) GetPC() (uint64, error) { return c.GetReg(arm64.PC) }
func (c *VCPU) SetPC(v uint64) error   { return c.SetReg(arm64.PC, v) }

// RegBatch maps registers to values for batch access.
type RegBatch map[arm64.Reg]uint64

// GetRegs reads several registers in one trip to the vCPU thread.
func (c *VCPU) GetRegs(regs ...arm64.Reg) (RegBatch, error) {
	for _, r := range regs {
		if !r.Valid() {
			recordValidationError()
			return nil, fmt.Errorf("hv: register %d: %w", uint32(r), ErrInvalidRegister)
		}
	}
	batch := make(RegBatch, len(regs))
	err := c.call(func(fw framework) error {
		for _, r := range regs {
			v, err := fw.vcpuGetReg(c.h, r)
			if err != nil {
				return fmt.Errorf("register %s: %w", r, err)
			}
			batch[r] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get registers: %w", err)
	}
	registerOps.Add(uint64(len(regs)))
	return batch, nil
}

// SetRegs writes several registers in one trip to the vCPU thread, in
// register order.
func (c *VCPU) SetRegs(batch RegBatch) error {
	regs := slices.Sorted(maps.Keys(batch))
	for _, r := range regs {
		if !r.Valid() {
			recordValidationError()
			return fmt.Errorf("hv: register %d: %w", uint32(r), ErrInvalidRegister)
		}
	}
	err := c.call(func(fw framework) error {
		for _, r := range regs {
			if err := fw.vcpuSetReg(c.h, r, batch[r]); err != nil {
				return fmt.Errorf("register %s: %w", r, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set registers: %w", err)
	}
	registerOps.Add(uint64(len(regs)))
	return nil
}

// GetSysReg returns the value of a system register.
func (c *VCPU) GetSysReg(r arm64.SysReg) (uint64, error) {
	var v uint64
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuGetSysReg(c.h, r)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get system register %s: %w", r, err)
	}
	recordRegisterOp()
	return v, nil
}

// SetSysReg sets the value of a system register.
func (c *VCPU) SetSysReg(r arm64.SysReg, v uint64) error {
	err := c.call(func(fw framework) error { return fw.vcpuSetSysReg(c.h, r, v) })
	if err != nil {
		return fmt.Errorf("failed to set system register %s: %w", r, err)
	}
	recordRegisterOp()
	return nil
}

// GetSIMDFPReg returns the value of a SIMD & FP register.
func (c *VCPU) GetSIMDFPReg(r arm64.SimdFPReg) (arm64.SimdFP, error) {
	if !r.Valid() {
		recordValidationError()
		return arm64.SimdFP{}, fmt.Errorf("hv: SIMD&FP register %d: %w", uint32(r), ErrInvalidRegister)
	}
	var v arm64.SimdFP
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuGetSIMDFPReg(c.h, r)
		return err
	})
	if err != nil {
		return arm64.SimdFP{}, fmt.Errorf("failed to get SIMD&FP register %s: %w", r, err)
	}
	recordRegisterOp()
	return v, nil
}

// SetSIMDFPReg sets the value of a SIMD & FP register.
func (c *VCPU) SetSIMDFPReg(r arm64.SimdFPReg, v arm64.SimdFP) error {
	if !r.Valid() {
		recordValidationError()
		return fmt.Errorf("hv: SIMD&FP register %d: %w", uint32(r), ErrInvalidRegister)
	}
	err := c.call(func(fw framework) error { return fw.vcpuSetSIMDFPReg(c.h, r, v) })
	if err != nil {
		return fmt.Errorf("failed to set SIMD&FP register %s: %w", r, err)
	}
	recordRegisterOp()
	return nil
}

// PendingInterrupt reports whether an interrupt of type t is pending.
func (c *VCPU) PendingInterrupt(t arm64.InterruptType) (bool, error) {
	return c.getBool("pending "+t.String(), func(fw framework) (bool, error) {
		return fw.vcpuGetPendingInterrupt(c.h, t)
	})
}

// SetPendingInterrupt marks an interrupt of type t pending for the next
// run. The framework clears it once the guest takes it.
func (c *VCPU) SetPendingInterrupt(t arm64.InterruptType, pending bool) error {
	return c.setBool("pending "+t.String(), func(fw framework) error {
		return fw.vcpuSetPendingInterrupt(c.h, t, pending)
	})
}

// TrapDebugExceptions reports whether guest debug exceptions exit to the host.
func (c *VCPU) TrapDebugExceptions() (bool, error) {
	return c.getBool("debug exception trap", func(fw framework) (bool, error) {
		return fw.vcpuGetTrapDebugExceptions(c.h)
	})
}

func (c *VCPU) SetTrapDebugExceptions(enable bool) error {
	return c.setBool("debug exception trap", func(fw framework) error {
		return fw.vcpuSetTrapDebugExceptions(c.h, enable)
	})
}

// TrapDebugRegAccesses reports whether guest debug register accesses exit
// to the host.
func (c *VCPU) TrapDebugRegAccesses() (bool, error) {
	return c.getBool("debug register trap", func(fw framework) (bool, error) {
		return fw.vcpuGetTrapDebugRegAccesses(c.h)
	})
}

func (c *VCPU) SetTrapDebugRegAccesses(enable bool) error {
	return c.setBool("debug register trap", func(fw framework) error {
		return fw.vcpuSetTrapDebugRegAccesses(c.h, enable)
	})
}

// VTimerMask reports whether the virtual timer is masked. The framework
// masks it on every vtimer exit.
func (c *VCPU) VTimerMask() (bool, error) {
	return c.getBool("vtimer mask", func(fw framework) (bool, error) {
		return fw.vcpuGetVTimerMask(c.h)
	})
}

func (c *VCPU) SetVTimerMask(masked bool) error {
	return c.setBool("vtimer mask", func(fw framework) error {
		return fw.vcpuSetVTimerMask(c.h, masked)
	})
}

// VTimerOffset returns the virtual timer offset.
func (c *VCPU) VTimerOffset() (uint64, error) {
	var v uint64
	err := c.call(func(fw framework) error {
		var err error
		v, err = fw.vcpuGetVTimerOffset(c.h)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get vtimer offset: %w", err)
	}
	return v, nil
}

func (c *VCPU) SetVTimerOffset(offset uint64) error {
	err := c.call(func(fw framework) error { return fw.vcpuSetVTimerOffset(c.h, offset) })
	if err != nil {
		return fmt.Errorf("failed to set vtimer offset: %w", err)
	}
	return nil
}

// ExitInfo returns the exit information of the last Run.
func (c *VCPU) ExitInfo() (ExitInfo, error) {
	var info ExitInfo
	err := c.call(func(framework) error {
		var err error
		info, err = c.readExit()
		return err
	})
	return info, err
}

func (c *VCPU) getBool(what string, get func(fw framework) (bool, error)) (bool, error) {
	var v bool
	err := c.call(func(fw framework) error {
		var err error
		v, err = get(fw)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return v, nil
}

func (c *VCPU) setBool(what string, set func(fw framework) error) error {
	if err := c.call(set); err != nil {
		return fmt.Errorf("failed to set %s: %w", what, err)
	}
	return nil
}
