package hv

import (
	"fmt"

	"github.com/blacktop/hv/arm64"
)

type archFramework interface {
	vcpuGetReg(h vcpuHandle, r arm64.Reg) (uint64, error)
	vcpuSetReg(h vcpuHandle, r arm64.Reg, v uint64) error
	vcpuGetSysReg(h vcpuHandle, r arm64.SysReg) (uint64, error)
	vcpuSetSysReg(h vcpuHandle, r arm64.SysReg, v uint64) error
	vcpuGetSIMDFPReg(h vcpuHandle, r arm64.SimdFPReg) (arm64.SimdFP, error)
	vcpuSetSIMDFPReg(h vcpuHandle, r arm64.SimdFPReg, v arm64.SimdFP) error
	vcpuGetPendingInterrupt(h vcpuHandle, t arm64.InterruptType) (bool, error)
	vcpuSetPendingInterrupt(h vcpuHandle, t arm64.InterruptType, pending bool) error
	vcpuGetTrapDebugExceptions(h vcpuHandle) (bool, error)
	vcpuSetTrapDebugExceptions(h vcpuHandle, enable bool) error
	vcpuGetTrapDebugRegAccesses(h vcpuHandle) (bool, error)
	vcpuSetTrapDebugRegAccesses(h vcpuHandle, enable bool) error
	vcpuGetVTimerMask(h vcpuHandle) (bool, error)
	vcpuSetVTimerMask(h vcpuHandle, masked bool) error
	vcpuGetVTimerOffset(h vcpuHandle) (uint64, error)
	vcpuSetVTimerOffset(h vcpuHandle, offset uint64) error
	// vcpuExit reads the hv_vcpu_exit_t filled in by the last run.
	vcpuExit(h vcpuHandle) ExitInfo
}

// ExitInfo captures information about a recent vCPU exit (hv_vcpu_exit_t).
type ExitInfo struct {
	Reason arm64.ExitReason
	// Syndrome is the ESR of an exception exit.
	Syndrome arm64.Syndrome
	// VirtualAddress is the faulting virtual address (FAR) of an exception exit.
	VirtualAddress uint64
	// PhysicalAddress is the faulting IPA of an exception exit.
	PhysicalAddress uint64
}

func (e ExitInfo) String() string {
	if e.Reason != arm64.ExitException {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s %s va=0x%x pa=0x%x", e.Reason, e.Syndrome, e.VirtualAddress, e.PhysicalAddress)
}

// readExit runs on the vCPU thread.
func (c *VCPU) readExit() (ExitInfo, error) {
	return c.vm.fw.vcpuExit(c.h), nil
}
