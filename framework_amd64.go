package hv

import (
	"fmt"

	"github.com/blacktop/hv/x86"
	"github.com/blacktop/hv/x86/vmx"
)

type archFramework interface {
	vmSyncTSC(tsc uint64) error
	vmxCapability(c vmx.Capability) (uint64, error)

	vcpuReadRegister(h vcpuHandle, r x86.Reg) (uint64, error)
	vcpuWriteRegister(h vcpuHandle, r x86.Reg, v uint64) error
	vcpuReadMSR(h vcpuHandle, msr uint32) (uint64, error)
	vcpuWriteMSR(h vcpuHandle, msr uint32, v uint64) error
	vcpuEnableNativeMSR(h vcpuHandle, msr uint32, enable bool) error
	vcpuReadFPState(h vcpuHandle, buf []byte) error
	vcpuWriteFPState(h vcpuHandle, buf []byte) error
	vcpuFlush(h vcpuHandle) error
	vcpuInvalidateTLB(h vcpuHandle) error
	vcpuSetSpace(h vcpuHandle, space uint32) error
	vcpuRunUntil(h vcpuHandle, deadline uint64) error
	vcpuReadVMCS(h vcpuHandle, f vmx.Field) (uint64, error)
	vcpuWriteVMCS(h vcpuHandle, f vmx.Field, v uint64) error
	vcpuReadShadowVMCS(h vcpuHandle, f vmx.Field) (uint64, error)
	vcpuWriteShadowVMCS(h vcpuHandle, f vmx.Field, v uint64) error
	vcpuSetShadowAccess(h vcpuHandle, f vmx.Field, flags vmx.ShadowFlags) error
}

// ExitInfo captures the VMCS exit fields after a vCPU exit.
type ExitInfo struct {
	Reason vmx.Reason
	// Qualification is RO_EXIT_QUALIFIC.
	Qualification uint64
	// InstructionLength is RO_VMEXIT_INSTR_LEN.
	InstructionLength uint32
	// GuestPhysicalAddress is the faulting address of an EPT exit.
	GuestPhysicalAddress uint64
}

func (e ExitInfo) String() string {
	return fmt.Sprintf("%s qual=0x%x", e.Reason, e.Qualification)
}

// readExit runs on the vCPU thread.
func (c *VCPU) readExit() (ExitInfo, error) {
	fw := c.vm.fw
	var info ExitInfo
	reason, err := fw.vcpuReadVMCS(c.h, vmx.ROExitReason)
	if err != nil {
		return info, fmt.Errorf("read exit reason: %w", err)
	}
	info.Reason = vmx.Reason(reason)
	if info.Qualification, err = fw.vcpuReadVMCS(c.h, vmx.ROExitQualific); err != nil {
		return info, fmt.Errorf("read exit qualification: %w", err)
	}
	n, err := fw.vcpuReadVMCS(c.h, vmx.ROVmexitInstrLen)
	if err != nil {
		return info, fmt.Errorf("read exit instruction length: %w", err)
	}
	info.InstructionLength = uint32(n)
	switch info.Reason.Basic() {
	case vmx.ReasonEPTViolation, vmx.ReasonEPTMisconfig:
		if info.GuestPhysicalAddress, err = fw.vcpuReadVMCS(c.h, vmx.GuestPhysicalAddress); err != nil {
			return info, fmt.Errorf("read guest physical address: %w", err)
		}
	}
	return info, nil
}
