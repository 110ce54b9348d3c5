package hv

import (
	"fmt"

	"github.com/blacktop/hv/arm64"
)

func regKey(r arm64.Reg) string       { return fmt.Sprintf("reg:%d", r) }
func sysRegKey(r arm64.SysReg) string { return fmt.Sprintf("sys:0x%x", uint16(r)) }

func (f *fakeFramework) vcpuGetReg(h vcpuHandle, r arm64.Reg) (uint64, error) {
	return f.get("vcpuGetReg", h, regKey(r))
}

func (f *fakeFramework) vcpuSetReg(h vcpuHandle, r arm64.Reg, v uint64) error {
	return f.set("vcpuSetReg", h, regKey(r), v)
}

func (f *fakeFramework) vcpuGetSysReg(h vcpuHandle, r arm64.SysReg) (uint64, error) {
	return f.get("vcpuGetSysReg", h, sysRegKey(r))
}

func (f *fakeFramework) vcpuSetSysReg(h vcpuHandle, r arm64.SysReg, v uint64) error {
	return f.set("vcpuSetSysReg", h, sysRegKey(r), v)
}

func (f *fakeFramework) vcpuGetSIMDFPReg(h vcpuHandle, r arm64.SimdFPReg) (arm64.SimdFP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuGetSIMDFPReg", h)
	if err != nil {
		return arm64.SimdFP{}, err
	}
	return v.simd[uint32(r)], nil
}

func (f *fakeFramework) vcpuSetSIMDFPReg(h vcpuHandle, r arm64.SimdFPReg, val arm64.SimdFP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuSetSIMDFPReg", h)
	if err != nil {
		return err
	}
	v.simd[uint32(r)] = val
	return nil
}

func (f *fakeFramework) vcpuGetPendingInterrupt(h vcpuHandle, t arm64.InterruptType) (bool, error) {
	return f.getBool("vcpuGetPendingInterrupt", h, "pending:"+t.String())
}

func (f *fakeFramework) vcpuSetPendingInterrupt(h vcpuHandle, t arm64.InterruptType, pending bool) error {
	return f.setBool("vcpuSetPendingInterrupt", h, "pending:"+t.String(), pending)
}

func (f *fakeFramework) vcpuGetTrapDebugExceptions(h vcpuHandle) (bool, error) {
	return f.getBool("vcpuGetTrapDebugExceptions", h, "trap-debug-exceptions")
}

func (f *fakeFramework) vcpuSetTrapDebugExceptions(h vcpuHandle, enable bool) error {
	return f.setBool("vcpuSetTrapDebugExceptions", h, "trap-debug-exceptions", enable)
}

func (f *fakeFramework) vcpuGetTrapDebugRegAccesses(h vcpuHandle) (bool, error) {
	return f.getBool("vcpuGetTrapDebugRegAccesses", h, "trap-debug-reg-accesses")
}

func (f *fakeFramework) vcpuSetTrapDebugRegAccesses(h vcpuHandle, enable bool) error {
	return f.setBool("vcpuSetTrapDebugRegAccesses", h, "trap-debug-reg-accesses", enable)
}

func (f *fakeFramework) vcpuGetVTimerMask(h vcpuHandle) (bool, error) {
	return f.getBool("vcpuGetVTimerMask", h, "vtimer-mask")
}

func (f *fakeFramework) vcpuSetVTimerMask(h vcpuHandle, masked bool) error {
	return f.setBool("vcpuSetVTimerMask", h, "vtimer-mask", masked)
}

func (f *fakeFramework) vcpuGetVTimerOffset(h vcpuHandle) (uint64, error) {
	return f.get("vcpuGetVTimerOffset", h, "vtimer-offset")
}

func (f *fakeFramework) vcpuSetVTimerOffset(h vcpuHandle, offset uint64) error {
	return f.set("vcpuSetVTimerOffset", h, "vtimer-offset", offset)
}

// vcpuExit reports a BRK #imm16 exception with imm16 taken from X0, or a
// canceled exit after a forced exit.
func (f *fakeFramework) vcpuExit(h vcpuHandle) ExitInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuExit", h)
	if err != nil {
		return ExitInfo{Reason: arm64.ExitUnknown}
	}
	if v.bools["canceled"] {
		return ExitInfo{Reason: arm64.ExitCanceled}
	}
	syn := arm64.Syndrome(uint64(arm64.ECBRK64)<<26 | 1<<25 | v.vals[regKey(arm64.X0)]&0xffff)
	return ExitInfo{Reason: arm64.ExitException, Syndrome: syn, PhysicalAddress: v.vals[regKey(arm64.PC)]}
}
