package hv

import (
	"fmt"

	"github.com/blacktop/hv/x86"
	"github.com/blacktop/hv/x86/vmx"
)

func regKey(r x86.Reg) string      { return fmt.Sprintf("reg:%d", r) }
func msrKey(msr uint32) string     { return fmt.Sprintf("msr:0x%x", msr) }
func vmcsKey(f vmx.Field) string   { return fmt.Sprintf("vmcs:0x%x", uint32(f)) }
func shadowKey(f vmx.Field) string { return fmt.Sprintf("shadow:0x%x", uint32(f)) }
func nativeKey(msr uint32) string  { return fmt.Sprintf("native:0x%x", msr) }
func accessKey(f vmx.Field) string { return fmt.Sprintf("access:0x%x", uint32(f)) }
func fpStateKey(i int) string      { return fmt.Sprintf("fp:%d", i) }

func (f *fakeFramework) vmSyncTSC(tsc uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("vmSyncTSC"); err != nil {
		return err
	}
	for _, v := range f.vcpus {
		v.vals[msrKey(x86.MSRTSC)] = tsc
	}
	return nil
}

func (f *fakeFramework) vmxCapability(c vmx.Capability) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c > vmx.CapPreemptionTimer {
		return 0, Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	// allowed-0 in the low half, allowed-1 in the high half.
	return 0xffff_ffff_0000_0016, nil
}

func (f *fakeFramework) vcpuReadRegister(h vcpuHandle, r x86.Reg) (uint64, error) {
	return f.get("vcpuReadRegister", h, regKey(r))
}

func (f *fakeFramework) vcpuWriteRegister(h vcpuHandle, r x86.Reg, v uint64) error {
	return f.set("vcpuWriteRegister", h, regKey(r), v)
}

func (f *fakeFramework) vcpuReadMSR(h vcpuHandle, msr uint32) (uint64, error) {
	return f.get("vcpuReadMSR", h, msrKey(msr))
}

func (f *fakeFramework) vcpuWriteMSR(h vcpuHandle, msr uint32, v uint64) error {
	return f.set("vcpuWriteMSR", h, msrKey(msr), v)
}

func (f *fakeFramework) vcpuEnableNativeMSR(h vcpuHandle, msr uint32, enable bool) error {
	return f.setBool("vcpuEnableNativeMSR", h, nativeKey(msr), enable)
}

func (f *fakeFramework) vcpuReadFPState(h vcpuHandle, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuReadFPState", h)
	if err != nil {
		return err
	}
	for i := range buf {
		buf[i] = byte(v.vals[fpStateKey(i)])
	}
	return nil
}

func (f *fakeFramework) vcpuWriteFPState(h vcpuHandle, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuWriteFPState", h)
	if err != nil {
		return err
	}
	for i, b := range buf {
		v.vals[fpStateKey(i)] = uint64(b)
	}
	return nil
}

func (f *fakeFramework) vcpuFlush(h vcpuHandle) error {
	return f.setBool("vcpuFlush", h, "flushed", true)
}

func (f *fakeFramework) vcpuInvalidateTLB(h vcpuHandle) error {
	return f.setBool("vcpuInvalidateTLB", h, "tlb-invalidated", true)
}

func (f *fakeFramework) vcpuSetSpace(h vcpuHandle, space uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuSetSpace", h)
	if err != nil {
		return err
	}
	if space != defaultSpace && !f.spaces[space] {
		return Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	v.vals["space"] = uint64(space)
	return nil
}

func (f *fakeFramework) vcpuRunUntil(h vcpuHandle, deadline uint64) error {
	if err := f.vcpuRun(h); err != nil {
		return err
	}
	return f.set("vcpuRunUntil", h, "deadline", deadline)
}

// vcpuReadVMCS reports an external interrupt exit after a forced exit.
func (f *fakeFramework) vcpuReadVMCS(h vcpuHandle, fld vmx.Field) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuReadVMCS", h)
	if err != nil {
		return 0, err
	}
	if fld == vmx.ROExitReason && v.bools["canceled"] {
		return uint64(vmx.ReasonIRQ), nil
	}
	return v.vals[vmcsKey(fld)], nil
}

func (f *fakeFramework) vcpuWriteVMCS(h vcpuHandle, fld vmx.Field, val uint64) error {
	return f.set("vcpuWriteVMCS", h, vmcsKey(fld), val)
}

func (f *fakeFramework) vcpuReadShadowVMCS(h vcpuHandle, fld vmx.Field) (uint64, error) {
	return f.get("vcpuReadShadowVMCS", h, shadowKey(fld))
}

func (f *fakeFramework) vcpuWriteShadowVMCS(h vcpuHandle, fld vmx.Field, val uint64) error {
	return f.set("vcpuWriteShadowVMCS", h, shadowKey(fld), val)
}

func (f *fakeFramework) vcpuSetShadowAccess(h vcpuHandle, fld vmx.Field, flags vmx.ShadowFlags) error {
	return f.set("vcpuSetShadowAccess", h, accessKey(fld), uint64(flags))
}
