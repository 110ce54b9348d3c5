//go:build cgo

package hv

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/Hypervisor.h>
#include <stdbool.h>
#include <stdint.h>

static hv_vm_options_t go_hv_vm_options(int specify, int a, int b, int c, int d, int e) {
	hv_vm_options_t opts = HV_VM_DEFAULT;
	if (specify) opts |= HV_VM_SPECIFY_MITIGATIONS;
	if (a) opts |= HV_VM_MITIGATION_A_ENABLE;
	if (b) opts |= HV_VM_MITIGATION_B_ENABLE;
	if (c) opts |= HV_VM_MITIGATION_C_ENABLE;
	if (d) opts |= HV_VM_MITIGATION_D_ENABLE;
	if (e) opts |= HV_VM_MITIGATION_E_ENABLE;
	return opts;
}

// Wrapper to construct flags using framework macros without exposing values to Go.
static hv_memory_flags_t go_hv_memory_flags(int r, int w, int x) {
	hv_memory_flags_t flags = 0;
	if (r) flags |= HV_MEMORY_READ;
	if (w) flags |= HV_MEMORY_WRITE;
	if (x) flags |= HV_MEMORY_EXEC;
	return flags;
}

static hv_return_t go_hv_capability(int addr_spaces, uint64_t *out) {
	return hv_capability(addr_spaces ? HV_CAP_ADDRSPACEMAX : HV_CAP_VCPUMAX, out);
}

static hv_return_t go_hv_vmx_read_capability(int cap, uint64_t *out) {
	hv_vmx_capability_t field;
	switch (cap) {
	case 0: field = HV_VMX_CAP_PINBASED; break;
	case 1: field = HV_VMX_CAP_PROCBASED; break;
	case 2: field = HV_VMX_CAP_PROCBASED2; break;
	case 3: field = HV_VMX_CAP_ENTRY; break;
	case 4: field = HV_VMX_CAP_EXIT; break;
	case 5: field = HV_VMX_CAP_PREEMPTION_TIMER; break;
	default: return HV_BAD_ARGUMENT;
	}
	return hv_vmx_read_capability(field, out);
}

static hv_shadow_flags_t go_hv_shadow_flags(int r, int w) {
	hv_shadow_flags_t flags = HV_SHADOW_VMCS_NONE;
	if (r) flags |= HV_SHADOW_VMCS_READ;
	if (w) flags |= HV_SHADOW_VMCS_WRITE;
	return flags;
}

static const hv_x86_reg_t go_hv_x86_regs[] = {
	HV_X86_RIP, HV_X86_RFLAGS, HV_X86_RAX, HV_X86_RCX, HV_X86_RDX, HV_X86_RBX,
	HV_X86_RSI, HV_X86_RDI, HV_X86_RSP, HV_X86_RBP,
	HV_X86_R8, HV_X86_R9, HV_X86_R10, HV_X86_R11, HV_X86_R12, HV_X86_R13, HV_X86_R14, HV_X86_R15,
	HV_X86_CS, HV_X86_SS, HV_X86_DS, HV_X86_ES, HV_X86_FS, HV_X86_GS,
	HV_X86_IDT_BASE, HV_X86_IDT_LIMIT, HV_X86_GDT_BASE, HV_X86_GDT_LIMIT,
	HV_X86_LDTR, HV_X86_LDT_BASE, HV_X86_LDT_LIMIT, HV_X86_LDT_AR,
	HV_X86_TR, HV_X86_TSS_BASE, HV_X86_TSS_LIMIT, HV_X86_TSS_AR,
	HV_X86_CR0, HV_X86_CR1, HV_X86_CR2, HV_X86_CR3, HV_X86_CR4,
	HV_X86_DR0, HV_X86_DR1, HV_X86_DR2, HV_X86_DR3, HV_X86_DR4, HV_X86_DR5, HV_X86_DR6, HV_X86_DR7,
	HV_X86_TPR, HV_X86_XCR0,
};

static hv_return_t go_hv_read_register(hv_vcpuid_t vcpu, uint32_t reg, uint64_t *out) {
	if (reg >= sizeof(go_hv_x86_regs) / sizeof(go_hv_x86_regs[0])) {
		return HV_BAD_ARGUMENT;
	}
	return hv_vcpu_read_register(vcpu, go_hv_x86_regs[reg], out);
}

static hv_return_t go_hv_write_register(hv_vcpuid_t vcpu, uint32_t reg, uint64_t value) {
	if (reg >= sizeof(go_hv_x86_regs) / sizeof(go_hv_x86_regs[0])) {
		return HV_BAD_ARGUMENT;
	}
	return hv_vcpu_write_register(vcpu, go_hv_x86_regs[reg], value);
}
*/
import "C"

import (
	"unsafe"

	"github.com/blacktop/hv/x86"
	"github.com/blacktop/hv/x86/vmx"
)

func hvErr(ret C.hv_return_t) error {
	return fromReturn(uint32(ret))
}

func memFlags(perms MemPerm) C.hv_memory_flags_t {
	return C.go_hv_memory_flags(
		boolInt(perms&MemRead != 0),
		boolInt(perms&MemWrite != 0),
		boolInt(perms&MemExec != 0),
	)
}

func boolInt(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

type cgoFramework struct{}

func defaultFramework() framework { return cgoFramework{} }

func (cgoFramework) vmCreate(cfg VMConfig) error {
	o := cfg.Options
	opts := C.go_hv_vm_options(
		boolInt(o&VMSpecifyMitigations != 0),
		boolInt(o&VMMitigationA != 0),
		boolInt(o&VMMitigationB != 0),
		boolInt(o&VMMitigationC != 0),
		boolInt(o&VMMitigationD != 0),
		boolInt(o&VMMitigationE != 0),
	)
	return hvErr(C.hv_vm_create(opts))
}

func (cgoFramework) vmDestroy() error {
	return hvErr(C.hv_vm_destroy())
}

func (cgoFramework) vmCapability(c Capability) (uint64, error) {
	var v C.uint64_t
	var ret C.hv_return_t
	switch c {
	case CapVCPUMax:
		ret = C.go_hv_capability(0, &v)
	case CapAddrSpaceMax:
		ret = C.go_hv_capability(1, &v)
	default:
		return 0, ErrUnsupported
	}
	if err := hvErr(ret); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vmMap(space uint32, host []byte, gpa uint64, perms MemPerm) error {
	uva := C.hv_uvaddr_t(unsafe.Pointer(unsafe.SliceData(host)))
	if space == defaultSpace {
		return hvErr(C.hv_vm_map(uva, C.hv_gpaddr_t(gpa), C.size_t(len(host)), memFlags(perms)))
	}
	return hvErr(C.hv_vm_map_space(C.hv_vm_space_t(space), uva, C.hv_gpaddr_t(gpa), C.size_t(len(host)), memFlags(perms)))
}

func (cgoFramework) vmUnmap(space uint32, gpa, size uint64) error {
	if space == defaultSpace {
		return hvErr(C.hv_vm_unmap(C.hv_gpaddr_t(gpa), C.size_t(size)))
	}
	return hvErr(C.hv_vm_unmap_space(C.hv_vm_space_t(space), C.hv_gpaddr_t(gpa), C.size_t(size)))
}

func (cgoFramework) vmProtect(space uint32, gpa, size uint64, perms MemPerm) error {
	if space == defaultSpace {
		return hvErr(C.hv_vm_protect(C.hv_gpaddr_t(gpa), C.size_t(size), memFlags(perms)))
	}
	return hvErr(C.hv_vm_protect_space(C.hv_vm_space_t(space), C.hv_gpaddr_t(gpa), C.size_t(size), memFlags(perms)))
}

func (cgoFramework) spaceCreate() (uint32, error) {
	var asid C.hv_vm_space_t
	if err := hvErr(C.hv_vm_space_create(&asid)); err != nil {
		return 0, err
	}
	return uint32(asid), nil
}

func (cgoFramework) spaceDestroy(space uint32) error {
	return hvErr(C.hv_vm_space_destroy(C.hv_vm_space_t(space)))
}

func (cgoFramework) vmSyncTSC(tsc uint64) error {
	return hvErr(C.hv_vm_sync_tsc(C.uint64_t(tsc)))
}

func (cgoFramework) vmxCapability(c vmx.Capability) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.go_hv_vmx_read_capability(C.int(c), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuCreate() (vcpuHandle, error) {
	var vcpu C.hv_vcpuid_t
	if err := hvErr(C.hv_vcpu_create(&vcpu, C.HV_VCPU_DEFAULT)); err != nil {
		return vcpuHandle{}, err
	}
	return vcpuHandle{id: uint64(vcpu)}, nil
}

func vcpuID(h vcpuHandle) C.hv_vcpuid_t { return C.hv_vcpuid_t(h.id) }

func (cgoFramework) vcpuDestroy(h vcpuHandle) error {
	return hvErr(C.hv_vcpu_destroy(vcpuID(h)))
}

func (cgoFramework) vcpuRun(h vcpuHandle) error {
	return hvErr(C.hv_vcpu_run(vcpuID(h)))
}

func (cgoFramework) vcpuRunUntil(h vcpuHandle, deadline uint64) error {
	return hvErr(C.hv_vcpu_run_until(vcpuID(h), C.uint64_t(deadline)))
}

func (cgoFramework) vcpuExecTime(h vcpuHandle) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vcpu_get_exec_time(vcpuID(h), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuForceExit(h vcpuHandle) error {
	vcpus := [1]C.hv_vcpuid_t{vcpuID(h)}
	return hvErr(C.hv_vcpu_interrupt(&vcpus[0], 1))
}

func (cgoFramework) vcpuReadRegister(h vcpuHandle, r x86.Reg) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.go_hv_read_register(vcpuID(h), C.uint32_t(r), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuWriteRegister(h vcpuHandle, r x86.Reg, v uint64) error {
	return hvErr(C.go_hv_write_register(vcpuID(h), C.uint32_t(r), C.uint64_t(v)))
}

func (cgoFramework) vcpuReadMSR(h vcpuHandle, msr uint32) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vcpu_read_msr(vcpuID(h), C.uint32_t(msr), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuWriteMSR(h vcpuHandle, msr uint32, v uint64) error {
	return hvErr(C.hv_vcpu_write_msr(vcpuID(h), C.uint32_t(msr), C.uint64_t(v)))
}

func (cgoFramework) vcpuEnableNativeMSR(h vcpuHandle, msr uint32, enable bool) error {
	return hvErr(C.hv_vcpu_enable_native_msr(vcpuID(h), C.uint32_t(msr), C.bool(enable)))
}

func (cgoFramework) vcpuReadFPState(h vcpuHandle, buf []byte) error {
	return hvErr(C.hv_vcpu_read_fpstate(vcpuID(h), unsafe.Pointer(unsafe.SliceData(buf)), C.size_t(len(buf))))
}

func (cgoFramework) vcpuWriteFPState(h vcpuHandle, buf []byte) error {
	return hvErr(C.hv_vcpu_write_fpstate(vcpuID(h), unsafe.Pointer(unsafe.SliceData(buf)), C.size_t(len(buf))))
}

func (cgoFramework) vcpuFlush(h vcpuHandle) error {
	return hvErr(C.hv_vcpu_flush(vcpuID(h)))
}

func (cgoFramework) vcpuInvalidateTLB(h vcpuHandle) error {
	return hvErr(C.hv_vcpu_invalidate_tlb(vcpuID(h)))
}

func (cgoFramework) vcpuSetSpace(h vcpuHandle, space uint32) error {
	return hvErr(C.hv_vcpu_set_space(vcpuID(h), C.hv_vm_space_t(space)))
}

func (cgoFramework) vcpuReadVMCS(h vcpuHandle, f vmx.Field) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vmx_vcpu_read_vmcs(vcpuID(h), C.uint32_t(f), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuWriteVMCS(h vcpuHandle, f vmx.Field, v uint64) error {
	return hvErr(C.hv_vmx_vcpu_write_vmcs(vcpuID(h), C.uint32_t(f), C.uint64_t(v)))
}

func (cgoFramework) vcpuReadShadowVMCS(h vcpuHandle, f vmx.Field) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vmx_vcpu_read_shadow_vmcs(vcpuID(h), C.uint32_t(f), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuWriteShadowVMCS(h vcpuHandle, f vmx.Field, v uint64) error {
	return hvErr(C.hv_vmx_vcpu_write_shadow_vmcs(vcpuID(h), C.uint32_t(f), C.uint64_t(v)))
}

func (cgoFramework) vcpuSetShadowAccess(h vcpuHandle, f vmx.Field, flags vmx.ShadowFlags) error {
	cflags := C.go_hv_shadow_flags(
		boolInt(flags&vmx.ShadowRead != 0),
		boolInt(flags&vmx.ShadowWrite != 0),
	)
	return hvErr(C.hv_vmx_vcpu_set_shadow_access(vcpuID(h), C.uint32_t(f), cflags))
}
