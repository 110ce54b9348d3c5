//go:build cgo

package hv

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/Hypervisor.h>
#include <os/object.h>
#include <stdbool.h>
#include <stdint.h>
#include <string.h>

// go_hv_vm_create creates the VM with an explicit IPA size, or the
// framework default when ipa_size is zero.
static hv_return_t go_hv_vm_create(uint32_t ipa_size) {
	if (ipa_size == 0) {
		return hv_vm_create(NULL);
	}
	if (__builtin_available(macOS 13.0, *)) {
		hv_vm_config_t config = hv_vm_config_create();
		if (!config) {
			return HV_ERROR;
		}
		hv_return_t ret = hv_vm_config_set_ipa_size(config, ipa_size);
		if (ret == HV_SUCCESS) {
			ret = hv_vm_create(config);
		}
		os_release(config);
		return ret;
	}
	return HV_UNSUPPORTED;
}

static hv_return_t go_hv_ipa_size(int want_max, uint32_t *out) {
	if (__builtin_available(macOS 13.0, *)) {
		if (want_max) {
			return hv_vm_config_get_max_ipa_size(out);
		}
		return hv_vm_config_get_default_ipa_size(out);
	}
	return HV_UNSUPPORTED;
}

// Wrapper to construct flags using framework macros without exposing values to Go.
static hv_memory_flags_t go_hv_memory_flags(int r, int w, int x) {
	hv_memory_flags_t flags = 0;
	if (r) flags |= HV_MEMORY_READ;
	if (w) flags |= HV_MEMORY_WRITE;
	if (x) flags |= HV_MEMORY_EXEC;
	return flags;
}

static hv_return_t go_hv_vcpu_create(hv_vcpu_t *vcpu, hv_vcpu_exit_t **exit) {
	return hv_vcpu_create(vcpu, exit, NULL);
}

// The SIMD&FP value type is a vector, which cgo cannot express.
static hv_return_t go_hv_get_simd_fp_reg(hv_vcpu_t vcpu, hv_simd_fp_reg_t reg, uint8_t *out) {
	hv_simd_fp_uchar16_t v;
	hv_return_t ret = hv_vcpu_get_simd_fp_reg(vcpu, reg, &v);
	if (ret == HV_SUCCESS) {
		memcpy(out, &v, sizeof(v));
	}
	return ret;
}

static hv_return_t go_hv_set_simd_fp_reg(hv_vcpu_t vcpu, hv_simd_fp_reg_t reg, const uint8_t *in) {
	hv_simd_fp_uchar16_t v;
	memcpy(&v, in, sizeof(v));
	return hv_vcpu_set_simd_fp_reg(vcpu, reg, v);
}
*/
import "C"

import (
	"unsafe"

	"github.com/blacktop/hv/arm64"
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
	return hvErr(C.go_hv_vm_create(C.uint32_t(cfg.IPASize)))
}

func (cgoFramework) vmDestroy() error {
	return hvErr(C.hv_vm_destroy())
}

func (cgoFramework) vmCapability(c Capability) (uint64, error) {
	var v C.uint32_t
	var ret C.hv_return_t
	switch c {
	case CapVCPUMax:
		ret = C.hv_vm_get_max_vcpu_count(&v)
	case CapMaxIPASize:
		ret = C.go_hv_ipa_size(1, &v)
	case CapDefaultIPASize:
		ret = C.go_hv_ipa_size(0, &v)
	default:
		return 0, ErrUnsupported
	}
	if err := hvErr(ret); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vmMap(space uint32, host []byte, gpa uint64, perms MemPerm) error {
	if space != defaultSpace {
		return ErrUnsupported
	}
	return hvErr(C.hv_vm_map(unsafe.Pointer(unsafe.SliceData(host)), C.hv_ipa_t(gpa), C.size_t(len(host)), memFlags(perms)))
}

func (cgoFramework) vmUnmap(space uint32, gpa, size uint64) error {
	if space != defaultSpace {
		return ErrUnsupported
	}
	return hvErr(C.hv_vm_unmap(C.hv_ipa_t(gpa), C.size_t(size)))
}

func (cgoFramework) vmProtect(space uint32, gpa, size uint64, perms MemPerm) error {
	if space != defaultSpace {
		return ErrUnsupported
	}
	return hvErr(C.hv_vm_protect(C.hv_ipa_t(gpa), C.size_t(size), memFlags(perms)))
}

// Apple silicon has a single guest physical address space.
func (cgoFramework) spaceCreate() (uint32, error) { return 0, ErrUnsupported }
func (cgoFramework) spaceDestroy(uint32) error    { return ErrUnsupported }

func (cgoFramework) vcpuCreate() (vcpuHandle, error) {
	var vcpu C.hv_vcpu_t
	var exit *C.hv_vcpu_exit_t
	if err := hvErr(C.go_hv_vcpu_create(&vcpu, &exit)); err != nil {
		return vcpuHandle{}, err
	}
	return vcpuHandle{id: uint64(vcpu), exit: unsafe.Pointer(exit)}, nil
}

func (cgoFramework) vcpuDestroy(h vcpuHandle) error {
	return hvErr(C.hv_vcpu_destroy(C.hv_vcpu_t(h.id)))
}

func (cgoFramework) vcpuRun(h vcpuHandle) error {
	return hvErr(C.hv_vcpu_run(C.hv_vcpu_t(h.id)))
}

func (cgoFramework) vcpuExecTime(h vcpuHandle) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vcpu_get_exec_time(C.hv_vcpu_t(h.id), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuForceExit(h vcpuHandle) error {
	vcpus := [1]C.hv_vcpu_t{C.hv_vcpu_t(h.id)}
	return hvErr(C.hv_vcpus_exit(&vcpus[0], 1))
}

func (cgoFramework) vcpuGetReg(h vcpuHandle, r arm64.Reg) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vcpu_get_reg(C.hv_vcpu_t(h.id), C.hv_reg_t(r), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuSetReg(h vcpuHandle, r arm64.Reg, v uint64) error {
	return hvErr(C.hv_vcpu_set_reg(C.hv_vcpu_t(h.id), C.hv_reg_t(r), C.uint64_t(v)))
}

func (cgoFramework) vcpuGetSysReg(h vcpuHandle, r arm64.SysReg) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vcpu_get_sys_reg(C.hv_vcpu_t(h.id), C.hv_sys_reg_t(r), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuSetSysReg(h vcpuHandle, r arm64.SysReg, v uint64) error {
	return hvErr(C.hv_vcpu_set_sys_reg(C.hv_vcpu_t(h.id), C.hv_sys_reg_t(r), C.uint64_t(v)))
}

func (cgoFramework) vcpuGetSIMDFPReg(h vcpuHandle, r arm64.SimdFPReg) (arm64.SimdFP, error) {
	var v arm64.SimdFP
	ret := C.go_hv_get_simd_fp_reg(C.hv_vcpu_t(h.id), C.hv_simd_fp_reg_t(r), (*C.uint8_t)(unsafe.Pointer(&v[0])))
	if err := hvErr(ret); err != nil {
		return arm64.SimdFP{}, err
	}
	return v, nil
}

func (cgoFramework) vcpuSetSIMDFPReg(h vcpuHandle, r arm64.SimdFPReg, v arm64.SimdFP) error {
	return hvErr(C.go_hv_set_simd_fp_reg(C.hv_vcpu_t(h.id), C.hv_simd_fp_reg_t(r), (*C.uint8_t)(unsafe.Pointer(&v[0]))))
}

func (cgoFramework) vcpuGetPendingInterrupt(h vcpuHandle, t arm64.InterruptType) (bool, error) {
	var v C.bool
	if err := hvErr(C.hv_vcpu_get_pending_interrupt(C.hv_vcpu_t(h.id), C.hv_interrupt_type_t(t), &v)); err != nil {
		return false, err
	}
	return bool(v), nil
}

func (cgoFramework) vcpuSetPendingInterrupt(h vcpuHandle, t arm64.InterruptType, pending bool) error {
	return hvErr(C.hv_vcpu_set_pending_interrupt(C.hv_vcpu_t(h.id), C.hv_interrupt_type_t(t), C.bool(pending)))
}

func (cgoFramework) vcpuGetTrapDebugExceptions(h vcpuHandle) (bool, error) {
	var v C.bool
	if err := hvErr(C.hv_vcpu_get_trap_debug_exceptions(C.hv_vcpu_t(h.id), &v)); err != nil {
		return false, err
	}
	return bool(v), nil
}

func (cgoFramework) vcpuSetTrapDebugExceptions(h vcpuHandle, enable bool) error {
	return hvErr(C.hv_vcpu_set_trap_debug_exceptions(C.hv_vcpu_t(h.id), C.bool(enable)))
}

func (cgoFramework) vcpuGetTrapDebugRegAccesses(h vcpuHandle) (bool, error) {
	var v C.bool
	if err := hvErr(C.hv_vcpu_get_trap_debug_reg_accesses(C.hv_vcpu_t(h.id), &v)); err != nil {
		return false, err
	}
	return bool(v), nil
}

func (cgoFramework) vcpuSetTrapDebugRegAccesses(h vcpuHandle, enable bool) error {
	return hvErr(C.hv_vcpu_set_trap_debug_reg_accesses(C.hv_vcpu_t(h.id), C.bool(enable)))
}

func (cgoFramework) vcpuGetVTimerMask(h vcpuHandle) (bool, error) {
	var v C.bool
	if err := hvErr(C.hv_vcpu_get_vtimer_mask(C.hv_vcpu_t(h.id), &v)); err != nil {
		return false, err
	}
	return bool(v), nil
}

func (cgoFramework) vcpuSetVTimerMask(h vcpuHandle, masked bool) error {
	return hvErr(C.hv_vcpu_set_vtimer_mask(C.hv_vcpu_t(h.id), C.bool(masked)))
}

func (cgoFramework) vcpuGetVTimerOffset(h vcpuHandle) (uint64, error) {
	var v C.uint64_t
	if err := hvErr(C.hv_vcpu_get_vtimer_offset(C.hv_vcpu_t(h.id), &v)); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (cgoFramework) vcpuSetVTimerOffset(h vcpuHandle, offset uint64) error {
	return hvErr(C.hv_vcpu_set_vtimer_offset(C.hv_vcpu_t(h.id), C.uint64_t(offset)))
}

func (cgoFramework) vcpuExit(h vcpuHandle) ExitInfo {
	if h.exit == nil {
		return ExitInfo{Reason: arm64.ExitUnknown}
	}
	exit := (*C.hv_vcpu_exit_t)(h.exit)
	return ExitInfo{
		Reason:          arm64.ExitReason(exit.reason),
		Syndrome:        arm64.Syndrome(exit.exception.syndrome),
		VirtualAddress:  uint64(exit.exception.virtual_address),
		PhysicalAddress: uint64(exit.exception.physical_address),
	}
}
