package hv

import (
	"fmt"
	"unsafe"
)

// Capability selects a system capability value.
type Capability int

const (
	// CapVCPUMax is the maximum number of vCPUs per VM.
	CapVCPUMax Capability = iota
	// CapAddrSpaceMax is the number of additional address spaces (Intel).
	CapAddrSpaceMax
	// CapMaxIPASize is the largest supported IPA width in bits (Apple silicon).
	CapMaxIPASize
	// CapDefaultIPASize is the default IPA width in bits (Apple silicon).
	CapDefaultIPASize
)

func (c Capability) String() string {
	switch c {
	case CapVCPUMax:
		return "vcpu-max"
	case CapAddrSpaceMax:
		return "addr-space-max"
	case CapMaxIPASize:
		return "max-ipa-size"
	case CapDefaultIPASize:
		return "default-ipa-size"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

// defaultSpace is HV_VM_SPACE_DEFAULT.
const defaultSpace uint32 = 0

// vcpuHandle identifies a framework vCPU.
type vcpuHandle struct {
	id uint64
	// exit points at the framework-owned hv_vcpu_exit_t on Apple silicon.
	exit unsafe.Pointer
}

// framework is the set of Hypervisor.framework entry points the package
// uses. vCPU methods must be called on the thread that created the vCPU,
// except vcpuForceExit.
type framework interface {
	vmCreate(cfg VMConfig) error
	vmDestroy() error
	vmCapability(c Capability) (uint64, error)
	vmMap(space uint32, host []byte, gpa uint64, perms MemPerm) error
	vmUnmap(space uint32, gpa, size uint64) error
	vmProtect(space uint32, gpa, size uint64, perms MemPerm) error
	spaceCreate() (uint32, error)
	spaceDestroy(space uint32) error

	vcpuCreate() (vcpuHandle, error)
	vcpuDestroy(h vcpuHandle) error
	vcpuRun(h vcpuHandle) error
	vcpuExecTime(h vcpuHandle) (uint64, error)
	vcpuForceExit(h vcpuHandle) error

	archFramework
}

// hvf is the framework used by NewVM; nil when the platform has none.
var hvf = defaultFramework()
