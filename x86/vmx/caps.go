package vmx

import (
	"fmt"
	"strings"
)

// Capability selects a VMX capability of the host processor
// (hv_vmx_capability_t).
type Capability uint32

const (
	CapPinBased Capability = iota
	CapProcBased
	CapProcBased2
	CapEntry
	CapExit
	CapPreemptionTimer
)

func (c Capability) String() string {
	switch c {
	case CapPinBased:
		return "pin-based"
	case CapProcBased:
		return "proc-based"
	case CapProcBased2:
		return "proc-based2"
	case CapEntry:
		return "entry"
	case CapExit:
		return "exit"
	case CapPreemptionTimer:
		return "preemption-timer"
	default:
		return fmt.Sprintf("Capability(%d)", uint32(c))
	}
}

// AdjustControls applies a capability value to a desired control word:
// the low 32 bits of capability are the allowed-0 settings (bits that must be 1),
// the high 32 bits the allowed-1 settings (bits that may be 1).
func AdjustControls(capability uint64, want uint32) uint32 {
	return (want | uint32(capability)) & uint32(capability>>32)
}

// ShadowFlags are the access permissions of a shadow VMCS field
// (hv_shadow_flags_t).
type ShadowFlags uint32

const (
	ShadowNone  ShadowFlags = 0
	ShadowRead  ShadowFlags = 1 << 0
	ShadowWrite ShadowFlags = 1 << 1
)

func (f ShadowFlags) String() string {
	if f == ShadowNone {
		return "none"
	}
	var parts []string
	if f&ShadowRead != 0 {
		parts = append(parts, "read")
	}
	if f&ShadowWrite != 0 {
		parts = append(parts, "write")
	}
	if rest := f &^ (ShadowRead | ShadowWrite); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}
