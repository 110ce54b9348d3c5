// Package arm64 holds the Apple silicon register tables used by the
// Hypervisor.framework vCPU accessors.
package arm64

import "fmt"

// Reg is a general purpose register selector (hv_reg_t).
type Reg uint32

const (
	X0 Reg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	PC
	FPCR
	FPSR
	CPSR

	FP = X29
	LR = X30
)

// NumRegs is the number of general purpose register selectors.
const NumRegs = int(CPSR) + 1

// Valid reports whether r names a register known to the framework.
func (r Reg) Valid() bool { return r <= CPSR }

func (r Reg) String() string {
	switch {
	case r <= X28:
		return fmt.Sprintf("X%d", uint32(r))
	case r == FP:
		return "FP"
	case r == LR:
		return "LR"
	case r == PC:
		return "PC"
	case r == FPCR:
		return "FPCR"
	case r == FPSR:
		return "FPSR"
	case r == CPSR:
		return "CPSR"
	default:
		return fmt.Sprintf("Reg(%d)", uint32(r))
	}
}

// SimdFPReg is a SIMD & FP register selector (hv_simd_fp_reg_t).
type SimdFPReg uint32

const (
	Q0 SimdFPReg = iota
	Q1
	Q2
	Q3
	Q4
	Q5
	Q6
	Q7
	Q8
	Q9
	Q10
	Q11
	Q12
	Q13
	Q14
	Q15
	Q16
	Q17
	Q18
	Q19
	Q20
	Q21
	Q22
	Q23
	Q24
	Q25
	Q26
	Q27
	Q28
	Q29
	Q30
	Q31
)

func (r SimdFPReg) Valid() bool { return r <= Q31 }

func (r SimdFPReg) String() string {
	if !r.Valid() {
		return fmt.Sprintf("SimdFPReg(%d)", uint32(r))
	}
	return fmt.Sprintf("Q%d", uint32(r))
}

// SimdFP is the 128-bit value of a SIMD & FP register, in memory order
// (hv_simd_fp_uchar16_t).
type SimdFP [16]byte

// SimdFPFromUint64s builds a register value from its low and high halves.
func SimdFPFromUint64s(lo, hi uint64) SimdFP {
	var v SimdFP
	for i := 0; i < 8; i++ {
		v[i] = byte(lo >> (8 * i))
		v[8+i] = byte(hi >> (8 * i))
	}
	return v
}

// Uint64s returns the low and high 64-bit halves of v.
func (v SimdFP) Uint64s() (lo, hi uint64) {
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(v[i])
		hi = hi<<8 | uint64(v[8+i])
	}
	return lo, hi
}

// InterruptType is an injected interrupt type (hv_interrupt_type_t).
type InterruptType uint32

const (
	IRQ InterruptType = iota
	FIQ
)

func (t InterruptType) String() string {
	switch t {
	case IRQ:
		return "IRQ"
	case FIQ:
		return "FIQ"
	default:
		return fmt.Sprintf("InterruptType(%d)", uint32(t))
	}
}

// ExitReason is the reason hv_vcpu_run returned (hv_exit_reason_t).
type ExitReason uint32

const (
	ExitCanceled ExitReason = iota
	ExitException
	ExitVTimerActivated
	ExitUnknown
)

func (r ExitReason) String() string {
	switch r {
	case ExitCanceled:
		return "canceled"
	case ExitException:
		return "exception"
	case ExitVTimerActivated:
		return "vtimer activated"
	case ExitUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("ExitReason(%d)", uint32(r))
	}
}
