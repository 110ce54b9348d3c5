package arm64

import "fmt"

// Syndrome is an exception syndrome register value (ESR_ELx) as reported
// in the vCPU exit information.
type Syndrome uint64

// ExceptionClass is the EC field of a syndrome.
type ExceptionClass uint8

const (
	ECUnknown        ExceptionClass = 0x00
	ECWFx            ExceptionClass = 0x01
	ECSIMDFPAccess   ExceptionClass = 0x07
	ECIllegalState   ExceptionClass = 0x0e
	ECSVC64          ExceptionClass = 0x15
	ECHVC64          ExceptionClass = 0x16
	ECSMC64          ExceptionClass = 0x17
	ECSysReg         ExceptionClass = 0x18
	ECInstrAbortLow  ExceptionClass = 0x20
	ECInstrAbortSame ExceptionClass = 0x21
	ECPCAlignment    ExceptionClass = 0x22
	ECDataAbortLow   ExceptionClass = 0x24
	ECDataAbortSame  ExceptionClass = 0x25
	ECSPAlignment    ExceptionClass = 0x26
	ECSError         ExceptionClass = 0x2f
	ECBreakpointLow  ExceptionClass = 0x30
	ECSoftStepLow    ExceptionClass = 0x32
	ECWatchpointLow  ExceptionClass = 0x34
	ECBRK64          ExceptionClass = 0x3c
)

var ecNames = map[ExceptionClass]string{
	ECUnknown:        "unknown",
	ECWFx:            "WFI/WFE",
	ECSIMDFPAccess:   "SIMD/FP access",
	ECIllegalState:   "illegal execution state",
	ECSVC64:          "SVC",
	ECHVC64:          "HVC",
	ECSMC64:          "SMC",
	ECSysReg:         "MSR/MRS/system instruction",
	ECInstrAbortLow:  "instruction abort (lower EL)",
	ECInstrAbortSame: "instruction abort (same EL)",
	ECPCAlignment:    "PC alignment fault",
	ECDataAbortLow:   "data abort (lower EL)",
	ECDataAbortSame:  "data abort (same EL)",
	ECSPAlignment:    "SP alignment fault",
	ECSError:         "SError",
	ECBreakpointLow:  "breakpoint (lower EL)",
	ECSoftStepLow:    "software step (lower EL)",
	ECWatchpointLow:  "watchpoint (lower EL)",
	ECBRK64:          "BRK",
}

func (ec ExceptionClass) String() string {
	if name, ok := ecNames[ec]; ok {
		return name
	}
	return fmt.Sprintf("EC(0x%02x)", uint8(ec))
}

// Class returns the exception class, ESR[31:26].
func (s Syndrome) Class() ExceptionClass { return ExceptionClass(s >> 26 & 0x3f) }

// IL reports whether the trapped instruction was 32 bits wide, ESR[25].
func (s Syndrome) IL() bool { return s>>25&1 == 1 }

// ISS returns the instruction specific syndrome, ESR[24:0].
func (s Syndrome) ISS() uint32 { return uint32(s & 0x1ffffff) }

// Imm16 returns the immediate of an HVC, SMC, SVC or BRK instruction.
func (s Syndrome) Imm16() uint16 { return uint16(s & 0xffff) }

func (s Syndrome) String() string {
	return fmt.Sprintf("%s (ESR=0x%x ISS=0x%x)", s.Class(), uint64(s), s.ISS())
}
