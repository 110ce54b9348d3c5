// Package x86 holds the Intel architectural register table used by the
// Hypervisor.framework vCPU accessors.
package x86

import "fmt"

// Reg is an architectural x86 register selector (hv_x86_reg_t).
type Reg uint32

const (
	RIP Reg = iota
	RFLAGS
	RAX
	RCX
	RDX
	RBX
	RSI
	RDI
	RSP
	RBP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	CS
	SS
	DS
	ES
	FS
	GS
	IDTBase
	IDTLimit
	GDTBase
	GDTLimit
	LDTR
	LDTBase
	LDTLimit
	LDTAR
	TR
	TSSBase
	TSSLimit
	TSSAR
	CR0
	CR1
	CR2
	CR3
	CR4
	DR0
	DR1
	DR2
	DR3
	DR4
	DR5
	DR6
	DR7
	TPR
	XCR0

	// NumRegs is HV_X86_REGISTERS_MAX.
	NumRegs
)

var regNames = [NumRegs]string{
	RIP: "RIP", RFLAGS: "RFLAGS", RAX: "RAX", RCX: "RCX", RDX: "RDX", RBX: "RBX",
	RSI: "RSI", RDI: "RDI", RSP: "RSP", RBP: "RBP",
	R8: "R8", R9: "R9", R10: "R10", R11: "R11", R12: "R12", R13: "R13", R14: "R14", R15: "R15",
	CS: "CS", SS: "SS", DS: "DS", ES: "ES", FS: "FS", GS: "GS",
	IDTBase: "IDT_BASE", IDTLimit: "IDT_LIMIT", GDTBase: "GDT_BASE", GDTLimit: "GDT_LIMIT",
	LDTR: "LDTR", LDTBase: "LDT_BASE", LDTLimit: "LDT_LIMIT", LDTAR: "LDT_AR",
	TR: "TR", TSSBase: "TSS_BASE", TSSLimit: "TSS_LIMIT", TSSAR: "TSS_AR",
	CR0: "CR0", CR1: "CR1", CR2: "CR2", CR3: "CR3", CR4: "CR4",
	DR0: "DR0", DR1: "DR1", DR2: "DR2", DR3: "DR3", DR4: "DR4", DR5: "DR5", DR6: "DR6", DR7: "DR7",
	TPR: "TPR", XCR0: "XCR0",
}

// Valid reports whether r names a register known to the framework.
func (r Reg) Valid() bool { return r < NumRegs }

func (r Reg) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Reg(%d)", uint32(r))
	}
	return regNames[r]
}
