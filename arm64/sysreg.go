package arm64

import "fmt"

// SysReg is a system register selector (hv_sys_reg_t). The value is the
// MRS/MSR operand encoding packed as op0:op1:CRn:CRm:op2.
type SysReg uint16

// EncodeSysReg packs an MRS/MSR operand into a SysReg.
func EncodeSysReg(op0, op1, crn, crm, op2 uint8) SysReg {
	return SysReg(uint16(op0&0x3)<<14 | uint16(op1&0x7)<<11 | uint16(crn&0xf)<<7 | uint16(crm&0xf)<<3 | uint16(op2&0x7))
}

// Decode unpacks r into its MRS/MSR operand fields.
func (r SysReg) Decode() (op0, op1, crn, crm, op2 uint8) {
	return uint8(r >> 14 & 0x3), uint8(r >> 11 & 0x7), uint8(r >> 7 & 0xf), uint8(r >> 3 & 0xf), uint8(r & 0x7)
}

const (
	SysRegDBGBVR0EL1  SysReg = 0x8004
	SysRegDBGBCR0EL1  SysReg = 0x8005
	SysRegDBGWVR0EL1  SysReg = 0x8006
	SysRegDBGWCR0EL1  SysReg = 0x8007
	SysRegMDCCINTEL1  SysReg = 0x8010
	SysRegMDSCREL1    SysReg = 0x8012
	SysRegMIDREL1     SysReg = 0xc000
	SysRegMPIDREL1    SysReg = 0xc005
	SysRegIDAA64PFR0  SysReg = 0xc020
	SysRegIDAA64PFR1  SysReg = 0xc021
	SysRegIDAA64DFR0  SysReg = 0xc028
	SysRegIDAA64DFR1  SysReg = 0xc029
	SysRegIDAA64ISAR0 SysReg = 0xc030
	SysRegIDAA64ISAR1 SysReg = 0xc031
	SysRegIDAA64MMFR0 SysReg = 0xc038
	SysRegIDAA64MMFR1 SysReg = 0xc039
	SysRegIDAA64MMFR2 SysReg = 0xc03a
	SysRegSCTLREL1    SysReg = 0xc080
	SysRegCPACREL1    SysReg = 0xc082
	SysRegTTBR0EL1    SysReg = 0xc100
	SysRegTTBR1EL1    SysReg = 0xc101
	SysRegTCREL1      SysReg = 0xc102
	SysRegAPIAKEYLO   SysReg = 0xc108
	SysRegAPIAKEYHI   SysReg = 0xc109
	SysRegAPIBKEYLO   SysReg = 0xc10a
	SysRegAPIBKEYHI   SysReg = 0xc10b
	SysRegAPDAKEYLO   SysReg = 0xc110
	SysRegAPDAKEYHI   SysReg = 0xc111
	SysRegAPDBKEYLO   SysReg = 0xc112
	SysRegAPDBKEYHI   SysReg = 0xc113
	SysRegAPGAKEYLO   SysReg = 0xc118
	SysRegAPGAKEYHI   SysReg = 0xc119
	SysRegSPSREL1     SysReg = 0xc200
	SysRegELREL1      SysReg = 0xc201
	SysRegSPEL0       SysReg = 0xc208
	SysRegAFSR0EL1    SysReg = 0xc288
	SysRegAFSR1EL1    SysReg = 0xc289
	SysRegESREL1      SysReg = 0xc290
	SysRegFAREL1      SysReg = 0xc300
	SysRegPAREL1      SysReg = 0xc3a0
	SysRegMAIREL1     SysReg = 0xc510
	SysRegAMAIREL1    SysReg = 0xc518
	SysRegVBAREL1     SysReg = 0xc600
	SysRegCONTEXTIDR  SysReg = 0xc681
	SysRegTPIDREL1    SysReg = 0xc684
	SysRegCNTKCTLEL1  SysReg = 0xc708
	SysRegCSSELREL1   SysReg = 0xd000
	SysRegTPIDREL0    SysReg = 0xde82
	SysRegTPIDRROEL0  SysReg = 0xde83
	SysRegCNTVCTLEL0  SysReg = 0xdf19
	SysRegCNTVCVALEL0 SysReg = 0xdf1a
	SysRegSPEL1       SysReg = 0xe208
)

// The framework exposes sixteen breakpoint and watchpoint register pairs.
const NumDebugRegs = 16

// DBGBVR returns the breakpoint value register n (0-15).
func DBGBVR(n int) SysReg { return EncodeSysReg(2, 0, 0, uint8(n), 4) }

// DBGBCR returns the breakpoint control register n (0-15).
func DBGBCR(n int) SysReg { return EncodeSysReg(2, 0, 0, uint8(n), 5) }

// DBGWVR returns the watchpoint value register n (0-15).
func DBGWVR(n int) SysReg { return EncodeSysReg(2, 0, 0, uint8(n), 6) }

// DBGWCR returns the watchpoint control register n (0-15).
func DBGWCR(n int) SysReg { return EncodeSysReg(2, 0, 0, uint8(n), 7) }

var sysRegNames = map[SysReg]string{
	SysRegMDCCINTEL1:  "MDCCINT_EL1",
	SysRegMDSCREL1:    "MDSCR_EL1",
	SysRegMIDREL1:     "MIDR_EL1",
	SysRegMPIDREL1:    "MPIDR_EL1",
	SysRegIDAA64PFR0:  "ID_AA64PFR0_EL1",
	SysRegIDAA64PFR1:  "ID_AA64PFR1_EL1",
	SysRegIDAA64DFR0:  "ID_AA64DFR0_EL1",
	SysRegIDAA64DFR1:  "ID_AA64DFR1_EL1",
	SysRegIDAA64ISAR0: "ID_AA64ISAR0_EL1",
	SysRegIDAA64ISAR1: "ID_AA64ISAR1_EL1",
	SysRegIDAA64MMFR0: "ID_AA64MMFR0_EL1",
	SysRegIDAA64MMFR1: "ID_AA64MMFR1_EL1",
	SysRegIDAA64MMFR2: "ID_AA64MMFR2_EL1",
	SysRegSCTLREL1:    "SCTLR_EL1",
	SysRegCPACREL1:    "CPACR_EL1",
	SysRegTTBR0EL1:    "TTBR0_EL1",
	SysRegTTBR1EL1:    "TTBR1_EL1",
	SysRegTCREL1:      "TCR_EL1",
	SysRegAPIAKEYLO:   "APIAKEYLO_EL1",
	SysRegAPIAKEYHI:   "APIAKEYHI_EL1",
	SysRegAPIBKEYLO:   "APIBKEYLO_EL1",
	SysRegAPIBKEYHI:   "APIBKEYHI_EL1",
	SysRegAPDAKEYLO:   "APDAKEYLO_EL1",
	SysRegAPDAKEYHI:   "APDAKEYHI_EL1",
	SysRegAPDBKEYLO:   "APDBKEYLO_EL1",
	SysRegAPDBKEYHI:   "APDBKEYHI_EL1",
	SysRegAPGAKEYLO:   "APGAKEYLO_EL1",
	SysRegAPGAKEYHI:   "APGAKEYHI_EL1",
	SysRegSPSREL1:     "SPSR_EL1",
	SysRegELREL1:      "ELR_EL1",
	SysRegSPEL0:       "SP_EL0",
	SysRegAFSR0EL1:    "AFSR0_EL1",
	SysRegAFSR1EL1:    "AFSR1_EL1",
	SysRegESREL1:      "ESR_EL1",
	SysRegFAREL1:      "FAR_EL1",
	SysRegPAREL1:      "PAR_EL1",
	SysRegMAIREL1:     "MAIR_EL1",
	SysRegAMAIREL1:    "AMAIR_EL1",
	SysRegVBAREL1:     "VBAR_EL1",
	SysRegCONTEXTIDR:  "CONTEXTIDR_EL1",
	SysRegTPIDREL1:    "TPIDR_EL1",
	SysRegCNTKCTLEL1:  "CNTKCTL_EL1",
	SysRegCSSELREL1:   "CSSELR_EL1",
	SysRegTPIDREL0:    "TPIDR_EL0",
	SysRegTPIDRROEL0:  "TPIDRRO_EL0",
	SysRegCNTVCTLEL0:  "CNTV_CTL_EL0",
	SysRegCNTVCVALEL0: "CNTV_CVAL_EL0",
	SysRegSPEL1:       "SP_EL1",
}

// String returns the architectural name, or the generic S<op0>_<op1>_C<n>_C<m>_<op2>
// form for registers without one.
func (r SysReg) String() string {
	if name, ok := sysRegNames[r]; ok {
		return name
	}
	op0, op1, crn, crm, op2 := r.Decode()
	if op0 == 2 && op1 == 0 && crn == 0 && op2 >= 4 {
		return fmt.Sprintf("%s%d_EL1", [...]string{"DBGBVR", "DBGBCR", "DBGWVR", "DBGWCR"}[op2-4], crm)
	}
	return fmt.Sprintf("S%d_%d_C%d_C%d_%d", op0, op1, crn, crm, op2)
}
