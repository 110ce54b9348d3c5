package vmx

import "fmt"

// Reason is a VM exit reason as read from the RO_EXIT_REASON field.
type Reason uint32

const (
	ReasonExcNMI           Reason = 0
	ReasonIRQ              Reason = 1
	ReasonTripleFault      Reason = 2
	ReasonInit             Reason = 3
	ReasonSIPI             Reason = 4
	ReasonIOSMI            Reason = 5
	ReasonOtherSMI         Reason = 6
	ReasonIRQWindow        Reason = 7
	ReasonVirtualNMIWindow Reason = 8
	ReasonTask             Reason = 9
	ReasonCPUID            Reason = 10
	ReasonGETSEC           Reason = 11
	ReasonHLT              Reason = 12
	ReasonINVD             Reason = 13
	ReasonINVLPG           Reason = 14
	ReasonRDPMC            Reason = 15
	ReasonRDTSC            Reason = 16
	ReasonRSM              Reason = 17
	ReasonVMCALL           Reason = 18
	ReasonVMCLEAR          Reason = 19
	ReasonVMLAUNCH         Reason = 20
	ReasonVMPTRLD          Reason = 21
	ReasonVMPTRST          Reason = 22
	ReasonVMREAD           Reason = 23
	ReasonVMRESUME         Reason = 24
	ReasonVMWRITE          Reason = 25
	ReasonVMOFF            Reason = 26
	ReasonVMON             Reason = 27
	ReasonMovCR            Reason = 28
	ReasonMovDR            Reason = 29
	ReasonIO               Reason = 30
	ReasonRDMSR            Reason = 31
	ReasonWRMSR            Reason = 32
	ReasonVMEntryGuest     Reason = 33
	ReasonVMEntryMSR       Reason = 34
	ReasonMWAIT            Reason = 36
	ReasonMTF              Reason = 37
	ReasonMONITOR          Reason = 39
	ReasonPAUSE            Reason = 40
	ReasonVMEntryMC        Reason = 41
	ReasonTPRThreshold     Reason = 43
	ReasonAPICAccess       Reason = 44
	ReasonVirtualizedEOI   Reason = 45
	ReasonGDTRIDTR         Reason = 46
	ReasonLDTRTR           Reason = 47
	ReasonEPTViolation     Reason = 48
	ReasonEPTMisconfig     Reason = 49
	ReasonINVEPT           Reason = 50
	ReasonRDTSCP           Reason = 51
	ReasonVMXTimerExpired  Reason = 52
	ReasonINVVPID          Reason = 53
	ReasonWBINVD           Reason = 54
	ReasonXSETBV           Reason = 55
	ReasonAPICWrite        Reason = 56
	ReasonRDRAND           Reason = 57
	ReasonINVPCID          Reason = 58
	ReasonVMFUNC           Reason = 59
	ReasonRDSEED           Reason = 61
	ReasonXSAVES           Reason = 63
	ReasonXRSTORS          Reason = 64
)

// Basic returns the basic exit reason, bits 15:0.
func (r Reason) Basic() Reason { return r & 0xffff }

// EntryFailure reports whether the exit was caused by a failed VM entry, bit 31.
func (r Reason) EntryFailure() bool { return r>>31&1 == 1 }

func (r Reason) String() string {
	b := r.Basic()
	name, ok := reasonNames[b]
	if !ok {
		name = fmt.Sprintf("Reason(%d)", uint32(b))
	}
	if r.EntryFailure() {
		return name + " (entry failure)"
	}
	return name
}

var reasonNames = map[Reason]string{
	ReasonExcNMI:           "EXC_NMI",
	ReasonIRQ:              "IRQ",
	ReasonTripleFault:      "TRIPLE_FAULT",
	ReasonInit:             "INIT",
	ReasonSIPI:             "SIPI",
	ReasonIOSMI:            "IO_SMI",
	ReasonOtherSMI:         "OTHER_SMI",
	ReasonIRQWindow:        "IRQ_WND",
	ReasonVirtualNMIWindow: "VIRTUAL_NMI_WND",
	ReasonTask:             "TASK",
	ReasonCPUID:            "CPUID",
	ReasonGETSEC:           "GETSEC",
	ReasonHLT:              "HLT",
	ReasonINVD:             "INVD",
	ReasonINVLPG:           "INVLPG",
	ReasonRDPMC:            "RDPMC",
	ReasonRDTSC:            "RDTSC",
	ReasonRSM:              "RSM",
	ReasonVMCALL:           "VMCALL",
	ReasonVMCLEAR:          "VMCLEAR",
	ReasonVMLAUNCH:         "VMLAUNCH",
	ReasonVMPTRLD:          "VMPTRLD",
	ReasonVMPTRST:          "VMPTRST",
	ReasonVMREAD:           "VMREAD",
	ReasonVMRESUME:         "VMRESUME",
	ReasonVMWRITE:          "VMWRITE",
	ReasonVMOFF:            "VMOFF",
	ReasonVMON:             "VMON",
	ReasonMovCR:            "MOV_CR",
	ReasonMovDR:            "MOV_DR",
	ReasonIO:               "IO",
	ReasonRDMSR:            "RDMSR",
	ReasonWRMSR:            "WRMSR",
	ReasonVMEntryGuest:     "VMENTRY_GUEST",
	ReasonVMEntryMSR:       "VMENTRY_MSR",
	ReasonMWAIT:            "MWAIT",
	ReasonMTF:              "MTF",
	ReasonMONITOR:          "MONITOR",
	ReasonPAUSE:            "PAUSE",
	ReasonVMEntryMC:        "VMENTRY_MC",
	ReasonTPRThreshold:     "TPR_THRESHOLD",
	ReasonAPICAccess:       "APIC_ACCESS",
	ReasonVirtualizedEOI:   "VIRTUALIZED_EOI",
	ReasonGDTRIDTR:         "GDTR_IDTR",
	ReasonLDTRTR:           "LDTR_TR",
	ReasonEPTViolation:     "EPT_VIOLATION",
	ReasonEPTMisconfig:     "EPT_MISCONFIG",
	ReasonINVEPT:           "EPT_INVEPT",
	ReasonRDTSCP:           "RDTSCP",
	ReasonVMXTimerExpired:  "VMX_TIMER_EXPIRED",
	ReasonINVVPID:          "INVVPID",
	ReasonWBINVD:           "WBINVD",
	ReasonXSETBV:           "XSETBV",
	ReasonAPICWrite:        "APIC_WRITE",
	ReasonRDRAND:           "RDRAND",
	ReasonINVPCID:          "INVPCID",
	ReasonVMFUNC:           "VMFUNC",
	ReasonRDSEED:           "RDSEED",
	ReasonXSAVES:           "XSAVES",
	ReasonXRSTORS:          "XRSTORS",
}
