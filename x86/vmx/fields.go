// Package vmx holds the Intel VMX tables used by the Hypervisor.framework
// VMCS accessors: field encodings, exit reasons, interruption information,
// capability selectors and shadow VMCS permissions.
package vmx

import "fmt"

// Field is a VMCS field encoding as defined by the Intel SDM, Appendix B.
type Field uint32

const (
	VPID                    Field = 0x0000
	CtrlPostedIntNVector    Field = 0x0002
	CtrlEPTPIndex           Field = 0x0004
	GuestES                 Field = 0x0800
	GuestCS                 Field = 0x0802
	GuestSS                 Field = 0x0804
	GuestDS                 Field = 0x0806
	GuestFS                 Field = 0x0808
	GuestGS                 Field = 0x080a
	GuestLDTR               Field = 0x080c
	GuestTR                 Field = 0x080e
	GuestIntStatus          Field = 0x0810
	GuestPMLIndex           Field = 0x0812
	HostES                  Field = 0x0c00
	HostCS                  Field = 0x0c02
	HostSS                  Field = 0x0c04
	HostDS                  Field = 0x0c06
	HostFS                  Field = 0x0c08
	HostGS                  Field = 0x0c0a
	HostTR                  Field = 0x0c0c
	CtrlIOBitmapA           Field = 0x2000
	CtrlIOBitmapB           Field = 0x2002
	CtrlMSRBitmaps          Field = 0x2004
	CtrlVmexitMSRStoreAddr  Field = 0x2006
	CtrlVmexitMSRLoadAddr   Field = 0x2008
	CtrlVmentryMSRLoadAddr  Field = 0x200a
	CtrlExecutiveVMCSPtr    Field = 0x200c
	CtrlPMLAddr             Field = 0x200e
	CtrlTSCOffset           Field = 0x2010
	CtrlVirtualAPIC         Field = 0x2012
	CtrlAPICAccess          Field = 0x2014
	CtrlPostedIntDescAddr   Field = 0x2016
	CtrlVMFuncCtrl          Field = 0x2018
	CtrlEPTP                Field = 0x201a
	CtrlEOIExitBitmap0      Field = 0x201c
	CtrlEOIExitBitmap1      Field = 0x201e
	CtrlEOIExitBitmap2      Field = 0x2020
	CtrlEOIExitBitmap3      Field = 0x2022
	CtrlEPTPListAddr        Field = 0x2024
	CtrlVmreadBitmapAddr    Field = 0x2026
	CtrlVmwriteBitmapAddr   Field = 0x2028
	CtrlVirtEXCInfoAddr     Field = 0x202a
	CtrlXSSExitingBitmap    Field = 0x202c
	CtrlENCLSExitingBitmap  Field = 0x202e
	CtrlTSCMultiplier       Field = 0x2032
	GuestPhysicalAddress    Field = 0x2400
	GuestLinkPointer        Field = 0x2800
	GuestIA32DebugCtl       Field = 0x2802
	GuestIA32PAT            Field = 0x2804
	GuestIA32EFER           Field = 0x2806
	GuestIA32PerfGlobalCtrl Field = 0x2808
	GuestPDPTE0             Field = 0x280a
	GuestPDPTE1             Field = 0x280c
	GuestPDPTE2             Field = 0x280e
	GuestPDPTE3             Field = 0x2810
	GuestIA32BndCfgs        Field = 0x2812
	HostIA32PAT             Field = 0x2c00
	HostIA32EFER            Field = 0x2c02
	HostIA32PerfGlobalCtrl  Field = 0x2c04
	CtrlPinBased            Field = 0x4000
	CtrlCPUBased            Field = 0x4002
	CtrlEXCBitmap           Field = 0x4004
	CtrlPFErrorMask         Field = 0x4006
	CtrlPFErrorMatch        Field = 0x4008
	CtrlCR3Count            Field = 0x400a
	CtrlVmexitControls      Field = 0x400c
	CtrlVmexitMSRStoreCount Field = 0x400e
	CtrlVmexitMSRLoadCount  Field = 0x4010
	CtrlVmentryControls     Field = 0x4012
	CtrlVmentryMSRLoadCount Field = 0x4014
	CtrlVmentryIRQInfo      Field = 0x4016
	CtrlVmentryEXCError     Field = 0x4018
	CtrlVmentryInstrLen     Field = 0x401a
	CtrlTPRThreshold        Field = 0x401c
	CtrlCPUBased2           Field = 0x401e
	CtrlPLEGap              Field = 0x4020
	CtrlPLEWindow           Field = 0x4022
	ROInstrError            Field = 0x4400
	ROExitReason            Field = 0x4402
	ROVmexitIRQInfo         Field = 0x4404
	ROVmexitIRQError        Field = 0x4406
	ROIDTVectorInfo         Field = 0x4408
	ROIDTVectorError        Field = 0x440a
	ROVmexitInstrLen        Field = 0x440c
	ROVMXInstrInfo          Field = 0x440e
	GuestESLimit            Field = 0x4800
	GuestCSLimit            Field = 0x4802
	GuestSSLimit            Field = 0x4804
	GuestDSLimit            Field = 0x4806
	GuestFSLimit            Field = 0x4808
	GuestGSLimit            Field = 0x480a
	GuestLDTRLimit          Field = 0x480c
	GuestTRLimit            Field = 0x480e
	GuestGdtrLimit          Field = 0x4810
	GuestIdtrLimit          Field = 0x4812
	GuestESAR               Field = 0x4814
	GuestCSAR               Field = 0x4816
	GuestSSAR               Field = 0x4818
	GuestDSAR               Field = 0x481a
	GuestFSAR               Field = 0x481c
	GuestGSAR               Field = 0x481e
	GuestLDTRAR             Field = 0x4820
	GuestTRAR               Field = 0x4822
	GuestIgnoreIRQ          Field = 0x4824
	GuestActivityState      Field = 0x4826
	GuestSMBase             Field = 0x4828
	GuestIA32SysenterCS     Field = 0x482a
	GuestVMXTimerValue      Field = 0x482e
	HostIA32SysenterCS      Field = 0x4c00
	CtrlCR0Mask             Field = 0x6000
	CtrlCR4Mask             Field = 0x6002
	CtrlCR0Shadow           Field = 0x6004
	CtrlCR4Shadow           Field = 0x6006
	CtrlCR3Value0           Field = 0x6008
	CtrlCR3Value1           Field = 0x600a
	CtrlCR3Value2           Field = 0x600c
	CtrlCR3Value3           Field = 0x600e
	ROExitQualific          Field = 0x6400
	ROIORCX                 Field = 0x6402
	ROIORSI                 Field = 0x6404
	ROIORDI                 Field = 0x6406
	ROIORIP                 Field = 0x6408
	ROGuestLinAddr          Field = 0x640a
	GuestCR0                Field = 0x6800
	GuestCR3                Field = 0x6802
	GuestCR4                Field = 0x6804
	GuestESBase             Field = 0x6806
	GuestCSBase             Field = 0x6808
	GuestSSBase             Field = 0x680a
	GuestDSBase             Field = 0x680c
	GuestFSBase             Field = 0x680e
	GuestGSBase             Field = 0x6810
	GuestLDTRBase           Field = 0x6812
	GuestTRBase             Field = 0x6814
	GuestGdtrBase           Field = 0x6816
	GuestIdtrBase           Field = 0x6818
	GuestDR7                Field = 0x681a
	GuestRSP                Field = 0x681c
	GuestRIP                Field = 0x681e
	GuestRFLAGS             Field = 0x6820
	GuestDebugEXC           Field = 0x6822
	GuestSysenterESP        Field = 0x6824
	GuestSysenterEIP        Field = 0x6826
	HostCR0                 Field = 0x6c00
	HostCR3                 Field = 0x6c02
	HostCR4                 Field = 0x6c04
	HostFSBase              Field = 0x6c06
	HostGSBase              Field = 0x6c08
	HostTRBase              Field = 0x6c0a
	HostGdtrBase            Field = 0x6c0c
	HostIdtrBase            Field = 0x6c0e
	HostIA32SysenterESP     Field = 0x6c10
	HostIA32SysenterEIP     Field = 0x6c12
	HostRSP                 Field = 0x6c14
	HostRIP                 Field = 0x6c16

	// Max is one past the last field encoding known to the framework (VMCS_MAX).
	Max Field = 0x6c18
)

// Width is the size class of a VMCS field, encoding bits 14:13.
type Width uint8

const (
	Width16 Width = iota
	Width64
	Width32
	WidthNatural
)

func (w Width) String() string {
	switch w {
	case Width16:
		return "16-bit"
	case Width64:
		return "64-bit"
	case Width32:
		return "32-bit"
	default:
		return "natural-width"
	}
}

// Type is the area of a VMCS field, encoding bits 11:10.
type Type uint8

const (
	TypeControl Type = iota
	TypeReadOnly
	TypeGuest
	TypeHost
)

func (t Type) String() string {
	switch t {
	case TypeControl:
		return "control"
	case TypeReadOnly:
		return "read-only data"
	case TypeGuest:
		return "guest-state"
	default:
		return "host-state"
	}
}

// Width returns the size class of f.
func (f Field) Width() Width { return Width(f >> 13 & 0x3) }

// Type returns the VMCS area f belongs to.
func (f Field) Type() Type { return Type(f >> 10 & 0x3) }

// Index returns the field index, encoding bits 9:1.
func (f Field) Index() uint16 { return uint16(f >> 1 & 0x1ff) }

// High reports whether f selects the upper half of a 64-bit field.
func (f Field) High() bool { return f&1 == 1 }

// ReadOnly reports whether the guest cannot write f.
func (f Field) ReadOnly() bool { return f.Type() == TypeReadOnly }

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(0x%04x)", uint32(f))
}

var fieldNames = map[Field]string{
	VPID:                    "VPID",
	CtrlPostedIntNVector:    "CTRL_POSTED_INT_N_VECTOR",
	CtrlEPTPIndex:           "CTRL_EPTP_INDEX",
	GuestES:                 "GUEST_ES",
	GuestCS:                 "GUEST_CS",
	GuestSS:                 "GUEST_SS",
	GuestDS:                 "GUEST_DS",
	GuestFS:                 "GUEST_FS",
	GuestGS:                 "GUEST_GS",
	GuestLDTR:               "GUEST_LDTR",
	GuestTR:                 "GUEST_TR",
	GuestIntStatus:          "GUEST_INT_STATUS",
	GuestPMLIndex:           "GUESTPML_INDEX",
	HostES:                  "HOST_ES",
	HostCS:                  "HOST_CS",
	HostSS:                  "HOST_SS",
	HostDS:                  "HOST_DS",
	HostFS:                  "HOST_FS",
	HostGS:                  "HOST_GS",
	HostTR:                  "HOST_TR",
	CtrlIOBitmapA:           "CTRL_IO_BITMAP_A",
	CtrlIOBitmapB:           "CTRL_IO_BITMAP_B",
	CtrlMSRBitmaps:          "CTRL_MSR_BITMAPS",
	CtrlVmexitMSRStoreAddr:  "CTRL_VMEXIT_MSR_STORE_ADDR",
	CtrlVmexitMSRLoadAddr:   "CTRL_VMEXIT_MSR_LOAD_ADDR",
	CtrlVmentryMSRLoadAddr:  "CTRL_VMENTRY_MSR_LOAD_ADDR",
	CtrlExecutiveVMCSPtr:    "CTRL_EXECUTIVE_VMCS_PTR",
	CtrlPMLAddr:             "CTRL_PML_ADDR",
	CtrlTSCOffset:           "CTRL_TSC_OFFSET",
	CtrlVirtualAPIC:         "CTRL_VIRTUAL_APIC",
	CtrlAPICAccess:          "CTRL_APIC_ACCESS",
	CtrlPostedIntDescAddr:   "CTRL_POSTED_INT_DESC_ADDR",
	CtrlVMFuncCtrl:          "CTRL_VMFUNC_CTRL",
	CtrlEPTP:                "CTRL_EPTP",
	CtrlEOIExitBitmap0:      "CTRL_EOI_EXIT_BITMAP_0",
	CtrlEOIExitBitmap1:      "CTRL_EOI_EXIT_BITMAP_1",
	CtrlEOIExitBitmap2:      "CTRL_EOI_EXIT_BITMAP_2",
	CtrlEOIExitBitmap3:      "CTRL_EOI_EXIT_BITMAP_3",
	CtrlEPTPListAddr:        "CTRL_EPTP_LIST_ADDR",
	CtrlVmreadBitmapAddr:    "CTRL_VMREAD_BITMAP_ADDR",
	CtrlVmwriteBitmapAddr:   "CTRL_VMWRITE_BITMAP_ADDR",
	CtrlVirtEXCInfoAddr:     "CTRL_VIRT_EXC_INFO_ADDR",
	CtrlXSSExitingBitmap:    "CTRL_XSS_EXITING_BITMAP",
	CtrlENCLSExitingBitmap:  "CTRL_ENCLS_EXITING_BITMAP",
	CtrlTSCMultiplier:       "CTRL_TSC_MULTIPLIER",
	GuestPhysicalAddress:    "GUEST_PHYSICAL_ADDRESS",
	GuestLinkPointer:        "GUEST_LINK_POINTER",
	GuestIA32DebugCtl:       "GUEST_IA32_DEBUGCTL",
	GuestIA32PAT:            "GUEST_IA32_PAT",
	GuestIA32EFER:           "GUEST_IA32_EFER",
	GuestIA32PerfGlobalCtrl: "GUEST_IA32_PERF_GLOBAL_CTRL",
	GuestPDPTE0:             "GUEST_PDPTE0",
	GuestPDPTE1:             "GUEST_PDPTE1",
	GuestPDPTE2:             "GUEST_PDPTE2",
	GuestPDPTE3:             "GUEST_PDPTE3",
	GuestIA32BndCfgs:        "GUEST_IA32_BNDCFGS",
	HostIA32PAT:             "HOST_IA32_PAT",
	HostIA32EFER:            "HOST_IA32_EFER",
	HostIA32PerfGlobalCtrl:  "HOST_IA32_PERF_GLOBAL_CTRL",
	CtrlPinBased:            "CTRL_PIN_BASED",
	CtrlCPUBased:            "CTRL_CPU_BASED",
	CtrlEXCBitmap:           "CTRL_EXC_BITMAP",
	CtrlPFErrorMask:         "CTRL_PF_ERROR_MASK",
	CtrlPFErrorMatch:        "CTRL_PF_ERROR_MATCH",
	CtrlCR3Count:            "CTRL_CR3_COUNT",
	CtrlVmexitControls:      "CTRL_VMEXIT_CONTROLS",
	CtrlVmexitMSRStoreCount: "CTRL_VMEXIT_MSR_STORE_COUNT",
	CtrlVmexitMSRLoadCount:  "CTRL_VMEXIT_MSR_LOAD_COUNT",
	CtrlVmentryControls:     "CTRL_VMENTRY_CONTROLS",
	CtrlVmentryMSRLoadCount: "CTRL_VMENTRY_MSR_LOAD_COUNT",
	CtrlVmentryIRQInfo:      "CTRL_VMENTRY_IRQ_INFO",
	CtrlVmentryEXCError:     "CTRL_VMENTRY_EXC_ERROR",
	CtrlVmentryInstrLen:     "CTRL_VMENTRY_INSTR_LEN",
	CtrlTPRThreshold:        "CTRL_TPR_THRESHOLD",
	CtrlCPUBased2:           "CTRL_CPU_BASED2",
	CtrlPLEGap:              "CTRL_PLE_GAP",
	CtrlPLEWindow:           "CTRL_PLE_WINDOW",
	ROInstrError:            "RO_INSTR_ERROR",
	ROExitReason:            "RO_EXIT_REASON",
	ROVmexitIRQInfo:         "RO_VMEXIT_IRQ_INFO",
	ROVmexitIRQError:        "RO_VMEXIT_IRQ_ERROR",
	ROIDTVectorInfo:         "RO_IDT_VECTOR_INFO",
	ROIDTVectorError:        "RO_IDT_VECTOR_ERROR",
	ROVmexitInstrLen:        "RO_VMEXIT_INSTR_LEN",
	ROVMXInstrInfo:          "RO_VMX_INSTR_INFO",
	GuestESLimit:            "GUEST_ES_LIMIT",
	GuestCSLimit:            "GUEST_CS_LIMIT",
	GuestSSLimit:            "GUEST_SS_LIMIT",
	GuestDSLimit:            "GUEST_DS_LIMIT",
	GuestFSLimit:            "GUEST_FS_LIMIT",
	GuestGSLimit:            "GUEST_GS_LIMIT",
	GuestLDTRLimit:          "GUEST_LDTR_LIMIT",
	GuestTRLimit:            "GUEST_TR_LIMIT",
	GuestGdtrLimit:          "GUEST_GDTR_LIMIT",
	GuestIdtrLimit:          "GUEST_IDTR_LIMIT",
	GuestESAR:               "GUEST_ES_AR",
	GuestCSAR:               "GUEST_CS_AR",
	GuestSSAR:               "GUEST_SS_AR",
	GuestDSAR:               "GUEST_DS_AR",
	GuestFSAR:               "GUEST_FS_AR",
	GuestGSAR:               "GUEST_GS_AR",
	GuestLDTRAR:             "GUEST_LDTR_AR",
	GuestTRAR:               "GUEST_TR_AR",
	GuestIgnoreIRQ:          "GUEST_IGNORE_IRQ",
	GuestActivityState:      "GUEST_ACTIVITY_STATE",
	GuestSMBase:             "GUEST_SMBASE",
	GuestIA32SysenterCS:     "GUEST_IA32_SYSENTER_CS",
	GuestVMXTimerValue:      "GUEST_VMX_TIMER_VALUE",
	HostIA32SysenterCS:      "HOST_IA32_SYSENTER_CS",
	CtrlCR0Mask:             "CTRL_CR0_MASK",
	CtrlCR4Mask:             "CTRL_CR4_MASK",
	CtrlCR0Shadow:           "CTRL_CR0_SHADOW",
	CtrlCR4Shadow:           "CTRL_CR4_SHADOW",
	CtrlCR3Value0:           "CTRL_CR3_VALUE0",
	CtrlCR3Value1:           "CTRL_CR3_VALUE1",
	CtrlCR3Value2:           "CTRL_CR3_VALUE2",
	CtrlCR3Value3:           "CTRL_CR3_VALUE3",
	ROExitQualific:          "RO_EXIT_QUALIFIC",
	ROIORCX:                 "RO_IO_RCX",
	ROIORSI:                 "RO_IO_RSI",
	ROIORDI:                 "RO_IO_RDI",
	ROIORIP:                 "RO_IO_RIP",
	ROGuestLinAddr:          "RO_GUEST_LIN_ADDR",
	GuestCR0:                "GUEST_CR0",
	GuestCR3:                "GUEST_CR3",
	GuestCR4:                "GUEST_CR4",
	GuestESBase:             "GUEST_ES_BASE",
	GuestCSBase:             "GUEST_CS_BASE",
	GuestSSBase:             "GUEST_SS_BASE",
	GuestDSBase:             "GUEST_DS_BASE",
	GuestFSBase:             "GUEST_FS_BASE",
	GuestGSBase:             "GUEST_GS_BASE",
	GuestLDTRBase:           "GUEST_LDTR_BASE",
	GuestTRBase:             "GUEST_TR_BASE",
	GuestGdtrBase:           "GUEST_GDTR_BASE",
	GuestIdtrBase:           "GUEST_IDTR_BASE",
	GuestDR7:                "GUEST_DR7",
	GuestRSP:                "GUEST_RSP",
	GuestRIP:                "GUEST_RIP",
	GuestRFLAGS:             "GUEST_RFLAGS",
	GuestDebugEXC:           "GUEST_DEBUG_EXC",
	GuestSysenterESP:        "GUEST_SYSENTER_ESP",
	GuestSysenterEIP:        "GUEST_SYSENTER_EIP",
	HostCR0:                 "HOST_CR0",
	HostCR3:                 "HOST_CR3",
	HostCR4:                 "HOST_CR4",
	HostFSBase:              "HOST_FS_BASE",
	HostGSBase:              "HOST_GS_BASE",
	HostTRBase:              "HOST_TR_BASE",
	HostGdtrBase:            "HOST_GDTR_BASE",
	HostIdtrBase:            "HOST_IDTR_BASE",
	HostIA32SysenterESP:     "HOST_IA32_SYSENTER_ESP",
	HostIA32SysenterEIP:     "HOST_IA32_SYSENTER_EIP",
	HostRSP:                 "HOST_RSP",
	HostRIP:                 "HOST_RIP",
}
