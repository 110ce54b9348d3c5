package x86

// Model specific registers commonly passed to the MSR accessors and to
// native MSR enablement.
const (
	MSRTSC          uint32 = 0x00000010
	MSRAPICBase     uint32 = 0x0000001b
	MSRTSCAdjust    uint32 = 0x0000003b
	MSRSysenterCS   uint32 = 0x00000174
	MSRSysenterESP  uint32 = 0x00000175
	MSRSysenterEIP  uint32 = 0x00000176
	MSRMiscEnable   uint32 = 0x000001a0
	MSRPAT          uint32 = 0x00000277
	MSREFER         uint32 = 0xc0000080
	MSRSTAR         uint32 = 0xc0000081
	MSRLSTAR        uint32 = 0xc0000082
	MSRCSTAR        uint32 = 0xc0000083
	MSRSyscallMask  uint32 = 0xc0000084
	MSRFSBase       uint32 = 0xc0000100
	MSRGSBase       uint32 = 0xc0000101
	MSRKernelGSBase uint32 = 0xc0000102
	MSRTSCAux       uint32 = 0xc0000103
)

// EFER bits.
const (
	EFERSCE uint64 = 1 << 0
	EFERLME uint64 = 1 << 8
	EFERLMA uint64 = 1 << 10
	EFERNXE uint64 = 1 << 11
)
