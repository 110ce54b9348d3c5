package vmx

import "fmt"

// IRQInfo is a VM-entry or VM-exit interruption information word
// (CTRL_VMENTRY_IRQ_INFO, RO_VMEXIT_IRQ_INFO, RO_IDT_VECTOR_INFO).
type IRQInfo uint32

const (
	IRQInfoExtIRQ      IRQInfo = 0 << 8
	IRQInfoNMI         IRQInfo = 2 << 8
	IRQInfoHardExc     IRQInfo = 3 << 8
	IRQInfoSoftIRQ     IRQInfo = 4 << 8
	IRQInfoPrivSoftExc IRQInfo = 5 << 8
	IRQInfoSoftExc     IRQInfo = 6 << 8
	IRQInfoErrorValid  IRQInfo = 1 << 11
	IRQInfoValid       IRQInfo = 1 << 31

	irqInfoTypeMask IRQInfo = 7 << 8
)

// NewIRQInfo builds a valid interruption information word for injection.
func NewIRQInfo(vector uint8, typ IRQInfo, errorValid bool) IRQInfo {
	info := IRQInfoValid | typ&irqInfoTypeMask | IRQInfo(vector)
	if errorValid {
		info |= IRQInfoErrorValid
	}
	return info
}

// Vector returns the interrupt or exception vector, bits 7:0.
func (i IRQInfo) Vector() uint8 { return uint8(i) }

// Type returns the interruption type, bits 10:8, as one of the IRQInfo type constants.
func (i IRQInfo) Type() IRQInfo { return i & irqInfoTypeMask }

// ErrorValid reports whether an error code is delivered, bit 11.
func (i IRQInfo) ErrorValid() bool { return i&IRQInfoErrorValid != 0 }

// Valid reports whether the word holds information, bit 31.
func (i IRQInfo) Valid() bool { return i&IRQInfoValid != 0 }

func (i IRQInfo) String() string {
	if !i.Valid() {
		return "invalid"
	}
	var typ string
	switch i.Type() {
	case IRQInfoExtIRQ:
		typ = "external interrupt"
	case IRQInfoNMI:
		typ = "NMI"
	case IRQInfoHardExc:
		typ = "hardware exception"
	case IRQInfoSoftIRQ:
		typ = "software interrupt"
	case IRQInfoPrivSoftExc:
		typ = "privileged software exception"
	case IRQInfoSoftExc:
		typ = "software exception"
	default:
		typ = fmt.Sprintf("type %d", i.Type()>>8)
	}
	s := fmt.Sprintf("%s vector %d", typ, i.Vector())
	if i.ErrorValid() {
		s += " with error code"
	}
	return s
}
