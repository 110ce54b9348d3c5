package hv

import (
	"errors"
	"fmt"
)

// Hypervisor.framework hv_return_t values.
const (
	HV_SUCCESS             uint32 = 0x00000000
	HV_ERROR               uint32 = 0xFAE94001
	HV_BUSY                uint32 = 0xFAE94002
	HV_BAD_ARGUMENT        uint32 = 0xFAE94003
	HV_ILLEGAL_GUEST_STATE uint32 = 0xFAE94004
	HV_NO_RESOURCES        uint32 = 0xFAE94005
	HV_NO_DEVICE           uint32 = 0xFAE94006
	HV_DENIED              uint32 = 0xFAE94007
	HV_EXISTS              uint32 = 0xFAE94008
	HV_UNSUPPORTED         uint32 = 0xFAE9400F
)

// Kind classifies a framework return code.
type Kind uint8

const (
	// KindUnknown is any code without a dedicated kind; Error.Code keeps it.
	KindUnknown Kind = iota
	KindUnsuccessful
	KindBusy
	KindBadArgument
	KindNoResources
	KindNoDevice
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindUnsuccessful:
		return "unsuccessful"
	case KindBusy:
		return "busy"
	case KindBadArgument:
		return "bad argument"
	case KindNoResources:
		return "no resources"
	case KindNoDevice:
		return "no device"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// KindOf maps a non-zero framework return code to its kind.
func KindOf(code uint32) Kind {
	switch code {
	case HV_ERROR:
		return KindUnsuccessful
	case HV_BUSY:
		return KindBusy
	case HV_BAD_ARGUMENT:
		return KindBadArgument
	case HV_NO_RESOURCES:
		return KindNoResources
	case HV_NO_DEVICE:
		return KindNoDevice
	case HV_UNSUPPORTED:
		return KindUnsupported
	default:
		return KindUnknown
	}
}

// Error is a failed framework call.
// Code stores the raw 32-bit hv_return_t value (often 0xFAE940xx).
type Error struct {
	Kind Kind
	Code uint32
}

// Sentinels for errors.Is. Any Error of the same kind matches.
var (
	ErrUnsuccessful = Error{Kind: KindUnsuccessful, Code: HV_ERROR}
	ErrBusy         = Error{Kind: KindBusy, Code: HV_BUSY}
	ErrBadArgument  = Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	ErrNoResources  = Error{Kind: KindNoResources, Code: HV_NO_RESOURCES}
	ErrNoDevice     = Error{Kind: KindNoDevice, Code: HV_NO_DEVICE}
	ErrUnsupported  = Error{Kind: KindUnsupported, Code: HV_UNSUPPORTED}
)

func (e Error) Error() string {
	if currentSettings().Production {
		return e.sanitizedError()
	}
	return e.detailedError()
}

// Is matches targets of the same kind; unknown kinds must also share the code.
func (e Error) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return e.Kind != KindUnknown || e.Code == t.Code
}

// detailedError provides full error context for development
func (e Error) detailedError() string {
	switch e.Code {
	case HV_SUCCESS:
		return "hv: success"
	case HV_ERROR:
		return "hv: general error (HV_ERROR) - check system requirements and API usage"
	case HV_BUSY:
		return "hv: resource busy (HV_BUSY) - another operation is in progress"
	case HV_BAD_ARGUMENT:
		return "hv: invalid argument (HV_BAD_ARGUMENT) - check parameter values and alignment"
	case HV_ILLEGAL_GUEST_STATE:
		return "hv: illegal guest state (HV_ILLEGAL_GUEST_STATE) - guest CPU state is invalid"
	case HV_NO_RESOURCES:
		return "hv: insufficient resources (HV_NO_RESOURCES) - system memory or limits exceeded"
	case HV_NO_DEVICE:
		return "hv: device not found (HV_NO_DEVICE) - hardware virtualization unavailable"
	case HV_DENIED:
		return "hv: access denied (HV_DENIED) - missing entitlement 'com.apple.security.hypervisor' or insufficient privileges"
	case HV_EXISTS:
		return "hv: resource exists (HV_EXISTS) - VM or vCPU already created"
	case HV_UNSUPPORTED:
		return "hv: operation unsupported (HV_UNSUPPORTED) - feature not available on this hardware/OS"
	default:
		return fmt.Sprintf("hv: unknown error code 0x%08x - consult Apple Hypervisor.framework documentation", e.Code)
	}
}

// sanitizedError provides minimal error information for production
func (e Error) sanitizedError() string {
	switch e.Code {
	case HV_SUCCESS:
		return "hv: success"
	case HV_ILLEGAL_GUEST_STATE:
		return "hv: illegal guest state"
	case HV_DENIED:
		return "hv: access denied"
	case HV_EXISTS:
		return "hv: resource exists"
	}
	switch e.Kind {
	case KindUnsuccessful:
		return "hv: general error"
	case KindBusy:
		return "hv: resource busy"
	case KindBadArgument:
		return "hv: invalid argument"
	case KindNoResources:
		return "hv: insufficient resources"
	case KindNoDevice:
		return "hv: device not found"
	case KindUnsupported:
		return "hv: operation unsupported"
	default:
		return "hv: hypervisor error"
	}
}

// fromReturn converts a framework return code into an error, nil on HV_SUCCESS.
func fromReturn(code uint32) error {
	if code == HV_SUCCESS {
		return nil
	}
	return Error{Kind: KindOf(code), Code: code}
}

// Wrapper errors raised before the framework is called.
var (
	ErrUnsupportedPlatform = errors.New("hv: not supported on this platform")
	ErrVMAlreadyActive     = errors.New("hv: VM already active in this process")
	ErrVMClosed            = errors.New("hv: VM is closed")
	ErrVMInUse             = errors.New("hv: VM still owns live vCPUs or address spaces")
	ErrVCPUClosed          = errors.New("hv: vCPU is closed")
	ErrSpaceClosed         = errors.New("hv: address space is closed")
	ErrInvalidAlignment    = errors.New("hv: address or size not page-aligned")
	ErrInvalidRegister     = errors.New("hv: invalid register")
	ErrInvalidPermissions  = errors.New("hv: invalid memory permissions")
	ErrOverlap             = errors.New("hv: guest range overlaps an existing mapping")
	ErrNotMapped           = errors.New("hv: guest range is not mapped")
)
