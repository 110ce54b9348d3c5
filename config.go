package hv

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// VMOptions are the hv_vm_options_t creation flags used on Intel hosts.
type VMOptions uint64

const (
	VMDefault            VMOptions = 0
	VMSpecifyMitigations VMOptions = 1 << 0
	VMMitigationA        VMOptions = 1 << 1
	VMMitigationB        VMOptions = 1 << 2
	VMMitigationC        VMOptions = 1 << 3
	VMMitigationD        VMOptions = 1 << 4
	VMMitigationE        VMOptions = 1 << 6

	vmOptionsMask = VMSpecifyMitigations | VMMitigationA | VMMitigationB |
		VMMitigationC | VMMitigationD | VMMitigationE
)

var vmOptionNames = []struct {
	opt  VMOptions
	name string
}{
	{VMSpecifyMitigations, "specify-mitigations"},
	{VMMitigationA, "mitigation-a"},
	{VMMitigationB, "mitigation-b"},
	{VMMitigationC, "mitigation-c"},
	{VMMitigationD, "mitigation-d"},
	{VMMitigationE, "mitigation-e"},
}

func (o VMOptions) String() string {
	if o == VMDefault {
		return "default"
	}
	var parts []string
	for _, n := range vmOptionNames {
		if o&n.opt != 0 {
			parts = append(parts, n.name)
			o &^= n.opt
		}
	}
	if o != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint64(o)))
	}
	return strings.Join(parts, "|")
}

// MemPerm represents guest memory permissions.
type MemPerm uint

const (
	MemRead  MemPerm = 1 << 0
	MemWrite MemPerm = 1 << 1
	MemExec  MemPerm = 1 << 2

	MemRW  = MemRead | MemWrite
	MemRWX = MemRead | MemWrite | MemExec

	memPermMask = MemRWX
)

func (p MemPerm) String() string {
	b := []byte("---")
	if p&MemRead != 0 {
		b[0] = 'r'
	}
	if p&MemWrite != 0 {
		b[1] = 'w'
	}
	if p&MemExec != 0 {
		b[2] = 'x'
	}
	if extra := p &^ memPermMask; extra != 0 {
		return fmt.Sprintf("%s|0x%x", b, uint(extra))
	}
	return string(b)
}

// VMConfig controls VM creation.
type VMConfig struct {
	// Options are passed to hv_vm_create on Intel hosts.
	Options VMOptions
	// IPASize is the guest intermediate physical address width in bits on
	// Apple silicon. Zero selects the framework default.
	IPASize uint32
}

// DefaultVMConfig returns the configuration used by NewVM.
func DefaultVMConfig() VMConfig {
	return VMConfig{Options: VMDefault}
}

// Validate checks the configuration for obviously invalid values.
func (c VMConfig) Validate() error {
	if c.Options&^vmOptionsMask != 0 {
		return fmt.Errorf("hv: unknown VM option bits 0x%x", uint64(c.Options&^vmOptionsMask))
	}
	if c.Options&^VMSpecifyMitigations != 0 && c.Options&VMSpecifyMitigations == 0 {
		return fmt.Errorf("hv: mitigation flags %s require %s", c.Options&^VMSpecifyMitigations, VMSpecifyMitigations)
	}
	if c.IPASize != 0 && (c.IPASize < 32 || c.IPASize > 52) {
		return fmt.Errorf("hv: IPA size %d out of range [32, 52]", c.IPASize)
	}
	return nil
}

// settings are process-wide knobs read from the environment.
type settings struct {
	// Production sanitizes error messages.
	Production bool
	// Debug enables debug logging for lifecycle events.
	Debug bool
}

var (
	settingsOnce sync.Once
	settingsVal  settings
)

func currentSettings() settings {
	settingsOnce.Do(func() {
		settingsVal = loadSettings()
	})
	return settingsVal
}

// reloadSettings rereads the environment.
func reloadSettings() {
	settingsOnce = sync.Once{}
}

// loadSettings reads HV_ENV and HV_DEBUG.
func loadSettings() settings {
	var s settings
	env := os.Getenv("HV_ENV")
	if env == "production" || env == "prod" {
		s.Production = true
	}
	// Check if debug mode is explicitly disabled
	if debug := os.Getenv("HV_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil {
			if !val {
				s.Production = true
			}
			s.Debug = val
		}
	}
	return s
}
