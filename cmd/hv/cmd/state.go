/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/blacktop/hv"
	"github.com/blacktop/hv/arm64"
)

// defaultCPSR is EL1h with DAIF masked.
const defaultCPSR = 0x3c5

// CPUState represents the CPU register state
type CPUState struct {
	// General-purpose registers
	X0  uint64 `json:"x0"`
	X1  uint64 `json:"x1"`
	X2  uint64 `json:"x2"`
	X3  uint64 `json:"x3"`
	X4  uint64 `json:"x4"`
	X5  uint64 `json:"x5"`
	X6  uint64 `json:"x6"`
	X7  uint64 `json:"x7"`
	X8  uint64 `json:"x8"`
	X9  uint64 `json:"x9"`
	X10 uint64 `json:"x10"`
	X11 uint64 `json:"x11"`
	X12 uint64 `json:"x12"`
	X13 uint64 `json:"x13"`
	X14 uint64 `json:"x14"`
	X15 uint64 `json:"x15"`
	X16 uint64 `json:"x16"`
	X17 uint64 `json:"x17"`
	X18 uint64 `json:"x18"`
	X19 uint64 `json:"x19"`
	X20 uint64 `json:"x20"`
	X21 uint64 `json:"x21"`
	X22 uint64 `json:"x22"`
	X23 uint64 `json:"x23"`
	X24 uint64 `json:"x24"`
	X25 uint64 `json:"x25"`
	X26 uint64 `json:"x26"`
	X27 uint64 `json:"x27"`
	X28 uint64 `json:"x28"`

	// Special registers
	FP   uint64 `json:"fp"`   // Frame pointer (x29)
	LR   uint64 `json:"lr"`   // Link register (x30)
	SP   uint64 `json:"sp"`   // Stack pointer of the current exception level
	PC   uint64 `json:"pc"`   // Program counter
	CPSR uint64 `json:"cpsr"` // Current program status register
}

// ExecuteResult represents the execution result of one vCPU
type ExecuteResult struct {
	VCPU     uint64            `json:"vcpu"`
	State    CPUState          `json:"state"`
	ExitInfo hv.ExitInfo       `json:"exit_info"`
	Exit     string            `json:"exit,omitempty"`
	Memory   map[string][]byte `json:"memory,omitempty"` // hex address -> data
	Error    string            `json:"error,omitempty"`
}

// stateRegs lists the registers of a CPUState in hv_reg_t order.
var stateRegs = []arm64.Reg{
	arm64.X0, arm64.X1, arm64.X2, arm64.X3, arm64.X4, arm64.X5, arm64.X6, arm64.X7,
	arm64.X8, arm64.X9, arm64.X10, arm64.X11, arm64.X12, arm64.X13, arm64.X14, arm64.X15,
	arm64.X16, arm64.X17, arm64.X18, arm64.X19, arm64.X20, arm64.X21, arm64.X22, arm64.X23,
	arm64.X24, arm64.X25, arm64.X26, arm64.X27, arm64.X28, arm64.FP, arm64.LR,
	arm64.PC, arm64.CPSR,
}

// fields returns pointers to the fields matching stateRegs.
func (s *CPUState) fields() []*uint64 {
	return []*uint64{
		&s.X0, &s.X1, &s.X2, &s.X3, &s.X4, &s.X5, &s.X6, &s.X7,
		&s.X8, &s.X9, &s.X10, &s.X11, &s.X12, &s.X13, &s.X14, &s.X15,
		&s.X16, &s.X17, &s.X18, &s.X19, &s.X20, &s.X21, &s.X22, &s.X23,
		&s.X24, &s.X25, &s.X26, &s.X27, &s.X28, &s.FP, &s.LR,
		&s.PC, &s.CPSR,
	}
}

// Regs returns the register values of s, SP excluded.
func (s *CPUState) Regs() map[arm64.Reg]uint64 {
	regs := make(map[arm64.Reg]uint64, len(stateRegs))
	for i, f := range s.fields() {
		regs[stateRegs[i]] = *f
	}
	return regs
}

// SetRegs fills s from register values; registers missing from regs are
// left untouched.
func (s *CPUState) SetRegs(regs map[arm64.Reg]uint64) {
	for i, f := range s.fields() {
		if v, ok := regs[stateRegs[i]]; ok {
			*f = v
		}
	}
}

// withDefaults fills in the PC and CPSR a zero state leaves unset.
func (s CPUState) withDefaults(baseAddr uint64) CPUState {
	if s.PC == 0 {
		s.PC = baseAddr
	}
	if s.CPSR == 0 {
		s.CPSR = defaultCPSR
	}
	return s
}

// spRegister returns the stack pointer register selected by cpsr: SP_EL1
// for EL1h, SP_EL0 otherwise.
func spRegister(cpsr uint64) arm64.SysReg {
	const (
		modeMask = 0xf
		modeEL1h = 0x5
	)
	if cpsr&modeMask == modeEL1h {
		return arm64.SysRegSPEL1
	}
	return arm64.SysRegSPEL0
}

func readState(path string) (CPUState, error) {
	var state CPUState
	if path == "" {
		return state, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return state, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to parse state JSON: %w", err)
	}
	return state, nil
}

func readCode(args []string, stdin io.Reader) ([]byte, error) {
	var (
		code []byte
		err  error
	)
	if len(args) > 0 {
		code, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read code file: %w", err)
		}
	} else {
		code, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("no code provided")
	}
	return code, nil
}
