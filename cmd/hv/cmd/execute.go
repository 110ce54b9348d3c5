//go:build arm64

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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blacktop/hv"
	"github.com/blacktop/hv/arm64"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// execConfig describes the guest a code run gets.
type execConfig struct {
	memSize  int
	baseAddr uint64
	timeout  time.Duration
	vcpus    int
	dumpSize int // bytes of guest memory returned from baseAddr
}

var stateFile string

func init() {
	rootCmd.AddCommand(executeCmd)
	def := DefaultConfig().Execute
	executeCmd.Flags().StringVarP(&stateFile, "state", "s", "", "JSON file with initial CPU state")
	executeCmd.Flags().Int("mem-size", def.MemSize, "Memory size to allocate (bytes)")
	executeCmd.Flags().Uint64P("base-addr", "a", def.BaseAddr, "Base address for code execution")
	executeCmd.Flags().DurationP("timeout", "t", def.Timeout, "Stop the guest after this long (0 = no limit)")
	executeCmd.Flags().IntP("vcpus", "n", def.VCPUs, "Number of vCPUs running the code concurrently")
	viper.BindPFlag("execute.mem_size", executeCmd.Flags().Lookup("mem-size"))
	viper.BindPFlag("execute.base_addr", executeCmd.Flags().Lookup("base-addr"))
	viper.BindPFlag("execute.timeout", executeCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("execute.vcpus", executeCmd.Flags().Lookup("vcpus"))
}

var executeCmd = &cobra.Command{
	Use:   "execute [code-file]",
	Short: "Execute ARM64 code and return CPU state as JSON",
	Long: `Execute ARM64 machine code and return the resulting CPU state as JSON.

Code can be provided as:
  - A binary file argument
  - Stdin (if no file argument provided)

Initial CPU state can be provided via --state flag pointing to a JSON file.
Guest settings can also come from HV_EXECUTE_* environment variables or the
execute section of the config file.
With --vcpus N the code runs on N vCPUs sharing guest memory and the output
is a JSON array with one result per vCPU.
Results are output as JSON to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
	ok, err := hv.Supported()
	if err != nil || !ok {
		return fmt.Errorf("hypervisor not supported: %v", err)
	}

	initialState, err := readState(stateFile)
	if err != nil {
		return err
	}
	code, err := readCode(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg := Global.Execute
	results, err := executeCode(cmd.Context(), code, initialState, execConfig{
		memSize:  cfg.MemSize,
		baseAddr: cfg.BaseAddr,
		timeout:  cfg.Timeout,
		vcpus:    cfg.VCPUs,
		dumpSize: len(code),
	})
	if err != nil {
		results = []*ExecuteResult{{Error: err.Error()}}
	}

	var out any = results
	if len(results) == 1 {
		out = results[0]
	}
	output, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}

// executeCode maps code at cfg.baseAddr and runs it on cfg.vcpus vCPUs.
// A vCPU stopped by the timeout still reports its state, with Error set.
func executeCode(ctx context.Context, code []byte, initial CPUState, cfg execConfig) ([]*ExecuteResult, error) {
	if cfg.vcpus < 1 {
		return nil, fmt.Errorf("vcpus must be at least 1")
	}
	if page := hv.PageSize(); cfg.memSize <= 0 || cfg.memSize%page != 0 {
		return nil, fmt.Errorf("mem-size must be a multiple of page size (%d bytes)", page)
	}
	if len(code) > cfg.memSize {
		return nil, fmt.Errorf("code size (%d) exceeds memory size (%d)", len(code), cfg.memSize)
	}

	vm, err := hv.NewVM()
	if err != nil {
		return nil, fmt.Errorf("failed to create VM: %w", err)
	}
	defer vm.Close()

	mem, err := hv.NewGuestMemory(cfg.memSize)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate memory: %w", err)
	}
	defer mem.Close()
	copy(mem.Bytes(), code)

	if err := vm.Map(mem.Bytes(), cfg.baseAddr, hv.MemRWX); err != nil {
		return nil, fmt.Errorf("failed to map memory: %w", err)
	}
	defer vm.Unmap(cfg.baseAddr, uint64(mem.Len()))

	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	state := initial.withDefaults(cfg.baseAddr)
	results := make([]*ExecuteResult, cfg.vcpus)
	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.vcpus {
		g.Go(func() error {
			r, err := runVCPU(gctx, vm, state)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Copy the executed memory to avoid marshaling guest memory
	dump := make([]byte, min(cfg.dumpSize, mem.Len()))
	copy(dump, mem.Bytes())
	for _, r := range results {
		r.Memory = map[string][]byte{fmt.Sprintf("0x%x", cfg.baseAddr): dump}
	}
	return results, nil
}

// guestCPU is the part of *hv.VCPU a code run uses.
type guestCPU interface {
	ID() uint64
	SetRegs(batch hv.RegBatch) error
	GetRegs(regs ...arm64.Reg) (hv.RegBatch, error)
	SetSysReg(r arm64.SysReg, v uint64) error
	GetSysReg(r arm64.SysReg) (uint64, error)
	SetTrapDebugExceptions(enable bool) error
	RunContext(ctx context.Context) (hv.ExitInfo, error)
}

var _ guestCPU = (*hv.VCPU)(nil)

// runVCPU creates a vCPU, loads state into it and runs it until the guest
// exits or ctx is done.
func runVCPU(ctx context.Context, vm *hv.VM, state CPUState) (*ExecuteResult, error) {
	vcpu, err := vm.NewVCPU()
	if err != nil {
		return nil, fmt.Errorf("failed to create vCPU: %w", err)
	}
	defer vcpu.Close()
	return runGuest(ctx, vcpu, state)
}

// runGuest runs cpu from state. Debug exceptions are trapped to the host so
// a guest brk ends the run instead of taking the guest's own vector.
func runGuest(ctx context.Context, cpu guestCPU, state CPUState) (*ExecuteResult, error) {
	if err := setCPUState(cpu, &state); err != nil {
		return nil, fmt.Errorf("failed to set initial state: %w", err)
	}
	if err := cpu.SetTrapDebugExceptions(true); err != nil {
		return nil, fmt.Errorf("failed to trap debug exceptions: %w", err)
	}

	result := &ExecuteResult{VCPU: cpu.ID()}
	exitInfo, err := cpu.RunContext(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		slog.Debug("vCPU stopped", "vcpu", cpu.ID(), "err", err)
		result.Error = err.Error()
	case err != nil:
		return nil, fmt.Errorf("failed to execute: %w", err)
	}
	result.ExitInfo = exitInfo
	result.Exit = exitInfo.String()

	finalState, err := getCPUState(cpu)
	if err != nil {
		return nil, fmt.Errorf("failed to get final state: %w", err)
	}
	result.State = *finalState
	return result, nil
}

// setCPUState loads the registers of state into cpu
func setCPUState(cpu guestCPU, state *CPUState) error {
	if err := cpu.SetRegs(state.Regs()); err != nil {
		return err
	}
	if err := cpu.SetSysReg(spRegister(state.CPSR), state.SP); err != nil {
		return fmt.Errorf("failed to set SP: %w", err)
	}
	return nil
}

// getCPUState retrieves all CPU registers into a state struct
func getCPUState(cpu guestCPU) (*CPUState, error) {
	regs, err := cpu.GetRegs(stateRegs...)
	if err != nil {
		return nil, err
	}
	state := &CPUState{}
	state.SetRegs(regs)
	if state.SP, err = cpu.GetSysReg(spRegister(state.CPSR)); err != nil {
		return nil, fmt.Errorf("failed to get SP: %w", err)
	}
	return state, nil
}
