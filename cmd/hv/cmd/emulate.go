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
	"fmt"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/hv"
	"github.com/blacktop/hv/arm64"
	"github.com/blacktop/hv/cmd/hv/cmd/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// emulateBase is where the function bytes are loaded in the guest.
const emulateBase = 0x4000

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().Uint64P("addr", "a", 0, "Address to emulate (0 = use entry point)")
	emulateCmd.Flags().IntP("mem-size", "m", 0x10000, "Memory size to allocate (bytes)")
	emulateCmd.Flags().Uint64P("stack", "s", 0x8000, "Stack pointer address (within allocated memory)")
	emulateCmd.Flags().DurationP("timeout", "t", DefaultConfig().Emulate.Timeout, "Stop the guest after this long (0 = no limit)")
	viper.BindPFlag("emulate.timeout", emulateCmd.Flags().Lookup("timeout"))
}

var emulateCmd = &cobra.Command{
	Use:     "emulate [FILE]",
	Aliases: []string{"emu"},
	Short:   "Emulate a function from a Mach-O binary and show stack contents",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := hv.Supported()
		if err != nil || !ok {
			return fmt.Errorf("hypervisor not supported: %v", err)
		}

		addr, err := cmd.Flags().GetUint64("addr")
		if err != nil {
			return err
		}
		memSize, err := cmd.Flags().GetInt("mem-size")
		if err != nil {
			return err
		}
		stackPtr, err := cmd.Flags().GetUint64("stack")
		if err != nil {
			return err
		}

		if stackPtr < emulateBase || stackPtr >= emulateBase+uint64(memSize) {
			return fmt.Errorf("stack pointer 0x%x must be within memory range 0x%x-0x%x",
				stackPtr, emulateBase, emulateBase+uint64(memSize))
		}

		m, err := macho.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open Mach-O file: %w", err)
		}
		defer m.Close()

		if addr == 0 {
			main := m.GetLoadsByName("LC_MAIN")
			if len(main) == 0 {
				return fmt.Errorf("failed to find LC_MAIN in target - use --addr to specify function address")
			}
			addr = main[0].(*macho.EntryPoint).EntryOffset + m.GetBaseAddress()
		}

		fmt.Printf("Emulating function at address: 0x%x\n", addr)

		fn, err := m.GetFunctionForVMAddr(addr)
		if err != nil {
			return fmt.Errorf("failed to find function at address 0x%x: %w", addr, err)
		}

		fmt.Printf("Function: %s (0x%x - 0x%x, %d bytes)\n",
			fn.Name, fn.StartAddr, fn.EndAddr, fn.EndAddr-fn.StartAddr)

		instrs := make([]byte, fn.EndAddr-fn.StartAddr)
		if _, err := m.ReadAtAddr(instrs, fn.StartAddr); err != nil {
			return fmt.Errorf("failed to read function bytes: %w", err)
		}
		// brk #0 so a function that falls through still exits
		instrs = append(instrs, 0x00, 0x00, 0x20, 0xd4)

		results, err := executeCode(cmd.Context(), instrs, CPUState{SP: stackPtr}, execConfig{
			memSize:  memSize,
			baseAddr: emulateBase,
			timeout:  Global.Emulate.Timeout,
			vcpus:    1,
			dumpSize: memSize,
		})
		if err != nil {
			return fmt.Errorf("emulation failed: %w", err)
		}
		result := results[0]

		fmt.Printf("\n=== Execution Results ===\n")
		fmt.Printf("Exit: %s\n", result.Exit)
		if result.ExitInfo.Reason == arm64.ExitException {
			fmt.Printf("Exception Class: %s\n", result.ExitInfo.Syndrome.Class())
		}
		if result.Error != "" {
			fmt.Printf("Stopped: %s\n", result.Error)
		}
		fmt.Printf("Final SP: 0x%x (moved %d bytes)\n",
			result.State.SP, int64(result.State.SP)-int64(stackPtr))

		fmt.Printf("\nRegisters:\n")
		fmt.Printf("  X0=0x%x  X1=0x%x  X2=0x%x  X3=0x%x\n",
			result.State.X0, result.State.X1, result.State.X2, result.State.X3)
		fmt.Printf("  PC=0x%x  SP=0x%x  FP=0x%x  LR=0x%x\n",
			result.State.PC, result.State.SP, result.State.FP, result.State.LR)

		printStackContents(result.Memory[fmt.Sprintf("0x%x", emulateBase)], emulateBase, stackPtr, result.State.SP)
		return nil
	},
}

// printStackContents displays the stack contents in a readable format
func printStackContents(memData []byte, baseAddr, initialSP, finalSP uint64) {
	fmt.Printf("\n=== Stack Analysis ===\n")
	if memData == nil {
		fmt.Println("No memory data available")
		return
	}

	stackStart := initialSP - baseAddr
	displayStart := stackStart - min(stackStart, uint64(64))
	displayEnd := min(stackStart+64, uint64(len(memData)))

	fmt.Printf("Stack region: 0x%x - 0x%x (Initial SP: 0x%x, Final SP: 0x%x)\n",
		baseAddr+displayStart, baseAddr+displayEnd, initialSP, finalSP)
	fmt.Printf("Stack change: %d bytes\n\n", int64(finalSP)-int64(initialSP))
	fmt.Printf("Annotations: ISP=Initial SP, FSP=Final SP, STK=Stack Area\n")

	for offset := displayStart; offset < displayEnd; offset += 16 {
		addr := baseAddr + offset
		switch {
		case addr == initialSP:
			fmt.Printf("ISP> ")
		case addr == finalSP:
			fmt.Printf("FSP> ")
		case addr >= finalSP && addr < initialSP:
			fmt.Printf("STK> ")
		default:
			fmt.Printf("     ")
		}
		end := min(offset+16, displayEnd)
		fmt.Print(utils.HexDump(memData[offset:end], addr))
	}
}
