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
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/blacktop/hv"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(capsCmd)
}

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Create a VM and print the framework capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vm, err := hv.NewVM()
		if err != nil {
			return err
		}
		defer vm.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, c := range []hv.Capability{hv.CapVCPUMax, hv.CapAddrSpaceMax, hv.CapMaxIPASize, hv.CapDefaultIPASize} {
			v, err := vm.Capability(c)
			printCap(w, c.String(), v, err)
		}
		printArchCaps(w, vm)
		return w.Flush()
	},
}

func printCap(w io.Writer, name string, v uint64, err error) {
	switch {
	case errors.Is(err, hv.ErrUnsupported):
		fmt.Fprintf(w, "%s\tn/a\n", name)
	case err != nil:
		fmt.Fprintf(w, "%s\terror: %v\n", name, err)
	default:
		fmt.Fprintf(w, "%s\t%d (0x%x)\n", name, v, v)
	}
}
