// Package hv provides Go bindings for Apple's Hypervisor.framework on
// Apple silicon and Intel Macs.
//
// It wraps VM, vCPU and address space management with memory mapping,
// register access and execution control. Architecture specific register
// tables live in the arm64, x86 and x86/vmx subpackages.
//
// # Requirements
//
//   - macOS on Apple silicon (arm64) or Intel (amd64) with VT-x
//   - Hypervisor entitlement: com.apple.security.hypervisor
//   - Code signing with entitlements
//
// # Basic Usage
//
// Check if hypervisor is supported:
//
//	supported, err := hv.Supported()
//	if err != nil || !supported {
//		log.Fatal("Hypervisor not supported on this system")
//	}
//
// Create and manage a virtual machine:
//
//	// Create a new VM (only one VM per process is allowed)
//	vm, err := hv.NewVM()
//	if err != nil {
//		log.Fatal("Failed to create VM:", err)
//	}
//	defer vm.Close()
//
//	// Create a virtual CPU
//	vcpu, err := vm.NewVCPU()
//	if err != nil {
//		log.Fatal("Failed to create vCPU:", err)
//	}
//	defer vcpu.Close()
//
// Memory management:
//
//	// Allocate page-aligned guest memory outside the Go heap
//	mem, err := hv.NewGuestMemory(hv.PageSize())
//	if err != nil {
//		log.Fatal("Failed to allocate guest memory:", err)
//	}
//	defer mem.Close()
//
//	err = vm.Map(mem.Bytes(), 0x4000, hv.MemRWX)
//	if err != nil {
//		log.Fatal("Failed to map memory:", err)
//	}
//	defer vm.Unmap(0x4000, uint64(mem.Len()))
//
// Register access and execution on Apple silicon:
//
//	if err := vcpu.SetPC(0x4000); err != nil {
//		log.Fatal("Failed to set PC:", err)
//	}
//
//	// Execute guest code until exit
//	exit, err := vcpu.Run()
//	if err != nil {
//		log.Fatal("Failed to run vCPU:", err)
//	}
//	if exit.Reason == arm64.ExitException && exit.Syndrome.Class() == arm64.ECBRK64 {
//		x0, _ := vcpu.GetReg(arm64.X0)
//		fmt.Printf("BRK #%d, X0=0x%x\n", exit.Syndrome.Imm16(), x0)
//	}
//
// # Threads
//
// Hypervisor.framework binds a vCPU to the OS thread that created it. Each
// VCPU owns a goroutine locked to its own OS thread and runs every
// framework call there, so VCPU methods may be called from any goroutine.
// Run blocks until the guest exits. ForceExit, or the cancellation of the
// context passed to RunContext, interrupts a running guest from another
// goroutine.
//
// # Error Handling
//
// Framework failures are returned as Error values carrying a Kind and the
// raw hv_return_t code; match them with errors.Is against ErrBusy,
// ErrBadArgument and the other sentinels. Set HV_ENV=production to get
// messages without diagnostic hints.
//
// # Resource Management
//
// VMs, vCPUs and address spaces must be explicitly closed using Close(). A
// VM refuses to close while a vCPU or address space created from it is
// open. Finalizers provide safety net cleanup. Only one VM can exist per
// process.
//
// # Platform Support
//
// Darwin arm64 and amd64. Other platforms return ErrUnsupportedPlatform.
//
// # Code Signing and Entitlements
//
// Applications must be code signed with hypervisor entitlement:
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN"
//	    "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
//	<plist version="1.0">
//	<dict>
//	    <key>com.apple.security.hypervisor</key>
//	    <true/>
//	</dict>
//	</plist>
//
// Then sign your binary:
//
//	codesign --sign - --force --entitlements=hypervisor.entitlements ./your-app
package hv
