package hv

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// VM represents the single hypervisor VM instance of this process.
//
// A VM owns the default guest address space and is the parent of every
// VCPU and Space. It cannot be closed while any of them is open.
type VM struct {
	fw  framework
	cfg VMConfig
	mem addressSpace

	mu     sync.RWMutex // guards closed and the child counts; Close takes it exclusively
	closed bool
	vcpus  int
	spaces int
}

var (
	vmMu     sync.Mutex
	vmActive bool
)

// NewVM creates the Hypervisor VM for this process with DefaultVMConfig.
func NewVM() (*VM, error) {
	return NewVMWithConfig(DefaultVMConfig())
}

// NewVMWithConfig creates the Hypervisor VM for this process. Only one VM
// may exist per process; a second call before Close fails with
// ErrVMAlreadyActive.
func NewVMWithConfig(cfg VMConfig) (*VM, error) {
	return newVM(hvf, cfg)
}

func newVM(fw framework, cfg VMConfig) (*VM, error) {
	if fw == nil {
		return nil, ErrUnsupportedPlatform
	}
	if err := cfg.Validate(); err != nil {
		recordValidationError()
		return nil, err
	}

	vmMu.Lock()
	defer vmMu.Unlock()

	if vmActive {
		recordResourceError()
		return nil, ErrVMAlreadyActive
	}

	start := time.Now()
	if err := fw.vmCreate(cfg); err != nil {
		recordResourceError()
		return nil, fmt.Errorf("failed to create VM: %w", err)
	}
	recordVMCreate(time.Since(start))

	vmActive = true
	vm := &VM{
		fw:  fw,
		cfg: cfg,
		mem: addressSpace{fw: fw, id: defaultSpace},
	}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(vm, (*VM).finalize)

	logger().Debug("VM created",
		slog.String("options", cfg.Options.String()),
		slog.Uint64("ipa_size", uint64(cfg.IPASize)))
	return vm, nil
}

// Config returns the configuration the VM was created with.
func (vm *VM) Config() VMConfig { return vm.cfg }

// Close destroys the Hypervisor VM. It fails with ErrVMInUse while any VCPU
// or Space created from it is still open. Idempotent.
func (vm *VM) Close() error {
	if vm == nil {
		return nil
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.closed {
		return nil
	}
	if vm.vcpus > 0 || vm.spaces > 0 {
		return fmt.Errorf("hv: %d vCPUs and %d address spaces still open: %w", vm.vcpus, vm.spaces, ErrVMInUse)
	}

	vmMu.Lock()
	defer vmMu.Unlock()

	if err := vm.fw.vmDestroy(); err != nil {
		recordResourceError()
		return fmt.Errorf("failed to destroy VM: %w", err)
	}

	vm.closed = true
	vmActive = false
	vm.mem.regions.clear()

	// Clear finalizer since we've cleaned up properly
	runtime.SetFinalizer(vm, nil)

	recordVMDestroy()
	logger().Debug("VM destroyed")
	return nil
}

// finalize is called by the garbage collector as a safety net
func (vm *VM) finalize() {
	// Security: Use non-blocking lock to prevent deadlock in finalizers
	if !vm.mu.TryLock() {
		return
	}
	defer vm.mu.Unlock()
	if vm.closed {
		return
	}
	vm.closed = true
	vm.mem.regions.clear()

	logger().Warn("hv: VM was not closed, destroying it in finalizer")

	vmMu.Lock()
	defer vmMu.Unlock()
	if err := vm.fw.vmDestroy(); err != nil {
		logger().Warn("hv: finalizer failed to destroy VM", slog.Any("error", err))
		return
	}
	vmActive = false
	recordVMDestroy()
}

// rlock takes a read lock on an open VM.
func (vm *VM) rlock() error {
	if vm == nil {
		return fmt.Errorf("hv: VM is nil")
	}
	vm.mu.RLock()
	if vm.closed {
		vm.mu.RUnlock()
		return ErrVMClosed
	}
	return nil
}

// Capability returns the value of a system capability. Capabilities that
// do not exist on the host architecture fail with ErrUnsupported.
func (vm *VM) Capability(c Capability) (uint64, error) {
	if err := vm.rlock(); err != nil {
		return 0, err
	}
	defer vm.mu.RUnlock()

	v, err := vm.fw.vmCapability(c)
	if err != nil {
		return 0, fmt.Errorf("failed to read capability %s: %w", c, err)
	}
	return v, nil
}

// Map maps a host memory slice into the default guest physical address
// space. The host slice base address, length, and gpa must be
// page-aligned, and host must stay valid until the range is unmapped.
// Go-heap memory is pinned for that duration.
func (vm *VM) Map(host []byte, gpa uint64, perms MemPerm) error {
	if err := vm.rlock(); err != nil {
		return err
	}
	defer vm.mu.RUnlock()
	return vm.mem.mapHost(host, gpa, perms)
}

// Unmap removes [gpa, gpa+size) from the default guest physical address
// space. The range must be fully mapped.
func (vm *VM) Unmap(gpa, size uint64) error {
	if err := vm.rlock(); err != nil {
		return err
	}
	defer vm.mu.RUnlock()
	return vm.mem.unmap(gpa, size)
}

// Protect changes the permissions of [gpa, gpa+size) in the default guest
// physical address space. The range must be fully mapped.
func (vm *VM) Protect(gpa, size uint64, perms MemPerm) error {
	if err := vm.rlock(); err != nil {
		return err
	}
	defer vm.mu.RUnlock()
	return vm.mem.protect(gpa, size, perms)
}

// Regions lists the mappings of the default address space by address.
func (vm *VM) Regions() []Region {
	return vm.mem.regions.list()
}

// GuestBytes returns the host memory backing n bytes at gpa in the default
// address space. The range must lie inside a single mapping.
func (vm *VM) GuestBytes(gpa uint64, n int) ([]byte, error) {
	return vm.mem.regions.translate(gpa, n)
}

// NewVCPU creates a vCPU bound to a dedicated OS thread.
func (vm *VM) NewVCPU() (*VCPU, error) {
	if vm == nil {
		return nil, fmt.Errorf("hv: VM is nil")
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return nil, ErrVMClosed
	}

	th := newOSThread()
	var (
		h   vcpuHandle
		err error
	)
	th.do(func() { h, err = vm.fw.vcpuCreate() })
	if err != nil {
		th.stop()
		recordResourceError()
		return nil, fmt.Errorf("failed to create vCPU: %w", err)
	}
	vm.vcpus++

	c := &VCPU{vm: vm, th: th, h: h}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(c, (*VCPU).finalize)

	recordVCPUCreate()
	logger().Debug("vCPU created", slog.Uint64("id", h.id))
	return c, nil
}

// NewSpace creates an additional guest physical address space. Apple
// silicon has only the default space and reports ErrUnsupported.
func (vm *VM) NewSpace() (*Space, error) {
	if vm == nil {
		return nil, fmt.Errorf("hv: VM is nil")
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return nil, ErrVMClosed
	}

	id, err := vm.fw.spaceCreate()
	if err != nil {
		recordResourceError()
		return nil, fmt.Errorf("failed to create address space: %w", err)
	}
	vm.spaces++

	s := &Space{vm: vm, mem: addressSpace{fw: vm.fw, id: id}}
	runtime.SetFinalizer(s, (*Space).finalize)

	recordSpaceCreate()
	logger().Debug("address space created", slog.Uint64("id", uint64(id)))
	return s, nil
}

func (vm *VM) releaseVCPU() {
	vm.mu.Lock()
	vm.vcpus--
	vm.mu.Unlock()
}

func (vm *VM) releaseSpace() {
	vm.mu.Lock()
	vm.spaces--
	vm.mu.Unlock()
}
