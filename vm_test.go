package hv

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVMUnsupported(t *testing.T) {
	vm, err := newVM(nil, DefaultVMConfig())
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.Nil(t, vm)

	if hvf == nil {
		_, err := NewVM()
		assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	}
}

func TestNewVMInvalidConfig(t *testing.T) {
	ResetMetrics()
	f := newFakeFramework()
	_, err := newVM(f, VMConfig{IPASize: 8})
	assert.Error(t, err)
	assert.Zero(t, f.vmCreates, "framework must not be called")
	assert.Equal(t, uint64(1), GetMetrics().ValidationErrors)
}

func TestSingleVMPerProcess(t *testing.T) {
	vm, f := newTestVM(t)

	_, err := newVM(newFakeFramework(), DefaultVMConfig())
	assert.ErrorIs(t, err, ErrVMAlreadyActive)

	require.NoError(t, vm.Close())
	assert.Equal(t, 1, f.vmDestroys)

	vm2, err := newVM(f, DefaultVMConfig())
	require.NoError(t, err)
	assert.NoError(t, vm2.Close())
	assert.Equal(t, 2, f.vmCreates)
}

func TestVMCreateFailure(t *testing.T) {
	f := newFakeFramework()
	f.failOnce("vmCreate", ErrNoDevice)

	_, err := newVM(f, DefaultVMConfig())
	assert.ErrorIs(t, err, ErrNoDevice)

	// A failed create does not hold the process slot.
	vm, err := newVM(f, DefaultVMConfig())
	require.NoError(t, err)
	assert.NoError(t, vm.Close())
}

func TestVMConfigKept(t *testing.T) {
	f := newFakeFramework()
	cfg := VMConfig{IPASize: 40}
	vm, err := newVM(f, cfg)
	require.NoError(t, err)
	defer vm.Close()

	assert.Equal(t, cfg, vm.Config())
	assert.Equal(t, cfg, f.cfg)
}

func TestVMCloseIdempotent(t *testing.T) {
	vm, f := newTestVM(t)
	require.NoError(t, vm.Close())
	require.NoError(t, vm.Close())
	assert.Equal(t, 1, f.vmDestroys)

	var nilVM *VM
	assert.NoError(t, nilVM.Close())
}

func TestVMCloseInUse(t *testing.T) {
	vm, _ := newTestVM(t)

	c, err := vm.NewVCPU()
	require.NoError(t, err)
	s, err := vm.NewSpace()
	require.NoError(t, err)

	assert.ErrorIs(t, vm.Close(), ErrVMInUse)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, vm.Close(), ErrVMInUse)

	require.NoError(t, s.Close())
	assert.NoError(t, vm.Close())
}

func TestVMDestroyFailure(t *testing.T) {
	vm, f := newTestVM(t)
	f.failOnce("vmDestroy", ErrBusy)

	assert.ErrorIs(t, vm.Close(), ErrBusy)

	// Still usable and still holding the process slot.
	_, err := vm.Capability(CapVCPUMax)
	assert.NoError(t, err)
	_, err = newVM(newFakeFramework(), DefaultVMConfig())
	assert.ErrorIs(t, err, ErrVMAlreadyActive)

	assert.NoError(t, vm.Close())
}

func TestVMClosedOperations(t *testing.T) {
	vm, _ := newTestVM(t)
	buf := pageBuf(t, 1)
	require.NoError(t, vm.Close())

	assert.ErrorIs(t, vm.Map(buf, 0, MemRW), ErrVMClosed)
	assert.ErrorIs(t, vm.Unmap(0, uint64(len(buf))), ErrVMClosed)
	assert.ErrorIs(t, vm.Protect(0, uint64(len(buf)), MemRead), ErrVMClosed)
	_, err := vm.Capability(CapVCPUMax)
	assert.ErrorIs(t, err, ErrVMClosed)
	_, err = vm.NewVCPU()
	assert.ErrorIs(t, err, ErrVMClosed)
	_, err = vm.NewSpace()
	assert.ErrorIs(t, err, ErrVMClosed)
}

func TestNilVM(t *testing.T) {
	var vm *VM
	assert.Error(t, vm.Map(nil, 0, MemRW))
	_, err := vm.NewVCPU()
	assert.Error(t, err)
	_, err = vm.NewSpace()
	assert.Error(t, err)
}

func TestVMCapability(t *testing.T) {
	vm, _ := newTestVM(t)

	n, err := vm.Capability(CapVCPUMax)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), n)

	_, err = vm.Capability(CapMaxIPASize)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "vcpu-max", CapVCPUMax.String())
	assert.Equal(t, "addr-space-max", CapAddrSpaceMax.String())
	assert.Equal(t, "max-ipa-size", CapMaxIPASize.String())
	assert.Equal(t, "default-ipa-size", CapDefaultIPASize.String())
	assert.Equal(t, "Capability(9)", Capability(9).String())
}

func TestVMMapUnmapProtect(t *testing.T) {
	ResetMetrics()
	vm, f := newTestVM(t)
	ps := uint64(PageSize())
	buf := pageBuf(t, 4)
	buf[ps] = 0x42

	require.NoError(t, vm.Map(buf, 0x100*ps, MemRWX))
	assert.Len(t, f.mappedPages(defaultSpace), 4)

	b, err := vm.GuestBytes(0x100*ps+ps, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b[0])

	require.NoError(t, vm.Protect(0x100*ps, ps, MemRead))
	assert.Equal(t, MemRead, f.mappedPages(defaultSpace)[0x100*ps])
	assert.Len(t, vm.Regions(), 2)

	require.NoError(t, vm.Unmap(0x101*ps, 2*ps))
	pages := f.mappedPages(defaultSpace)
	assert.Len(t, pages, 2)
	assert.Contains(t, pages, 0x100*ps)
	assert.Contains(t, pages, 0x103*ps)

	regions := vm.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, Region{GPA: 0x100 * ps, Size: ps, Perms: MemRead, Host: regions[0].Host}, regions[0])
	assert.Equal(t, 0x103*ps, regions[1].GPA)

	m := GetMetrics()
	assert.Equal(t, uint64(1), m.MapOperations)
	assert.Equal(t, uint64(1), m.UnmapOperations)
	assert.Equal(t, uint64(1), m.ProtectOperations)
}

func TestVMMapErrors(t *testing.T) {
	ResetMetrics()
	vm, f := newTestVM(t)
	ps := uint64(PageSize())
	buf := pageBuf(t, 2)

	assert.ErrorIs(t, vm.Map(buf, 1, MemRW), ErrInvalidAlignment)
	assert.ErrorIs(t, vm.Map(buf, 0, 0), ErrInvalidPermissions)
	assert.ErrorIs(t, vm.Unmap(0, 1), ErrInvalidAlignment)
	assert.Equal(t, uint64(3), GetMetrics().ValidationErrors)
	assert.Empty(t, f.mappedPages(defaultSpace))

	require.NoError(t, vm.Map(buf, 0, MemRW))
	assert.ErrorIs(t, vm.Map(buf[:ps], ps, MemRW), ErrOverlap)
	assert.ErrorIs(t, vm.Unmap(2*ps, ps), ErrNotMapped)
	assert.ErrorIs(t, vm.Protect(ps, 2*ps, MemRead), ErrNotMapped)
	assert.Zero(t, GetMetrics().ResourceErrors)

	f.failOnce("vmUnmap", ErrNoResources)
	assert.ErrorIs(t, vm.Unmap(0, ps), ErrNoResources)
	assert.Len(t, vm.Regions(), 1, "failed unmap keeps the region")
	assert.Equal(t, uint64(1), GetMetrics().ResourceErrors)
}

func TestVMMapFrameworkError(t *testing.T) {
	vm, f := newTestVM(t)
	buf := pageBuf(t, 1)

	f.failOnce("vmMap", Error{Kind: KindUnknown, Code: HV_DENIED})
	err := vm.Map(buf, 0, MemRW)
	assert.ErrorIs(t, err, Error{Kind: KindUnknown, Code: HV_DENIED})
	assert.Empty(t, vm.Regions())

	// The range is free again after the failure.
	assert.NoError(t, vm.Map(buf, 0, MemRW))
}

func TestVMMapGoHeapMemory(t *testing.T) {
	vm, _ := newTestVM(t)
	ps := PageSize()

	// Carve a page-aligned window out of a heap buffer.
	raw := make([]byte, 3*ps)
	off := 0
	for !isPageAligned(uint64(uintptrOf(raw[off:]))) {
		off++
	}
	host := raw[off : off+ps]

	require.NoError(t, vm.Map(host, 0, MemRW))
	regions := vm.Regions()
	require.Len(t, regions, 1)
	assert.Equal(t, uintptrOf(host), regions[0].Host)
	require.NoError(t, vm.Unmap(0, uint64(ps)))
}

func TestVMFinalize(t *testing.T) {
	var logs bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { pkgLogger.Store(nil) })

	vm, f := newTestVM(t)
	vm.finalize()

	assert.Equal(t, 1, f.vmDestroys)
	assert.Contains(t, logs.String(), "VM was not closed")

	// The process slot is free again.
	vm2, err := newVM(f, DefaultVMConfig())
	require.NoError(t, err)
	assert.NoError(t, vm2.Close())
}

func TestSetLoggerNil(t *testing.T) {
	SetLogger(nil)
	t.Cleanup(func() { pkgLogger.Store(nil) })
	assert.False(t, logger().Enabled(t.Context(), slog.LevelError))
}
