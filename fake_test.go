package hv

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// fakeFramework records framework calls and keeps vCPU state in memory so
// VM, Space and VCPU logic can be tested without Hypervisor.framework.
type fakeFramework struct {
	mu sync.Mutex

	vmActive   bool
	vmCreates  int
	vmDestroys int
	cfg        VMConfig
	caps       map[Capability]uint64

	nextSpace uint32
	spaces    map[uint32]bool
	// mapped holds the guest page base addresses mapped in each space.
	mapped map[uint32]map[uint64]MemPerm

	nextVCPU    uint64
	vcpus       map[uint64]*fakeVCPU
	forceExits  int
	wrongThread []string

	// fail makes the named operation return the error once.
	fail map[string]error
	// run, when set, replaces the default immediate vCPU exit.
	run func(v *fakeVCPU) error
	// onForceExit, when set, is called before a forced exit is delivered.
	onForceExit func()
}

type fakeVCPU struct {
	id   uint64
	goid uint64
	// kick latches a forced exit like the framework does.
	kick     chan struct{}
	running  chan struct{}
	vals     map[string]uint64
	bools    map[string]bool
	simd     map[uint32][16]byte
	execTime uint64
	runs     int
}

func newFakeFramework() *fakeFramework {
	return &fakeFramework{
		caps:   map[Capability]uint64{CapVCPUMax: 64},
		spaces: map[uint32]bool{},
		mapped: map[uint32]map[uint64]MemPerm{defaultSpace: {}},
		vcpus:  map[uint64]*fakeVCPU{},
		fail:   map[string]error{},
	}
}

// goid returns the current goroutine id; vCPU calls must all come from the
// goroutine that created the vCPU.
func goid() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	buf = buf[:bytes.IndexByte(buf, ' ')]
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

func (f *fakeFramework) failOnce(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// check must be called with f.mu held.
func (f *fakeFramework) check(op string) error {
	if err, ok := f.fail[op]; ok {
		delete(f.fail, op)
		return err
	}
	return nil
}

// vcpu looks up h and records calls made off its thread. f.mu must be held.
func (f *fakeFramework) vcpu(op string, h vcpuHandle) (*fakeVCPU, error) {
	v, ok := f.vcpus[h.id]
	if !ok {
		return nil, Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	if g := goid(); g != v.goid {
		f.wrongThread = append(f.wrongThread, fmt.Sprintf("%s on goroutine %d, vCPU %d owned by %d", op, g, v.id, v.goid))
	}
	return v, f.check(op)
}

func (f *fakeFramework) vmCreate(cfg VMConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("vmCreate"); err != nil {
		return err
	}
	if f.vmActive {
		return Error{Kind: KindUnknown, Code: HV_EXISTS}
	}
	f.vmActive = true
	f.vmCreates++
	f.cfg = cfg
	return nil
}

func (f *fakeFramework) vmDestroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("vmDestroy"); err != nil {
		return err
	}
	if len(f.vcpus) > 0 {
		return Error{Kind: KindBusy, Code: HV_BUSY}
	}
	f.vmActive = false
	f.vmDestroys++
	return nil
}

func (f *fakeFramework) vmCapability(c Capability) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.caps[c]
	if !ok {
		return 0, ErrUnsupported
	}
	return v, nil
}

func (f *fakeFramework) pages(gpa, size uint64) []uint64 {
	var out []uint64
	ps := uint64(PageSize())
	for a := gpa; a < gpa+size; a += ps {
		out = append(out, a)
	}
	return out
}

func (f *fakeFramework) vmMap(space uint32, host []byte, gpa uint64, perms MemPerm) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("vmMap"); err != nil {
		return err
	}
	m, ok := f.mapped[space]
	if !ok {
		return Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	for _, p := range f.pages(gpa, uint64(len(host))) {
		m[p] = perms
	}
	return nil
}

func (f *fakeFramework) vmUnmap(space uint32, gpa, size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("vmUnmap"); err != nil {
		return err
	}
	m, ok := f.mapped[space]
	if !ok {
		return Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	for _, p := range f.pages(gpa, size) {
		delete(m, p)
	}
	return nil
}

func (f *fakeFramework) vmProtect(space uint32, gpa, size uint64, perms MemPerm) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("vmProtect"); err != nil {
		return err
	}
	m, ok := f.mapped[space]
	if !ok {
		return Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	for _, p := range f.pages(gpa, size) {
		m[p] = perms
	}
	return nil
}

func (f *fakeFramework) spaceCreate() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("spaceCreate"); err != nil {
		return 0, err
	}
	f.nextSpace++
	f.spaces[f.nextSpace] = true
	f.mapped[f.nextSpace] = map[uint64]MemPerm{}
	return f.nextSpace, nil
}

func (f *fakeFramework) spaceDestroy(space uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("spaceDestroy"); err != nil {
		return err
	}
	if !f.spaces[space] {
		return Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	delete(f.spaces, space)
	delete(f.mapped, space)
	return nil
}

func (f *fakeFramework) vcpuCreate() (vcpuHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("vcpuCreate"); err != nil {
		return vcpuHandle{}, err
	}
	v := &fakeVCPU{
		id:      f.nextVCPU,
		goid:    goid(),
		kick:    make(chan struct{}, 1),
		running: make(chan struct{}, 1),
		vals:    map[string]uint64{},
		bools:   map[string]bool{},
		simd:    map[uint32][16]byte{},
	}
	f.nextVCPU++
	f.vcpus[v.id] = v
	return vcpuHandle{id: v.id}, nil
}

func (f *fakeFramework) vcpuDestroy(h vcpuHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.vcpu("vcpuDestroy", h); err != nil {
		return err
	}
	delete(f.vcpus, h.id)
	return nil
}

func (f *fakeFramework) vcpuRun(h vcpuHandle) error {
	f.mu.Lock()
	v, err := f.vcpu("vcpuRun", h)
	run := f.run
	if err == nil {
		v.runs++
		v.execTime += 1000
		v.bools["canceled"] = false
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if run != nil {
		return run(v)
	}
	return nil
}

// blockUntilKicked is a run hook for a guest that only exits when forced
// out; the exit is then reported as canceled.
func (f *fakeFramework) blockUntilKicked(v *fakeVCPU) error {
	select {
	case v.running <- struct{}{}:
	default:
	}
	<-v.kick
	f.mu.Lock()
	v.bools["canceled"] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeFramework) vcpuExecTime(h vcpuHandle) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu("vcpuExecTime", h)
	if err != nil {
		return 0, err
	}
	return v.execTime, nil
}

// vcpuForceExit may be called from any goroutine.
func (f *fakeFramework) vcpuForceExit(h vcpuHandle) error {
	f.mu.Lock()
	hook := f.onForceExit
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vcpus[h.id]
	if !ok {
		return Error{Kind: KindBadArgument, Code: HV_BAD_ARGUMENT}
	}
	f.forceExits++
	select {
	case v.kick <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeFramework) get(op string, h vcpuHandle, key string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu(op, h)
	if err != nil {
		return 0, err
	}
	return v.vals[key], nil
}

func (f *fakeFramework) set(op string, h vcpuHandle, key string, val uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu(op, h)
	if err != nil {
		return err
	}
	v.vals[key] = val
	return nil
}

func (f *fakeFramework) getBool(op string, h vcpuHandle, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu(op, h)
	if err != nil {
		return false, err
	}
	return v.bools[key], nil
}

func (f *fakeFramework) setBool(op string, h vcpuHandle, key string, val bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.vcpu(op, h)
	if err != nil {
		return err
	}
	v.bools[key] = val
	return nil
}

// peek reads vCPU state from the test goroutine.
func (f *fakeFramework) peek(id uint64, key string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vcpus[id].vals[key]
}

func (f *fakeFramework) poke(id uint64, key string, val uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vcpus[id].vals[key] = val
}

func (f *fakeFramework) mappedPages(space uint32) map[uint64]MemPerm {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint64]MemPerm, len(f.mapped[space]))
	for k, v := range f.mapped[space] {
		out[k] = v
	}
	return out
}

func (f *fakeFramework) threadViolations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.wrongThread...)
}

// newTestVM creates a VM on a fresh fake framework and closes it at the
// end of the test.
func newTestVM(t *testing.T) (*VM, *fakeFramework) {
	t.Helper()
	f := newFakeFramework()
	vm, err := newVM(f, DefaultVMConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.Empty(t, f.threadViolations())
		vm.mu.Lock()
		closed := vm.closed
		vm.mu.Unlock()
		if !closed {
			// Release whatever the test left open.
			forceCloseVM(vm)
		}
	})
	return vm, f
}

// forceCloseVM tears a VM down regardless of open children.
func forceCloseVM(vm *VM) {
	vm.mu.Lock()
	vm.vcpus, vm.spaces = 0, 0
	vm.mu.Unlock()
	f, ok := vm.fw.(*fakeFramework)
	if ok {
		f.mu.Lock()
		f.vcpus = map[uint64]*fakeVCPU{}
		f.mu.Unlock()
	}
	_ = vm.Close()
}

// pageBuf returns page-aligned memory outside the Go heap.
func pageBuf(t *testing.T, pages int) []byte {
	t.Helper()
	m, err := NewGuestMemory(pages * PageSize())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m.Bytes()
}

func uintptrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(unsafe.SliceData(b))) }
