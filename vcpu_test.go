package hv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeFor returns the fake state behind c.
func fakeFor(t *testing.T, f *fakeFramework, c *VCPU) *fakeVCPU {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vcpus[c.ID()]
	require.True(t, ok)
	return v
}

func TestVCPULifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ResetMetrics()
	vm, f := newTestVM(t)

	c, err := vm.NewVCPU()
	require.NoError(t, err)
	c2, err := vm.NewVCPU()
	require.NoError(t, err)
	assert.NotEqual(t, c.ID(), c2.ID())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "Close is idempotent")
	require.NoError(t, c2.Close())

	m := GetMetrics()
	assert.Equal(t, uint64(2), m.VCPUCreated)
	assert.Equal(t, uint64(2), m.VCPUDestroyed)
	assert.Empty(t, f.vcpus)
	require.NoError(t, vm.Close())
}

func TestVCPUCreateFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	vm, f := newTestVM(t)
	f.failOnce("vcpuCreate", ErrNoResources)

	_, err := vm.NewVCPU()
	assert.ErrorIs(t, err, ErrNoResources)
	assert.NoError(t, vm.Close(), "a failed create does not hold the VM")
}

func TestVCPUClosedOperations(t *testing.T) {
	vm, _ := newTestVM(t)
	c, err := vm.NewVCPU()
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Run()
	assert.ErrorIs(t, err, ErrVCPUClosed)
	_, err = c.ExecTime()
	assert.ErrorIs(t, err, ErrVCPUClosed)
	assert.ErrorIs(t, c.ForceExit(), ErrVCPUClosed)

	var nilVCPU *VCPU
	assert.NoError(t, nilVCPU.Close())
	assert.Error(t, nilVCPU.ForceExit())
	_, err = nilVCPU.Run()
	assert.Error(t, err)
}

func TestVCPUDestroyFailure(t *testing.T) {
	vm, f := newTestVM(t)
	c, err := vm.NewVCPU()
	require.NoError(t, err)

	f.failOnce("vcpuDestroy", ErrBusy)
	assert.ErrorIs(t, c.Close(), ErrBusy)

	// Still open and usable.
	_, err = c.Run()
	assert.NoError(t, err)
	assert.ErrorIs(t, vm.Close(), ErrVMInUse)

	require.NoError(t, c.Close())
	assert.NoError(t, vm.Close())
}

func TestVCPURunAndExecTime(t *testing.T) {
	ResetMetrics()
	vm, f := newTestVM(t)
	c, err := vm.NewVCPU()
	require.NoError(t, err)
	defer c.Close()

	for range 3 {
		_, err := c.Run()
		require.NoError(t, err)
	}
	d, err := c.ExecTime()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Microsecond, d)
	assert.Equal(t, 3, fakeFor(t, f, c).runs)
	assert.Equal(t, uint64(3), GetMetrics().RunOperations)

	f.failOnce("vcpuRun", Error{Kind: KindUnknown, Code: HV_ILLEGAL_GUEST_STATE})
	_, err = c.Run()
	assert.ErrorIs(t, err, Error{Kind: KindUnknown, Code: HV_ILLEGAL_GUEST_STATE})
	assert.Equal(t, uint64(3), GetMetrics().RunOperations)
}

func TestVCPUCallsStayOnThread(t *testing.T) {
	vm, f := newTestVM(t)
	c, err := vm.NewVCPU()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_, err := c.Run()
				assert.NoError(t, err)
				_, err = c.ExecTime()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, c.Close())
	assert.Empty(t, f.threadViolations())
}

func TestVCPUForceExit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ResetMetrics()
	vm, f := newTestVM(t)
	f.run = f.blockUntilKicked
	c, err := vm.NewVCPU()
	require.NoError(t, err)
	v := fakeFor(t, f, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run()
		done <- err
	}()

	<-v.running
	require.NoError(t, c.ForceExit())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after ForceExit")
	}
	assert.Equal(t, uint64(1), GetMetrics().ForceExits)

	require.NoError(t, c.Close())
	require.NoError(t, vm.Close())
}

func TestVCPUForceExitBeforeRun(t *testing.T) {
	vm, f := newTestVM(t)
	f.run = f.blockUntilKicked
	c, err := vm.NewVCPU()
	require.NoError(t, err)
	defer c.Close()

	// A pending force exit makes the next Run return at once.
	require.NoError(t, c.ForceExit())
	_, err = c.Run()
	assert.NoError(t, err)
}

func TestVCPURunContext(t *testing.T) {
	vm, f := newTestVM(t)
	c, err := vm.NewVCPU()
	require.NoError(t, err)
	defer c.Close()

	t.Run("guest exits", func(t *testing.T) {
		_, err := c.RunContext(context.Background())
		assert.NoError(t, err)
	})

	t.Run("already canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		before := fakeFor(t, f, c).runs
		_, err := c.RunContext(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, before, fakeFor(t, f, c).runs, "guest must not run")
	})

	t.Run("canceled while running", func(t *testing.T) {
		f.mu.Lock()
		f.run = f.blockUntilKicked
		f.mu.Unlock()
		v := fakeFor(t, f, c)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-v.running
			cancel()
		}()
		_, err := c.RunContext(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := c.RunContext(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestVCPURunContextWaitsForForceExit(t *testing.T) {
	vm, f := newTestVM(t)
	c, err := vm.NewVCPU()
	require.NoError(t, err)
	defer c.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	f.mu.Lock()
	// The guest exits on its own while the forced exit is still in flight.
	f.run = func(v *fakeVCPU) error {
		v.running <- struct{}{}
		<-entered
		return nil
	}
	f.onForceExit = func() {
		close(entered)
		<-release
	}
	f.mu.Unlock()
	v := fakeFor(t, f, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := c.RunContext(ctx)
		errc <- err
	}()

	<-v.running
	cancel()
	<-entered
	select {
	case err := <-errc:
		t.Fatalf("RunContext returned (%v) before the force exit finished", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("RunContext did not return after the force exit finished")
	}

	f.mu.Lock()
	f.run = nil
	f.onForceExit = nil
	f.mu.Unlock()
}

func TestVCPUFinalize(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	vm, f := newTestVM(t)
	c, err := vm.NewVCPU()
	require.NoError(t, err)

	c.finalize()
	assert.Empty(t, f.vcpus)
	assert.Empty(t, f.threadViolations(), "finalizer must destroy on the vCPU thread")
	assert.NoError(t, vm.Close())
}
