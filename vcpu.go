package hv

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// VCPU represents a single vCPU associated with a VM.
//
// The framework ties a vCPU to the OS thread that created it. Each VCPU
// therefore owns a goroutine locked to its thread, and every method except
// ForceExit runs there. Methods may be called from any goroutine; calls
// made while Run is in progress wait for the guest to exit.
type VCPU struct {
	vm *VM
	th *osThread
	h  vcpuHandle

	mu     sync.RWMutex // held shared by calls, exclusively by Close
	closed atomic.Bool
}

// ID returns the framework vCPU identifier.
func (c *VCPU) ID() uint64 { return c.h.id }

// call runs fn on the vCPU thread.
func (c *VCPU) call(fn func(fw framework) error) error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed.Load() {
		return ErrVCPUClosed
	}
	var err error
	c.th.do(func() { err = fn(c.vm.fw) })
	return err
}

// Run executes the vCPU until the next exit and describes the exit.
func (c *VCPU) Run() (ExitInfo, error) {
	start := time.Now()
	var info ExitInfo
	err := c.call(func(fw framework) error {
		if err := fw.vcpuRun(c.h); err != nil {
			return err
		}
		var err error
		info, err = c.readExit()
		return err
	})
	if err != nil {
		return info, fmt.Errorf("failed to run vCPU: %w", err)
	}
	recordRun(time.Since(start))
	return info, nil
}

// RunContext is Run with cancellation. When ctx is done before the guest
// exits, the vCPU is forced out and the canceled exit is returned together
// with ctx.Err(). RunContext does not return while its force exit is still
// running, so the vCPU may be closed right after.
func (c *VCPU) RunContext(ctx context.Context) (ExitInfo, error) {
	if err := ctx.Err(); err != nil {
		return ExitInfo{}, err
	}
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		if err := c.ForceExit(); err != nil {
			logger().Debug("force exit failed", slog.Uint64("id", c.h.id), slog.Any("error", err))
		}
	})
	info, err := c.Run()
	if !stop() {
		// The force exit may still be in flight; the handle must stay valid
		// until it lands.
		<-done
		if err == nil {
			err = ctx.Err()
		}
	}
	return info, err
}

// ForceExit makes a running Run return as soon as possible. It is the only
// method safe to call concurrently with Run and does not wait for the
// vCPU thread. If the vCPU is not running, its next Run exits immediately.
func (c *VCPU) ForceExit() error {
	if c == nil {
		return fmt.Errorf("hv: VCPU is nil")
	}
	if c.closed.Load() {
		return ErrVCPUClosed
	}
	if err := c.vm.fw.vcpuForceExit(c.h); err != nil {
		return fmt.Errorf("failed to force vCPU %d exit: %w", c.h.id, err)
	}
	recordForceExit()
	return nil
}

// ExecTime returns the cumulative execution time of the vCPU.
func (c *VCPU) ExecTime() (time.Duration, error) {
	var ns uint64
	err := c.call(func(fw framework) error {
		var err error
		ns, err = fw.vcpuExecTime(c.h)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read vCPU execution time: %w", err)
	}
	return time.Duration(ns), nil
}

// Close destroys this vCPU and ends its thread. It waits for a running Run
// to return; use ForceExit first to interrupt the guest. Idempotent.
func (c *VCPU) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	var err error
	c.th.do(func() { err = c.vm.fw.vcpuDestroy(c.h) })
	if err != nil {
		recordResourceError()
		return fmt.Errorf("failed to destroy vCPU: %w", err)
	}

	c.closed.Store(true)
	c.th.stop()
	c.vm.releaseVCPU()

	// Clear finalizer since we've cleaned up properly
	runtime.SetFinalizer(c, nil)

	recordVCPUDestroy()
	logger().Debug("vCPU destroyed", slog.Uint64("id", c.h.id))
	return nil
}

// finalize is called by the garbage collector as a safety net
func (c *VCPU) finalize() {
	// Security: Use non-blocking lock to prevent deadlock in finalizers
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}

	logger().Warn("hv: vCPU was not closed, destroying it in finalizer", slog.Uint64("id", c.h.id))

	var err error
	c.th.do(func() { err = c.vm.fw.vcpuDestroy(c.h) })
	c.closed.Store(true)
	c.th.stop()
	if err != nil {
		logger().Warn("hv: finalizer failed to destroy vCPU", slog.Uint64("id", c.h.id), slog.Any("error", err))
		return
	}
	c.vm.releaseVCPU()
	recordVCPUDestroy()
}
