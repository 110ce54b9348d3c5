package hv

import "runtime"

// osThread runs functions on one locked OS thread. The framework binds a
// vCPU to the thread that created it, so every call for that vCPU goes
// through here.
type osThread struct {
	work chan func()
	done chan struct{}
}

func newOSThread() *osThread {
	t := &osThread{
		work: make(chan func()),
		done: make(chan struct{}),
	}
	ready := make(chan struct{})
	go t.loop(ready)
	<-ready
	return t
}

func (t *osThread) loop(ready chan<- struct{}) {
	// The thread is never unlocked; the runtime discards it when the
	// goroutine exits, taking any per-thread framework state with it.
	runtime.LockOSThread()
	close(ready)
	defer close(t.done)
	for fn := range t.work {
		fn()
	}
}

// do runs fn on the thread and waits for it to return.
func (t *osThread) do(fn func()) {
	ret := make(chan struct{})
	t.work <- func() {
		defer close(ret)
		fn()
	}
	<-ret
}

// stop ends the thread after queued work drains. do must not be called
// after stop.
func (t *osThread) stop() {
	close(t.work)
	<-t.done
}
