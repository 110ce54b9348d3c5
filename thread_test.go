package hv

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestOSThreadRunsOnOneGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	th := newOSThread()
	var first uint64
	th.do(func() { first = goid() })
	assert.NotEqual(t, goid(), first)

	var wg sync.WaitGroup
	ids := make(chan uint64, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th.do(func() { ids <- goid() })
		}()
	}
	wg.Wait()
	close(ids)
	for id := range ids {
		assert.Equal(t, first, id)
	}
	th.stop()
}

func TestOSThreadDoWaits(t *testing.T) {
	defer goleak.VerifyNone(t)

	th := newOSThread()
	defer th.stop()

	n := 0
	for range 100 {
		th.do(func() { n++ })
	}
	assert.Equal(t, 100, n)
}
