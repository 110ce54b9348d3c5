package hv

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"unsafe"
)

// Region describes one guest physical mapping.
type Region struct {
	GPA   uint64
	Size  uint64
	Perms MemPerm
	// Host is the base address of the backing host memory.
	Host uintptr
}

// End returns the first guest physical address past the region.
func (r Region) End() uint64 { return r.GPA + r.Size }

func (r Region) String() string {
	return fmt.Sprintf("[0x%x-0x%x) %s", r.GPA, r.End(), r.Perms)
}

// pin keeps the host object backing a mapping in place until every
// fragment split off the original mapping is gone.
type pin struct {
	p    runtime.Pinner
	refs int
}

func newPin(host []byte) *pin {
	pn := &pin{refs: 1}
	// Pin is a no-op for memory outside the Go heap.
	pn.p.Pin(unsafe.SliceData(host))
	return pn
}

func (pn *pin) acquire() *pin {
	pn.refs++
	return pn
}

func (pn *pin) release() {
	pn.refs--
	if pn.refs == 0 {
		pn.p.Unpin()
	}
}

type region struct {
	gpa   uint64
	host  []byte
	perms MemPerm
	pin   *pin
}

func (r *region) end() uint64 { return r.gpa + uint64(len(r.host)) }

// slice returns the part of r inside [lo, hi) sharing r's pin.
func (r *region) slice(lo, hi uint64) *region {
	return &region{
		gpa:   lo,
		host:  r.host[lo-r.gpa : hi-r.gpa : hi-r.gpa],
		perms: r.perms,
		pin:   r.pin.acquire(),
	}
}

// regionTable tracks the mappings of one guest address space, sorted by
// guest physical address and never overlapping.
type regionTable struct {
	mu      sync.Mutex
	regions []*region
}

// search returns the index of the first region ending after gpa.
func (t *regionTable) search(gpa uint64) int {
	i, _ := slices.BinarySearchFunc(t.regions, gpa, func(r *region, gpa uint64) int {
		if r.end() <= gpa {
			return -1
		}
		return 1
	})
	return i
}

// covered reports whether [gpa, gpa+size) is fully backed by contiguous
// regions and returns their index span.
func (t *regionTable) covered(gpa, size uint64) (int, int, bool) {
	end := gpa + size
	i := t.search(gpa)
	j := i
	next := gpa
	for j < len(t.regions) && next < end {
		r := t.regions[j]
		if r.gpa > next {
			return 0, 0, false
		}
		next = r.end()
		j++
	}
	return i, j, next >= end
}

// add records host at gpa after do succeeds. Overlapping ranges are
// rejected before do is called.
func (t *regionTable) add(host []byte, gpa uint64, perms MemPerm, do func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := gpa + uint64(len(host))
	i := t.search(gpa)
	if i < len(t.regions) && t.regions[i].gpa < end {
		r := t.regions[i]
		return fmt.Errorf("hv: [0x%x-0x%x) overlaps [0x%x-0x%x): %w", gpa, end, r.gpa, r.end(), ErrOverlap)
	}
	// The framework keeps using host after do returns.
	r := &region{gpa: gpa, host: host, perms: perms, pin: newPin(host)}
	if err := do(); err != nil {
		r.pin.release()
		return err
	}
	t.regions = slices.Insert(t.regions, i, r)
	return nil
}

// remove drops [gpa, gpa+size) after do succeeds, splitting regions that
// straddle either edge.
func (t *regionTable) remove(gpa, size uint64, do func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, j, ok := t.covered(gpa, size)
	if !ok {
		return fmt.Errorf("hv: [0x%x-0x%x): %w", gpa, gpa+size, ErrNotMapped)
	}
	if err := do(); err != nil {
		return err
	}
	end := gpa + size
	var keep []*region
	for _, r := range t.regions[i:j] {
		if r.gpa < gpa {
			keep = append(keep, r.slice(r.gpa, gpa))
		}
		if r.end() > end {
			keep = append(keep, r.slice(end, r.end()))
		}
		r.pin.release()
	}
	t.regions = slices.Replace(t.regions, i, j, keep...)
	return nil
}

// protect changes the permissions of [gpa, gpa+size) after do succeeds.
func (t *regionTable) protect(gpa, size uint64, perms MemPerm, do func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, j, ok := t.covered(gpa, size)
	if !ok {
		return fmt.Errorf("hv: [0x%x-0x%x): %w", gpa, gpa+size, ErrNotMapped)
	}
	if err := do(); err != nil {
		return err
	}
	end := gpa + size
	var repl []*region
	for _, r := range t.regions[i:j] {
		lo, hi := max(r.gpa, gpa), min(r.end(), end)
		if r.gpa < lo {
			repl = append(repl, r.slice(r.gpa, lo))
		}
		mid := r.slice(lo, hi)
		mid.perms = perms
		repl = append(repl, mid)
		if r.end() > hi {
			repl = append(repl, r.slice(hi, r.end()))
		}
		r.pin.release()
	}
	t.regions = slices.Replace(t.regions, i, j, repl...)
	return nil
}

// clear forgets every region and releases their pins.
func (t *regionTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.regions {
		r.pin.release()
	}
	t.regions = nil
}

// translate returns the host bytes backing [gpa, gpa+n). The range must lie
// inside a single region.
func (t *regionTable) translate(gpa uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("hv: negative length %d", n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.search(gpa)
	if i < len(t.regions) {
		r := t.regions[i]
		if r.gpa <= gpa && uint64(n) <= r.end()-gpa {
			off := gpa - r.gpa
			return r.host[off : off+uint64(n) : off+uint64(n)], nil
		}
	}
	return nil, fmt.Errorf("hv: 0x%x+%d: %w", gpa, n, ErrNotMapped)
}

func (t *regionTable) list() []Region {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Region, 0, len(t.regions))
	for _, r := range t.regions {
		out = append(out, Region{
			GPA:   r.gpa,
			Size:  uint64(len(r.host)),
			Perms: r.perms,
			Host:  uintptr(unsafe.Pointer(unsafe.SliceData(r.host))),
		})
	}
	return out
}
