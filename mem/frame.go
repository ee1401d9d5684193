package mem

import (
	"sync"

	"github.com/sv39os/kernel/klog"
)

var log = klog.For("mem")

// Pagebytes is the backing store for one physical frame.
type Pagebytes [PGSIZE]uint8

// FrameAllocator_t is a stack-based allocator over the half-open frame
// range [start, end). It prefers a recycled frame number over advancing
// the high-water mark. Frames here are not reference-counted: a frame
// belongs to exactly one owner at a time, so there is no need to track
// a reference count.
type FrameAllocator_t struct {
	sync.Mutex
	start    uintptr // first frame number in range
	end      uintptr // one past the last usable frame number
	current  uintptr // next never-used frame number
	recycled []uintptr
	backing  map[uintptr]*Pagebytes
}

// MkFrameAllocator constructs an allocator owning frame numbers
// [startFrame, endFrame). backing simulates physical RAM: in the hosted
// harness it is a map of frame number to a page of bytes; a freestanding
// build would instead index a real physical memory window.
func MkFrameAllocator(startFrame, endFrame uintptr) *FrameAllocator_t {
	if endFrame < startFrame {
		panic("bad frame range")
	}
	return &FrameAllocator_t{
		start:   startFrame,
		end:     endFrame,
		current: startFrame,
		backing: make(map[uintptr]*Pagebytes),
	}
}

// Frame_t is a handle to an allocated physical frame. The zero value is
// not valid; handles are created only by FrameAllocator_t.Alloc.
type Frame_t struct {
	PPN   uintptr
	Bytes *Pagebytes
	owner *FrameAllocator_t
}

// Alloc returns a zero-filled frame, preferring a previously recycled
// frame number over advancing the high-water mark. It returns false when
// the allocator's range is exhausted.
func (fa *FrameAllocator_t) Alloc() (Frame_t, bool) {
	fa.Lock()
	defer fa.Unlock()

	var ppn uintptr
	if n := len(fa.recycled); n > 0 {
		ppn = fa.recycled[n-1]
		fa.recycled = fa.recycled[:n-1]
	} else {
		if fa.current >= fa.end {
			log.Warn("frame allocator exhausted")
			return Frame_t{}, false
		}
		ppn = fa.current
		fa.current++
	}
	pg := &Pagebytes{}
	fa.backing[ppn] = pg
	return Frame_t{PPN: ppn, Bytes: pg, owner: fa}, true
}

// Dealloc releases the frame. It is a fatal programmer error to
// deallocate a frame at or beyond the current high-water mark, or one
// already on the recycle list: both indicate a double-free or a bogus
// frame number fabricated by the caller.
func (fa *FrameAllocator_t) Dealloc(ppn uintptr) {
	fa.Lock()
	defer fa.Unlock()
	fa.dealloc(ppn)
}

func (fa *FrameAllocator_t) dealloc(ppn uintptr) {
	if ppn >= fa.current {
		panic("dealloc: frame was never allocated")
	}
	for _, r := range fa.recycled {
		if r == ppn {
			panic("dealloc: double free")
		}
	}
	delete(fa.backing, ppn)
	fa.recycled = append(fa.recycled, ppn)
}

// Release returns the frame to its owning allocator. Go has no
// destructors, so callers must call Release explicitly when the last
// owning region or page-table node gives the frame up.
func (f Frame_t) Release() {
	if f.owner == nil {
		panic("Release of invalid Frame_t")
	}
	f.owner.Dealloc(f.PPN)
}

// At returns the backing bytes for an arbitrary frame number, used by
// page-table walks and address-space copies that hold only a PPN. It
// panics if the frame is not currently allocated.
func (fa *FrameAllocator_t) At(ppn uintptr) *Pagebytes {
	fa.Lock()
	defer fa.Unlock()
	pg, ok := fa.backing[ppn]
	if !ok {
		panic("At: frame not allocated")
	}
	return pg
}

// Free reports the number of frames available for allocation.
func (fa *FrameAllocator_t) Free() int {
	fa.Lock()
	defer fa.Unlock()
	return int(fa.end-fa.current) + len(fa.recycled)
}
