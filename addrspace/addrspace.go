// Package addrspace implements MemorySet: the region list plus page
// table that constitutes one process's (or the kernel's) virtual address
// space, including the copy-on-fork of user memory and the ELF loader.
// A single embedded mutex guards the region list and the page table
// together.
package addrspace

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sv39os/kernel/klog"
	"github.com/sv39os/kernel/mem"
	"github.com/sv39os/kernel/pagetable"
)

var log = klog.For("addrspace")

// MapKind_t distinguishes an identity mapping (VA==PA, used only for the
// kernel's own address space) from a framed mapping backed by allocated
// physical frames.
type MapKind_t int

const (
	Identical MapKind_t = iota
	Framed
)

// Region_t is one non-overlapping slice of an address space's virtual
// page number range.
type Region_t struct {
	VpnStart uintptr
	VpnEnd   uintptr // exclusive
	Kind     MapKind_t
	Perms    mem.Pte_t // R/W/X/U bits only
	Frames   []mem.Frame_t
}

func (r *Region_t) contains(vpn uintptr) bool {
	return vpn >= r.VpnStart && vpn < r.VpnEnd
}

// AddrSpace_t is one process's (or the kernel's) virtual address space:
// a page table root plus its ordered, non-overlapping regions.
type AddrSpace_t struct {
	sync.Mutex

	PT      *pagetable.PageTable_t
	Regions []*Region_t

	frames *mem.FrameAllocator_t

	HeapBottom uintptr
	ProgramBrk uintptr
}

// mkEmpty allocates a fresh page table with no regions.
func mkEmpty(fa *mem.FrameAllocator_t) (*AddrSpace_t, bool) {
	pt, ok := pagetable.New(fa)
	if !ok {
		return nil, false
	}
	return &AddrSpace_t{PT: pt, frames: fa}, true
}

// mapTrampoline installs the shared, unowned trampoline page RX at the
// top of the address space.
func (as *AddrSpace_t) mapTrampoline(trampolinePPN uintptr) {
	vpn := TRAMPOLINE >> mem.PGSHIFT
	as.PT.Map(vpn, trampolinePPN, mem.PTE_R|mem.PTE_X)
}

// NewKernel builds the always-resident kernel address space: identity
// maps .text (RX), .rodata (R), .data/.bss (RW), the remaining physical
// memory (RW), and the supplied MMIO ranges (RW); then maps the
// trampoline at the top of the space.
func NewKernel(layout KernelLayout, fa *mem.FrameAllocator_t, trampolinePPN uintptr) *AddrSpace_t {
	as, ok := mkEmpty(fa)
	if !ok {
		log.Fatal("cannot allocate kernel page table root")
	}
	ident := func(start, end uintptr, perms mem.Pte_t) {
		start = start &^ mem.PGOFFSET
		for va := start; va < end; va += mem.PGSIZE {
			vpn := va >> mem.PGSHIFT
			as.PT.Map(vpn, vpn, perms)
		}
	}
	ident(layout.TextStart, layout.TextEnd, mem.PTE_R|mem.PTE_X)
	ident(layout.RodataStart, layout.RodataEnd, mem.PTE_R)
	ident(layout.DataStart, layout.BssEnd, mem.PTE_R|mem.PTE_W)
	ident(layout.BssEnd, layout.MemEnd, mem.PTE_R|mem.PTE_W)
	for _, m := range layout.MMIO {
		ident(m.Start, m.End, mem.PTE_R|mem.PTE_W)
	}
	as.mapTrampoline(trampolinePPN)
	return as
}

// KernelLayout describes the linker-provided boundaries of the running
// kernel image and its MMIO windows; in a freestanding build these come
// from link-time symbols, in the hosted harness from a fixed config.
type KernelLayout struct {
	TextStart, TextEnd     uintptr
	RodataStart, RodataEnd uintptr
	DataStart, BssEnd      uintptr
	MemEnd                 uintptr
	MMIO                   []MMIORange
}

// MMIORange is one device register window to identity-map RW.
type MMIORange struct {
	Start, End uintptr
}

// insertRegion inserts r, enforcing that regions never overlap.
func (as *AddrSpace_t) insertRegion(r *Region_t) {
	for _, o := range as.Regions {
		if r.VpnStart < o.VpnEnd && o.VpnStart < r.VpnEnd {
			panic("overlapping vm region")
		}
	}
	as.Regions = append(as.Regions, r)
}

// Lookup returns the region containing vpn, if any.
func (as *AddrSpace_t) Lookup(vpn uintptr) (*Region_t, bool) {
	for _, r := range as.Regions {
		if r.contains(vpn) {
			return r, true
		}
	}
	return nil, false
}

// pushFramed allocates len(buf) pages, maps them at successive vpns
// starting at startVpn with perms, and returns the new region. If data is
// non-nil its bytes are copied into the freshly allocated frames (used
// for PT_LOAD segment contents).
func (as *AddrSpace_t) pushFramed(startVpn uintptr, npages int, perms mem.Pte_t, data []byte) (*Region_t, error) {
	r := &Region_t{VpnStart: startVpn, VpnEnd: startVpn + uintptr(npages), Kind: Framed, Perms: perms}
	r.Frames = make([]mem.Frame_t, npages)
	for i := 0; i < npages; i++ {
		f, ok := as.frames.Alloc()
		if !ok {
			for j := 0; j < i; j++ {
				r.Frames[j].Release()
			}
			return nil, errors.New("out of frames while building region")
		}
		r.Frames[i] = f
		if len(data) > 0 {
			off := i * mem.PGSIZE
			if off < len(data) {
				end := off + mem.PGSIZE
				if end > len(data) {
					end = len(data)
				}
				copy(f.Bytes[:], data[off:end])
			}
		}
		as.PT.Map(startVpn+uintptr(i), f.PPN, perms|mem.PTE_V)
	}
	as.insertRegion(r)
	return r, nil
}

// Overlaps reports whether [vpnStart, vpnEnd) intersects any existing
// region.
func (as *AddrSpace_t) Overlaps(vpnStart, vpnEnd uintptr) bool {
	as.Lock()
	defer as.Unlock()
	for _, r := range as.Regions {
		if vpnStart < r.VpnEnd && r.VpnStart < vpnEnd {
			return true
		}
	}
	return false
}

// Mmap maps npages fresh frames at vpnStart with perms, optionally
// seeded with data (the contents of a backing file), rejecting a
// request that would overlap an existing region.
func (as *AddrSpace_t) Mmap(vpnStart uintptr, npages int, perms mem.Pte_t, data []byte) (*Region_t, error) {
	if as.Overlaps(vpnStart, vpnStart+uintptr(npages)) {
		return nil, errors.New("mmap: overlapping mapping")
	}
	as.Lock()
	defer as.Unlock()
	return as.pushFramed(vpnStart, npages, perms, data)
}

// Munmap releases the mapping covering exactly [vpnStart, vpnStart+npages).
func (as *AddrSpace_t) Munmap(vpnStart uintptr, npages int) error {
	as.Lock()
	defer as.Unlock()
	for i, r := range as.Regions {
		if r.VpnStart == vpnStart && r.VpnEnd == vpnStart+uintptr(npages) {
			for j, f := range r.Frames {
				as.PT.Unmap(vpnStart + uintptr(j))
				f.Release()
			}
			as.Regions = append(as.Regions[:i:i], as.Regions[i+1:]...)
			return nil
		}
	}
	return errors.New("munmap: no matching mapping")
}

// Brk grows or shrinks the region whose start matches HeapBottom to the
// whole-page-rounded newEnd. It rejects shrinking below HeapBottom.
func (as *AddrSpace_t) Brk(newEnd uintptr) error {
	as.Lock()
	defer as.Unlock()
	if newEnd < as.HeapBottom {
		return errors.New("brk: below heap bottom")
	}
	var heap *Region_t
	heapVpn := as.HeapBottom >> mem.PGSHIFT
	for _, r := range as.Regions {
		if r.VpnStart == heapVpn {
			heap = r
			break
		}
	}
	if heap == nil {
		return errors.New("brk: heap region missing")
	}
	newVpnEnd := (newEnd + mem.PGSIZE - 1) >> mem.PGSHIFT
	if newVpnEnd > heap.VpnEnd {
		for vpn := heap.VpnEnd; vpn < newVpnEnd; vpn++ {
			f, ok := as.frames.Alloc()
			if !ok {
				return errors.New("brk: out of frames")
			}
			heap.Frames = append(heap.Frames, f)
			as.PT.Map(vpn, f.PPN, heap.Perms|mem.PTE_V)
		}
		heap.VpnEnd = newVpnEnd
	} else if newVpnEnd < heap.VpnEnd {
		for vpn := newVpnEnd; vpn < heap.VpnEnd; vpn++ {
			idx := vpn - heap.VpnStart
			as.PT.Unmap(vpn)
			heap.Frames[idx].Release()
		}
		heap.Frames = heap.Frames[:newVpnEnd-heap.VpnStart]
		heap.VpnEnd = newVpnEnd
	}
	as.ProgramBrk = newEnd
	return nil
}

// ForkCopy builds a brand new, empty address space, remaps the
// trampoline, then for every region in as allocates matching frames and
// byte-copies each page -- no copy-on-write.
func (as *AddrSpace_t) ForkCopy(trampolinePPN uintptr) (*AddrSpace_t, error) {
	as.Lock()
	defer as.Unlock()

	child, ok := mkEmpty(as.frames)
	if !ok {
		return nil, errors.New("fork: out of frames for page table root")
	}
	child.mapTrampoline(trampolinePPN)
	child.HeapBottom = as.HeapBottom
	child.ProgramBrk = as.ProgramBrk

	for _, r := range as.Regions {
		nr := &Region_t{VpnStart: r.VpnStart, VpnEnd: r.VpnEnd, Kind: r.Kind, Perms: r.Perms}
		if r.Kind == Identical {
			child.insertRegion(nr)
			continue
		}
		nr.Frames = make([]mem.Frame_t, len(r.Frames))
		for i, pf := range r.Frames {
			f, ok := as.frames.Alloc()
			if !ok {
				return nil, errors.New("fork: out of frames copying region")
			}
			*f.Bytes = *pf.Bytes
			nr.Frames[i] = f
			child.PT.Map(r.VpnStart+uintptr(i), f.PPN, r.Perms|mem.PTE_V)
		}
		child.insertRegion(nr)
	}
	return child, nil
}

// Uvmfree releases every region's frames and the page table's own
// intermediate nodes. Called from task exit.
func (as *AddrSpace_t) Uvmfree() {
	as.Lock()
	defer as.Unlock()
	for _, r := range as.Regions {
		for _, f := range r.Frames {
			f.Release()
		}
	}
	as.Regions = nil
	as.PT.Destroy()
}
