// Package pagetable implements the SV39 three-level page table: walking,
// mapping, unmapping and translation. Locking is the caller's
// responsibility: the address space that owns a table serializes all
// access to it with its own mutex rather than giving the page table its
// own lock.
package pagetable

import (
	"github.com/sv39os/kernel/mem"
)

const ptEntries = 1 << mem.VPN_BITS

// satpModeSv39 is the mode field value SV39 uses in the SATP register.
const satpModeSv39 = 8

// node_t is one 4KiB page-table page: 512 eight-byte entries.
type node_t [ptEntries]mem.Pte_t

// PageTable_t is a three-level SV39 page table. A table constructed by
// New owns the frames backing its intermediate nodes and frees them when
// Destroy is called. A table constructed by FromToken borrows the root
// of another address space's table for read-only walks and owns nothing.
type PageTable_t struct {
	frames *mem.FrameAllocator_t
	root   uintptr
	owned  []uintptr // PPNs of intermediate (non-leaf) nodes this table owns
	owning bool
}

// New allocates a root node from fa and returns an owning page table.
func New(fa *mem.FrameAllocator_t) (*PageTable_t, bool) {
	f, ok := fa.Alloc()
	if !ok {
		return nil, false
	}
	return &PageTable_t{frames: fa, root: f.PPN, owned: []uintptr{f.PPN}, owning: true}, true
}

// FromToken builds a non-owning page table that walks the tree rooted at
// the PPN encoded in an SATP-format token. It is used to translate
// addresses in another address space without taking ownership of its
// frames.
func FromToken(token uintptr, fa *mem.FrameAllocator_t) *PageTable_t {
	ppn := token &^ (uintptr(0xf) << 60)
	return &PageTable_t{frames: fa, root: ppn, owning: false}
}

// Token returns the SATP-format root identifier for this table.
func (pt *PageTable_t) Token() uintptr {
	return uintptr(satpModeSv39)<<60 | pt.root
}

// asNode reinterprets a page of raw bytes as a node of page table
// entries; both are exactly PGSIZE bytes.
func asNode(pg *mem.Pagebytes) *node_t {
	n := &node_t{}
	for i := 0; i < ptEntries; i++ {
		off := i * 8
		var v uint64
		for b := 0; b < 8; b++ {
			v |= uint64(pg[off+b]) << (8 * b)
		}
		n[i] = mem.Pte_t(v)
	}
	return n
}

func (n *node_t) writeback(pg *mem.Pagebytes) {
	for i := 0; i < ptEntries; i++ {
		v := uint64(n[i])
		off := i * 8
		for b := 0; b < 8; b++ {
			pg[off+b] = uint8(v >> (8 * b))
		}
	}
}

// Pteref is a handle to one leaf page table entry that can be read and
// written in place, persisting writes back to the backing frame. map/
// unmap/translate all operate through one of these.
type Pteref struct {
	pt  *PageTable_t
	ppn uintptr
	idx uint
}

func (pt *PageTable_t) pteref(idx [3]uint, alloc bool) (Pteref, bool) {
	ppn := pt.root
	for level := 0; level < 2; level++ {
		pg := pt.frames.At(ppn)
		n := asNode(pg)
		e := n[idx[level]]
		if !e.Valid() {
			if !alloc {
				return Pteref{}, false
			}
			if !pt.owning {
				panic("map through a borrowed (read-only) page table")
			}
			f, ok := pt.frames.Alloc()
			if !ok {
				return Pteref{}, false
			}
			pt.owned = append(pt.owned, f.PPN)
			n[idx[level]] = mem.MkPte(f.PPN, mem.PTE_V)
			n.writeback(pg)
			ppn = f.PPN
		} else {
			ppn = e.Ppn()
		}
	}
	return Pteref{pt: pt, ppn: ppn, idx: idx[2]}, true
}

// Get reads the current value of the referenced entry.
func (r Pteref) Get() mem.Pte_t {
	pg := r.pt.frames.At(r.ppn)
	n := asNode(pg)
	return n[r.idx]
}

// Set writes a new value for the referenced entry.
func (r Pteref) Set(v mem.Pte_t) {
	pg := r.pt.frames.At(r.ppn)
	n := asNode(pg)
	n[r.idx] = v
	n.writeback(pg)
}

// Map installs a leaf mapping for vpn -> ppn with the given flags,
// allocating intermediate nodes as needed. It is a fatal error to map
// over an already-valid terminal entry.
func (pt *PageTable_t) Map(vpn uintptr, ppn uintptr, flags mem.Pte_t) {
	idx := vpnIdx(vpn)
	ref, ok := pt.pteref(idx, true)
	if !ok {
		panic("Map: out of frames for intermediate page table nodes")
	}
	if ref.Get().Valid() {
		panic("Map: terminal entry already valid")
	}
	ref.Set(mem.MkPte(ppn, flags|mem.PTE_V))
}

// Unmap clears a leaf mapping. It is a fatal error to unmap an entry
// that is not currently valid.
func (pt *PageTable_t) Unmap(vpn uintptr) {
	idx := vpnIdx(vpn)
	ref, ok := pt.pteref(idx, false)
	if !ok || !ref.Get().Valid() {
		panic("Unmap: entry not valid")
	}
	ref.Set(0)
}

// Translate returns the leaf PTE for vpn, if mapped.
func (pt *PageTable_t) Translate(vpn uintptr) (mem.Pte_t, bool) {
	idx := vpnIdx(vpn)
	ref, ok := pt.pteref(idx, false)
	if !ok {
		return 0, false
	}
	pte := ref.Get()
	if !pte.Valid() {
		return 0, false
	}
	return pte, true
}

// TranslateVA translates a virtual address to a physical address,
// preserving the low 12-bit page offset.
func (pt *PageTable_t) TranslateVA(va mem.Va_t) (mem.Pa_t, bool) {
	vpn := mem.Vpnflat(va)
	pte, ok := pt.Translate(vpn)
	if !ok {
		return 0, false
	}
	off := uintptr(va) & mem.PGOFFSET
	return mem.Pa_t(pte.Ppn()<<mem.PGSHIFT | off), true
}

// Destroy frees every intermediate node this table owns. It is a no-op
// (and safe) on a table built with FromToken, which owns nothing.
func (pt *PageTable_t) Destroy() {
	if !pt.owning {
		return
	}
	for _, ppn := range pt.owned {
		pt.frames.Dealloc(ppn)
	}
	pt.owned = nil
}

func vpnIdx(vpn uintptr) [3]uint {
	var idx [3]uint
	idx[0] = uint((vpn >> (2 * mem.VPN_BITS)) & mem.VPN_MASK)
	idx[1] = uint((vpn >> mem.VPN_BITS) & mem.VPN_MASK)
	idx[2] = uint(vpn & mem.VPN_MASK)
	return idx
}
