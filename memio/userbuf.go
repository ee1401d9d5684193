// Package memio implements the kernel-side view of a user buffer: a
// [userva, userva+len) range translated page-by-page through a task's
// page table into kernel-addressable byte slices.
package memio

import (
	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/mem"
	"github.com/sv39os/kernel/pagetable"
)

// UserBuffer_t assembles the bytes of [va, va+length) in a task's
// address space into a sequence of kernel-mapped slices, one per page
// crossed.
type UserBuffer_t struct {
	pt     *pagetable.PageTable_t
	frames *mem.FrameAllocator_t
	va     uintptr
	length int
	off    int
}

// New builds a UserBuffer_t over pt's [va, va+length) range.
func New(pt *pagetable.PageTable_t, frames *mem.FrameAllocator_t, va uintptr, length int) *UserBuffer_t {
	return &UserBuffer_t{pt: pt, frames: frames, va: va, length: length}
}

// Remain reports how many bytes have not yet been transferred.
func (ub *UserBuffer_t) Remain() int { return ub.length - ub.off }

// Read copies from the user buffer into dst, returning the number of
// bytes actually copied (bounded by Remain()) and EFAULT if any crossed
// page is unmapped.
func (ub *UserBuffer_t) Read(dst []byte) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

// Write copies src into the user buffer, returning the number of bytes
// actually copied and EFAULT if any crossed page is unmapped.
func (ub *UserBuffer_t) Write(src []byte) (int, defs.Err_t) {
	return ub.tx(src, true)
}

func (ub *UserBuffer_t) tx(buf []byte, write bool) (int, defs.Err_t) {
	total := 0
	for len(buf) > 0 && ub.off < ub.length {
		va := ub.va + uintptr(ub.off)
		pageOff := va & mem.PGOFFSET
		pa, ok := ub.pt.TranslateVA(mem.Va_t(va))
		if !ok {
			return total, defs.EFAULT
		}
		page := ub.frames.At(uintptr(pa) >> mem.PGSHIFT)
		avail := mem.PGSIZE - int(pageOff)
		n := avail
		if remain := ub.length - ub.off; n > remain {
			n = remain
		}
		if n > len(buf) {
			n = len(buf)
		}
		if write {
			copy(page[pageOff:pageOff+uintptr(n)], buf[:n])
		} else {
			copy(buf[:n], page[pageOff:pageOff+uintptr(n)])
		}
		buf = buf[n:]
		ub.off += n
		total += n
	}
	return total, 0
}
