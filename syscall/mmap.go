package syscall

import (
	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/mem"
	"github.com/sv39os/kernel/task"
)

// mmapGuardPages is the offset (in pages) sys_mmap relocates a
// start==0 request to: program_brk + 8 pages. This quirk -- accepting
// an fd even when start is 0 and silently relocating rather than
// rejecting -- is intentional, surprising as it is.
const mmapGuardPages = 8

// Mmap maps length bytes with perms at start (page-aligned), or, if
// start is 0, at t's program break plus an 8-page gap. If fdnum is
// non-negative the mapped region is seeded with that file's contents.
func (d *Dispatcher_t) Mmap(t *task.TCB_t, start uintptr, length int, perms mem.Pte_t, fdnum defs.Fdnum_t) (uintptr, defs.Err_t) {
	if length <= 0 || perms == 0 {
		return 0, defs.EINVAL
	}
	if start == 0 {
		start = t.AS.ProgramBrk + uintptr(mmapGuardPages)*mem.PGSIZE
	}
	if !mem.Pagealigned(start) {
		return 0, defs.EINVAL
	}

	var data []byte
	if fdnum >= 0 {
		f, err := d.getFd(t, fdnum)
		if err != 0 {
			return 0, err
		}
		vf, ok := f.Fops.(*vfileFd_t)
		if !ok {
			return 0, defs.EINVAL
		}
		data = make([]byte, vf.v.FileSize)
		if _, rerr := vf.v.ReadAt(0, data); rerr != 0 {
			return 0, rerr
		}
	}

	npages := (length + mem.PGSIZE - 1) / mem.PGSIZE
	vpnStart := start >> mem.PGSHIFT
	if _, err := t.AS.Mmap(vpnStart, npages, perms, data); err != nil {
		return 0, defs.EINVAL
	}
	return start, 0
}

// Munmap unmaps the [start, start+length) region, which must match an
// existing mapping exactly.
func (d *Dispatcher_t) Munmap(t *task.TCB_t, start uintptr, length int) defs.Err_t {
	if !mem.Pagealigned(start) {
		return defs.EINVAL
	}
	npages := (length + mem.PGSIZE - 1) / mem.PGSIZE
	if err := t.AS.Munmap(start>>mem.PGSHIFT, npages); err != nil {
		return defs.EINVAL
	}
	return 0
}
