package addrspace

import "github.com/sv39os/kernel/mem"

// TRAMPOLINE is the highest virtual page in every address space: it hosts
// the (externally supplied) trap entry/return assembly and is mapped
// read-execute, shared, in every address space but owned by none.
const TRAMPOLINE = (uintptr(1) << mem.VA_BITS) - mem.PGSIZE

// TRAP_CONTEXT_BASE sits immediately below the trampoline and holds the
// task's persisted TrapContext.
const TRAP_CONTEXT_BASE = TRAMPOLINE - mem.PGSIZE

// USER_STACK_SIZE and guard page sizing for the user stack region built
// by NewFromElf.
const USER_STACK_SIZE = 2 * mem.PGSIZE

// KERNEL_STACK_SIZE is the size of one task's kernel stack.
const KERNEL_STACK_SIZE = 2 * mem.PGSIZE

// KernelStackPos returns the [bottom, top) virtual range of the kernel
// stack for the given pid, descending from the trap-context page with a
// one-page guard between consecutive pids.
func KernelStackPos(pid int) (bottom, top uintptr) {
	slot := uintptr(pid+1) * (KERNEL_STACK_SIZE + mem.PGSIZE)
	bottom = TRAP_CONTEXT_BASE - slot
	top = bottom + KERNEL_STACK_SIZE
	return
}
