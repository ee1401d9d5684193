// Package task implements the task control block: construction, fork,
// exec, spawn, wait and exit, and the parent/children graph. Each TCB_t
// guards its own mutable fields with an embedded mutex, and time
// accounting is delegated to a collaborator (package accnt) rather than
// tracked inline.
package task

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sv39os/kernel/accnt"
	"github.com/sv39os/kernel/addrspace"
	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/fd"
	"github.com/sv39os/kernel/klog"
	"github.com/sv39os/kernel/mem"
)

var log = klog.For("task")

// Status_t is a task's scheduling status.
type Status_t int

const (
	Ready Status_t = iota
	Running
	Zombie
)

// DefaultPriority and MinPriority bound the stride scheduler's pri field.
const (
	DefaultPriority = 16
	MinPriority     = 2
)

// TaskContext_t holds the callee-saved registers, return address and
// stack pointer swapped by the low-level context switch; the switch
// itself lives in trap entry assembly that this package treats as an
// external collaborator.
type TaskContext_t struct {
	Ra uintptr
	Sp uintptr
	S  [12]uintptr
}

// TrapContext_t is the persisted register frame of a user task while the
// kernel runs.
type TrapContext_t struct {
	X           [32]uintptr
	Sstatus     uintptr
	Sepc        uintptr
	KernelSatp  uintptr
	KernelSp    uintptr
	TrapHandler uintptr
}

// TCB_t is one process control block. Pid and the kernel stack bounds
// are set at construction and never change; ParentPid is set at
// construction and rewritten (under this task's lock) when Exit
// reparents the task to init. Everything below is guarded by the
// embedded mutex.
type TCB_t struct {
	Pid          defs.Pid_t
	ParentPid    defs.Pid_t
	KStackBottom uintptr
	KStackTop    uintptr

	sync.Mutex
	Status   Status_t
	AS       *addrspace.AddrSpace_t
	TrapCtx  *TrapContext_t
	Context  TaskContext_t
	ExitCode int

	Parent   *TCB_t   // non-owning; rewritten to init on reparenting
	Children []*TCB_t // owning

	Fds []*fd.Fd_t

	Acc             accnt.Accnt_t
	ChildrenUserns  int64
	ChildrenSysns   int64
	StartNs         int64

	Stride int64
	Pri    int

	Cwd string
}

// Kernel_t bundles the process-wide singletons every task operation
// needs: the frame allocator, the trampoline's physical page, and the
// pid allocator. Modeled as one struct rather than package globals so
// tests can construct independent instances; each concern gets its own
// mutex inside Kernel_t rather than one lock guarding everything.
type Kernel_t struct {
	Frames        *mem.FrameAllocator_t
	TrampolinePPN uintptr

	pidMu  sync.Mutex
	nextPid int64

	InitPid defs.Pid_t
}

// NewKernel constructs the task subsystem's global state.
func NewKernel(frames *mem.FrameAllocator_t, trampolinePPN uintptr) *Kernel_t {
	return &Kernel_t{Frames: frames, TrampolinePPN: trampolinePPN}
}

func (k *Kernel_t) allocPid() defs.Pid_t {
	return defs.Pid_t(atomic.AddInt64(&k.nextPid, 1) - 1)
}

// New constructs the initial ("init") task from an ELF image.
func (k *Kernel_t) New(elfBytes []byte) (*TCB_t, error) {
	as, userSp, entry, err := addrspace.NewFromElf(elfBytes, k.Frames, k.TrampolinePPN)
	if err != nil {
		return nil, err
	}
	pid := k.allocPid()
	bottom, top := addrspace.KernelStackPos(int(pid))
	t := &TCB_t{
		Pid:          pid,
		ParentPid:    -1,
		KStackBottom: bottom,
		KStackTop:    top,
		Status:       Ready,
		AS:           as,
		Pri:          DefaultPriority,
		Cwd:          "/",
		Fds: []*fd.Fd_t{
			fd.NewConsole("stdin"),
			fd.NewConsole("stdout"),
			fd.NewConsole("stderr"),
		},
	}
	t.TrapCtx = &TrapContext_t{Sepc: entry, KernelSp: top}
	t.TrapCtx.X[2] = uintptr(userSp) // sp register
	k.InitPid = pid
	log.WithField("pid", pid).Debug("task created")
	return t, nil
}

// Fork copies the parent's address space page-by-page, allocates a new
// pid and kernel stack, duplicates the fd table (sharing the underlying
// file objects), preserves cwd, and zeroes the child's a0 (x[10]) so it
// observes a 0 return from fork.
func (k *Kernel_t) Fork(parent *TCB_t) (*TCB_t, error) {
	parent.Lock()
	childAS, err := parent.AS.ForkCopy(k.TrampolinePPN)
	if err != nil {
		parent.Unlock()
		return nil, err
	}
	childFds := make([]*fd.Fd_t, len(parent.Fds))
	for i, f := range parent.Fds {
		if f == nil {
			continue
		}
		nf, e := fd.Copyfd(f)
		if e != 0 {
			parent.Unlock()
			return nil, errors.Errorf("fork: copyfd: %d", e)
		}
		childFds[i] = nf
	}
	childTrap := *parent.TrapCtx
	cwd := parent.Cwd
	pri := parent.Pri
	parentPid := parent.Pid
	parent.Unlock()

	pid := k.allocPid()
	bottom, top := addrspace.KernelStackPos(int(pid))
	childTrap.KernelSp = top
	childTrap.X[10] = 0 // a0 = 0 in the child

	child := &TCB_t{
		Pid:          pid,
		ParentPid:    parentPid,
		KStackBottom: bottom,
		KStackTop:    top,
		Status:       Ready,
		AS:           childAS,
		TrapCtx:      &childTrap,
		Fds:          childFds,
		Pri:          pri,
		Cwd:          cwd,
	}

	parent.Lock()
	parent.Children = append(parent.Children, child)
	parent.Unlock()
	log.WithField("pid", pid).WithField("parent", parentPid).Debug("forked")
	return child, nil
}

// Exec rebuilds t's memory set from elfBytes, leaving pid, kernel stack
// and fd table intact, and overwrites the trap context.
func (k *Kernel_t) Exec(t *TCB_t, elfBytes []byte) error {
	as, userSp, entry, err := addrspace.NewFromElf(elfBytes, k.Frames, k.TrampolinePPN)
	if err != nil {
		return err
	}
	t.Lock()
	defer t.Unlock()
	old := t.AS
	t.AS = as
	old.Uvmfree()
	t.TrapCtx = &TrapContext_t{Sepc: entry, KernelSp: t.KStackTop}
	t.TrapCtx.X[2] = uintptr(userSp)
	return nil
}

// Spawn is fork+exec fused without ever copying the parent's pages.
func (k *Kernel_t) Spawn(parent *TCB_t, elfBytes []byte) (*TCB_t, error) {
	as, userSp, entry, err := addrspace.NewFromElf(elfBytes, k.Frames, k.TrampolinePPN)
	if err != nil {
		return nil, err
	}
	parent.Lock()
	childFds := make([]*fd.Fd_t, len(parent.Fds))
	for i, f := range parent.Fds {
		if f == nil {
			continue
		}
		nf, e := fd.Copyfd(f)
		if e != 0 {
			parent.Unlock()
			return nil, errors.Errorf("spawn: copyfd: %d", e)
		}
		childFds[i] = nf
	}
	cwd := parent.Cwd
	parentPid := parent.Pid
	parent.Unlock()

	pid := k.allocPid()
	bottom, top := addrspace.KernelStackPos(int(pid))
	child := &TCB_t{
		Pid:          pid,
		ParentPid:    parentPid,
		KStackBottom: bottom,
		KStackTop:    top,
		Status:       Ready,
		AS:           as,
		Fds:          childFds,
		Pri:          DefaultPriority,
		Cwd:          cwd,
	}
	child.TrapCtx = &TrapContext_t{Sepc: entry, KernelSp: top}
	child.TrapCtx.X[2] = uintptr(userSp)

	parent.Lock()
	parent.Children = append(parent.Children, child)
	parent.Unlock()
	return child, nil
}

// Wait searches t's children for one matching pid (-1 matches any).
// If a matching zombie exists it is removed, its exit code (shifted
// left 8) is returned via exitCodeOut when non-nil, and its pid is
// returned. If a matching child exists but is not a zombie, -2 is
// returned so the caller can sleep-retry. -1 is returned if no matching
// child exists at all.
func (k *Kernel_t) Wait(t *TCB_t, pid defs.Pid_t, exitCodeOut *int) (defs.Pid_t, defs.Err_t) {
	t.Lock()
	defer t.Unlock()

	foundAny := false
	for i, c := range t.Children {
		if pid != -1 && c.Pid != pid {
			continue
		}
		foundAny = true
		c.Lock()
		isZombie := c.Status == Zombie
		if isZombie {
			code := c.ExitCode
			cpid := c.Pid
			c.Unlock()
			t.Children = append(t.Children[:i:i], t.Children[i+1:]...)
			if exitCodeOut != nil {
				*exitCodeOut = code << 8
			}
			return cpid, 0
		}
		c.Unlock()
	}
	if foundAny {
		return 0, defs.Err_t(-2)
	}
	return 0, -defs.ECHILD
}

// Exit marks t a zombie, records its exit code, reparents surviving
// children to init, clears the children list, and recycles its user
// memory and fd table. It does not update t's time accounting (Acc is
// left as it was). It does not pick the next task to run; that is the
// scheduler's job.
func (k *Kernel_t) Exit(t *TCB_t, code int, init *TCB_t) {
	t.Lock()
	t.Status = Zombie
	t.ExitCode = code
	children := t.Children
	t.Children = nil
	as := t.AS
	fds := t.Fds
	t.Fds = nil
	t.Unlock()

	if init != nil && t.Pid != init.Pid {
		init.Lock()
		for _, c := range children {
			c.Lock()
			c.ParentPid = init.Pid
			c.Parent = init
			c.Unlock()
			init.Children = append(init.Children, c)
		}
		init.Unlock()
	}

	as.Uvmfree()
	for _, f := range fds {
		if f != nil {
			f.Fops.Close()
		}
	}
	log.WithField("pid", t.Pid).WithField("code", code).Debug("task exited")
}

// InstallFd places f in the lowest unused fd slot, growing the table if
// every slot is occupied, and returns that slot's index.
func (t *TCB_t) InstallFd(f *fd.Fd_t) (defs.Fdnum_t, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	for i, slot := range t.Fds {
		if slot == nil {
			t.Fds[i] = f
			return defs.Fdnum_t(i), 0
		}
	}
	t.Fds = append(t.Fds, f)
	return defs.Fdnum_t(len(t.Fds) - 1), 0
}

// SetPriority validates and installs a new stride-scheduler priority,
// enforcing the MinPriority floor.
func (t *TCB_t) SetPriority(pri int) defs.Err_t {
	if pri < MinPriority {
		return -defs.EINVAL
	}
	t.Lock()
	t.Pri = pri
	t.Unlock()
	return 0
}

