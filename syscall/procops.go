package syscall

import (
	"time"

	"github.com/sv39os/kernel/accnt"
	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/sched"
	"github.com/sv39os/kernel/task"
)

// Fork forks t, enqueuing the child onto the ready queue, and returns
// the child's pid to the parent.
func (d *Dispatcher_t) Fork(t *task.TCB_t) (defs.Pid_t, defs.Err_t) {
	child, err := d.Kernel.Fork(t)
	if err != nil {
		log.WithError(err).Warn("fork failed")
		return -1, defs.ENOMEM
	}
	d.Sched.Enqueue(child)
	return child.Pid, 0
}

// Exec replaces t's memory image with elfBytes.
func (d *Dispatcher_t) Exec(t *task.TCB_t, elfBytes []byte) defs.Err_t {
	if err := d.Kernel.Exec(t, elfBytes); err != nil {
		return defs.EINVAL
	}
	return 0
}

// Spawn is fork+exec fused.
func (d *Dispatcher_t) Spawn(t *task.TCB_t, elfBytes []byte) (defs.Pid_t, defs.Err_t) {
	child, err := d.Kernel.Spawn(t, elfBytes)
	if err != nil {
		return -1, defs.ENOMEM
	}
	d.Sched.Enqueue(child)
	return child.Pid, 0
}

// Wait blocks (yielding to the scheduler) until a matching child
// becomes a zombie, then reaps it.
func (d *Dispatcher_t) Wait(t *task.TCB_t, pid defs.Pid_t) (defs.Pid_t, int, defs.Err_t) {
	for {
		var code int
		got, err := d.Kernel.Wait(t, pid, &code)
		if err == -2 {
			sched.Yield(t)
			continue
		}
		if err != 0 {
			return 0, 0, err
		}
		return got, code, 0
	}
}

// Exit tears t down and hands control back to the scheduler, which must
// never return into this goroutine again.
func (d *Dispatcher_t) Exit(t *task.TCB_t, code int) {
	d.Kernel.Exit(t, code, d.Init)
	sched.Yield(t)
}

// Getpid and Getppid read t's identity fields without taking t's lock.
// Pid never changes after construction; ParentPid changes only when
// Kernel_t.Exit reparents t to init.
func (d *Dispatcher_t) Getpid(t *task.TCB_t) defs.Pid_t  { return t.Pid }
func (d *Dispatcher_t) Getppid(t *task.TCB_t) defs.Pid_t { return t.ParentPid }

// Brk grows or shrinks t's heap to newEnd.
func (d *Dispatcher_t) Brk(t *task.TCB_t, newEnd uintptr) defs.Err_t {
	if err := t.AS.Brk(newEnd); err != nil {
		return defs.ENOMEM
	}
	return 0
}

// Nanosleep busy-yields until the requested duration has elapsed.
func (d *Dispatcher_t) Nanosleep(t *task.TCB_t, dur time.Duration) defs.Err_t {
	deadline := time.Now().Add(dur)
	for time.Now().Before(deadline) {
		sched.Yield(t)
	}
	return 0
}

// Yield voluntarily reschedules t.
func (d *Dispatcher_t) Yield(t *task.TCB_t) {
	d.Sched.Enqueue(t)
	sched.Yield(t)
}

// Times snapshots t's own and its reaped children's accounting as clock
// ticks.
func (d *Dispatcher_t) Times(t *task.TCB_t) accnt.Tms {
	t.Lock()
	defer t.Unlock()
	return t.Acc.ToTms(t.ChildrenUserns, t.ChildrenSysns)
}

// Uname_t is the fixed uname(2) payload this kernel reports.
type Uname_t struct {
	Sysname, Release, Version string
}

// Uname returns this kernel's fixed identification.
func (d *Dispatcher_t) Uname() Uname_t {
	return Uname_t{Sysname: "RISC-V-SV39", Release: "1.0", Version: "sv39os"}
}

// SetPriority and GetPriority expose the stride scheduler's per-task
// priority.
func (d *Dispatcher_t) SetPriority(t *task.TCB_t, pri int) defs.Err_t {
	return t.SetPriority(pri)
}

func (d *Dispatcher_t) GetPriority(t *task.TCB_t) int {
	t.Lock()
	defer t.Unlock()
	return t.Pri
}

// Shutdown flushes the mounted filesystem's caches. The dispatch loop
// itself is owned by cmd/kernelctl; this just performs the
// filesystem-visible half of shutting down.
func (d *Dispatcher_t) Shutdown() {
	d.FS.Info.FlushAll()
	d.FS.Data.FlushAll()
}
