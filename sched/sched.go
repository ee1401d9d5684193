// Package sched implements the stride scheduler: the ready queue, the
// smallest-stride pick, the idle loop, and voluntary yield/sleep. The
// low-level context switch is the one genuinely hardware-dependent
// operation here; it is injected as a package-level function variable
// rather than being implemented in this package.
package sched

import (
	"sync"
	"time"

	"github.com/sv39os/kernel/klog"
	"github.com/sv39os/kernel/task"
)

var log = klog.For("sched")

// BigStride is the constant divided by priority to compute each
// dispatch's stride increment.
const BigStride = 1 << 20

// ContextSwitch_f is the externally supplied low-level context switch:
// it saves callee-saved registers/ra/sp into *from and restores them
// from *to, then returns (or, for the very first dispatch of a task,
// never returns to the caller at all). Scheduler must not be used until
// this is set.
var ContextSwitch_f func(from, to *task.TaskContext_t)

// SetContextSwitch installs the assembly-backed context switch.
func SetContextSwitch(f func(from, to *task.TaskContext_t)) {
	ContextSwitch_f = f
}

// idleContext is swapped into when there is no ready task; it never
// itself returns to user space, it only drives the scheduling loop.
var idleContext task.TaskContext_t

// Scheduler_t owns the ready queue and the currently running task.
// A single mutex guards both ready-queue mutation and the "currently
// running" slot, since this scheduler drives exactly one core.
type Scheduler_t struct {
	mu      sync.Mutex
	ready   []*task.TCB_t
	current *task.TCB_t
}

// New constructs an empty scheduler.
func New() *Scheduler_t {
	return &Scheduler_t{}
}

// Enqueue adds t to the ready queue. t must not already be Running.
func (s *Scheduler_t) Enqueue(t *task.TCB_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Lock()
	t.Status = task.Ready
	t.Unlock()
	s.ready = append(s.ready, t)
}

// pick scans the ready queue for the task with the smallest stride,
// removing and returning it. Ties are broken by queue order, which
// keeps the pick deterministic for tests.
func (s *Scheduler_t) pick() *task.TCB_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return nil
	}
	besti := 0
	for i, t := range s.ready[1:] {
		if t.Stride < s.ready[besti].Stride {
			besti = i + 1
		}
	}
	picked := s.ready[besti]
	s.ready = append(s.ready[:besti:besti], s.ready[besti+1:]...)
	return picked
}

// Current returns the task currently marked Running, if any.
func (s *Scheduler_t) Current() *task.TCB_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// RunOne dispatches the next Ready task: advances its stride by
// BigStride/pri, marks it Running, switches into it, and on return (the
// task yielded, slept, or exited back through the idle context) clears
// the current slot. It returns false when the ready queue was empty,
// meaning the caller should idle.
func (s *Scheduler_t) RunOne() bool {
	t := s.pick()
	if t == nil {
		return false
	}
	t.Lock()
	if t.Pri < task.MinPriority {
		t.Pri = task.MinPriority
	}
	t.Stride += BigStride / int64(t.Pri)
	t.Status = task.Running
	ctx := &t.Context
	t.Unlock()

	s.mu.Lock()
	s.current = t
	s.mu.Unlock()

	log.WithField("pid", t.Pid).Debug("dispatch")
	ContextSwitch_f(&idleContext, ctx)

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return true
}

// IdleLoop alternates RunOne with the idle context forever (or until
// stop is closed): the idle context itself never returns to user space,
// it only swaps into the next Ready task.
func (s *Scheduler_t) IdleLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !s.RunOne() {
			time.Sleep(time.Millisecond)
		}
	}
}

// Yield voluntarily hands the CPU back to the idle context, which will
// re-enter the scheduling loop. The caller must re-enqueue t itself
// once it is ready to run again; the suspension point's precondition is
// re-checked at that point, not here.
func Yield(t *task.TCB_t) {
	ContextSwitch_f(&t.Context, &idleContext)
}
