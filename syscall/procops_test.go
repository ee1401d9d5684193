package syscall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/sched"
	"github.com/sv39os/kernel/task"
)

func init() {
	// The real trap-entry context switch is an external collaborator;
	// tests stand in a no-op so Exit/Yield/Wait's suspension points
	// simply return immediately.
	sched.SetContextSwitch(func(from, to *task.TaskContext_t) {})
}

func TestForkEnqueuesChildAndReturnsItsPid(t *testing.T) {
	d, init := testDispatcher(t)
	childPid, err := d.Fork(init)
	require.Equal(t, defs.Err_t(0), err)
	assert.NotEqual(t, init.Pid, childPid)
}

func TestExecReplacesMemoryImage(t *testing.T) {
	d, init := testDispatcher(t)
	assert.Equal(t, defs.Err_t(0), d.Exec(init, testELF()))
}

func TestSpawnEnqueuesChild(t *testing.T) {
	d, init := testDispatcher(t)
	childPid, err := d.Spawn(init, testELF())
	require.Equal(t, defs.Err_t(0), err)
	assert.NotEqual(t, init.Pid, childPid)
}

func TestWaitReapsZombieChild(t *testing.T) {
	d, parent := testDispatcher(t)
	childPid, ferr := d.Fork(parent)
	require.Equal(t, defs.Err_t(0), ferr)

	var child *task.TCB_t
	for _, c := range parent.Children {
		if c.Pid == childPid {
			child = c
		}
	}
	require.NotNil(t, child)
	d.Kernel.Exit(child, 7, d.Init)

	gotPid, code, werr := d.Wait(parent, childPid)
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, childPid, gotPid)
	assert.Equal(t, 7<<8, code)
}

func TestWaitWithNoChildrenReturnsECHILD(t *testing.T) {
	d, parent := testDispatcher(t)
	_, _, err := d.Wait(parent, -1)
	assert.Equal(t, -defs.ECHILD, err)
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	d, root := testDispatcher(t)
	midPid, ferr := d.Fork(root)
	require.Equal(t, defs.Err_t(0), ferr)
	var mid *task.TCB_t
	for _, c := range root.Children {
		if c.Pid == midPid {
			mid = c
		}
	}
	require.NotNil(t, mid)

	grandchildPid, ferr := d.Fork(mid)
	require.Equal(t, defs.Err_t(0), ferr)

	d.Exit(mid, 0)

	found := false
	for _, c := range d.Init.Children {
		if c.Pid == grandchildPid {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGetpidAndGetppid(t *testing.T) {
	d, init := testDispatcher(t)
	childPid, ferr := d.Fork(init)
	require.Equal(t, defs.Err_t(0), ferr)

	var child *task.TCB_t
	for _, c := range init.Children {
		if c.Pid == childPid {
			child = c
		}
	}
	require.NotNil(t, child)
	assert.Equal(t, childPid, d.Getpid(child))
	assert.Equal(t, init.Pid, d.Getppid(child))
}

func TestBrkGrowsHeap(t *testing.T) {
	d, init := testDispatcher(t)
	before := init.AS.ProgramBrk
	assert.Equal(t, defs.Err_t(0), d.Brk(init, before+0x1000))
	assert.Equal(t, before+0x1000, init.AS.ProgramBrk)
}

func TestNanosleepReturnsAfterDuration(t *testing.T) {
	d, init := testDispatcher(t)
	start := time.Now()
	assert.Equal(t, defs.Err_t(0), d.Nanosleep(init, time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
}

func TestYieldReenqueuesTask(t *testing.T) {
	d, init := testDispatcher(t)
	d.Yield(init)
	assert.Equal(t, task.Ready, init.Status)
}

func TestTimesReflectsAccounting(t *testing.T) {
	d, init := testDispatcher(t)
	tms := d.Times(init)
	assert.Zero(t, tms.Utime)
}

func TestUnameReportsFixedIdentity(t *testing.T) {
	d, _ := testDispatcher(t)
	u := d.Uname()
	assert.Equal(t, "RISC-V-SV39", u.Sysname)
}

func TestSetPriorityRejectsBelowMinimum(t *testing.T) {
	d, init := testDispatcher(t)
	assert.Equal(t, -defs.EINVAL, d.SetPriority(init, 0))
}

func TestSetPriorityThenGetPriority(t *testing.T) {
	d, init := testDispatcher(t)
	require.Equal(t, defs.Err_t(0), d.SetPriority(init, 5))
	assert.Equal(t, 5, d.GetPriority(init))
}

func TestShutdownFlushesFilesystemCaches(t *testing.T) {
	d, _ := testDispatcher(t)
	assert.NotPanics(t, func() { d.Shutdown() })
}
