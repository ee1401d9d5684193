// Package syscall implements the core-facing entry points the trap
// dispatcher invokes once it has validated the syscall number and
// copied in any fixed-size arguments: open, read/write on kernel-side
// byte slices, pipe2, mmap, getdents64, fstat, uname, chdir, mkdirat,
// unlinkat, dup/dup3, getcwd, brk, nanosleep, times, getpid/getppid,
// shutdown, setpriority and getpriority. One dispatch object bundles
// everything a syscall handler needs: the task subsystem, the
// scheduler, and the mounted filesystem.
package syscall

import (
	"time"

	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/fat32"
	"github.com/sv39os/kernel/klog"
	"github.com/sv39os/kernel/sched"
	"github.com/sv39os/kernel/task"
	"github.com/sv39os/kernel/vfile"
)

var log = klog.For("syscall")

// Dispatcher_t bundles the process-wide collaborators a syscall handler
// needs: the task subsystem, the scheduler, and the root of the mounted
// filesystem.
type Dispatcher_t struct {
	Kernel *task.Kernel_t
	Sched  *sched.Scheduler_t
	FS     *fat32.Manager_t
	Root   *vfile.VFile_t
	Init   *task.TCB_t

	boot time.Time
}

// New constructs a Dispatcher_t over an already-booted filesystem and
// task subsystem.
func New(k *task.Kernel_t, s *sched.Scheduler_t, fs *fat32.Manager_t) *Dispatcher_t {
	return &Dispatcher_t{Kernel: k, Sched: s, FS: fs, Root: vfile.Root(fs), boot: time.Now()}
}

// resolveDir resolves dirfd/path the way open(2) and friends do: an
// absolute path resolves from the root regardless of dirfd; a relative
// path resolves from cwd when dirfd is AT_FDCWD, or from the directory
// fd names otherwise.
func (d *Dispatcher_t) resolveDir(t *task.TCB_t, dirfd int, path string) (*vfile.VFile_t, string, defs.Err_t) {
	if len(path) > 0 && path[0] == '/' {
		return d.Root, path, 0
	}
	if dirfd == defs.AT_FDCWD {
		start, err := d.Root.FindByPath(t.Cwd)
		if err != 0 {
			return nil, "", err
		}
		return start, path, 0
	}
	if dirfd < 0 || dirfd >= len(t.Fds) || t.Fds[dirfd] == nil {
		return nil, "", defs.EBADF
	}
	vf, ok := t.Fds[dirfd].Fops.(*vfileFd_t)
	if !ok {
		return nil, "", defs.ENOTDIR
	}
	return vf.v, path, 0
}
