package syscall

import (
	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/fd"
	"github.com/sv39os/kernel/pipe"
	"github.com/sv39os/kernel/task"
)

// pipeFd_t adapts one end of a pipe.Pipe_t to fd.Fdops_i.
type pipeFd_t struct {
	p *pipe.Pipe_t
}

func (f *pipeFd_t) Read(dst []byte) (int, defs.Err_t)  { return f.p.Read(dst) }
func (f *pipeFd_t) Write(src []byte) (int, defs.Err_t) { return f.p.Write(src) }
func (f *pipeFd_t) Close() defs.Err_t                  { return f.p.Close() }
func (f *pipeFd_t) Reopen() defs.Err_t                 { return f.p.Reopen() }

// Pipe2 allocates a ring buffer and installs its read and write ends as
// two new fds in t's table, returning (readFd, writeFd).
func (d *Dispatcher_t) Pipe2(t *task.TCB_t) (defs.Fdnum_t, defs.Fdnum_t, defs.Err_t) {
	r, w := pipe.New()
	rf, err := t.InstallFd(&fd.Fd_t{Fops: &pipeFd_t{p: r}, Perms: fd.FD_READ})
	if err != 0 {
		return -1, -1, err
	}
	wf, err := t.InstallFd(&fd.Fd_t{Fops: &pipeFd_t{p: w}, Perms: fd.FD_WRITE})
	if err != 0 {
		return -1, -1, err
	}
	return rf, wf, 0
}
