package syscall

import (
	"strings"

	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/fd"
	"github.com/sv39os/kernel/task"
	"github.com/sv39os/kernel/vfile"
)

// vfileFd_t adapts a VFile_t to fd.Fdops_i, tracking its own read/write
// offset and the flags it was opened with.
type vfileFd_t struct {
	v      *vfile.VFile_t
	off    int
	flags  int
}

func (f *vfileFd_t) Read(dst []byte) (int, defs.Err_t) {
	n, err := f.v.ReadAt(f.off, dst)
	if err != 0 {
		return n, err
	}
	f.off += n
	return n, 0
}

func (f *vfileFd_t) Write(src []byte) (int, defs.Err_t) {
	n, err := f.v.WriteAt(f.off, src)
	if err != 0 {
		return n, err
	}
	f.off += n
	return n, 0
}

func (f *vfileFd_t) Close() defs.Err_t  { return 0 }
func (f *vfileFd_t) Reopen() defs.Err_t { return 0 }

// Open resolves path relative to root, cwd, or dirfd, optionally
// creating or truncating it, and installs a new fd in t's table.
func (d *Dispatcher_t) Open(t *task.TCB_t, dirfd int, path string, flags int) (defs.Fdnum_t, defs.Err_t) {
	dir, rel, err := d.resolveDir(t, dirfd, path)
	if err != 0 {
		return -1, err
	}
	target, ferr := dir.FindByPath(rel)
	if ferr == defs.ENOENT {
		if flags&defs.O_CREAT == 0 {
			return -1, defs.ENOENT
		}
		parent, name, perr := splitParent(dir, rel)
		if perr != 0 {
			return -1, perr
		}
		target, ferr = parent.Create(name, defs.ATTR_ARCHIVE)
		if ferr != 0 {
			return -1, ferr
		}
	} else if ferr != 0 {
		return -1, ferr
	} else if flags&defs.O_TRUNC != 0 {
		target.Clear()
	}

	nf := &fd.Fd_t{Fops: &vfileFd_t{v: target, flags: flags}, Perms: permsFromFlags(flags)}
	return t.InstallFd(nf)
}

func permsFromFlags(flags int) int {
	switch flags & 0x3 {
	case defs.O_WRONLY:
		return fd.FD_WRITE
	case defs.O_RDWR:
		return fd.FD_READ | fd.FD_WRITE
	default:
		return fd.FD_READ
	}
}

// splitParent resolves every path component but the last, returning the
// parent directory VFile and the final component's name.
func splitParent(dir *vfile.VFile_t, path string) (*vfile.VFile_t, string, defs.Err_t) {
	path = strings.TrimPrefix(path, "/")
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return dir, path, 0
	}
	parent, err := dir.FindByPath(path[:i])
	if err != 0 {
		return nil, "", err
	}
	return parent, path[i+1:], 0
}

// Read reads up to len(dst) bytes from fd into dst.
func (d *Dispatcher_t) Read(t *task.TCB_t, fdnum defs.Fdnum_t, dst []byte) (int, defs.Err_t) {
	f, err := d.getFd(t, fdnum)
	if err != 0 {
		return 0, err
	}
	if f.Perms&fd.FD_READ == 0 {
		return 0, defs.EBADF
	}
	return f.Fops.Read(dst)
}

// Write writes src to fd.
func (d *Dispatcher_t) Write(t *task.TCB_t, fdnum defs.Fdnum_t, src []byte) (int, defs.Err_t) {
	f, err := d.getFd(t, fdnum)
	if err != 0 {
		return 0, err
	}
	if f.Perms&fd.FD_WRITE == 0 {
		return 0, defs.EBADF
	}
	return f.Fops.Write(src)
}

func (d *Dispatcher_t) getFd(t *task.TCB_t, fdnum defs.Fdnum_t) (*fd.Fd_t, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	if int(fdnum) < 0 || int(fdnum) >= len(t.Fds) || t.Fds[fdnum] == nil {
		return nil, defs.EBADF
	}
	return t.Fds[fdnum], 0
}

// Close closes and clears the fd slot.
func (d *Dispatcher_t) Close(t *task.TCB_t, fdnum defs.Fdnum_t) defs.Err_t {
	t.Lock()
	defer t.Unlock()
	if int(fdnum) < 0 || int(fdnum) >= len(t.Fds) || t.Fds[fdnum] == nil {
		return -defs.EBADF
	}
	err := t.Fds[fdnum].Fops.Close()
	t.Fds[fdnum] = nil
	return err
}

// Dup duplicates oldfd onto the lowest unused fd slot.
func (d *Dispatcher_t) Dup(t *task.TCB_t, oldfd defs.Fdnum_t) (defs.Fdnum_t, defs.Err_t) {
	old, err := d.getFd(t, oldfd)
	if err != 0 {
		return -1, err
	}
	nf, cerr := fd.Copyfd(old)
	if cerr != 0 {
		return -1, cerr
	}
	return t.InstallFd(nf)
}

// Dup3 duplicates oldfd onto newfd, closing whatever newfd previously
// held.
func (d *Dispatcher_t) Dup3(t *task.TCB_t, oldfd, newfd defs.Fdnum_t) defs.Err_t {
	old, err := d.getFd(t, oldfd)
	if err != 0 {
		return err
	}
	nf, cerr := fd.Copyfd(old)
	if cerr != 0 {
		return cerr
	}
	t.Lock()
	defer t.Unlock()
	for int(newfd) >= len(t.Fds) {
		t.Fds = append(t.Fds, nil)
	}
	if t.Fds[newfd] != nil {
		t.Fds[newfd].Fops.Close()
	}
	t.Fds[newfd] = nf
	return 0
}

// Mkdirat creates a directory at dirfd/path.
func (d *Dispatcher_t) Mkdirat(t *task.TCB_t, dirfd int, path string) defs.Err_t {
	dir, rel, err := d.resolveDir(t, dirfd, path)
	if err != 0 {
		return err
	}
	parent, name, perr := splitParent(dir, rel)
	if perr != 0 {
		return perr
	}
	if _, cerr := parent.Create(name, defs.ATTR_DIRECTORY); cerr != 0 {
		return cerr
	}
	return 0
}

// Unlinkat removes dirfd/path.
func (d *Dispatcher_t) Unlinkat(t *task.TCB_t, dirfd int, path string) defs.Err_t {
	dir, rel, err := d.resolveDir(t, dirfd, path)
	if err != 0 {
		return err
	}
	target, terr := dir.FindByPath(rel)
	if terr != 0 {
		return terr
	}
	return target.Remove()
}

// Chdir changes t's working directory, verifying path resolves to a
// directory.
func (d *Dispatcher_t) Chdir(t *task.TCB_t, path string) defs.Err_t {
	var base *vfile.VFile_t
	var rel string
	if len(path) > 0 && path[0] == '/' {
		base, rel = d.Root, path
	} else {
		cur, err := d.Root.FindByPath(t.Cwd)
		if err != 0 {
			return err
		}
		base, rel = cur, path
	}
	target, err := base.FindByPath(rel)
	if err != 0 {
		return err
	}
	if !target.IsDir() {
		return defs.ENOTDIR
	}
	t.Lock()
	t.Cwd = joinCwd(t.Cwd, path)
	t.Unlock()
	return 0
}

func joinCwd(cwd, path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path
	}
	if cwd == "/" {
		return "/" + path
	}
	return cwd + "/" + path
}

// Getcwd returns t's current working directory.
func (d *Dispatcher_t) Getcwd(t *task.TCB_t) string {
	t.Lock()
	defer t.Unlock()
	return t.Cwd
}

// Fstat flattens fd's VFile into a Stat_t.
func (d *Dispatcher_t) Fstat(t *task.TCB_t, fdnum defs.Fdnum_t) (vfile.Stat_t, defs.Err_t) {
	f, err := d.getFd(t, fdnum)
	if err != 0 {
		return vfile.Stat_t{}, err
	}
	vf, ok := f.Fops.(*vfileFd_t)
	if !ok {
		return vfile.Stat_t{}, defs.EINVAL
	}
	return vf.v.Stat(), 0
}

// Getdents64 lists dirfd's entries into the getdents64 wire format,
// returning the number of bytes written.
func (d *Dispatcher_t) Getdents64(t *task.TCB_t, fdnum defs.Fdnum_t, buf []byte) (int, defs.Err_t) {
	f, err := d.getFd(t, fdnum)
	if err != 0 {
		return 0, err
	}
	vf, ok := f.Fops.(*vfileFd_t)
	if !ok || !vf.v.IsDir() {
		return 0, defs.ENOTDIR
	}
	entries, lerr := vf.v.Ls()
	if lerr != 0 {
		return 0, lerr
	}
	written := 0
	for i, e := range entries {
		rec := vfile.DirentInfo(e, int64(i))
		if written+int(rec.Reclen) > len(buf) {
			break
		}
		written += rec.Encode(buf[written:])
	}
	return written, 0
}
