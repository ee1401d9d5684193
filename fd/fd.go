// Package fd defines the file-descriptor abstraction shared by every
// open file, pipe end, and console stream a task can hold: an interface
// for what operations a kind of open object supports, and a table entry
// for the permission bits this particular descriptor was opened with.
package fd

import "github.com/sv39os/kernel/defs"

// Fdops_i is implemented by every kind of object an fd can reference:
// an on-disk VFile, a pipe end, or a console stream.
type Fdops_i interface {
	Read(dst []byte) (int, defs.Err_t)
	Write(src []byte) (int, defs.Err_t)
	Close() defs.Err_t
	Reopen() defs.Err_t
}

// Fd_t is one entry in a task's file descriptor table.
type Fd_t struct {
	Fops  Fdops_i
	Perms int
}

const (
	FD_READ  = 0x1
	FD_WRITE = 0x2
)

// Copyfd duplicates an open descriptor by reopening its underlying
// object (so both descriptors' Close calls are individually meaningful).
func Copyfd(f *Fd_t) (*Fd_t, defs.Err_t) {
	nf := &Fd_t{}
	*nf = *f
	if err := nf.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nf, 0
}

// ConsoleFd_t is a minimal stdin/stdout/stderr placeholder: the real
// character device driver is hardware this hosted harness has none of,
// so this just buffers bytes in memory for the harness and tests.
type ConsoleFd_t struct {
	Name string
	buf  []byte
}

func NewConsole(name string) *Fd_t {
	return &Fd_t{Fops: &ConsoleFd_t{Name: name}, Perms: FD_READ | FD_WRITE}
}

func (c *ConsoleFd_t) Read(dst []byte) (int, defs.Err_t) {
	n := copy(dst, c.buf)
	c.buf = c.buf[n:]
	return n, 0
}

func (c *ConsoleFd_t) Write(src []byte) (int, defs.Err_t) {
	c.buf = append(c.buf, src...)
	return len(src), 0
}

func (c *ConsoleFd_t) Close() defs.Err_t   { return 0 }
func (c *ConsoleFd_t) Reopen() defs.Err_t  { return 0 }
