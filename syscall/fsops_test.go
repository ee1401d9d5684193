package syscall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/defs"
)

func TestOpenCreatesFileWhenMissing(t *testing.T) {
	d, init := testDispatcher(t)
	fdnum, err := d.Open(init, defs.AT_FDCWD, "hello.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	assert.GreaterOrEqual(t, int(fdnum), 3)
}

func TestOpenMissingWithoutCreatFails(t *testing.T) {
	d, init := testDispatcher(t)
	_, err := d.Open(init, defs.AT_FDCWD, "nope.txt", defs.O_RDONLY)
	assert.Equal(t, defs.ENOENT, err)
}

func TestOpenTruncTruncatesExisting(t *testing.T) {
	d, init := testDispatcher(t)
	fdnum, err := d.Open(init, defs.AT_FDCWD, "x.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	_, err = d.Write(init, fdnum, []byte("content"))
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), d.Close(init, fdnum))

	fdnum2, err := d.Open(init, defs.AT_FDCWD, "x.txt", defs.O_RDWR|defs.O_TRUNC)
	require.Equal(t, defs.Err_t(0), err)
	st, serr := d.Fstat(init, fdnum2)
	require.Equal(t, defs.Err_t(0), serr)
	assert.Zero(t, st.Size)
}

func TestWriteThenReadRoundTripsThroughFd(t *testing.T) {
	d, init := testDispatcher(t)
	fdnum, err := d.Open(init, defs.AT_FDCWD, "rw.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)

	n, werr := d.Write(init, fdnum, []byte("payload"))
	require.Equal(t, defs.Err_t(0), werr)
	assert.Equal(t, 7, n)

	// offset tracked inside the fd, so re-open to read from the start.
	require.Equal(t, defs.Err_t(0), d.Close(init, fdnum))
	fdnum2, err := d.Open(init, defs.AT_FDCWD, "rw.txt", defs.O_RDONLY)
	require.Equal(t, defs.Err_t(0), err)
	buf := make([]byte, 7)
	n, rerr := d.Read(init, fdnum2, buf)
	require.Equal(t, defs.Err_t(0), rerr)
	assert.Equal(t, "payload", string(buf[:n]))
}

func TestWriteRejectsReadOnlyFd(t *testing.T) {
	d, init := testDispatcher(t)
	fdnum, err := d.Open(init, defs.AT_FDCWD, "ro.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), d.Close(init, fdnum))

	fdnum2, err := d.Open(init, defs.AT_FDCWD, "ro.txt", defs.O_RDONLY)
	require.Equal(t, defs.Err_t(0), err)
	_, werr := d.Write(init, fdnum2, []byte("x"))
	assert.Equal(t, defs.EBADF, werr)
}

func TestCloseThenReadFails(t *testing.T) {
	d, init := testDispatcher(t)
	fdnum, err := d.Open(init, defs.AT_FDCWD, "c.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), d.Close(init, fdnum))

	_, rerr := d.Read(init, fdnum, make([]byte, 1))
	assert.Equal(t, defs.EBADF, rerr)
}

func TestDupSharesUnderlyingFile(t *testing.T) {
	d, init := testDispatcher(t)
	fdnum, err := d.Open(init, defs.AT_FDCWD, "dup.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)

	dupfd, derr := d.Dup(init, fdnum)
	require.Equal(t, defs.Err_t(0), derr)
	assert.NotEqual(t, fdnum, dupfd)
	assert.Same(t, init.Fds[fdnum].Fops, init.Fds[dupfd].Fops)

	_, werr := d.Write(init, dupfd, []byte("via-dup"))
	require.Equal(t, defs.Err_t(0), werr)
}

func TestDup3ClosesTargetFirst(t *testing.T) {
	d, init := testDispatcher(t)
	a, err := d.Open(init, defs.AT_FDCWD, "a.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	b, err := d.Open(init, defs.AT_FDCWD, "b.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)

	require.Equal(t, defs.Err_t(0), d.Dup3(init, a, b))
	_, werr := d.Write(init, b, []byte("now-a"))
	assert.Equal(t, defs.Err_t(0), werr)
}

func TestMkdiratThenChdirThenGetcwd(t *testing.T) {
	d, init := testDispatcher(t)
	require.Equal(t, defs.Err_t(0), d.Mkdirat(init, defs.AT_FDCWD, "sub"))
	require.Equal(t, defs.Err_t(0), d.Chdir(init, "sub"))
	assert.Equal(t, "/sub", d.Getcwd(init))
}

func TestUnlinkatRemovesFile(t *testing.T) {
	d, init := testDispatcher(t)
	_, err := d.Open(init, defs.AT_FDCWD, "doomed.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)

	require.Equal(t, defs.Err_t(0), d.Unlinkat(init, defs.AT_FDCWD, "doomed.txt"))
	_, err = d.Open(init, defs.AT_FDCWD, "doomed.txt", defs.O_RDONLY)
	assert.Equal(t, defs.ENOENT, err)
}

func TestChdirIntoFileFails(t *testing.T) {
	d, init := testDispatcher(t)
	_, err := d.Open(init, defs.AT_FDCWD, "notadir.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, defs.ENOTDIR, d.Chdir(init, "notadir.txt"))
}

func TestGetdents64ListsCreatedEntries(t *testing.T) {
	d, init := testDispatcher(t)
	_, err := d.Open(init, defs.AT_FDCWD, "one.txt", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, defs.Err_t(0), d.Mkdirat(init, defs.AT_FDCWD, "two"))

	rootFd, err := d.Open(init, defs.AT_FDCWD, "/", defs.O_RDONLY)
	require.Equal(t, defs.Err_t(0), err)

	buf := make([]byte, 4096)
	n, gerr := d.Getdents64(init, rootFd, buf)
	require.Equal(t, defs.Err_t(0), gerr)
	assert.Greater(t, n, 0)
}

func TestFstatOnDirectoryFdReportsDirectoryAttr(t *testing.T) {
	d, init := testDispatcher(t)
	require.Equal(t, defs.Err_t(0), d.Mkdirat(init, defs.AT_FDCWD, "statdir"))
	dirFd, err := d.Open(init, defs.AT_FDCWD, "statdir", defs.O_RDONLY)
	require.Equal(t, defs.Err_t(0), err)

	st, serr := d.Fstat(init, dirFd)
	require.Equal(t, defs.Err_t(0), serr)
	assert.EqualValues(t, defs.ATTR_DIRECTORY, st.Attr)
}
