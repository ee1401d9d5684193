package syscall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/mem"
)

func TestMmapZeroStartRelocatesPastBrk(t *testing.T) {
	d, init := testDispatcher(t)
	start, err := d.Mmap(init, 0, mem.PGSIZE, mem.PTE_R|mem.PTE_W|mem.PTE_U, -1)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, init.AS.ProgramBrk+uintptr(mmapGuardPages)*mem.PGSIZE, start)
}

func TestMmapRejectsZeroLength(t *testing.T) {
	d, init := testDispatcher(t)
	_, err := d.Mmap(init, 0, 0, mem.PTE_R, -1)
	assert.Equal(t, defs.EINVAL, err)
}

func TestMmapRejectsUnalignedStart(t *testing.T) {
	d, init := testDispatcher(t)
	_, err := d.Mmap(init, 0x1001, mem.PGSIZE, mem.PTE_R, -1)
	assert.Equal(t, defs.EINVAL, err)
}

func TestMmapThenMunmapRoundTrips(t *testing.T) {
	d, init := testDispatcher(t)
	start, err := d.Mmap(init, 0, mem.PGSIZE, mem.PTE_R|mem.PTE_W|mem.PTE_U, -1)
	require.Equal(t, defs.Err_t(0), err)

	assert.Equal(t, defs.Err_t(0), d.Munmap(init, start, mem.PGSIZE))
}

func TestMmapSeedsFromFd(t *testing.T) {
	d, init := testDispatcher(t)
	fdnum, err := d.Open(init, defs.AT_FDCWD, "seed.bin", defs.O_RDWR|defs.O_CREAT)
	require.Equal(t, defs.Err_t(0), err)
	_, werr := d.Write(init, fdnum, []byte("seeded"))
	require.Equal(t, defs.Err_t(0), werr)

	_, merr := d.Mmap(init, 0, mem.PGSIZE, mem.PTE_R|mem.PTE_U, fdnum)
	assert.Equal(t, defs.Err_t(0), merr)
}

func TestMunmapRejectsUnalignedStart(t *testing.T) {
	d, init := testDispatcher(t)
	assert.Equal(t, defs.EINVAL, d.Munmap(init, 0x1001, mem.PGSIZE))
}
