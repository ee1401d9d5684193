package memio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/mem"
	"github.com/sv39os/kernel/pagetable"
)

func TestWriteThenReadWithinOnePage(t *testing.T) {
	fa := mem.MkFrameAllocator(0, 64)
	pt, ok := pagetable.New(fa)
	require.True(t, ok)
	defer pt.Destroy()

	leaf, ok := fa.Alloc()
	require.True(t, ok)
	pt.Map(3, leaf.PPN, mem.PTE_R|mem.PTE_W|mem.PTE_U)

	va := uintptr(3) << mem.PGSHIFT
	payload := []byte("hello user memory")

	wb := New(pt, fa, va, len(payload))
	n, err := wb.Write(payload)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, len(payload), n)

	rb := New(pt, fa, va, len(payload))
	got := make([]byte, len(payload))
	n, err = rb.Read(got)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, got)
}

func TestWriteSpanningTwoPages(t *testing.T) {
	fa := mem.MkFrameAllocator(0, 64)
	pt, ok := pagetable.New(fa)
	require.True(t, ok)
	defer pt.Destroy()

	first, _ := fa.Alloc()
	second, _ := fa.Alloc()
	pt.Map(3, first.PPN, mem.PTE_R|mem.PTE_W|mem.PTE_U)
	pt.Map(4, second.PPN, mem.PTE_R|mem.PTE_W|mem.PTE_U)

	va := uintptr(3)<<mem.PGSHIFT + mem.PGSIZE - 8
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i + 1)
	}

	wb := New(pt, fa, va, len(payload))
	n, err := wb.Write(payload)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, len(payload), n)

	rb := New(pt, fa, va, len(payload))
	got := make([]byte, len(payload))
	n, err = rb.Read(got)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, payload, got)
}

func TestReadFromUnmappedPageFaults(t *testing.T) {
	fa := mem.MkFrameAllocator(0, 64)
	pt, ok := pagetable.New(fa)
	require.True(t, ok)
	defer pt.Destroy()

	va := uintptr(9) << mem.PGSHIFT
	rb := New(pt, fa, va, 8)
	_, err := rb.Read(make([]byte, 8))
	assert.Equal(t, defs.EFAULT, err)
}

func TestRemainShrinksAsBytesAreTransferred(t *testing.T) {
	fa := mem.MkFrameAllocator(0, 64)
	pt, ok := pagetable.New(fa)
	require.True(t, ok)
	defer pt.Destroy()

	leaf, _ := fa.Alloc()
	pt.Map(3, leaf.PPN, mem.PTE_R|mem.PTE_W|mem.PTE_U)

	va := uintptr(3) << mem.PGSHIFT
	wb := New(pt, fa, va, 10)
	assert.Equal(t, 10, wb.Remain())
	wb.Write(make([]byte, 4))
	assert.Equal(t, 6, wb.Remain())
}
