package syscall

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/blkdev"
	"github.com/sv39os/kernel/fat32"
	"github.com/sv39os/kernel/mem"
	"github.com/sv39os/kernel/sched"
	"github.com/sv39os/kernel/task"
)

func buildMinimalELF(vaddr uint64, text []byte) []byte {
	const ehsize = 64
	const phsize = 56

	buf := make([]byte, ehsize+phsize+len(text))
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2
	buf[5] = 1
	putU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	putU32 := func(off int, v uint32) {
		for i := 0; i < 4; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	putU16 := func(off int, v uint16) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
	}
	putU64(24, vaddr)
	putU64(32, ehsize)
	putU16(54, phsize)
	putU16(56, 1)

	ph := ehsize
	putU32(ph+0, 1)
	putU32(ph+4, 1|4)
	putU64(ph+8, ehsize+phsize)
	putU64(ph+16, vaddr)
	putU64(ph+32, uint64(len(text)))
	putU64(ph+40, uint64(len(text)))

	copy(buf[ehsize+phsize:], text)
	return buf
}

func testELF() []byte {
	return buildMinimalELF(0x1000, []byte{0x13, 0x00, 0x00, 0x00})
}

// newTestVolume builds a small in-memory FAT32 volume using the boot
// sector/FSInfo byte offsets spec.md ss6 documents, mirroring the layout
// cmd/kernelctl's mkfs writes to a real disk image.
func newTestVolume(t *testing.T) *fat32.Manager_t {
	const bytesPerSector = blkdev.SectorSize
	const sectorsPerCluster = 1
	const numFats = 2
	const reservedSectors = 32
	const fatSizeSectors = 4
	const totalSectors = 256

	dev := blkdev.NewMemDisk(totalSectors)

	boot := make([]byte, bytesPerSector)
	binary.LittleEndian.PutUint16(boot[11:], bytesPerSector)
	boot[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:], reservedSectors)
	boot[16] = numFats
	binary.LittleEndian.PutUint32(boot[32:], uint32(totalSectors))
	binary.LittleEndian.PutUint32(boot[36:], uint32(fatSizeSectors))
	binary.LittleEndian.PutUint16(boot[48:], 1)
	var bootArr [bytesPerSector]byte
	copy(bootArr[:], boot)
	require.NoError(t, dev.WriteBlock(0, &bootArr))

	firstDataSector := reservedSectors + numFats*fatSizeSectors
	clusterCount := (totalSectors - firstDataSector) / sectorsPerCluster

	fi := make([]byte, bytesPerSector)
	binary.LittleEndian.PutUint32(fi[0:], 0x41615252)
	binary.LittleEndian.PutUint32(fi[484:], 0x61417272)
	binary.LittleEndian.PutUint32(fi[488:], uint32(clusterCount-1))
	binary.LittleEndian.PutUint32(fi[492:], 3)
	binary.LittleEndian.PutUint32(fi[508:], 0xAA550000)
	var fiArr [bytesPerSector]byte
	copy(fiArr[:], fi)
	require.NoError(t, dev.WriteBlock(1, &fiArr))

	fatEntries := make([]byte, bytesPerSector)
	binary.LittleEndian.PutUint32(fatEntries[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatEntries[4:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatEntries[8:], 0x0FFFFFFF)
	var fatArr [bytesPerSector]byte
	copy(fatArr[:], fatEntries)
	for copyIdx := 0; copyIdx < numFats; copyIdx++ {
		require.NoError(t, dev.WriteBlock(reservedSectors+copyIdx*fatSizeSectors, &fatArr))
	}

	var zero [bytesPerSector]byte
	require.NoError(t, dev.WriteBlock(firstDataSector, &zero))

	infoCache := blkcache.New(16, dev, 0, nil)
	dataCache := blkcache.New(16, dev, 0, nil)
	mgr, err := fat32.Open(infoCache, dataCache)
	require.NoError(t, err)
	return mgr
}

// testDispatcher wires a fresh Kernel_t/Scheduler_t/fat32.Manager_t
// together and returns the dispatcher alongside its init task, the way
// cmd/kernelctl's bootKernel does for a real boot, sized down for fast
// in-memory tests.
func testDispatcher(t *testing.T) (*Dispatcher_t, *task.TCB_t) {
	fa := mem.MkFrameAllocator(0, 4096)
	tramp, ok := fa.Alloc()
	require.True(t, ok)
	k := task.NewKernel(fa, tramp.PPN)

	init, err := k.New(testELF())
	require.NoError(t, err)

	s := sched.New()
	mgr := newTestVolume(t)
	d := New(k, s, mgr)
	d.Init = init
	return d, init
}
