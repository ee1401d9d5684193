package vfile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/blkdev"
	"github.com/sv39os/kernel/fat32"
)

// newTestRoot builds a small in-memory FAT32 volume using the boot
// sector/FSInfo byte offsets spec.md ss6 documents, then returns its
// root VFile, mirroring the layout cmd/kernelctl's mkfs writes to a real
// disk image.
func newTestRoot(t *testing.T) *VFile_t {
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
	return Root(mgr)
}
