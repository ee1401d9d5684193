package fat32

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/blkdev"
)

// newTestVolume builds a small in-memory FAT32 volume -- boot sector,
// FSInfo, two FAT copies with clusters 0-2 pre-filled, root directory in
// cluster 2 -- mirroring what cmd/kernelctl's mkfs writes to a real disk
// image, and opens it through Manager_t.
func newTestVolume(t *testing.T, totalSectors, fatSizeSectors, reservedSectors int) (*Manager_t, *blkdev.MemDisk_t) {
	const bytesPerSector = blkdev.SectorSize
	const sectorsPerCluster = 1
	const numFats = 2

	dev := blkdev.NewMemDisk(totalSectors)

	boot := make([]byte, bytesPerSector)
	binary.LittleEndian.PutUint16(boot[offBytesPerSector:], bytesPerSector)
	boot[offSectorsPerCluster] = sectorsPerCluster
	binary.LittleEndian.PutUint16(boot[offReservedSectors:], uint16(reservedSectors))
	boot[offNumFats] = numFats
	binary.LittleEndian.PutUint32(boot[offTotalSectors32:], uint32(totalSectors))
	binary.LittleEndian.PutUint32(boot[offFatSize32:], uint32(fatSizeSectors))
	binary.LittleEndian.PutUint16(boot[offFsInfoSector:], 1)
	var bootArr [bytesPerSector]byte
	copy(bootArr[:], boot)
	require.NoError(t, dev.WriteBlock(0, &bootArr))

	firstDataSector := reservedSectors + numFats*fatSizeSectors
	clusterCount := (totalSectors - firstDataSector) / sectorsPerCluster

	fi := make([]byte, bytesPerSector)
	writeFsInfo(fi, fsInfo{FreeCount: uint32(clusterCount - 1), NextFree: 3})
	var fiArr [bytesPerSector]byte
	copy(fiArr[:], fi)
	require.NoError(t, dev.WriteBlock(1, &fiArr))

	fatEntries := make([]byte, bytesPerSector)
	binary.LittleEndian.PutUint32(fatEntries[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatEntries[4:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatEntries[8:], 0x0FFFFFFF) // root, cluster 2, end of chain
	var fatArr [bytesPerSector]byte
	copy(fatArr[:], fatEntries)
	for copyIdx := 0; copyIdx < numFats; copyIdx++ {
		require.NoError(t, dev.WriteBlock(reservedSectors+copyIdx*fatSizeSectors, &fatArr))
	}

	var zero [bytesPerSector]byte
	require.NoError(t, dev.WriteBlock(firstDataSector, &zero))

	infoCache := blkcache.New(16, dev, 0, nil)
	dataCache := blkcache.New(16, dev, 0, nil)
	mgr, err := Open(infoCache, dataCache)
	require.NoError(t, err)
	return mgr, dev
}
