package main

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sv39os/kernel/klog"
)

var log = klog.For("kernelctl")

const (
	sectorSize        = 512
	reservedSectors    = 32
	numFats            = 2
	sectorsPerCluster  = 1
	fsInfoSectorOffset = 1
)

func mkfsCmd() *cobra.Command {
	var sizeMB int
	cmd := &cobra.Command{
		Use:   "mkfs <path>",
		Short: "format a fresh FAT32 image of the given size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mkfs(args[0], int64(sizeMB)<<20)
		},
	}
	cmd.Flags().IntVar(&sizeMB, "size-mb", 16, "image size in megabytes")
	return cmd
}

// mkfs writes a minimal FAT32 boot sector, FSInfo sector, two FAT copies
// (zeroed except for the reserved entries 0-1 and the root's
// end-of-chain entry), and a single-cluster root directory to a freshly
// created file of sizeBytes.
func mkfs(path string, sizeBytes int64) error {
	totalSectors := int(sizeBytes / sectorSize)
	if totalSectors <= reservedSectors+8 {
		return errors.New("mkfs: image too small")
	}

	fatSize32 := estimateFatSize(totalSectors)
	firstDataSector := reservedSectors + numFats*fatSize32
	dataSectors := totalSectors - firstDataSector
	clusterCount := dataSectors / sectorsPerCluster
	if clusterCount < 3 {
		return errors.New("mkfs: image too small for even one data cluster")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "mkfs: create")
	}
	defer f.Close()
	if err := f.Truncate(sizeBytes); err != nil {
		return errors.Wrap(err, "mkfs: truncate")
	}

	boot := make([]byte, sectorSize)
	binary.LittleEndian.PutUint16(boot[11:], sectorSize)
	boot[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:], reservedSectors)
	boot[16] = numFats
	binary.LittleEndian.PutUint16(boot[19:], 0) // force callers to read total_sectors32
	binary.LittleEndian.PutUint32(boot[32:], uint32(totalSectors))
	binary.LittleEndian.PutUint32(boot[36:], uint32(fatSize32))
	binary.LittleEndian.PutUint16(boot[48:], fsInfoSectorOffset)
	boot[510], boot[511] = 0x55, 0xAA
	if _, err := f.WriteAt(boot, 0); err != nil {
		return errors.Wrap(err, "mkfs: write boot sector")
	}

	fsinfo := make([]byte, sectorSize)
	binary.LittleEndian.PutUint32(fsinfo[0:], 0x41615252)
	binary.LittleEndian.PutUint32(fsinfo[484:], 0x61417272)
	binary.LittleEndian.PutUint32(fsinfo[488:], uint32(clusterCount-1)) // cluster 2 reserved for root
	binary.LittleEndian.PutUint32(fsinfo[492:], 3)
	binary.LittleEndian.PutUint32(fsinfo[508:], 0xAA550000)
	if _, err := f.WriteAt(fsinfo, fsInfoSectorOffset*sectorSize); err != nil {
		return errors.Wrap(err, "mkfs: write fsinfo")
	}

	// Root directory occupies cluster 2, marked end-of-chain in both FAT
	// copies; clusters 0 and 1 are reserved entries.
	fatEntries := make([]byte, fatSize32*sectorSize)
	binary.LittleEndian.PutUint32(fatEntries[0:], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatEntries[4:], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fatEntries[8:], 0x0FFFFFFF) // root's own entry, end of chain
	for copyIdx := 0; copyIdx < numFats; copyIdx++ {
		off := int64(reservedSectors+copyIdx*fatSize32) * sectorSize
		if _, err := f.WriteAt(fatEntries, off); err != nil {
			return errors.Wrap(err, "mkfs: write fat copy")
		}
	}

	rootSector := int64(firstDataSector) * sectorSize
	zeroCluster := make([]byte, sectorsPerCluster*sectorSize)
	if _, err := f.WriteAt(zeroCluster, rootSector); err != nil {
		return errors.Wrap(err, "mkfs: zero root cluster")
	}

	log.WithField("path", path).WithField("clusters", clusterCount).Info("formatted FAT32 image")
	return nil
}

// estimateFatSize computes a FAT size in sectors large enough to cover
// every cluster in the resulting data area, correcting twice for the
// space the FAT copies themselves consume.
func estimateFatSize(totalSectors int) int {
	guess := ((totalSectors/sectorsPerCluster)*4 + sectorSize - 1) / sectorSize
	for i := 0; i < 2; i++ {
		dataSectors := totalSectors - reservedSectors - numFats*guess
		clusters := dataSectors / sectorsPerCluster
		need := (clusters*4 + sectorSize - 1) / sectorSize
		if need < 1 {
			need = 1
		}
		guess = need
	}
	return guess
}
