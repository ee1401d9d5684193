// Package fat32 opens a FAT32 volume (boot sector + extended BPB +
// FSInfo), owns cluster allocation/deallocation and the 8.3/long-name
// codec, and hands its FAT table and block caches to package vfile.
package fat32

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Boot sector field offsets.
const (
	offBytesPerSector     = 11
	offSectorsPerCluster  = 13
	offReservedSectors    = 14
	offNumFats            = 16
	offTotalSectors16     = 19
	offTotalSectors32     = 32
	offFatSize32          = 36
	offFsInfoSector       = 48
)

// FSInfo field offsets and signatures.
const (
	fsInfoLeadSig  = 0x41615252
	fsInfoStructSig = 0x61417272
	fsInfoTrailSig  = 0xAA550000
	offLeadSig     = 0
	offStructSig   = 484
	offFreeCount   = 488
	offNextFree    = 492
	offTrailSig    = 508
)

// bootSector is the subset of the boot sector + extended BPB this
// manager needs.
type bootSector struct {
	BytesPerSector    int
	SectorsPerCluster int
	ReservedSectors   int
	NumFats           int
	TotalSectors      int
	FatSize32         int
	FsInfoSector      int
}

func parseBootSector(b []byte) (bootSector, error) {
	if len(b) < 512 {
		return bootSector{}, errors.New("fat32: short boot sector")
	}
	bs := bootSector{
		BytesPerSector:    int(binary.LittleEndian.Uint16(b[offBytesPerSector:])),
		SectorsPerCluster: int(b[offSectorsPerCluster]),
		ReservedSectors:   int(binary.LittleEndian.Uint16(b[offReservedSectors:])),
		NumFats:           int(b[offNumFats]),
		FatSize32:         int(binary.LittleEndian.Uint32(b[offFatSize32:])),
		FsInfoSector:      int(binary.LittleEndian.Uint16(b[offFsInfoSector:])),
	}
	total16 := int(binary.LittleEndian.Uint16(b[offTotalSectors16:]))
	total32 := int(binary.LittleEndian.Uint32(b[offTotalSectors32:]))
	if total16 != 0 {
		bs.TotalSectors = total16
	} else {
		bs.TotalSectors = total32
	}
	if bs.BytesPerSector == 0 || bs.SectorsPerCluster == 0 || bs.NumFats == 0 || bs.FatSize32 == 0 {
		return bootSector{}, errors.New("fat32: implausible boot sector")
	}
	return bs, nil
}

type fsInfo struct {
	FreeCount uint32
	NextFree  uint32
}

func parseFsInfo(b []byte) (fsInfo, error) {
	if len(b) < 512 {
		return fsInfo{}, errors.New("fat32: short FSInfo sector")
	}
	if binary.LittleEndian.Uint32(b[offLeadSig:]) != fsInfoLeadSig {
		return fsInfo{}, errors.New("fat32: bad FSInfo lead signature")
	}
	if binary.LittleEndian.Uint32(b[offStructSig:]) != fsInfoStructSig {
		return fsInfo{}, errors.New("fat32: bad FSInfo struct signature")
	}
	if binary.LittleEndian.Uint32(b[offTrailSig:]) != fsInfoTrailSig {
		return fsInfo{}, errors.New("fat32: bad FSInfo trail signature")
	}
	return fsInfo{
		FreeCount: binary.LittleEndian.Uint32(b[offFreeCount:]),
		NextFree:  binary.LittleEndian.Uint32(b[offNextFree:]),
	}, nil
}

func writeFsInfo(b []byte, fi fsInfo) {
	binary.LittleEndian.PutUint32(b[offLeadSig:], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(b[offStructSig:], fsInfoStructSig)
	binary.LittleEndian.PutUint32(b[offTrailSig:], fsInfoTrailSig)
	binary.LittleEndian.PutUint32(b[offFreeCount:], fi.FreeCount)
	binary.LittleEndian.PutUint32(b[offNextFree:], fi.NextFree)
}
