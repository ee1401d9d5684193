package vfile

import "github.com/sv39os/kernel/defs"

// Stat_t is the fixed binary structure stat() flattens a VFile into.
type Stat_t struct {
	Ino   uint64
	Mode  uint32
	Size  uint32
	Attr  byte
}

// Stat flattens v into a Stat_t. Ino is synthesized from the starting
// cluster, since FAT32 has no inode numbers of its own.
func (v *VFile_t) Stat() Stat_t {
	return Stat_t{
		Ino:  uint64(v.FirstCluster),
		Mode: uint32(v.Attr),
		Size: v.FileSize,
		Attr: v.Attr,
	}
}

// Dirent64_t mirrors the getdents64 on-disk record: a fixed header
// (d_ino, d_off, d_reclen, d_type) followed by a NUL-terminated name,
// padded so d_reclen is a multiple of 8.
type Dirent64_t struct {
	Ino    uint64
	Off    int64
	Reclen uint16
	Type   byte
	Name   string
}

const direntHeaderSize = 8 + 8 + 2 + 1 + 1 // ino + off + reclen + type + pad

// direntType maps a FAT32 attribute byte to the getdents64 d_type value.
func direntType(attr byte) byte {
	const (
		dtDir = 4
		dtReg = 8
	)
	if attr&defs.ATTR_DIRECTORY != 0 {
		return dtDir
	}
	return dtReg
}

// DirentInfo builds one Dirent64_t for entry at the given stream offset.
func DirentInfo(entry *VFile_t, off int64) Dirent64_t {
	reclen := direntHeaderSize + len(entry.Name) + 1
	reclen = (reclen + 7) &^ 7
	return Dirent64_t{
		Ino:    uint64(entry.FirstCluster),
		Off:    off,
		Reclen: uint16(reclen),
		Type:   direntType(entry.Attr),
		Name:   entry.Name,
	}
}

// Encode writes d into buf in getdents64 wire format, returning the
// number of bytes used (d.Reclen), or 0 if buf is too small.
func (d Dirent64_t) Encode(buf []byte) int {
	if len(buf) < int(d.Reclen) {
		return 0
	}
	putU64(buf[0:8], d.Ino)
	putI64(buf[8:16], d.Off)
	putU16(buf[16:18], d.Reclen)
	buf[18] = d.Type
	n := copy(buf[19:], d.Name)
	buf[19+n] = 0
	return int(d.Reclen)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putI64(b []byte, v int64) { putU64(b, uint64(v)) }

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
