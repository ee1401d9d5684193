package fat32

import "encoding/binary"

// Short directory entry field offsets within its 32 bytes.
const (
	sOffName       = 0
	sOffExt        = 8
	sOffAttr       = 11
	sOffCrtTime    = 14
	sOffCrtDate    = 16
	sOffLastAccess = 18
	sOffFstClusHi  = 20
	sOffWrtTime    = 22
	sOffWrtDate    = 24
	sOffFstClusLo  = 26
	sOffFileSize   = 28
)

// Long directory entry field offsets within its 32 bytes.
const (
	lOffOrder    = 0
	lOffName1    = 1  // 5 UTF-16 code units
	lOffAttr     = 11 // always AttrLongName
	lOffType     = 12
	lOffChecksum = 13
	lOffName2    = 14 // 6 UTF-16 code units
	lOffFstClusLo = 26 // always 0
	lOffName3    = 28 // 2 UTF-16 code units
)

// ShortDirent_t is a fully decoded short directory entry.
type ShortDirent_t struct {
	Name         ShortName_t
	Attr         byte
	FirstCluster int
	FileSize     uint32
}

// DecodeShortEntry reads a 32-byte short directory entry. Free returns
// true when the first byte is the deleted marker 0xE5; End returns true
// when the first byte is 0x00, meaning no further entries exist in this
// directory.
func DecodeShortEntry(b []byte) (d ShortDirent_t, free, end bool) {
	if b[0] == 0x00 {
		return d, false, true
	}
	if b[0] == 0xE5 {
		return d, true, false
	}
	copy(d.Name.Base[:], b[sOffName:sOffName+8])
	copy(d.Name.Ext[:], b[sOffExt:sOffExt+3])
	d.Attr = b[sOffAttr]
	hi := binary.LittleEndian.Uint16(b[sOffFstClusHi:])
	lo := binary.LittleEndian.Uint16(b[sOffFstClusLo:])
	d.FirstCluster = int(hi)<<16 | int(lo)
	d.FileSize = binary.LittleEndian.Uint32(b[sOffFileSize:])
	return d, false, false
}

// EncodeShortEntry writes d into the 32-byte entry at b.
func EncodeShortEntry(b []byte, d ShortDirent_t) {
	for i := range b[:ShortEntrySize] {
		b[i] = 0
	}
	copy(b[sOffName:sOffName+8], d.Name.Base[:])
	copy(b[sOffExt:sOffExt+3], d.Name.Ext[:])
	b[sOffAttr] = d.Attr
	binary.LittleEndian.PutUint16(b[sOffFstClusHi:], uint16(d.FirstCluster>>16))
	binary.LittleEndian.PutUint16(b[sOffFstClusLo:], uint16(d.FirstCluster&0xFFFF))
	binary.LittleEndian.PutUint32(b[sOffFileSize:], d.FileSize)
}

// MarkDeleted tombstones a short (or long) entry in place by writing the
// 0xE5 marker over its first byte, leaving the rest of the slot intact.
func MarkDeleted(b []byte) {
	b[0] = 0xE5
}

// DecodeLongEntry reads a 32-byte long-name fragment.
func DecodeLongEntry(b []byte) LongNameFragment {
	var f LongNameFragment
	f.Order = b[lOffOrder]
	f.Checksum = b[lOffChecksum]
	idx := 0
	for i := 0; i < 5; i++ {
		f.Chars[idx] = binary.LittleEndian.Uint16(b[lOffName1+i*2:])
		idx++
	}
	for i := 0; i < 6; i++ {
		f.Chars[idx] = binary.LittleEndian.Uint16(b[lOffName2+i*2:])
		idx++
	}
	for i := 0; i < 2; i++ {
		f.Chars[idx] = binary.LittleEndian.Uint16(b[lOffName3+i*2:])
		idx++
	}
	return f
}

// EncodeLongEntry writes f into the 32-byte entry at b.
func EncodeLongEntry(b []byte, f LongNameFragment) {
	for i := range b[:LongEntrySize] {
		b[i] = 0
	}
	b[lOffOrder] = f.Order
	b[lOffAttr] = AttrLongName
	b[lOffType] = 0
	b[lOffChecksum] = f.Checksum
	idx := 0
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(b[lOffName1+i*2:], f.Chars[idx])
		idx++
	}
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(b[lOffName2+i*2:], f.Chars[idx])
		idx++
	}
	binary.LittleEndian.PutUint16(b[lOffFstClusLo:], 0)
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint16(b[lOffName3+i*2:], f.Chars[idx])
		idx++
	}
}

// IsLastLongEntry reports whether order carries the last-fragment marker.
func IsLastLongEntry(order byte) bool { return order&lastLongEntry != 0 }

// LongEntryIndex strips the last-fragment marker, returning the
// 1-based fragment index.
func LongEntryIndex(order byte) int { return int(order & longNameMask) }
