package fat32

import (
	"strings"

	"github.com/sv39os/kernel/defs"
)

// ShortEntrySize and LongEntrySize are both 32, the width of every
// FAT32 directory entry regardless of kind.
const (
	ShortEntrySize = 32
	LongEntrySize  = 32
)

// AttrLongName is the reuse of reserved attribute bits that marks a
// directory entry as a long-name fragment rather than a short entry;
// the individual ATTR_* bits live in package defs.
const (
	AttrLongName = defs.ATTR_READ_ONLY | defs.ATTR_HIDDEN | defs.ATTR_SYSTEM | defs.ATTR_VOLUME_ID

	longNameMask  = 0x3F
	lastLongEntry = 0x40
)

// ShortName_t is the 8.3 name packed into a short directory entry:
// Base padded to 8 bytes, Ext padded to 3, both upper-cased and
// space-filled.
type ShortName_t struct {
	Base [8]byte
	Ext  [3]byte
}

// FormatShortName splits name on the last '.', upper-cases both halves,
// and pads each with spaces (0x20) to its fixed width, truncating a name
// or extension that runs long. It does not generate a "~1" collision
// suffix; that is the caller's job once it knows whether the exact name
// is already taken.
func FormatShortName(name string) ShortName_t {
	base := name
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base = name[:i]
		ext = name[i+1:]
	}
	var sn ShortName_t
	for i := range sn.Base {
		sn.Base[i] = ' '
	}
	for i := range sn.Ext {
		sn.Ext[i] = ' '
	}
	base = strings.ToUpper(base)
	ext = strings.ToUpper(ext)
	for i := 0; i < len(base) && i < 8; i++ {
		sn.Base[i] = base[i]
	}
	for i := 0; i < len(ext) && i < 3; i++ {
		sn.Ext[i] = ext[i]
	}
	return sn
}

// String renders a ShortName_t back as "BASE.EXT" (no extension if Ext
// is all spaces).
func (sn ShortName_t) String() string {
	base := strings.TrimRight(string(sn.Base[:]), " ")
	ext := strings.TrimRight(string(sn.Ext[:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// ShortNameChecksum computes the checksum FAT32 stores in every long
// entry fragment associated with a short entry, computed over the raw
// 11-byte 8.3 name.
func ShortNameChecksum(sn ShortName_t) byte {
	var sum byte
	raw := append(sn.Base[:], sn.Ext[:]...)
	for _, b := range raw {
		sum = ((sum >> 1) | (sum << 7)) + b
	}
	return sum
}

// LongNameFragment is one 13-UTF16-code-unit slice of a long file name,
// split 5/6/2 across three byte ranges within the entry exactly the way
// FAT32 lays it out.
type LongNameFragment struct {
	Order    byte // 1-based index, ORed with lastLongEntry on the final fragment
	Chars    [13]uint16
	Checksum byte
}

// SplitLongName encodes name as UTF-16 and chops it into 13-code-unit
// fragments ordered last-fragment-first, the order FAT32 directories
// store them in (so a reader walks backward from the highest Order down
// to 1 to reassemble the name). A terminating 0x0000 code unit follows
// the name if it fits in the final fragment's 13 slots; any slots beyond
// that are padded with 0xFFFF.
func SplitLongName(name string, checksum byte) []LongNameFragment {
	units := utf16Encode(name)
	var frags []LongNameFragment
	for off := 0; off < len(units) || off == 0; off += 13 {
		var f LongNameFragment
		f.Checksum = checksum
		for i := 0; i < 13; i++ {
			idx := off + i
			switch {
			case idx < len(units):
				f.Chars[i] = units[idx]
			case idx == len(units):
				f.Chars[i] = 0x0000
			default:
				f.Chars[i] = 0xFFFF
			}
		}
		frags = append(frags, f)
		if off+13 >= len(units) {
			break
		}
	}
	for i := range frags {
		frags[i].Order = byte(i + 1)
	}
	frags[len(frags)-1].Order |= lastLongEntry
	// Reverse so index 0 is the last (highest-order) fragment, matching
	// on-disk storage order.
	for i, j := 0, len(frags)-1; i < j; i, j = i+1, j-1 {
		frags[i], frags[j] = frags[j], frags[i]
	}
	return frags
}

// JoinLongName reassembles a name from fragments in on-disk order
// (highest Order first), stopping at the first 0x0000 terminator.
func JoinLongName(frags []LongNameFragment) string {
	ordered := make([]LongNameFragment, len(frags))
	copy(ordered, frags)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	var units []uint16
	for _, f := range ordered {
		for _, c := range f.Chars {
			if c == 0x0000 {
				return utf16Decode(units)
			}
			if c == 0xFFFF {
				continue
			}
			units = append(units, c)
		}
	}
	return utf16Decode(units)
}

func utf16Encode(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r < 0x10000 {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	return out
}

func utf16Decode(units []uint16) string {
	var b strings.Builder
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
			r := (rune(u-0xD800) << 10) | rune(units[i+1]-0xDC00)
			b.WriteRune(r + 0x10000)
			i++
			continue
		}
		b.WriteRune(rune(u))
	}
	return b.String()
}
