// Package fat implements the FAT table: cluster chain walk, allocation
// scan and free, reading/writing both on-disk copies through the block
// cache's "info" manager.
package fat

import (
	"encoding/binary"

	"github.com/sv39os/kernel/blkcache"
)

// EntrySize is the width in bytes of one FAT32 cluster entry.
const EntrySize = 4

// EndOfChain is the smallest value a chain-terminating entry may hold.
const EndOfChain = 0x0FFFFFF8

// entryMask strips the reserved top 4 bits FAT32 entries carry.
const entryMask = 0x0FFFFFFF

// Table_t is a FAT table spanning two on-disk copies.
type Table_t struct {
	info                   *blkcache.Cache_t
	fat1Sector, fat2Sector int
	bytesPerSector         int
	nEntries               int
}

// New constructs a Table_t. fat1Sector/fat2Sector are absolute sector
// numbers (relative to the info cache's own start_sector) of the start
// of each FAT copy.
func New(info *blkcache.Cache_t, fat1Sector, fat2Sector, bytesPerSector, nEntries int) *Table_t {
	return &Table_t{info: info, fat1Sector: fat1Sector, fat2Sector: fat2Sector, bytesPerSector: bytesPerSector, nEntries: nEntries}
}

func (t *Table_t) locate(c int) (sector, off int) {
	byteOff := c * EntrySize
	return byteOff / t.bytesPerSector, byteOff % t.bytesPerSector
}

// Get returns the raw entry value for cluster c: 0 means free,
// >= EndOfChain means this cluster terminates its chain, otherwise it is
// the successor cluster number.
func (t *Table_t) Get(c int) uint32 {
	sector, off := t.locate(c)
	e := t.info.Get(t.fat1Sector+sector, blkcache.READ)
	var v uint32
	e.Read(off, func(b []byte) { v = binary.LittleEndian.Uint32(b[:4]) & entryMask })
	e.Release()
	return v
}

// SetNext writes next into cluster c's entry in both FAT copies.
func (t *Table_t) SetNext(c int, next uint32) {
	sector, off := t.locate(c)
	for _, base := range [2]int{t.fat1Sector, t.fat2Sector} {
		e := t.info.Get(base+sector, blkcache.WRITE)
		e.Modify(off, func(b []byte) { binary.LittleEndian.PutUint32(b[:4], next&entryMask) })
		e.Release()
	}
}

// SetEnd marks cluster c as the last in its chain.
func (t *Table_t) SetEnd(c int) {
	t.SetNext(c, 0x0FFFFFFF)
}

// NextFreeCluster scans linearly from hint+1, modulo nEntries, for the
// first free (zero) entry, skipping clusters 0 and 1 which are reserved.
// It returns 0 if the table has no free cluster.
func (t *Table_t) NextFreeCluster(hint int) int {
	for i := 1; i <= t.nEntries; i++ {
		c := (hint + i) % t.nEntries
		if c < 2 {
			continue
		}
		if t.Get(c) == 0 {
			return c
		}
	}
	return 0
}

// CountChain walks the chain starting at c until a terminator, returning
// the number of clusters visited.
func (t *Table_t) CountChain(c int) int {
	n := 0
	for c != 0 && uint32(c) < EndOfChain {
		n++
		c = int(t.Get(c))
	}
	return n
}

// ChainAll returns every cluster number in the chain starting at c.
func (t *Table_t) ChainAll(c int) []int {
	var chain []int
	for c != 0 && uint32(c) < EndOfChain {
		chain = append(chain, c)
		c = int(t.Get(c))
	}
	return chain
}
