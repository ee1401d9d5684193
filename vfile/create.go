package vfile

import (
	"fmt"
	"strings"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/fat32"
)

// Create adds a new entry named name with attribute attr as a child of
// directory v: a run of long-name entries followed by a generated
// short-name entry, written into the first run of free slots (byte 0 ==
// 0x00 or 0xE5) in v's directory. A name collision on the 8.3 form is
// resolved by appending "~1", "~2", etc. A new directory additionally
// gets one allocated cluster holding "." and ".." entries.
func (v *VFile_t) Create(name string, attr byte) (*VFile_t, defs.Err_t) {
	if !v.IsDir() {
		return nil, defs.ENOTDIR
	}
	if _, err := v.child(name); err == 0 {
		return nil, defs.EEXIST
	}

	short := v.allocateShortName(name)
	checksum := fat32.ShortNameChecksum(short)
	longFrags := fat32.SplitLongName(name, checksum)

	needed := len(longFrags) + 1
	slots, err := v.reserveSlots(needed)
	if err != 0 {
		return nil, err
	}

	for i, frag := range longFrags {
		s := slots[i]
		e := v.mgr.Data.Get(s.sector, blkcache.WRITE)
		e.Modify(s.offset, func(b []byte) { fat32.EncodeLongEntry(b, frag) })
		e.Release()
	}

	shortSlot := slots[len(slots)-1]
	d := fat32.ShortDirent_t{Name: short, Attr: attr}

	if attr&defs.ATTR_DIRECTORY != 0 {
		first, aerr := v.mgr.AllocCluster(1)
		if aerr != nil {
			return nil, defs.ENOSPC
		}
		d.FirstCluster = first
		writeDotEntries(v.mgr, first, v.FirstCluster)
	}

	e := v.mgr.Data.Get(shortSlot.sector, blkcache.WRITE)
	e.Modify(shortSlot.offset, func(b []byte) { fat32.EncodeShortEntry(b, d) })
	e.Release()

	return &VFile_t{
		Name:         name,
		FirstCluster: d.FirstCluster,
		Attr:         d.Attr,
		FileSize:     0,
		shortSlot:    shortSlot,
		longSlots:    slots[:len(slots)-1],
		mgr:          v.mgr,
	}, 0
}

// writeDotEntries writes the "." and ".." short entries a freshly
// allocated directory cluster needs, pointing at itself and its parent.
func writeDotEntries(mgr *fat32.Manager_t, cluster, parentCluster int) {
	sector := mgr.FirstSectorOfCluster(cluster)
	dot := fat32.ShortDirent_t{Name: fat32.FormatShortName("."), Attr: defs.ATTR_DIRECTORY, FirstCluster: cluster}
	// FormatShortName("..") would split on the second dot and yield ".",
	// so the ".." name is built from "." with its second byte set.
	dotdotName := fat32.FormatShortName(".")
	dotdotName.Base[1] = '.'
	dotdot := fat32.ShortDirent_t{Name: dotdotName, Attr: defs.ATTR_DIRECTORY, FirstCluster: parentCluster}

	e := mgr.Data.Get(sector, blkcache.WRITE)
	e.Modify(0, func(b []byte) { fat32.EncodeShortEntry(b, dot) })
	e.Modify(fat32.ShortEntrySize, func(b []byte) { fat32.EncodeShortEntry(b, dotdot) })
	e.Release()
}

// allocateShortName derives an 8.3 short name for name, appending
// "~1", "~2", ... on collision with an existing sibling.
func (v *VFile_t) allocateShortName(name string) fat32.ShortName_t {
	base := fat32.FormatShortName(name)
	if !v.shortNameTaken(base) {
		return base
	}
	stem, ext := splitExt(name)
	for n := 1; n < 1000; n++ {
		candidate := fmt.Sprintf("%s~%d", truncate(stem, 8-len(fmt.Sprintf("~%d", n))), n)
		if ext != "" {
			candidate += "." + ext
		}
		sn := fat32.FormatShortName(candidate)
		if !v.shortNameTaken(sn) {
			return sn
		}
	}
	return base
}

func splitExt(name string) (stem, ext string) {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

func truncate(s string, n int) string {
	if n < 1 {
		n = 1
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (v *VFile_t) shortNameTaken(sn fat32.ShortName_t) bool {
	taken := false
	v.walkEntries(func(entry *VFile_t) (bool, defs.Err_t) {
		var d fat32.ShortDirent_t
		e := v.mgr.Data.Get(entry.shortSlot.sector, blkcache.READ)
		e.Read(entry.shortSlot.offset, func(b []byte) { d, _, _ = fat32.DecodeShortEntry(b) })
		e.Release()
		if d.Name == sn {
			taken = true
			return true, 0
		}
		return false, 0
	})
	return taken
}

// reserveSlots finds n consecutive free directory slots (first byte
// 0x00 or 0xE5) within v's existing cluster chain, extending the chain
// by one cluster if none is found.
func (v *VFile_t) reserveSlots(n int) ([]slot, defs.Err_t) {
	chain := v.clusterChain()
	if slots, ok := scanFreeSlots(v.mgr, chain, n); ok {
		return slots, 0
	}

	var first int
	var err error
	if v.FirstCluster == 0 {
		first, err = v.mgr.AllocCluster(1)
	} else {
		first, err = v.mgr.AllocCluster(1)
		if err == nil {
			v.mgr.Fat.SetNext(chain[len(chain)-1], uint32(first))
		}
	}
	if err != nil {
		return nil, defs.ENOSPC
	}
	if v.FirstCluster == 0 {
		v.FirstCluster = first
	}

	chain = v.mgr.Fat.ChainAll(v.FirstCluster)
	slots, ok := scanFreeSlots(v.mgr, chain, n)
	if !ok {
		return nil, defs.ENOSPC
	}
	return slots, 0
}

// scanFreeSlots walks chain's sectors looking for n consecutive entries
// whose first byte is 0x00 or 0xE5.
func scanFreeSlots(mgr *fat32.Manager_t, chain []int, n int) ([]slot, bool) {
	var run []slot
	for _, c := range chain {
		base := mgr.FirstSectorOfCluster(c)
		for s := 0; s < mgr.SectorsPerCluster; s++ {
			sector := base + s
			e := mgr.Data.Get(sector, blkcache.READ)
			nEntries := mgr.BytesPerSector / fat32.ShortEntrySize
			for i := 0; i < nEntries; i++ {
				off := i * fat32.ShortEntrySize
				var first byte
				e.Read(off, func(b []byte) { first = b[0] })
				if first == 0x00 || first == 0xE5 {
					run = append(run, slot{sector: sector, offset: off})
					if len(run) == n {
						e.Release()
						return run, true
					}
				} else {
					run = run[:0]
				}
			}
			e.Release()
		}
	}
	return nil, false
}

// Remove tombstones every long entry and the short entry covering this
// handle with 0xE5, then frees its cluster chain.
func (v *VFile_t) Remove() defs.Err_t {
	for _, s := range v.longSlots {
		e := v.mgr.Data.Get(s.sector, blkcache.WRITE)
		e.Modify(s.offset, func(b []byte) { fat32.MarkDeleted(b) })
		e.Release()
	}
	e := v.mgr.Data.Get(v.shortSlot.sector, blkcache.WRITE)
	e.Modify(v.shortSlot.offset, func(b []byte) { fat32.MarkDeleted(b) })
	e.Release()

	if v.FirstCluster != 0 {
		v.mgr.DeallocCluster(v.mgr.Fat.ChainAll(v.FirstCluster))
	}
	return 0
}
