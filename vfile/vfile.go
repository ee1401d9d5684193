// Package vfile implements the VFile abstraction: one open handle onto
// a FAT32 file or directory, its path resolution, and its byte-level
// read/write. Each handle carries the directory-entry slot it was found
// at so writes can rewrite that entry in place without a second lookup.
package vfile

import (
	"strings"
	"sync"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/defs"
	"github.com/sv39os/kernel/fat32"
)

// slot identifies one short directory entry's position: its containing
// sector and byte offset within that sector.
type slot struct {
	sector int
	offset int
}

// VFile_t is one open file or directory handle.
type VFile_t struct {
	mu sync.Mutex

	Name         string
	FirstCluster int
	Attr         byte
	FileSize     uint32

	parentDirSector int // starting sector of the directory entry's cluster
	shortSlot       slot
	longSlots       []slot

	mgr *fat32.Manager_t
}

// Root returns the VFile for the filesystem root: name "/", cluster 0,
// attribute DIRECTORY.
func Root(mgr *fat32.Manager_t) *VFile_t {
	return &VFile_t{Name: "/", FirstCluster: 0, Attr: defs.ATTR_DIRECTORY, mgr: mgr}
}

// IsDir reports whether this handle names a directory.
func (v *VFile_t) IsDir() bool { return v.Attr&defs.ATTR_DIRECTORY != 0 }

func (v *VFile_t) clusterChain() []int {
	if v.FirstCluster == 0 {
		return nil
	}
	return v.mgr.Fat.ChainAll(v.FirstCluster)
}

// ReadAt copies len(buf) bytes starting at offset into buf, bounded by
// FileSize for regular files, returning the number of bytes actually
// read -- 0 once offset reaches EOF.
func (v *VFile_t) ReadAt(offset int, buf []byte) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.IsDir() && offset >= int(v.FileSize) {
		return 0, 0
	}
	want := len(buf)
	if !v.IsDir() {
		if remain := int(v.FileSize) - offset; want > remain {
			want = remain
		}
	}
	if want <= 0 {
		return 0, 0
	}

	bpc := v.mgr.BytesPerCluster
	chain := v.clusterChain()
	done := 0
	for done < want {
		pos := offset + done
		idx := pos / bpc
		if idx >= len(chain) {
			break
		}
		within := pos % bpc
		sector := v.mgr.FirstSectorOfCluster(chain[idx]) + within/v.mgr.BytesPerSector
		secOff := within % v.mgr.BytesPerSector
		n := v.mgr.BytesPerSector - secOff
		if n > want-done {
			n = want - done
		}
		e := v.mgr.Data.Get(sector, blkcache.READ)
		e.Read(secOff, func(b []byte) { copy(buf[done:done+n], b[:n]) })
		e.Release()
		done += n
	}
	return done, 0
}

// WriteAt writes buf at offset, extending the cluster chain via the
// FAT32 manager as needed, and updates FileSize in the parent directory
// entry after the last write.
func (v *VFile_t) WriteAt(offset int, buf []byte) (int, defs.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(buf) == 0 {
		return 0, 0
	}
	bpc := v.mgr.BytesPerCluster
	needClusters := (offset + len(buf) + bpc - 1) / bpc
	if needClusters == 0 {
		needClusters = 1
	}

	chain := v.clusterChain()
	if v.FirstCluster == 0 {
		first, err := v.mgr.AllocCluster(needClusters)
		if err != nil {
			return 0, defs.ENOSPC
		}
		v.FirstCluster = first
		chain = v.mgr.Fat.ChainAll(first)
	} else if len(chain) < needClusters {
		extra := needClusters - len(chain)
		first, err := v.mgr.AllocCluster(extra)
		if err != nil {
			return 0, defs.ENOSPC
		}
		v.mgr.Fat.SetNext(chain[len(chain)-1], uint32(first))
		chain = v.mgr.Fat.ChainAll(v.FirstCluster)
	}

	done := 0
	for done < len(buf) {
		pos := offset + done
		idx := pos / bpc
		within := pos % bpc
		sector := v.mgr.FirstSectorOfCluster(chain[idx]) + within/v.mgr.BytesPerSector
		secOff := within % v.mgr.BytesPerSector
		n := v.mgr.BytesPerSector - secOff
		if n > len(buf)-done {
			n = len(buf) - done
		}
		e := v.mgr.Data.Get(sector, blkcache.WRITE)
		e.Modify(secOff, func(b []byte) { copy(b[:n], buf[done:done+n]) })
		e.Release()
		done += n
	}

	if !v.IsDir() {
		if end := uint32(offset + done); end > v.FileSize {
			v.FileSize = end
			v.syncShortEntryLocked()
		}
	}
	return done, 0
}

// Clear truncates the file to size 0, freeing every cluster in its
// chain.
func (v *VFile_t) Clear() defs.Err_t {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.FirstCluster != 0 {
		chain := v.clusterChain()
		v.mgr.DeallocCluster(chain)
		v.FirstCluster = 0
	}
	v.FileSize = 0
	v.syncShortEntryLocked()
	return 0
}

// syncShortEntryLocked rewrites this handle's own short directory entry
// with its current FirstCluster/FileSize. Caller holds v.mu.
func (v *VFile_t) syncShortEntryLocked() {
	if v.Name == "/" {
		return
	}
	e := v.mgr.Data.Get(v.shortSlot.sector, blkcache.WRITE)
	e.Modify(v.shortSlot.offset, func(b []byte) {
		d, _, _ := fat32.DecodeShortEntry(b)
		d.FirstCluster = v.FirstCluster
		d.FileSize = v.FileSize
		fat32.EncodeShortEntry(b, d)
	})
	e.Release()
}

// splitPath breaks a '/'-separated path into its non-empty components.
func splitPath(path string) []string {
	var parts []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return parts
}

// FindByPath walks components starting from v (normally the root),
// handling "." and ".." specially and matching case-sensitively on the
// reconstructed long name, falling back to the short name when an entry
// carries no long-name fragments.
func (v *VFile_t) FindByPath(path string) (*VFile_t, defs.Err_t) {
	cur := v
	for _, comp := range splitPath(path) {
		switch comp {
		case ".":
			continue
		case "..":
			if cur.Name == "/" {
				continue
			}
			parent, err := cur.child("..")
			if err != 0 {
				return nil, err
			}
			cur = parent
		default:
			child, err := cur.child(comp)
			if err != 0 {
				return nil, err
			}
			cur = child
		}
	}
	return cur, 0
}

// child looks up name as a direct entry of directory v.
func (v *VFile_t) child(name string) (*VFile_t, defs.Err_t) {
	if !v.IsDir() {
		return nil, defs.ENOTDIR
	}
	var found *VFile_t
	err := v.walkEntries(func(entry *VFile_t) (bool, defs.Err_t) {
		if entry.Name == name {
			found = entry
			return true, 0
		}
		return false, 0
	})
	if err != 0 {
		return nil, err
	}
	if found == nil {
		return nil, defs.ENOENT
	}
	return found, 0
}

// Ls returns every non-deleted child entry of directory v.
func (v *VFile_t) Ls() ([]*VFile_t, defs.Err_t) {
	if !v.IsDir() {
		return nil, defs.ENOTDIR
	}
	var out []*VFile_t
	err := v.walkEntries(func(entry *VFile_t) (bool, defs.Err_t) {
		out = append(out, entry)
		return false, 0
	})
	return out, err
}

// walkEntries scans v's directory cluster-by-cluster, reassembling each
// short entry's long-name fragments, and invokes visit for every live
// entry (not free, not end). visit returning true stops the walk early.
func (v *VFile_t) walkEntries(visit func(*VFile_t) (bool, defs.Err_t)) defs.Err_t {
	chain := v.clusterChain()
	if v.Name == "/" && v.FirstCluster == 0 {
		// An empty root has nothing to iterate.
		return 0
	}

	var pendingLong []fat32.LongNameFragment
	var pendingSlots []slot

	for _, c := range chain {
		base := v.mgr.FirstSectorOfCluster(c)
		for s := 0; s < v.mgr.SectorsPerCluster; s++ {
			sector := base + s
			e := v.mgr.Data.Get(sector, blkcache.READ)
			nEntries := v.mgr.BytesPerSector / fat32.ShortEntrySize
			for i := 0; i < nEntries; i++ {
				off := i * fat32.ShortEntrySize
				var entryBytes [fat32.ShortEntrySize]byte
				e.Read(off, func(b []byte) { copy(entryBytes[:], b[:fat32.ShortEntrySize]) })

				if entryBytes[0] == 0x00 {
					e.Release()
					return 0
				}
				if entryBytes[0] == 0xE5 {
					pendingLong = nil
					pendingSlots = nil
					continue
				}
				attr := entryBytes[11]
				if attr&fat32.AttrLongName == fat32.AttrLongName {
					frag := fat32.DecodeLongEntry(entryBytes[:])
					pendingLong = append(pendingLong, frag)
					pendingSlots = append(pendingSlots, slot{sector: sector, offset: off})
					continue
				}

				d, _, _ := fat32.DecodeShortEntry(entryBytes[:])
				name := d.Name.String()
				var longSlots []slot
				if len(pendingLong) > 0 {
					name = fat32.JoinLongName(pendingLong)
					longSlots = pendingSlots
				}
				pendingLong = nil
				pendingSlots = nil

				entry := &VFile_t{
					Name:            name,
					FirstCluster:    d.FirstCluster,
					Attr:            d.Attr,
					FileSize:        d.FileSize,
					parentDirSector: base,
					shortSlot:       slot{sector: sector, offset: off},
					longSlots:       longSlots,
					mgr:             v.mgr,
				}
				stop, err := visit(entry)
				if err != 0 {
					e.Release()
					return err
				}
				if stop {
					e.Release()
					return 0
				}
			}
			e.Release()
		}
	}
	return 0
}
