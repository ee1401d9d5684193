package fat32

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sv39os/kernel/blkcache"
	"github.com/sv39os/kernel/fat"
	"github.com/sv39os/kernel/klog"
)

var log = klog.For("fat32")

// Manager_t is the opened FAT32 volume: cluster arithmetic, name
// mangling, and FSInfo-backed allocation. Info holds FAT/FSInfo/
// directory blocks; Data holds file content blocks; both are block
// caches sharing a start_sector offset.
type Manager_t struct {
	Info *blkcache.Cache_t
	Data *blkcache.Cache_t
	Fat  *fat.Table_t

	BytesPerSector    int
	SectorsPerCluster int
	BytesPerCluster   int
	FirstDataSector   int
	TotalClusters     int
	fsInfoSector      int

	fsMu      sync.Mutex
	freeCount uint32
	freeHint  uint32
}

// Open reads the boot sector and extended BPB from sector 0 of info,
// verifies the FSInfo signature at the indicated info sector, and
// computes first_data_sector and bytes_per_cluster.
func Open(info, data *blkcache.Cache_t) (*Manager_t, error) {
	bootE := info.Get(0, blkcache.READ)
	var raw [512]byte
	bootE.Read(0, func(b []byte) { copy(raw[:], b[:512]) })
	bootE.Release()

	bs, err := parseBootSector(raw[:])
	if err != nil {
		return nil, err
	}

	fiE := info.Get(bs.FsInfoSector, blkcache.READ)
	var fiRaw [512]byte
	fiE.Read(0, func(b []byte) { copy(fiRaw[:], b[:512]) })
	fiE.Release()
	fi, err := parseFsInfo(fiRaw[:])
	if err != nil {
		return nil, err
	}

	firstDataSector := bs.ReservedSectors + bs.NumFats*bs.FatSize32
	nEntries := (bs.FatSize32 * bs.BytesPerSector) / fat.EntrySize
	fat1 := bs.ReservedSectors
	fat2 := fat1 + bs.FatSize32
	totalClusters := (bs.TotalSectors-firstDataSector)/bs.SectorsPerCluster + 2

	m := &Manager_t{
		Info:              info,
		Data:              data,
		Fat:               fat.New(info, fat1, fat2, bs.BytesPerSector, nEntries),
		BytesPerSector:    bs.BytesPerSector,
		SectorsPerCluster: bs.SectorsPerCluster,
		BytesPerCluster:   bs.BytesPerSector * bs.SectorsPerCluster,
		FirstDataSector:   firstDataSector,
		TotalClusters:     totalClusters,
		fsInfoSector:      bs.FsInfoSector,
		freeCount:         fi.FreeCount,
		freeHint:          fi.NextFree,
	}
	log.WithField("bytes_per_cluster", m.BytesPerCluster).Debug("fat32 volume opened")
	return m, nil
}

// FirstSectorOfCluster returns the first sector number of cluster c.
func (m *Manager_t) FirstSectorOfCluster(c int) int {
	return (c-2)*m.SectorsPerCluster + m.FirstDataSector
}

func (m *Manager_t) zeroCluster(c int) {
	first := m.FirstSectorOfCluster(c)
	for s := 0; s < m.SectorsPerCluster; s++ {
		e := m.Data.Get(first+s, blkcache.WRITE)
		e.Modify(0, func(b []byte) {
			for i := range b {
				b[i] = 0
			}
		})
		e.Release()
	}
}

// AllocCluster allocates a chain of n clusters, linking each to the
// next and zeroing it as it is linked, except the last cluster, which is
// marked end-of-chain and zeroed after the loop. FSInfo's free_count and
// first_free_hint are updated and both caches are flushed. It returns
// the first cluster of the new chain.
func (m *Manager_t) AllocCluster(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("fat32: alloc_cluster: n must be positive")
	}
	m.fsMu.Lock()
	defer m.fsMu.Unlock()

	if uint32(n) > m.freeCount {
		return 0, errors.New("fat32: out of free clusters")
	}

	hint := int(m.freeHint)
	first := 0
	prev := 0
	for i := 0; i < n; i++ {
		c := m.Fat.NextFreeCluster(hint)
		if c == 0 {
			return 0, errors.New("fat32: out of free clusters")
		}
		if i == 0 {
			first = c
		} else {
			m.Fat.SetNext(prev, uint32(c))
			m.zeroCluster(prev)
		}
		prev = c
		hint = c
	}
	m.Fat.SetEnd(prev)
	m.zeroCluster(prev)

	m.freeCount -= uint32(n)
	m.freeHint = uint32(prev)
	m.flushFSInfoLocked()
	return first, nil
}

// DeallocCluster frees every cluster in cs and updates free_count. If the
// smallest freed cluster is below the current hint and above 2, the hint
// rewinds to cs[0]-1 -- cs[0], the first element of the slice as the
// caller passed it, not the smallest freed cluster. The result is
// clamped at 2 so it can never point below the first usable cluster.
func (m *Manager_t) DeallocCluster(cs []int) {
	if len(cs) == 0 {
		return
	}
	m.fsMu.Lock()
	defer m.fsMu.Unlock()

	smallest := cs[0]
	for _, c := range cs {
		m.Fat.SetNext(c, 0)
		if c < smallest {
			smallest = c
		}
	}
	m.freeCount += uint32(len(cs))
	if uint32(smallest) < m.freeHint && smallest > 2 {
		hint := cs[0] - 1
		if hint < 2 {
			hint = 2
		}
		m.freeHint = uint32(hint)
	}
	m.flushFSInfoLocked()
}

// FreeClusters reports the FSInfo-cached count of free clusters.
func (m *Manager_t) FreeClusters() uint32 {
	m.fsMu.Lock()
	defer m.fsMu.Unlock()
	return m.freeCount
}

// CountFreeClusters independently rescans every cluster entry in the
// FAT and reports how many are free. Unlike FreeClusters, which just
// returns the cached FSInfo value, this walks the whole table and is
// meant for consistency checking, not the hot allocation path.
func (m *Manager_t) CountFreeClusters() uint32 {
	var n uint32
	for c := 2; c < m.TotalClusters; c++ {
		if m.Fat.Get(c) == 0 {
			n++
		}
	}
	return n
}

func (m *Manager_t) flushFSInfoLocked() {
	e := m.Info.Get(m.fsInfoSector, blkcache.WRITE)
	e.Modify(0, func(b []byte) {
		writeFsInfo(b, fsInfo{FreeCount: m.freeCount, NextFree: m.freeHint})
	})
	e.Release()
}
