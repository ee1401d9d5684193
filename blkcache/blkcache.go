// Package blkcache implements the bounded block cache: at most one live
// cache entry per block id, FIFO eviction among entries with no
// outstanding external references, and a coarse per-entry reader-writer
// lock, with a dirty entry flushed back to disk as soon as its last
// reference is released.
package blkcache

import (
	"sync"

	"github.com/sv39os/kernel/blkdev"
	"github.com/sv39os/kernel/klog"
	"github.com/sv39os/kernel/metrics"
)

var log = klog.For("blkcache")

// DefaultCapacity is the default number of entries a Cache_t holds
// before it must evict.
const DefaultCapacity = 10

// Mode_t distinguishes the convenience READ accessor from WRITE; both
// load the sector from the device on a miss.
type Mode_t int

const (
	READ Mode_t = iota
	WRITE
)

// Entry_t is one cached 512-byte sector.
type Entry_t struct {
	sync.RWMutex
	BlockID  int
	Buf      [blkdev.SectorSize]byte
	Modified bool

	c    *Cache_t
	refs int32
}

// Read invokes fn with the bytes starting at offset, under a shared
// lock.
func (e *Entry_t) Read(offset int, fn func([]byte)) {
	e.RLock()
	defer e.RUnlock()
	fn(e.Buf[offset:])
}

// Modify invokes fn with the bytes starting at offset under an
// exclusive lock and marks the entry dirty.
func (e *Entry_t) Modify(offset int, fn func([]byte)) {
	e.Lock()
	defer e.Unlock()
	fn(e.Buf[offset:])
	e.Modified = true
}

// Sync writes the entry back to disk if dirty.
func (e *Entry_t) Sync() error {
	e.Lock()
	defer e.Unlock()
	return e.syncLocked()
}

func (e *Entry_t) syncLocked() error {
	if !e.Modified {
		return nil
	}
	if err := e.c.dev.WriteBlock(e.c.startSector+e.BlockID, &e.Buf); err != nil {
		return err
	}
	e.Modified = false
	e.c.metrics.IncFlush()
	return nil
}

// Release drops the caller's reference. If this was the last reference
// and the entry is dirty, it is flushed immediately.
func (e *Entry_t) Release() {
	e.c.mu.Lock()
	e.refs--
	refs := e.refs
	e.c.mu.Unlock()
	if refs == 0 {
		e.Sync()
	}
}

// Cache_t is a bounded FIFO of cached sectors keyed by block id, backed
// by dev with logical block ids offset by startSector (so a cache can
// address a partition relative to its own start).
type Cache_t struct {
	mu       sync.Mutex
	capacity int
	order    []*Entry_t // FIFO order, oldest first
	byID     map[int]*Entry_t

	dev         blkdev.BlockDevice
	startSector int
	metrics     *metrics.CacheMetrics
}

// New constructs a cache manager of the given capacity.
func New(capacity int, dev blkdev.BlockDevice, startSector int, m *metrics.CacheMetrics) *Cache_t {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache_t{
		capacity:    capacity,
		byID:        make(map[int]*Entry_t),
		dev:         dev,
		startSector: startSector,
		metrics:     m,
	}
}

// Get returns the cache entry for blockID, loading it from the device on
// a miss. If the cache is full, the first entry with no outstanding
// external references is evicted; if none exists, Get panics, since that
// indicates a resource-holder leak.
func (c *Cache_t) Get(blockID int, mode Mode_t) *Entry_t {
	c.mu.Lock()
	if e, ok := c.byID[blockID]; ok {
		e.refs++
		c.mu.Unlock()
		c.metrics.IncHit()
		return e
	}
	c.metrics.IncMiss()

	if len(c.order) >= c.capacity {
		if !c.evictLocked() {
			c.mu.Unlock()
			log.WithField("capacity", c.capacity).Fatal("block cache exhausted: no evictable entry")
		}
	}

	e := &Entry_t{BlockID: blockID, c: c, refs: 1}
	c.byID[blockID] = e
	c.order = append(c.order, e)
	c.mu.Unlock()

	if err := c.dev.ReadBlock(c.startSector+blockID, &e.Buf); err != nil {
		log.WithError(err).WithField("block", blockID).Fatal("block read failed")
	}
	return e
}

// evictLocked removes the first zero-reference entry from the FIFO,
// syncing it if dirty. Caller holds c.mu.
func (c *Cache_t) evictLocked() bool {
	for i, e := range c.order {
		if e.refs == 0 {
			e.syncLocked()
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			delete(c.byID, e.BlockID)
			c.metrics.IncEvict()
			return true
		}
	}
	return false
}

// FlushAll drops every entry, forcing a write-back of anything dirty.
func (c *Cache_t) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.order {
		e.Sync()
	}
	c.order = nil
	c.byID = make(map[int]*Entry_t)
}
