// Package blkdev defines the block device contract and two concrete
// implementations: an in-memory one for tests, and a host-file-backed
// one for the cmd/kernelctl harness.
package blkdev

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SectorSize is the fixed 512-byte sector size every BlockDevice speaks.
const SectorSize = 512

// BlockDevice is the synchronous sector read/write contract the VirtIO
// transport satisfies in a real boot; the core never talks to VirtIO
// directly.
type BlockDevice interface {
	ReadBlock(id int, buf *[SectorSize]byte) error
	WriteBlock(id int, buf *[SectorSize]byte) error
}

// MemDisk_t is an in-memory block device sized to hold nsectors sectors,
// used by tests.
type MemDisk_t struct {
	mu      sync.Mutex
	sectors [][SectorSize]byte
}

// NewMemDisk allocates a zero-filled in-memory disk of nsectors sectors.
func NewMemDisk(nsectors int) *MemDisk_t {
	return &MemDisk_t{sectors: make([][SectorSize]byte, nsectors)}
}

func (d *MemDisk_t) ReadBlock(id int, buf *[SectorSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id < 0 || id >= len(d.sectors) {
		return errors.Errorf("blkdev: sector %d out of range", id)
	}
	*buf = d.sectors[id]
	return nil
}

func (d *MemDisk_t) WriteBlock(id int, buf *[SectorSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id < 0 || id >= len(d.sectors) {
		return errors.Errorf("blkdev: sector %d out of range", id)
	}
	d.sectors[id] = *buf
	return nil
}

// FileDisk_t backs a BlockDevice with a host file, using unix.Pread/
// Pwrite for unbuffered, offset-addressed sector I/O.
type FileDisk_t struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFileDisk opens path (which must already exist and be sized to a
// whole number of sectors) as a BlockDevice.
func OpenFileDisk(path string) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "blkdev: open")
	}
	return &FileDisk_t{f: f}, nil
}

func (d *FileDisk_t) ReadBlock(id int, buf *[SectorSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := unix.Pread(int(d.f.Fd()), buf[:], int64(id)*SectorSize)
	if err != nil {
		return errors.Wrap(err, "blkdev: pread")
	}
	if n != SectorSize {
		return errors.Errorf("blkdev: short read of sector %d: %d bytes", id, n)
	}
	return nil
}

func (d *FileDisk_t) WriteBlock(id int, buf *[SectorSize]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := unix.Pwrite(int(d.f.Fd()), buf[:], int64(id)*SectorSize)
	if err != nil {
		return errors.Wrap(err, "blkdev: pwrite")
	}
	if n != SectorSize {
		return errors.Errorf("blkdev: short write of sector %d: %d bytes", id, n)
	}
	return nil
}

// Close closes the backing file.
func (d *FileDisk_t) Close() error {
	return d.f.Close()
}
