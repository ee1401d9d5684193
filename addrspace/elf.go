package addrspace

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/sv39os/kernel/mem"
	"github.com/sv39os/kernel/util"
)

// elfMagic is the four-byte ELF identification.
var elfMagic = [4]byte{0x7f, 'E', 'L', 'F'}

const (
	ptLoad   = 1
	pfX      = 1 << 0
	pfW      = 1 << 1
	pfR      = 1 << 2
	ehsize64 = 64
	phsize64 = 56
)

// programHeader is the subset of an Elf64_Phdr this freestanding loader
// needs; decoded by hand rather than via debug/elf, which assumes an
// io.ReaderAt over a real file and allocates far more than a kernel
// loading an already-in-memory image needs.
type programHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
}

// NewFromElf validates the ELF magic, maps each PT_LOAD segment as a
// framed user region with U plus the segment's derived RWX flags,
// copies its file bytes into the frames, then adds: a one-page
// unmapped guard, a fixed-size RW+U user stack, a 4-byte RW+U brk
// placeholder, and a RW trap-context page just below the trampoline.
// It returns the address space, the initial user stack pointer, and the
// entry point.
func NewFromElf(elfBytes []byte, fa *mem.FrameAllocator_t, trampolinePPN uintptr) (*AddrSpace_t, uintptr, uintptr, error) {
	if len(elfBytes) < ehsize64 || [4]byte(elfBytes[:4]) != elfMagic {
		return nil, 0, 0, errors.New("bad ELF magic")
	}
	if elfBytes[4] != 2 { // EI_CLASS == ELFCLASS64
		return nil, 0, 0, errors.New("not a 64-bit ELF")
	}
	if elfBytes[5] != 1 { // EI_DATA == ELFDATA2LSB
		return nil, 0, 0, errors.New("not little-endian")
	}

	entry := binary.LittleEndian.Uint64(elfBytes[24:32])
	phoff := binary.LittleEndian.Uint64(elfBytes[32:40])
	phentsize := binary.LittleEndian.Uint16(elfBytes[54:56])
	phnum := binary.LittleEndian.Uint16(elfBytes[56:58])

	as, ok := mkEmpty(fa)
	if !ok {
		return nil, 0, 0, errors.New("out of frames for page table root")
	}
	as.mapTrampoline(trampolinePPN)

	var maxVpn uintptr
	for i := uint16(0); i < phnum; i++ {
		off := phoff + uint64(i)*uint64(phentsize)
		if off+phsize64 > uint64(len(elfBytes)) {
			return nil, 0, 0, errors.New("truncated program header table")
		}
		ph := parsePhdr(elfBytes[off:])
		if ph.Type != ptLoad {
			continue
		}
		perms := mem.PTE_U
		if ph.Flags&pfR != 0 {
			perms |= mem.PTE_R
		}
		if ph.Flags&pfW != 0 {
			perms |= mem.PTE_W
		}
		if ph.Flags&pfX != 0 {
			perms |= mem.PTE_X
		}
		startVa := uintptr(ph.Vaddr) &^ mem.PGOFFSET
		endVa := util.Roundup(uintptr(ph.Vaddr)+uintptr(ph.Memsz), uintptr(mem.PGSIZE))
		startVpn := startVa >> mem.PGSHIFT
		npages := int((endVa - startVa) >> mem.PGSHIFT)

		fileEnd := ph.Offset + ph.Filesz
		if fileEnd > uint64(len(elfBytes)) {
			return nil, 0, 0, errors.New("segment file range out of bounds")
		}
		content := elfBytes[ph.Offset:fileEnd]
		// content begins mid-page if Vaddr wasn't page-aligned; pad so
		// pushFramed's page-relative copy lines up.
		pad := int(uintptr(ph.Vaddr) & mem.PGOFFSET)
		padded := make([]byte, pad+len(content))
		copy(padded[pad:], content)

		if _, err := as.pushFramed(startVpn, npages, perms, padded); err != nil {
			return nil, 0, 0, err
		}
		if endVpn := startVpn + uintptr(npages); endVpn > maxVpn {
			maxVpn = endVpn
		}
	}

	// guard page
	guardVpn := maxVpn
	// user stack
	stackVpn := guardVpn + 1
	stackPages := USER_STACK_SIZE / mem.PGSIZE
	if _, err := as.pushFramed(stackVpn, stackPages, mem.PTE_R|mem.PTE_W|mem.PTE_U, nil); err != nil {
		return nil, 0, 0, err
	}
	userSp := (stackVpn + uintptr(stackPages)) << mem.PGSHIFT

	// brk placeholder: one page, heap bottom recorded for Brk()
	brkVpn := stackVpn + uintptr(stackPages)
	if _, err := as.pushFramed(brkVpn, 1, mem.PTE_R|mem.PTE_W|mem.PTE_U, nil); err != nil {
		return nil, 0, 0, err
	}
	as.HeapBottom = brkVpn << mem.PGSHIFT
	as.ProgramBrk = as.HeapBottom + 4

	// trap context page, just below the trampoline, RW kernel-only
	trapCtxVpn := uintptr(TRAP_CONTEXT_BASE) >> mem.PGSHIFT
	if _, err := as.pushFramed(trapCtxVpn, 1, mem.PTE_R|mem.PTE_W, nil); err != nil {
		return nil, 0, 0, err
	}

	return as, userSp, uintptr(entry), nil
}

func parsePhdr(b []byte) programHeader {
	return programHeader{
		Type:   binary.LittleEndian.Uint32(b[0:4]),
		Flags:  binary.LittleEndian.Uint32(b[4:8]),
		Offset: binary.LittleEndian.Uint64(b[8:16]),
		Vaddr:  binary.LittleEndian.Uint64(b[16:24]),
		Filesz: binary.LittleEndian.Uint64(b[32:40]),
		Memsz:  binary.LittleEndian.Uint64(b[40:48]),
	}
}
