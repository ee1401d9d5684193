package main

import (
	"debug/elf"
	"os"

	"github.com/pkg/errors"
)

// chkELF validates the binary at path well before it reaches the kernel's
// own in-memory loader: wrong class, wrong endianness, or a non-RISC-V
// machine type should fail with a clear message on the host, not deep
// inside package addrspace.
func chkELF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open init binary")
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return errors.Wrap(err, "not a valid ELF file")
	}
	if ef.Class != elf.ELFCLASS64 {
		return errors.New("init binary is not 64-bit")
	}
	if ef.Data != elf.ELFDATA2LSB {
		return errors.New("init binary is not little-endian")
	}
	if ef.Machine != elf.EM_RISCV {
		return errors.New("init binary is not RISC-V")
	}
	if ef.Type != elf.ET_EXEC {
		return errors.New("init binary is not an executable ELF")
	}
	hasLoad := false
	for _, p := range ef.Progs {
		if p.Type == elf.PT_LOAD {
			hasLoad = true
			break
		}
	}
	if !hasLoad {
		return errors.New("init binary has no loadable segments")
	}
	return nil
}
