package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

// Prog is a decoded program header.
type Prog struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    models.FileOff
	Vaddr  models.VirtAddr
	Paddr  models.PhysAddr
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func (p Prog) FileRange() models.FileRange {
	return models.FileRange{Off: p.Off, Size: p.Filesz}
}

func (id Ident) decodeProg(p []byte) Prog {
	f := fields{id: id, p: p}
	var prog Prog
	prog.Type = elf.ProgType(f.u32())
	if id.Is64() {
		prog.Flags = elf.ProgFlag(f.u32())
		prog.Off = models.FileOff(f.u64())
		prog.Vaddr = models.VirtAddr(f.u64())
		prog.Paddr = models.PhysAddr(f.u64())
		prog.Filesz = f.u64()
		prog.Memsz = f.u64()
		prog.Align = f.u64()
	} else {
		prog.Off = models.FileOff(f.u32())
		prog.Vaddr = models.VirtAddr(f.u32())
		prog.Paddr = models.PhysAddr(f.u32())
		prog.Filesz = uint64(f.u32())
		prog.Memsz = uint64(f.u32())
		prog.Flags = elf.ProgFlag(f.u32())
		prog.Align = uint64(f.u32())
	}
	return prog
}

// validate checks the invariants every program header must hold against
// an image of size bytes.
func (p Prog) validate(size int) error {
	if p.Memsz < p.Filesz {
		return errors.Wrapf(ErrMalformedTableEntry, "memory size 0x%x < file size 0x%x", p.Memsz, p.Filesz)
	}
	if p.Align&(p.Align-1) != 0 {
		return errors.Wrapf(ErrMalformedTableEntry, "alignment 0x%x is not a power of two", p.Align)
	}
	if _, ok := span(uint64(p.Off), p.Filesz, size); !ok {
		return errors.Wrapf(ErrOutOfBounds, "contents %s, buffer is 0x%x bytes", p.FileRange(), size)
	}
	return nil
}

// ProgIter walks the program header table, decoding and validating each
// entry. Iteration stops at the first invalid entry; Err reports it.
type ProgIter struct {
	it   TableIter
	id   Ident
	size int
	cur  Prog
	err  error
	cerr error // construction error, survives Reset
}

func newProgIter(id Ident, t Table, size int) ProgIter {
	return ProgIter{it: t.Iter(), id: id, size: size}
}

func (it *ProgIter) Next() bool {
	if it.err != nil || !it.it.Next() {
		return false
	}
	p := it.id.decodeProg(it.it.Entry())
	if err := p.validate(it.size); err != nil {
		it.err = errors.Wrapf(err, "program header %d", it.it.Index())
		return false
	}
	it.cur = p
	return true
}

func (it *ProgIter) Prog() Prog {
	return it.cur
}

// Index returns the program header index of the current entry.
func (it *ProgIter) Index() int {
	return it.it.Index()
}

func (it *ProgIter) Len() int {
	return it.it.t.Len()
}

func (it *ProgIter) Err() error {
	return it.err
}

// Reset rewinds the iterator. A construction error is kept.
func (it *ProgIter) Reset() {
	it.err = it.cerr
	it.it.Reset()
	it.cur = Prog{}
}
