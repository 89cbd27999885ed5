package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

// Reloc is a decoded REL or RELA entry. Kind is machine specific and is
// left for the caller to interpret. When HasAddend is false the addend is
// whatever the relocated location already holds.
type Reloc struct {
	Off       uint64
	Info      uint64
	Sym       uint32
	Kind      uint32
	Addend    int64
	HasAddend bool
}

// RelocIter walks a REL or RELA table. Iteration stops at the first entry
// whose symbol index is outside the bound symbol table; Err reports it.
type RelocIter struct {
	it      TableIter
	id      Ident
	machine elf.Machine
	rela    bool
	nsyms   int
	target  int
	cur     Reloc
	err     error
}

func (id Ident) relSize(rela bool) uint64 {
	switch {
	case id.Is64() && rela:
		return rela64Size
	case id.Is64():
		return rel64Size
	case rela:
		return rela32Size
	}
	return rel32Size
}

// RelocsAt makes a relocation iterator over r, for tables found through
// the dynamic section rather than a section header. entsize may be 0 to
// use the standard size; nsyms bounds symbol indices.
func (f File) RelocsAt(r models.FileRange, entsize uint64, rela bool, nsyms int) (RelocIter, error) {
	min := f.relSize(rela)
	if entsize == 0 {
		entsize = min
	}
	if entsize < min {
		return RelocIter{}, errors.Wrapf(ErrMalformedTableEntry, "relocation entry size %d < %d", entsize, min)
	}
	if r.Size%entsize != 0 {
		return RelocIter{}, errors.Wrapf(ErrMalformedTableEntry, "relocation table size 0x%x is not a multiple of %d", r.Size, entsize)
	}
	tab, err := NewTable(f.buf, uint64(r.Off), entsize, int(r.Size/entsize))
	if err != nil {
		return RelocIter{}, err
	}
	return RelocIter{
		it:      tab.Iter(),
		id:      f.Ident,
		machine: f.Machine,
		rela:    rela,
		nsyms:   nsyms,
		target:  -1,
	}, nil
}

// Relocs makes a relocation iterator over a SHT_REL or SHT_RELA section.
// Symbol indices are bounded by the symbol table named in its Link field.
func (f File) Relocs(s Section) (RelocIter, error) {
	var rela bool
	switch s.Type {
	case elf.SHT_RELA:
		rela = true
	case elf.SHT_REL:
	default:
		return RelocIter{}, errors.Wrapf(ErrMalformedTableEntry, "section %d has type %s, not a relocation table", s.Index, s.Type)
	}
	if err := s.validate(len(f.buf)); err != nil {
		return RelocIter{}, errors.Wrapf(err, "section %d", s.Index)
	}
	nsyms := 0
	if s.Link != 0 {
		link, err := f.Section(int(s.Link))
		if err != nil {
			return RelocIter{}, errors.Wrapf(err, "symbol table of section %d", s.Index)
		}
		syms, err := f.symbolTable(link)
		if err != nil {
			return RelocIter{}, errors.Wrapf(err, "symbol table of section %d", s.Index)
		}
		nsyms = syms.Len()
	}
	it, err := f.RelocsAt(s.FileRange(), s.Entsize, rela, nsyms)
	if err != nil {
		return RelocIter{}, errors.Wrapf(err, "section %d", s.Index)
	}
	if s.Flags&elf.SHF_INFO_LINK != 0 || f.Type == elf.ET_REL {
		it.target = int(s.Info)
	}
	return it, nil
}

// mips64Info undoes the MIPS64 little-endian r_info layout: a 32-bit
// symbol index followed by r_ssym and three one-byte types, in that order.
func mips64Info(info uint64) uint64 {
	return (info&0xffffffff)<<32 |
		(info>>56)&0xff |
		(info>>40)&0xff00 |
		(info>>24)&0xff0000 |
		(info>>8)&0xff000000
}

func (it *RelocIter) decode(p []byte) Reloc {
	f := fields{id: it.id, p: p}
	var r Reloc
	r.Off = f.word()
	r.Info = f.word()
	if it.rela {
		r.Addend = f.sword()
		r.HasAddend = true
	}
	if it.id.Is64() {
		if it.machine == elf.EM_MIPS && it.id.Data == elf.ELFDATA2LSB {
			r.Info = mips64Info(r.Info)
		}
		r.Sym = uint32(r.Info >> 32)
		r.Kind = uint32(r.Info)
	} else {
		r.Sym = uint32(r.Info >> 8)
		r.Kind = uint32(r.Info & 0xff)
	}
	return r
}

func (it *RelocIter) Next() bool {
	if it.err != nil || !it.it.Next() {
		return false
	}
	r := it.decode(it.it.Entry())
	if r.Sym != 0 && uint64(r.Sym) >= uint64(it.nsyms) {
		it.err = errors.Wrapf(ErrMalformedTableEntry, "relocation %d: symbol %d of %d", it.it.Index(), r.Sym, it.nsyms)
		return false
	}
	it.cur = r
	return true
}

func (it *RelocIter) Reloc() Reloc {
	return it.cur
}

func (it *RelocIter) Index() int {
	return it.it.Index()
}

func (it *RelocIter) Len() int {
	return it.it.t.Len()
}

// Rela reports whether entries carry an explicit addend.
func (it *RelocIter) Rela() bool {
	return it.rela
}

// Target returns the index of the section the relocations apply to, or
// -1 when they apply to the loaded image as a whole.
func (it *RelocIter) Target() int {
	return it.target
}

func (it *RelocIter) Err() error {
	return it.err
}

func (it *RelocIter) Reset() {
	it.err = nil
	it.it.Reset()
	it.cur = Reloc{}
}
