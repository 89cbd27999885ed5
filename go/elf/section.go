package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

// Section is a decoded section header.
type Section struct {
	Index     int
	Name      uint32
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      models.VirtAddr
	Off       models.FileOff
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// InFile reports whether the section has contents in the image.
// SHT_NOBITS sections such as .bss only take up memory.
func (s Section) InFile() bool {
	return s.Type != elf.SHT_NOBITS && s.Type != elf.SHT_NULL
}

func (s Section) FileRange() models.FileRange {
	if !s.InFile() {
		return models.FileRange{Off: s.Off}
	}
	return models.FileRange{Off: s.Off, Size: s.Size}
}

func (id Ident) decodeSection(p []byte) Section {
	f := fields{id: id, p: p}
	var s Section
	s.Name = f.u32()
	s.Type = elf.SectionType(f.u32())
	s.Flags = elf.SectionFlag(f.word())
	s.Addr = models.VirtAddr(f.word())
	s.Off = models.FileOff(f.word())
	s.Size = f.word()
	s.Link = f.u32()
	s.Info = f.u32()
	s.Addralign = f.word()
	s.Entsize = f.word()
	return s
}

func (s Section) validate(size int) error {
	if !s.InFile() {
		return nil
	}
	if _, ok := span(uint64(s.Off), s.Size, size); !ok {
		return errors.Wrapf(ErrOutOfBounds, "contents %s, buffer is 0x%x bytes", s.FileRange(), size)
	}
	return nil
}

// stride returns the entry size to use for a table section holding
// entries of at least min bytes, and the entry count.
func (s Section) stride(min uint64) (uint64, int, error) {
	stride := s.Entsize
	if stride == 0 {
		stride = min
	}
	if stride < min {
		return 0, 0, errors.Wrapf(ErrMalformedTableEntry, "section %d entry size %d < %d", s.Index, stride, min)
	}
	if s.Size%stride != 0 {
		return 0, 0, errors.Wrapf(ErrMalformedTableEntry, "section %d size 0x%x is not a multiple of entry size %d", s.Index, s.Size, stride)
	}
	return stride, int(s.Size / stride), nil
}

// SectionIter walks the section header table, decoding and validating
// each entry.
type SectionIter struct {
	it   TableIter
	id   Ident
	size int
	cur  Section
	err  error
	cerr error
}

func (it *SectionIter) Next() bool {
	if it.err != nil || !it.it.Next() {
		return false
	}
	s := it.id.decodeSection(it.it.Entry())
	s.Index = it.it.Index()
	if err := s.validate(it.size); err != nil {
		it.err = errors.Wrapf(err, "section %d", s.Index)
		return false
	}
	it.cur = s
	return true
}

func (it *SectionIter) Section() Section {
	return it.cur
}

func (it *SectionIter) Len() int {
	return it.it.t.Len()
}

func (it *SectionIter) Err() error {
	return it.err
}

func (it *SectionIter) Reset() {
	it.err = it.cerr
	it.it.Reset()
	it.cur = Section{}
}
