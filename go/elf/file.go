// Package elf decodes ELF images held entirely in memory.
//
// Everything here is a view over the caller's buffer: headers, tables,
// names and notes are decoded on demand and slices returned by this
// package point into the buffer. Nothing is cached and nothing allocates
// on success, so a File may be shared freely between goroutines.
package elf

import (
	"bytes"
	"debug/elf"

	"github.com/pkg/errors"
)

// File is a parsed image: its header plus the buffer it was parsed from.
type File struct {
	Header
	buf []byte
}

// NewFile parses the header of buf. The buffer must not be modified while
// the File or anything derived from it is in use.
func NewFile(buf []byte) (File, error) {
	h, err := Parse(buf)
	if err != nil {
		return File{}, err
	}
	return File{Header: h, buf: buf}, nil
}

// Bytes returns the image buffer.
func (f File) Bytes() []byte {
	return f.buf
}

func (f File) progTable() (Table, error) {
	return NewTable(f.buf, uint64(f.Phoff), uint64(f.Phentsize), f.Phnum)
}

func (f File) sectTable() (Table, error) {
	return NewTable(f.buf, uint64(f.Shoff), uint64(f.Shentsize), f.Shnum)
}

// Progs iterates the program headers in file order.
func (f File) Progs() ProgIter {
	t, err := f.progTable()
	it := newProgIter(f.Ident, t, len(f.buf))
	it.err, it.cerr = err, err
	return it
}

// Prog decodes program header i.
func (f File) Prog(i int) (Prog, error) {
	t, err := f.progTable()
	if err != nil {
		return Prog{}, err
	}
	p, err := t.Entry(i)
	if err != nil {
		return Prog{}, errors.Wrap(err, "program header")
	}
	prog := f.decodeProg(p)
	return prog, errors.Wrapf(prog.validate(len(f.buf)), "program header %d", i)
}

// ProgData returns the file contents of p.
func (f File) ProgData(p Prog) ([]byte, error) {
	end, ok := span(uint64(p.Off), p.Filesz, len(f.buf))
	if !ok {
		return nil, errors.Wrapf(ErrOutOfBounds, "segment contents %s, buffer is 0x%x bytes", p.FileRange(), len(f.buf))
	}
	return f.buf[p.Off:end:end], nil
}

// Sections iterates the section headers in file order.
func (f File) Sections() SectionIter {
	t, err := f.sectTable()
	return SectionIter{it: t.Iter(), id: f.Ident, size: len(f.buf), err: err, cerr: err}
}

// Section decodes section header i.
func (f File) Section(i int) (Section, error) {
	t, err := f.sectTable()
	if err != nil {
		return Section{}, err
	}
	p, err := t.Entry(i)
	if err != nil {
		return Section{}, errors.Wrap(err, "section header")
	}
	s := f.decodeSection(p)
	s.Index = i
	return s, errors.Wrapf(s.validate(len(f.buf)), "section %d", i)
}

// SectionData returns the file contents of s; nil for SHT_NOBITS.
func (f File) SectionData(s Section) ([]byte, error) {
	if !s.InFile() {
		return nil, nil
	}
	if err := s.validate(len(f.buf)); err != nil {
		return nil, errors.Wrapf(err, "section %d", s.Index)
	}
	end := uint64(s.Off) + s.Size
	return f.buf[s.Off:end:end], nil
}

// Strings returns the string table held by s.
func (f File) Strings(s Section) (StringTable, error) {
	if s.Type != elf.SHT_STRTAB {
		return StringTable{}, errors.Wrapf(ErrMalformedTableEntry, "section %d has type %s, not a string table", s.Index, s.Type)
	}
	t, err := NewStringTable(f.buf, s.FileRange())
	return t, errors.Wrapf(err, "section %d", s.Index)
}

// SectionNames returns the section name string table. Images without one
// get an empty table.
func (f File) SectionNames() (StringTable, error) {
	if f.Shstrndx == 0 {
		return StringTable{}, nil
	}
	s, err := f.Section(f.Shstrndx)
	if err != nil {
		return StringTable{}, err
	}
	return f.Strings(s)
}

// SectionName resolves the name of s.
func (f File) SectionName(s Section) ([]byte, error) {
	names, err := f.SectionNames()
	if err != nil {
		return nil, err
	}
	if s.Name == 0 {
		return nil, nil
	}
	return names.Lookup(s.Name)
}

// SectionByName returns the first section called name.
func (f File) SectionByName(name string) (Section, bool, error) {
	names, err := f.SectionNames()
	if err != nil {
		return Section{}, false, err
	}
	it := f.Sections()
	for it.Next() {
		s := it.Section()
		if s.Name == 0 {
			continue
		}
		n, err := names.Lookup(s.Name)
		if err != nil {
			return Section{}, false, errors.Wrapf(err, "name of section %d", s.Index)
		}
		if string(n) == name {
			return s, true, nil
		}
	}
	return Section{}, false, it.Err()
}

// Symbols returns the symbol table held by s, which must be SHT_SYMTAB or
// SHT_DYNSYM.
func (f File) Symbols(s Section) (SymbolTable, error) {
	return f.symbolTable(s)
}

// SymbolsOfType returns the first symbol table of type typ, typically
// SHT_SYMTAB or SHT_DYNSYM. A missing table is not an error.
func (f File) SymbolsOfType(typ elf.SectionType) (SymbolTable, bool, error) {
	it := f.Sections()
	for it.Next() {
		if s := it.Section(); s.Type == typ {
			st, err := f.symbolTable(s)
			return st, err == nil, err
		}
	}
	return SymbolTable{}, false, it.Err()
}

// Interp returns the PT_INTERP path without its terminating NUL, or nil
// for a static image.
func (f File) Interp() ([]byte, error) {
	it := f.Progs()
	for it.Next() {
		p := it.Prog()
		if p.Type != elf.PT_INTERP {
			continue
		}
		data, err := f.ProgData(p)
		if err != nil {
			return nil, err
		}
		if n := bytes.IndexByte(data, 0); n >= 0 {
			data = data[:n:n]
		}
		return data, nil
	}
	return nil, it.Err()
}
