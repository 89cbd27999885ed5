package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

// DynClass says how the value of a dynamic entry is to be read.
type DynClass int

const (
	// DynUnknown tags are passed through untouched.
	DynUnknown DynClass = iota
	// DynValue holds an integer: a size, count or flag set.
	DynValue
	// DynPointer holds a virtual address.
	DynPointer
	// DynString holds an offset into the DT_STRTAB string table.
	DynString
	// DynIgnored holds nothing of interest, e.g. DT_NULL.
	DynIgnored
)

func (c DynClass) String() string {
	switch c {
	case DynValue:
		return "val"
	case DynPointer:
		return "ptr"
	case DynString:
		return "str"
	case DynIgnored:
		return "ignored"
	}
	return "unknown"
}

// Dyn is one dynamic section entry.
type Dyn struct {
	Tag elf.DynTag
	Val uint64
}

// Class returns how Val is interpreted for this tag.
func (d Dyn) Class() DynClass {
	switch d.Tag {
	case elf.DT_NULL, elf.DT_SYMBOLIC, elf.DT_TEXTREL, elf.DT_BIND_NOW:
		return DynIgnored
	case elf.DT_NEEDED, elf.DT_SONAME, elf.DT_RPATH, elf.DT_RUNPATH, elf.DT_AUXILIARY, elf.DT_FILTER:
		return DynString
	case elf.DT_PLTGOT, elf.DT_HASH, elf.DT_STRTAB, elf.DT_SYMTAB, elf.DT_RELA, elf.DT_INIT,
		elf.DT_FINI, elf.DT_REL, elf.DT_DEBUG, elf.DT_JMPREL, elf.DT_INIT_ARRAY, elf.DT_FINI_ARRAY,
		elf.DT_PREINIT_ARRAY, elf.DT_GNU_HASH, elf.DT_VERSYM, elf.DT_VERDEF, elf.DT_VERNEED:
		return DynPointer
	case elf.DT_PLTRELSZ, elf.DT_RELASZ, elf.DT_RELAENT, elf.DT_STRSZ, elf.DT_SYMENT, elf.DT_RELSZ,
		elf.DT_RELENT, elf.DT_PLTREL, elf.DT_INIT_ARRAYSZ, elf.DT_FINI_ARRAYSZ, elf.DT_PREINIT_ARRAYSZ,
		elf.DT_FLAGS, elf.DT_FLAGS_1, elf.DT_VERDEFNUM, elf.DT_VERNEEDNUM, elf.DT_RELACOUNT, elf.DT_RELCOUNT:
		return DynValue
	}
	return DynUnknown
}

// Known reports whether the tag has a defined meaning here.
func (d Dyn) Known() bool {
	return d.Class() != DynUnknown
}

// Ptr returns Val as an address. Only meaningful for DynPointer tags.
func (d Dyn) Ptr() models.VirtAddr {
	return models.VirtAddr(d.Val)
}

func (id Ident) dynSize() uint64 {
	if id.Is64() {
		return dyn64Size
	}
	return dyn32Size
}

// DynIter walks a dynamic table, stopping after the entry count or at
// DT_NULL, whichever comes first. The DT_NULL entry itself is not
// returned.
type DynIter struct {
	it  TableIter
	id  Ident
	cur Dyn
}

func (f File) dynIter(r models.FileRange, entsize uint64) (DynIter, error) {
	min := f.dynSize()
	if entsize == 0 {
		entsize = min
	}
	if entsize < min {
		return DynIter{}, errors.Wrapf(ErrMalformedTableEntry, "dynamic entry size %d < %d", entsize, min)
	}
	// trailing padding after the last whole entry is ignored
	tab, err := NewTable(f.buf, uint64(r.Off), entsize, int(r.Size/entsize))
	if err != nil {
		return DynIter{}, err
	}
	return DynIter{it: tab.Iter(), id: f.Ident}, nil
}

// Dynamic iterates the entries of a SHT_DYNAMIC section.
func (f File) Dynamic(s Section) (DynIter, error) {
	if s.Type != elf.SHT_DYNAMIC {
		return DynIter{}, errors.Wrapf(ErrMalformedTableEntry, "section %d has type %s, not a dynamic table", s.Index, s.Type)
	}
	it, err := f.dynIter(s.FileRange(), s.Entsize)
	return it, errors.Wrapf(err, "section %d", s.Index)
}

// DynamicProg iterates the entries of a PT_DYNAMIC segment, for images
// without section headers.
func (f File) DynamicProg(p Prog) (DynIter, error) {
	if p.Type != elf.PT_DYNAMIC {
		return DynIter{}, errors.Wrapf(ErrMalformedTableEntry, "segment has type %s, not a dynamic table", p.Type)
	}
	return f.dynIter(p.FileRange(), 0)
}

func (it *DynIter) Next() bool {
	if !it.it.Next() {
		return false
	}
	f := fields{id: it.id, p: it.it.Entry()}
	d := Dyn{Tag: elf.DynTag(f.sword()), Val: f.word()}
	if d.Tag == elf.DT_NULL {
		it.it.i = it.it.t.count
		return false
	}
	it.cur = d
	return true
}

func (it *DynIter) Dyn() Dyn {
	return it.cur
}

func (it *DynIter) Index() int {
	return it.it.Index()
}

func (it *DynIter) Reset() {
	it.it.Reset()
	it.cur = Dyn{}
}
