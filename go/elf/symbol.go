package elf

import (
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

// Symbol is a decoded symbol table entry. Name is an offset into the
// linked string table; 0 means the symbol has no name.
type Symbol struct {
	Name  uint32
	Value uint64
	Size  uint64
	Info  uint8
	Other uint8
	Shndx elf.SectionIndex
}

func (s Symbol) Bind() elf.SymBind {
	return elf.ST_BIND(s.Info)
}

func (s Symbol) Type() elf.SymType {
	return elf.ST_TYPE(s.Info)
}

func (s Symbol) Visibility() elf.SymVis {
	return elf.ST_VISIBILITY(s.Other)
}

func (s Symbol) Addr() models.VirtAddr {
	return models.VirtAddr(s.Value)
}

// Defined reports whether the symbol is defined in this image.
func (s Symbol) Defined() bool {
	return s.Shndx != elf.SHN_UNDEF
}

func (id Ident) decodeSymbol(p []byte) Symbol {
	f := fields{id: id, p: p}
	var s Symbol
	s.Name = f.u32()
	if id.Is64() {
		s.Info = f.u8()
		s.Other = f.u8()
		s.Shndx = elf.SectionIndex(f.u16())
		s.Value = f.u64()
		s.Size = f.u64()
	} else {
		s.Value = uint64(f.u32())
		s.Size = uint64(f.u32())
		s.Info = f.u8()
		s.Other = f.u8()
		s.Shndx = elf.SectionIndex(f.u16())
	}
	return s
}

func (id Ident) symSize() uint64 {
	if id.Is64() {
		return sym64Size
	}
	return sym32Size
}

// SymbolTable is a symbol table section paired with the string table its
// Link field names.
type SymbolTable struct {
	tab     Table
	id      Ident
	strs    StringTable
	section int
}

// Len returns the number of entries, including the null symbol at index 0.
func (t SymbolTable) Len() int {
	return t.tab.Len()
}

// Section returns the index of the symbol table section.
func (t SymbolTable) Section() int {
	return t.section
}

func (t SymbolTable) Symbol(i int) (Symbol, error) {
	p, err := t.tab.Entry(i)
	if err != nil {
		return Symbol{}, err
	}
	return t.id.decodeSymbol(p), nil
}

// Name resolves the name of s. A symbol without a name yields nil and no
// error.
func (t SymbolTable) Name(s Symbol) ([]byte, error) {
	if s.Name == 0 {
		return nil, nil
	}
	return t.strs.Lookup(s.Name)
}

func (t SymbolTable) Iter() SymbolIter {
	return SymbolIter{t: t, it: t.tab.Iter()}
}

// Lookup returns the index of the defined symbol whose range holds addr.
// Among several, the one starting closest below addr wins; symbols with
// no size only match their own address.
func (t SymbolTable) Lookup(addr models.VirtAddr) (Symbol, int, bool) {
	var best Symbol
	found := -1
	it := t.Iter()
	for it.Next() {
		s := it.Symbol()
		if !s.Defined() || s.Type() == elf.STT_SECTION || s.Type() == elf.STT_FILE {
			continue
		}
		start := s.Addr()
		if addr < start {
			continue
		}
		if s.Size == 0 {
			if addr != start {
				continue
			}
		} else if uint64(addr-start) >= s.Size {
			continue
		}
		if found < 0 || s.Value > best.Value {
			best, found = s, it.Index()
		}
	}
	return best, found, found >= 0
}

// SymbolIter walks a symbol table in file order.
type SymbolIter struct {
	t   SymbolTable
	it  TableIter
	cur Symbol
}

func (it *SymbolIter) Next() bool {
	if !it.it.Next() {
		return false
	}
	it.cur = it.t.id.decodeSymbol(it.it.Entry())
	return true
}

func (it *SymbolIter) Symbol() Symbol {
	return it.cur
}

// Index returns the symbol table index of the current symbol.
func (it *SymbolIter) Index() int {
	return it.it.Index()
}

// Name resolves the current symbol's name; see SymbolTable.Name.
func (it *SymbolIter) Name() ([]byte, error) {
	return it.t.Name(it.cur)
}

func (it *SymbolIter) Reset() {
	it.it.Reset()
	it.cur = Symbol{}
}

func (f File) symbolTable(s Section) (SymbolTable, error) {
	if s.Type != elf.SHT_SYMTAB && s.Type != elf.SHT_DYNSYM {
		return SymbolTable{}, errors.Wrapf(ErrMalformedTableEntry, "section %d has type %s, not a symbol table", s.Index, s.Type)
	}
	stride, count, err := s.stride(f.symSize())
	if err != nil {
		return SymbolTable{}, err
	}
	tab, err := NewTable(f.buf, uint64(s.Off), stride, count)
	if err != nil {
		return SymbolTable{}, errors.Wrapf(err, "symbol table section %d", s.Index)
	}
	st := SymbolTable{tab: tab, id: f.Ident, section: s.Index}
	if s.Link != 0 {
		link, err := f.Section(int(s.Link))
		if err != nil {
			return SymbolTable{}, errors.Wrapf(err, "string table of section %d", s.Index)
		}
		if st.strs, err = f.Strings(link); err != nil {
			return SymbolTable{}, errors.Wrapf(err, "string table of section %d", s.Index)
		}
	}
	return st, nil
}
