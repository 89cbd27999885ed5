package elftest

import (
	"debug/elf"
)

// Strtab builds a string table from names and returns it with the offset
// of each name. Offset 0 is the empty string.
func Strtab(names ...string) ([]byte, []uint32) {
	tab := []byte{0}
	offs := make([]uint32, len(names))
	for i, n := range names {
		offs[i] = uint32(len(tab))
		tab = append(append(tab, n...), 0)
	}
	return tab, offs
}

// Sym is a symbol table entry.
type Sym struct {
	Name  uint32
	Value uint64
	Size  uint64
	Info  uint8
	Other uint8
	Shndx uint16
}

// Symbols encodes syms, preceded by the null symbol.
func Symbols(class elf.Class, d elf.Data, syms ...Sym) []byte {
	order := Order(d)
	all := append([]Sym{{}}, syms...)
	var out []byte
	for _, s := range all {
		if class == elf.ELFCLASS64 {
			out = append(out, pack(order, &sym64{
				Name: s.Name, Info: s.Info, Other: s.Other, Shndx: s.Shndx, Value: s.Value, Size: s.Size,
			})...)
		} else {
			out = append(out, pack(order, &sym32{
				Name: s.Name, Value: uint32(s.Value), Size: uint32(s.Size), Info: s.Info, Other: s.Other, Shndx: s.Shndx,
			})...)
		}
	}
	return out
}

// Rel is a relocation entry; Info is already packed for the class.
type Rel struct {
	Off    uint64
	Info   uint64
	Addend int64
}

// Info64 packs a 64-bit r_info.
func Info64(sym, typ uint32) uint64 {
	return uint64(sym)<<32 | uint64(typ)
}

// Info32 packs a 32-bit r_info.
func Info32(sym uint32, typ uint8) uint64 {
	return uint64(sym)<<8 | uint64(typ)
}

// Rels encodes REL entries, or RELA entries when rela is set.
func Rels(class elf.Class, d elf.Data, rela bool, rels ...Rel) []byte {
	order := Order(d)
	var out []byte
	for _, r := range rels {
		var v interface{}
		switch {
		case class == elf.ELFCLASS64 && rela:
			v = &rela64{Off: r.Off, Info: r.Info, Addend: r.Addend}
		case class == elf.ELFCLASS64:
			v = &rel64{Off: r.Off, Info: r.Info}
		case rela:
			v = &rela32{Off: uint32(r.Off), Info: uint32(r.Info), Addend: int32(r.Addend)}
		default:
			v = &rel32{Off: uint32(r.Off), Info: uint32(r.Info)}
		}
		out = append(out, pack(order, v)...)
	}
	return out
}

// Dyn is a dynamic table entry.
type Dyn struct {
	Tag elf.DynTag
	Val uint64
}

// Dynamic encodes dyns as given; add a DT_NULL entry to terminate.
func Dynamic(class elf.Class, d elf.Data, dyns ...Dyn) []byte {
	order := Order(d)
	var out []byte
	for _, e := range dyns {
		if class == elf.ELFCLASS64 {
			out = append(out, pack(order, &dyn64{Tag: int64(e.Tag), Val: e.Val})...)
		} else {
			out = append(out, pack(order, &dyn32{Tag: int32(e.Tag), Val: uint32(e.Val)})...)
		}
	}
	return out
}

// Note encodes a single note with 4-byte padding.
func Note(d elf.Data, name string, typ uint32, desc []byte) []byte {
	nameb := append([]byte(name), 0)
	out := pack(Order(d), &noteHeader{Namesz: uint32(len(nameb)), Descsz: uint32(len(desc)), Type: typ})
	out = append(out, nameb...)
	out = append(out, make([]byte, align(uint64(len(out)), 4)-uint64(len(out)))...)
	out = append(out, desc...)
	out = append(out, make([]byte, align(uint64(len(out)), 4)-uint64(len(out)))...)
	return out
}
