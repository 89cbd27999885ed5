package elf

import (
	"debug/elf"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/elfcore/go/elf/elftest"
	"github.com/lunixbochs/elfcore/go/models"
)

func symImage(class elf.Class, d elf.Data) elftest.Image {
	strtab, offs := elftest.Strtab("main", "helper", "puts")
	global := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	syms := elftest.Symbols(class, d,
		elftest.Sym{Name: offs[0], Value: 0x401000, Size: 0x20, Info: global, Shndx: 3},
		elftest.Sym{Name: offs[1], Value: 0x401020, Size: 0x10, Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_FUNC), Other: uint8(elf.STV_HIDDEN), Shndx: 3},
		elftest.Sym{Name: offs[2], Info: global},
		elftest.Sym{Value: 0x401000, Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION), Shndx: 3},
	)
	return elftest.Image{
		Class:   class,
		Data:    d,
		Type:    elf.ET_EXEC,
		Machine: elf.EM_X86_64,
		Sections: []elftest.Section{
			{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strtab},
			{Name: ".symtab", Type: elf.SHT_SYMTAB, Link: 1, Data: syms},
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x401000, Data: make([]byte, 0x30)},
		},
	}
}

var layouts = []struct {
	class elf.Class
	data  elf.Data
}{
	{elf.ELFCLASS64, elf.ELFDATA2LSB},
	{elf.ELFCLASS64, elf.ELFDATA2MSB},
	{elf.ELFCLASS32, elf.ELFDATA2LSB},
	{elf.ELFCLASS32, elf.ELFDATA2MSB},
}

func TestSymbolTable(t *testing.T) {
	for _, l := range layouts {
		t.Run(fmt.Sprintf("%s/%s", l.class, l.data), func(t *testing.T) {
			f, err := NewFile(symImage(l.class, l.data).Bytes())
			require.NoError(t, err)
			st, ok, err := f.SymbolsOfType(elf.SHT_SYMTAB)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, 5, st.Len())
			require.Equal(t, 2, st.Section())

			var names []string
			it := st.Iter()
			for it.Next() {
				name, err := it.Name()
				require.NoError(t, err)
				names = append(names, string(name))
			}
			require.Equal(t, []string{"", "main", "helper", "puts", ""}, names)

			null, err := st.Symbol(0)
			require.NoError(t, err)
			require.Equal(t, Symbol{}, null)
			name, err := st.Name(null)
			require.NoError(t, err)
			require.Nil(t, name)

			main, err := st.Symbol(1)
			require.NoError(t, err)
			require.Equal(t, models.VirtAddr(0x401000), main.Addr())
			require.Equal(t, uint64(0x20), main.Size)
			require.Equal(t, elf.STB_GLOBAL, main.Bind())
			require.Equal(t, elf.STT_FUNC, main.Type())
			require.Equal(t, elf.SectionIndex(3), main.Shndx)
			require.True(t, main.Defined())

			helper, err := st.Symbol(2)
			require.NoError(t, err)
			require.Equal(t, elf.STB_LOCAL, helper.Bind())
			require.Equal(t, elf.STV_HIDDEN, helper.Visibility())

			puts, err := st.Symbol(3)
			require.NoError(t, err)
			require.False(t, puts.Defined())

			_, err = st.Symbol(5)
			require.ErrorIs(t, err, ErrOutOfBounds)
		})
	}
}

func TestSymbolLookup(t *testing.T) {
	f, err := NewFile(symImage(elf.ELFCLASS64, elf.ELFDATA2LSB).Bytes())
	require.NoError(t, err)
	st, _, err := f.SymbolsOfType(elf.SHT_SYMTAB)
	require.NoError(t, err)

	tests := []struct {
		addr  models.VirtAddr
		index int
	}{
		{0x401000, 1},
		{0x40101f, 1},
		{0x401020, 2},
		{0x40102f, 2},
		{0x401030, -1},
		{0x400fff, -1},
		{0, -1},
	}
	for _, tt := range tests {
		_, i, ok := st.Lookup(tt.addr)
		if tt.index < 0 {
			require.False(t, ok, "addr %s", tt.addr)
			continue
		}
		require.True(t, ok, "addr %s", tt.addr)
		require.Equal(t, tt.index, i, "addr %s", tt.addr)
	}
}

func TestSymbolTableErrors(t *testing.T) {
	im := symImage(elf.ELFCLASS64, elf.ELFDATA2LSB)
	f, err := NewFile(im.Bytes())
	require.NoError(t, err)

	_, ok, err := f.SymbolsOfType(elf.SHT_DYNSYM)
	require.NoError(t, err)
	require.False(t, ok)

	strtab, err := f.Section(1)
	require.NoError(t, err)
	_, err = f.Symbols(strtab)
	require.ErrorIs(t, err, ErrMalformedTableEntry)

	// a size that is not a whole number of entries
	im.Sections[1].Size = uint64(len(im.Sections[1].Data)) - 1
	f, err = NewFile(im.Bytes())
	require.NoError(t, err)
	_, _, err = f.SymbolsOfType(elf.SHT_SYMTAB)
	require.ErrorIs(t, err, ErrMalformedTableEntry)

	// entries smaller than a symbol
	im = symImage(elf.ELFCLASS64, elf.ELFDATA2LSB)
	im.Sections[1].Entsize = 16
	f, err = NewFile(im.Bytes())
	require.NoError(t, err)
	_, _, err = f.SymbolsOfType(elf.SHT_SYMTAB)
	require.ErrorIs(t, err, ErrMalformedTableEntry)

	// a name past the end of the string table
	im = symImage(elf.ELFCLASS64, elf.ELFDATA2LSB)
	im.Sections[1].Data = elftest.Symbols(elf.ELFCLASS64, elf.ELFDATA2LSB, elftest.Sym{Name: 100, Shndx: 3})
	f, err = NewFile(im.Bytes())
	require.NoError(t, err)
	st, _, err := f.SymbolsOfType(elf.SHT_SYMTAB)
	require.NoError(t, err)
	s, err := st.Symbol(1)
	require.NoError(t, err)
	_, err = st.Name(s)
	require.ErrorIs(t, err, ErrBadStringTableIndex)
}
