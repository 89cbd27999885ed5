package elf

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/elfcore/go/elf/elftest"
	"github.com/lunixbochs/elfcore/go/models"
)

func TestProgs(t *testing.T) {
	f, err := NewFile(elftest.Image{
		Type: elf.ET_EXEC,
		Progs: []elftest.Prog{
			{Type: elf.PT_PHDR, Flags: elf.PF_R, Off: 64, Vaddr: 0x400040, Filesz: 112, Memsz: 112, Align: 8},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Off: 0, Vaddr: 0x400000, Paddr: 0x1000, Filesz: 0x100, Memsz: 0x100, Align: 0x1000},
		},
		Size: 0x100,
	}.Bytes())
	require.NoError(t, err)

	it := f.Progs()
	require.Equal(t, 2, it.Len())
	var types []elf.ProgType
	for it.Next() {
		types = append(types, it.Prog().Type)
	}
	require.NoError(t, it.Err())
	require.Equal(t, []elf.ProgType{elf.PT_PHDR, elf.PT_LOAD}, types)

	p, err := f.Prog(1)
	require.NoError(t, err)
	require.Equal(t, models.VirtAddr(0x400000), p.Vaddr)
	require.Equal(t, models.PhysAddr(0x1000), p.Paddr)
	require.Equal(t, elf.PF_R|elf.PF_X, p.Flags)
	require.Equal(t, models.FileRange{Off: 0, Size: 0x100}, p.FileRange())

	data, err := f.ProgData(p)
	require.NoError(t, err)
	require.Len(t, data, 0x100)
	require.Equal(t, byte(0x7f), data[0])

	_, err = f.Prog(2)
	require.ErrorIs(t, err, ErrOutOfBounds)
}

func TestProgErrors(t *testing.T) {
	tests := []struct {
		name string
		prog elftest.Prog
		err  error
	}{
		{"memsz < filesz", elftest.Prog{Type: elf.PT_LOAD, Filesz: 0x10, Memsz: 0x8}, ErrMalformedTableEntry},
		{"align", elftest.Prog{Type: elf.PT_LOAD, Filesz: 0x10, Memsz: 0x10, Align: 3}, ErrMalformedTableEntry},
		{"contents", elftest.Prog{Type: elf.PT_LOAD, Off: 0x80, Filesz: 0x1000, Memsz: 0x1000}, ErrOutOfBounds},
		{"offset wraps", elftest.Prog{Type: elf.PT_LOAD, Off: ^uint64(0), Filesz: 2, Memsz: 2}, ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFile(elftest.Image{
				Type:  elf.ET_EXEC,
				Progs: []elftest.Prog{{Type: elf.PT_NOTE}, tt.prog},
			}.Bytes())
			require.NoError(t, err)

			it := f.Progs()
			require.True(t, it.Next())
			require.False(t, it.Next())
			require.ErrorIs(t, it.Err(), tt.err)
			it.Reset()
			require.NoError(t, it.Err())
			require.True(t, it.Next())

			_, err = f.Prog(1)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSections(t *testing.T) {
	f, err := NewFile(symImage(elf.ELFCLASS64, elf.ELFDATA2LSB).Bytes())
	require.NoError(t, err)

	var names []string
	it := f.Sections()
	require.Equal(t, 5, it.Len())
	for it.Next() {
		s := it.Section()
		name, err := f.SectionName(s)
		require.NoError(t, err)
		names = append(names, string(name))
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"", ".strtab", ".symtab", ".text", ".shstrtab"}, names)

	s, ok, err := f.SectionByName(".text")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, s.Index)
	require.Equal(t, elf.SHT_PROGBITS, s.Type)
	require.Equal(t, models.VirtAddr(0x401000), s.Addr)
	data, err := f.SectionData(s)
	require.NoError(t, err)
	require.Len(t, data, 0x30)

	_, ok, err = f.SectionByName(".data")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.Section(5)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = f.Strings(s)
	require.ErrorIs(t, err, ErrMalformedTableEntry)
}

func TestSectionOutOfBounds(t *testing.T) {
	f, err := NewFile(elftest.Image{
		Type: elf.ET_EXEC,
		Sections: []elftest.Section{
			{Name: ".bss", Type: elf.SHT_NOBITS, Size: 0x100000},
			{Name: ".data", Type: elf.SHT_PROGBITS, Size: 0x100000, Data: []byte{1}},
		},
	}.Bytes())
	require.NoError(t, err)

	bss, err := f.Section(1)
	require.NoError(t, err)
	data, err := f.SectionData(bss)
	require.NoError(t, err)
	require.Nil(t, data)

	_, err = f.Section(2)
	require.ErrorIs(t, err, ErrOutOfBounds)
	it := f.Sections()
	for it.Next() {
	}
	require.ErrorIs(t, it.Err(), ErrOutOfBounds)
}

func TestInterp(t *testing.T) {
	interp := "/lib64/ld-linux-x86-64.so.2\x00"
	f, err := NewFile(elftest.Image{
		Type: elf.ET_DYN,
		Progs: []elftest.Prog{
			{Type: elf.PT_INTERP, Flags: elf.PF_R, Off: 0x100, Filesz: uint64(len(interp)), Memsz: uint64(len(interp)), Align: 1},
		},
		Blobs: []elftest.Blob{{Off: 0x100, Data: []byte(interp)}},
	}.Bytes())
	require.NoError(t, err)
	path, err := f.Interp()
	require.NoError(t, err)
	require.Equal(t, "/lib64/ld-linux-x86-64.so.2", string(path))

	static, err := NewFile(exec64())
	require.NoError(t, err)
	path, err = static.Interp()
	require.NoError(t, err)
	require.Nil(t, path)
}

func TestNoAllocs(t *testing.T) {
	buf := symImage(elf.ELFCLASS64, elf.ELFDATA2LSB).Bytes()
	f, err := NewFile(buf)
	require.NoError(t, err)
	st, _, err := f.SymbolsOfType(elf.SHT_SYMTAB)
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(100, func() {
		if _, err := Parse(buf); err != nil {
			panic(err)
		}
		sections := f.Sections()
		for sections.Next() {
			if _, err := f.SectionName(sections.Section()); err != nil {
				panic(err)
			}
		}
		progs := f.Progs()
		for progs.Next() {
		}
		syms := st.Iter()
		for syms.Next() {
			if _, err := syms.Name(); err != nil {
				panic(err)
			}
		}
		st.Lookup(0x401028)
		f.SectionByName(".symtab")
	})
	require.Zero(t, allocs)
}
