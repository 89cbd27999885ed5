package elf

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/elfcore/go/elf/elftest"
)

func dynImage(class elf.Class, d elf.Data) elftest.Image {
	dyn := elftest.Dynamic(class, d,
		elftest.Dyn{Tag: elf.DT_NEEDED, Val: 1},
		elftest.Dyn{Tag: elf.DT_STRTAB, Val: 0x400200},
		elftest.Dyn{Tag: elf.DT_STRSZ, Val: 0x20},
		elftest.Dyn{Tag: elf.DT_BIND_NOW},
		elftest.Dyn{Tag: 0x6fff0123, Val: 7},
		elftest.Dyn{Tag: elf.DT_NULL},
		elftest.Dyn{Tag: elf.DT_DEBUG, Val: 0xdead},
	)
	return elftest.Image{
		Class: class,
		Data:  d,
		Type:  elf.ET_DYN,
		Progs: []elftest.Prog{
			{Type: elf.PT_DYNAMIC, Flags: elf.PF_R | elf.PF_W, Off: 0x200, Vaddr: 0x200, Filesz: uint64(len(dyn)), Memsz: uint64(len(dyn)), Align: 8},
		},
		Sections: []elftest.Section{
			{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x200, Off: 0x200, Data: dyn},
		},
	}
}

func collectDyn(it *DynIter) []Dyn {
	var out []Dyn
	for it.Next() {
		out = append(out, it.Dyn())
	}
	return out
}

func TestDynamic(t *testing.T) {
	want := []Dyn{
		{Tag: elf.DT_NEEDED, Val: 1},
		{Tag: elf.DT_STRTAB, Val: 0x400200},
		{Tag: elf.DT_STRSZ, Val: 0x20},
		{Tag: elf.DT_BIND_NOW},
		{Tag: 0x6fff0123, Val: 7},
	}
	for _, l := range layouts {
		f, err := NewFile(dynImage(l.class, l.data).Bytes())
		require.NoError(t, err)

		s, ok, err := f.SectionByName(".dynamic")
		require.NoError(t, err)
		require.True(t, ok)
		it, err := f.Dynamic(s)
		require.NoError(t, err)
		require.Equal(t, want, collectDyn(&it), "%s %s", l.class, l.data)
		require.False(t, it.Next())

		it.Reset()
		require.True(t, it.Next())
		require.Equal(t, elf.DT_NEEDED, it.Dyn().Tag)
		require.Equal(t, 0, it.Index())

		p, err := f.Prog(0)
		require.NoError(t, err)
		it, err = f.DynamicProg(p)
		require.NoError(t, err)
		require.Equal(t, want, collectDyn(&it), "%s %s", l.class, l.data)
	}
}

func TestDynClass(t *testing.T) {
	tests := []struct {
		tag   elf.DynTag
		class DynClass
	}{
		{elf.DT_NEEDED, DynString},
		{elf.DT_SONAME, DynString},
		{elf.DT_STRTAB, DynPointer},
		{elf.DT_GNU_HASH, DynPointer},
		{elf.DT_INIT_ARRAY, DynPointer},
		{elf.DT_STRSZ, DynValue},
		{elf.DT_RELACOUNT, DynValue},
		{elf.DT_FLAGS_1, DynValue},
		{elf.DT_NULL, DynIgnored},
		{elf.DT_BIND_NOW, DynIgnored},
		{0x6fff0123, DynUnknown},
	}
	for _, tt := range tests {
		d := Dyn{Tag: tt.tag}
		require.Equal(t, tt.class, d.Class(), "%s", tt.tag)
		require.Equal(t, tt.class != DynUnknown, d.Known())
	}
	require.Equal(t, "ptr", DynPointer.String())
}

func TestDynamicErrors(t *testing.T) {
	im := dynImage(elf.ELFCLASS64, elf.ELFDATA2LSB)
	im.Sections[0].Entsize = 8
	f, err := NewFile(im.Bytes())
	require.NoError(t, err)
	s, err := f.Section(1)
	require.NoError(t, err)
	_, err = f.Dynamic(s)
	require.ErrorIs(t, err, ErrMalformedTableEntry)

	names, err := f.Section(2)
	require.NoError(t, err)
	_, err = f.Dynamic(names)
	require.ErrorIs(t, err, ErrMalformedTableEntry)

	p, err := f.Prog(0)
	require.NoError(t, err)
	p.Type = elf.PT_LOAD
	_, err = f.DynamicProg(p)
	require.ErrorIs(t, err, ErrMalformedTableEntry)
}

func TestDynamicTrailingBytes(t *testing.T) {
	c, d := elf.ELFCLASS64, elf.ELFDATA2LSB
	dyn := elftest.Dynamic(c, d, elftest.Dyn{Tag: elf.DT_NEEDED, Val: 1})
	dyn = append(dyn, 0xff, 0xff, 0xff)
	f, err := NewFile(elftest.Image{
		Type:     elf.ET_DYN,
		Sections: []elftest.Section{{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Data: dyn}},
	}.Bytes())
	require.NoError(t, err)
	s, err := f.Section(1)
	require.NoError(t, err)
	it, err := f.Dynamic(s)
	require.NoError(t, err)
	require.Equal(t, []Dyn{{Tag: elf.DT_NEEDED, Val: 1}}, collectDyn(&it))
}
