package minidebug

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	elfcore "github.com/lunixbochs/elfcore/go/elf"
	"github.com/lunixbochs/elfcore/go/elf/elftest"
)

func compress(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpen(t *testing.T) {
	strtab, names := elftest.Strtab("hidden_helper")
	inner := elftest.Image{
		Type:    elf.ET_EXEC,
		Machine: elf.EM_X86_64,
		Sections: []elftest.Section{
			{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strtab},
			{Name: ".symtab", Type: elf.SHT_SYMTAB, Link: 1, Data: elftest.Symbols(elf.ELFCLASS64, elf.ELFDATA2LSB,
				elftest.Sym{Name: names[0], Value: 0x401100, Size: 0x20, Info: elf.ST_INFO(elf.STB_LOCAL, elf.STT_FUNC), Shndx: 1},
			)},
		},
	}.Bytes()
	outer, err := elfcore.NewFile(elftest.Image{
		Type:    elf.ET_EXEC,
		Machine: elf.EM_X86_64,
		Sections: []elftest.Section{
			{Name: SectionName, Type: elf.SHT_PROGBITS, Data: compress(t, inner)},
		},
	}.Bytes())
	require.NoError(t, err)

	f, err := Open(outer)
	require.NoError(t, err)
	st, ok, err := f.SymbolsOfType(elf.SHT_SYMTAB)
	require.NoError(t, err)
	require.True(t, ok)
	s, i, ok := st.Lookup(0x401110)
	require.True(t, ok)
	require.Equal(t, 1, i)
	name, err := st.Name(s)
	require.NoError(t, err)
	require.Equal(t, "hidden_helper", string(name))
}

func TestOpenErrors(t *testing.T) {
	plain, err := elfcore.NewFile(elftest.Image{Type: elf.ET_EXEC}.Bytes())
	require.NoError(t, err)
	_, err = Open(plain)
	require.ErrorIs(t, err, ErrNoMiniDebugInfo)

	garbage, err := elfcore.NewFile(elftest.Image{
		Type:     elf.ET_EXEC,
		Sections: []elftest.Section{{Name: SectionName, Type: elf.SHT_PROGBITS, Data: []byte("not xz")}},
	}.Bytes())
	require.NoError(t, err)
	_, err = Open(garbage)
	require.Error(t, err)

	notELF, err := elfcore.NewFile(elftest.Image{
		Type:     elf.ET_EXEC,
		Sections: []elftest.Section{{Name: SectionName, Type: elf.SHT_PROGBITS, Data: compress(t, []byte("plain text, long enough to pass the size check.........."))}},
	}.Bytes())
	require.NoError(t, err)
	_, err = Open(notELF)
	require.ErrorIs(t, err, elfcore.ErrInvalidMagic)
}

func TestOpenTooLarge(t *testing.T) {
	bomb := compress(t, make([]byte, 4*minLimit))
	require.Less(t, len(bomb)*maxRatio, minLimit)
	f, err := elfcore.NewFile(elftest.Image{
		Type:     elf.ET_EXEC,
		Sections: []elftest.Section{{Name: SectionName, Type: elf.SHT_PROGBITS, Data: bomb}},
	}.Bytes())
	require.NoError(t, err)
	_, err = Open(f)
	require.ErrorIs(t, err, ErrTooLarge)
}
