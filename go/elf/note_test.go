package elf

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/elfcore/go/elf/elftest"
)

var buildID = []byte{0xde, 0xad, 0xbe, 0xef, 0x01}

func TestNotes(t *testing.T) {
	for _, d := range []elf.Data{elf.ELFDATA2LSB, elf.ELFDATA2MSB} {
		notes := append(elftest.Note(d, "Go", 4, []byte("abc")), elftest.Note(d, "GNU", NT_GNU_BUILD_ID, buildID)...)
		f, err := NewFile(elftest.Image{
			Data:     d,
			Type:     elf.ET_EXEC,
			Sections: []elftest.Section{{Name: ".notes", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addralign: 4, Data: notes}},
		}.Bytes())
		require.NoError(t, err)

		s, err := f.Section(1)
		require.NoError(t, err)
		it, err := f.Notes(s)
		require.NoError(t, err)
		require.True(t, it.Next())
		require.Equal(t, Note{Name: []byte("Go"), Type: 4, Desc: []byte("abc")}, it.Note())
		require.True(t, it.Next())
		require.Equal(t, "GNU", string(it.Note().Name))
		require.Equal(t, buildID, it.Note().Desc)
		require.False(t, it.Next())
		require.NoError(t, it.Err())

		id, err := f.BuildID()
		require.NoError(t, err)
		require.Equal(t, buildID, id)
	}
}

func TestBuildIDFromSegment(t *testing.T) {
	notes := elftest.Note(elf.ELFDATA2LSB, "GNU", NT_GNU_BUILD_ID, buildID)
	f, err := NewFile(elftest.Image{
		Type:       elf.ET_EXEC,
		NoSections: true,
		Progs:      []elftest.Prog{{Type: elf.PT_NOTE, Flags: elf.PF_R, Off: 0x100, Filesz: uint64(len(notes)), Memsz: uint64(len(notes)), Align: 4}},
		Blobs:      []elftest.Blob{{Off: 0x100, Data: notes}},
	}.Bytes())
	require.NoError(t, err)
	id, err := f.BuildID()
	require.NoError(t, err)
	require.Equal(t, buildID, id)

	none, err := NewFile(exec64())
	require.NoError(t, err)
	id, err = none.BuildID()
	require.NoError(t, err)
	require.Nil(t, id)
}

func TestNotesMalformed(t *testing.T) {
	note := elftest.Note(elf.ELFDATA2LSB, "GNU", NT_GNU_BUILD_ID, buildID)
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", note[:8]},
		{"name overruns", note[:14]},
		{"desc overruns", note[:len(note)-4]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFile(elftest.Image{
				Type:     elf.ET_EXEC,
				Sections: []elftest.Section{{Name: ".note", Type: elf.SHT_NOTE, Data: tt.data}},
			}.Bytes())
			require.NoError(t, err)
			s, err := f.Section(1)
			require.NoError(t, err)
			it, err := f.Notes(s)
			require.NoError(t, err)
			require.False(t, it.Next())
			require.ErrorIs(t, it.Err(), ErrMalformedTableEntry)

			_, err = f.BuildID()
			require.ErrorIs(t, err, ErrMalformedTableEntry)
		})
	}
}
