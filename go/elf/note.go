package elf

import (
	"bytes"
	"debug/elf"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

// NT_GNU_BUILD_ID is the note type of a GNU build ID.
const NT_GNU_BUILD_ID = 3

var gnuNoteName = []byte("GNU")

// Note is one entry of a note section or segment. Name has its
// terminating NUL removed; Name and Desc are borrowed from the image.
type Note struct {
	Name []byte
	Type uint32
	Desc []byte
}

// NoteIter walks the notes packed inside a SHT_NOTE section or PT_NOTE
// segment.
type NoteIter struct {
	id    Ident
	data  []byte
	align uint64
	off   uint64
	cur   Note
	err   error
}

func (f File) noteIter(r models.FileRange, align uint64) (NoteIter, error) {
	end, ok := span(uint64(r.Off), r.Size, len(f.buf))
	if !ok {
		return NoteIter{}, errors.Wrapf(ErrOutOfBounds, "notes %s, buffer is 0x%x bytes", r, len(f.buf))
	}
	// notes are 4-byte aligned unless the container asks for 8
	if align != 8 {
		align = 4
	}
	return NoteIter{id: f.Ident, data: f.buf[r.Off:end:end], align: align}, nil
}

// Notes iterates the notes in a SHT_NOTE section.
func (f File) Notes(s Section) (NoteIter, error) {
	if s.Type != elf.SHT_NOTE {
		return NoteIter{}, errors.Wrapf(ErrMalformedTableEntry, "section %d has type %s, not a note section", s.Index, s.Type)
	}
	return f.noteIter(s.FileRange(), s.Addralign)
}

// NotesProg iterates the notes in a PT_NOTE segment.
func (f File) NotesProg(p Prog) (NoteIter, error) {
	if p.Type != elf.PT_NOTE {
		return NoteIter{}, errors.Wrapf(ErrMalformedTableEntry, "segment has type %s, not a note segment", p.Type)
	}
	return f.noteIter(p.FileRange(), p.Align)
}

func alignUp(n, align uint64) (uint64, bool) {
	sum, carry := bits.Add64(n, align-1, 0)
	return sum &^ (align - 1), carry == 0
}

func (it *NoteIter) Next() bool {
	if it.err != nil || it.off >= uint64(len(it.data)) {
		return false
	}
	if uint64(len(it.data))-it.off < 12 {
		it.err = errors.Wrapf(ErrMalformedTableEntry, "note header at 0x%x is truncated", it.off)
		return false
	}
	f := fields{id: it.id, p: it.data, off: int(it.off)}
	namesz := uint64(f.u32())
	descsz := uint64(f.u32())
	typ := f.u32()

	nameOff := it.off + 12
	nameEnd, ok := span(nameOff, namesz, len(it.data))
	descOff, ok2 := alignUp(nameEnd, it.align)
	if !ok || !ok2 {
		it.err = errors.Wrapf(ErrMalformedTableEntry, "note name at 0x%x overruns", it.off)
		return false
	}
	descEnd, ok := span(descOff, descsz, len(it.data))
	if !ok {
		it.err = errors.Wrapf(ErrMalformedTableEntry, "note desc at 0x%x overruns", it.off)
		return false
	}
	next, ok := alignUp(descEnd, it.align)
	if !ok {
		next = uint64(len(it.data))
	}

	name := it.data[nameOff:nameEnd:nameEnd]
	if n := len(name); n > 0 && name[n-1] == 0 {
		name = name[: n-1 : n-1]
	}
	it.cur = Note{Name: name, Type: typ, Desc: it.data[descOff:descEnd:descEnd]}
	it.off = next
	return true
}

func (it *NoteIter) Note() Note {
	return it.cur
}

func (it *NoteIter) Err() error {
	return it.err
}

func (it *NoteIter) Reset() {
	it.off = 0
	it.err = nil
	it.cur = Note{}
}

// BuildID returns the descriptor of the GNU build ID note, looked up in
// note sections and, failing that, PT_NOTE segments. It returns nil if
// the image has none.
func (f File) BuildID() ([]byte, error) {
	find := func(it NoteIter) ([]byte, error) {
		for it.Next() {
			n := it.Note()
			if n.Type == NT_GNU_BUILD_ID && bytes.Equal(n.Name, gnuNoteName) {
				return n.Desc, nil
			}
		}
		return nil, it.Err()
	}
	sections := f.Sections()
	for sections.Next() {
		s := sections.Section()
		if s.Type != elf.SHT_NOTE {
			continue
		}
		it, err := f.Notes(s)
		if err != nil {
			return nil, err
		}
		if id, err := find(it); id != nil || err != nil {
			return id, errors.Wrapf(err, "section %d", s.Index)
		}
	}
	if err := sections.Err(); err != nil {
		return nil, err
	}
	progs := f.Progs()
	for progs.Next() {
		p := progs.Prog()
		if p.Type != elf.PT_NOTE {
			continue
		}
		it, err := f.NotesProg(p)
		if err != nil {
			return nil, err
		}
		if id, err := find(it); id != nil || err != nil {
			return id, errors.Wrapf(err, "program header %d", progs.Index())
		}
	}
	return nil, progs.Err()
}
