// Package elftest builds small synthetic ELF images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// Prog is a program header to emit verbatim.
type Prog struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Section is a section to emit. Data is placed after the program headers
// unless Off is set; Size defaults to len(Data). The null section and
// .shstrtab are added by Image.
type Section struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Off       uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
	Data      []byte
}

// Blob is raw data copied into the image at Off, e.g. segment contents.
type Blob struct {
	Off  uint64
	Data []byte
}

// Image describes a whole file. Zero Class, Data and Version fields get
// ELFCLASS64, ELFDATA2LSB and EV_CURRENT.
type Image struct {
	Class   elf.Class
	Data    elf.Data
	Version elf.Version
	Type    elf.Type
	Machine elf.Machine
	Entry   uint64
	Flags   uint32

	Progs    []Prog
	Sections []Section
	Blobs    []Blob

	// NoSections leaves out the section header table entirely.
	NoSections bool
	// Size pads the image to at least this many bytes.
	Size int
}

func (im *Image) defaults() {
	if im.Class == 0 {
		im.Class = elf.ELFCLASS64
	}
	if im.Data == 0 {
		im.Data = elf.ELFDATA2LSB
	}
	if im.Version == 0 {
		im.Version = elf.EV_CURRENT
	}
}

// Order returns the byte order records are packed with.
func Order(d elf.Data) binary.ByteOrder {
	if d == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func pack(order binary.ByteOrder, v interface{}) []byte {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, v, order); err != nil {
		panic(errors.Wrap(err, "elftest: pack"))
	}
	return buf.Bytes()
}

func align(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}

// Bytes lays the image out and encodes it.
func (im Image) Bytes() []byte {
	im.defaults()
	order := Order(im.Data)
	is64 := im.Class == elf.ELFCLASS64

	ehsize, phentsize, shentsize := uint64(52), uint64(32), uint64(40)
	if is64 {
		ehsize, phentsize, shentsize = 64, 56, 64
	}

	sections := im.Sections
	var shstrtab []byte
	var nameOffs []uint32
	if !im.NoSections {
		shstrtab = []byte{0}
		for _, s := range sections {
			nameOffs = append(nameOffs, uint32(len(shstrtab)))
			shstrtab = append(append(shstrtab, s.Name...), 0)
		}
		nameOffs = append(nameOffs, uint32(len(shstrtab)))
		shstrtab = append(shstrtab, ".shstrtab\x00"...)
		sections = append(append([]Section(nil), sections...), Section{Name: ".shstrtab", Type: elf.SHT_STRTAB, Data: shstrtab})
	}

	phoff := uint64(0)
	cursor := ehsize
	if len(im.Progs) > 0 {
		phoff = ehsize
		cursor += phentsize * uint64(len(im.Progs))
	}
	for _, b := range im.Blobs {
		if end := b.Off + uint64(len(b.Data)); end > cursor {
			cursor = end
		}
	}
	offs := make([]uint64, len(sections))
	for i, s := range sections {
		if s.Off != 0 {
			offs[i] = s.Off
			continue
		}
		cursor = align(cursor, 8)
		offs[i] = cursor
		if s.Type != elf.SHT_NOBITS {
			cursor += uint64(len(s.Data))
		}
	}
	for i, s := range sections {
		if s.Type == elf.SHT_NOBITS {
			continue
		}
		if end := offs[i] + uint64(len(s.Data)); end > cursor {
			cursor = end
		}
	}
	shoff := uint64(0)
	shnum := 0
	if !im.NoSections {
		shoff = align(cursor, 8)
		shnum = len(sections) + 1
		cursor = shoff + shentsize*uint64(shnum)
	}
	size := cursor
	if uint64(im.Size) > size {
		size = uint64(im.Size)
	}
	out := make([]byte, size)

	var ident [16]byte
	copy(ident[:], "\x7fELF")
	ident[elf.EI_CLASS] = byte(im.Class)
	ident[elf.EI_DATA] = byte(im.Data)
	ident[elf.EI_VERSION] = byte(im.Version)
	var shstrndx uint16
	if !im.NoSections {
		shstrndx = uint16(shnum - 1)
	}
	if is64 {
		copy(out, pack(order, &header64{
			Ident: ident, Type: uint16(im.Type), Machine: uint16(im.Machine), Version: uint32(im.Version),
			Entry: im.Entry, Phoff: phoff, Shoff: shoff, Flags: im.Flags, Ehsize: uint16(ehsize),
			Phentsize: uint16(phentsize), Phnum: uint16(len(im.Progs)),
			Shentsize: uint16(shentsize), Shnum: uint16(shnum), Shstrndx: shstrndx,
		}))
	} else {
		copy(out, pack(order, &header32{
			Ident: ident, Type: uint16(im.Type), Machine: uint16(im.Machine), Version: uint32(im.Version),
			Entry: uint32(im.Entry), Phoff: uint32(phoff), Shoff: uint32(shoff), Flags: im.Flags, Ehsize: uint16(ehsize),
			Phentsize: uint16(phentsize), Phnum: uint16(len(im.Progs)),
			Shentsize: uint16(shentsize), Shnum: uint16(shnum), Shstrndx: shstrndx,
		}))
	}

	for i, p := range im.Progs {
		copy(out[phoff+uint64(i)*phentsize:], packProg(im.Class, order, p))
	}
	for _, b := range im.Blobs {
		copy(out[b.Off:], b.Data)
	}
	if !im.NoSections {
		for i, s := range sections {
			if s.Type != elf.SHT_NOBITS {
				copy(out[offs[i]:], s.Data)
			}
			if s.Size == 0 {
				s.Size = uint64(len(s.Data))
			}
			s.Off = offs[i]
			off := shoff + uint64(i+1)*shentsize
			copy(out[off:], packSection(im.Class, order, nameOffs[i], s))
		}
	}
	return out
}

func packProg(class elf.Class, order binary.ByteOrder, p Prog) []byte {
	if class == elf.ELFCLASS64 {
		return pack(order, &prog64{
			Type: uint32(p.Type), Flags: uint32(p.Flags), Off: p.Off, Vaddr: p.Vaddr,
			Paddr: p.Paddr, Filesz: p.Filesz, Memsz: p.Memsz, Align: p.Align,
		})
	}
	return pack(order, &prog32{
		Type: uint32(p.Type), Off: uint32(p.Off), Vaddr: uint32(p.Vaddr), Paddr: uint32(p.Paddr),
		Filesz: uint32(p.Filesz), Memsz: uint32(p.Memsz), Flags: uint32(p.Flags), Align: uint32(p.Align),
	})
}

func packSection(class elf.Class, order binary.ByteOrder, name uint32, s Section) []byte {
	if class == elf.ELFCLASS64 {
		return pack(order, &section64{
			Name: name, Type: uint32(s.Type), Flags: uint64(s.Flags), Addr: s.Addr, Off: s.Off,
			Size: s.Size, Link: s.Link, Info: s.Info, Addralign: s.Addralign, Entsize: s.Entsize,
		})
	}
	return pack(order, &section32{
		Name: name, Type: uint32(s.Type), Flags: uint32(s.Flags), Addr: uint32(s.Addr), Off: uint32(s.Off),
		Size: uint32(s.Size), Link: s.Link, Info: s.Info, Addralign: uint32(s.Addralign), Entsize: uint32(s.Entsize),
	})
}
