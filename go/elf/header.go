package elf

import (
	"bytes"
	"debug/elf"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

// Structure sizes, in bytes, for the 32-bit and 64-bit classes.
const (
	identSize    = 16
	header32Size = 52
	header64Size = 64
	prog32Size   = 32
	prog64Size   = 56
	sect32Size   = 40
	sect64Size   = 64
	sym32Size    = 16
	sym64Size    = 24
	rel32Size    = 8
	rel64Size    = 16
	rela32Size   = 12
	rela64Size   = 24
	dyn32Size    = 8
	dyn64Size    = 16
)

// Extended numbering markers.
const (
	pnXNum       = 0xffff
	shnXIndex    = 0xffff
	shnLoReserve = 0xff00
)

// Header is the decoded ELF file header.
//
// Phnum, Shnum and Shstrndx hold the real values: when the file uses
// extended numbering they are taken from section header 0.
type Header struct {
	Ident
	OSABI      elf.OSABI
	ABIVersion uint8
	Type       elf.Type
	Machine    elf.Machine
	Version    elf.Version
	Entry      models.VirtAddr
	Phoff      models.FileOff
	Shoff      models.FileOff
	Flags      uint32
	Ehsize     uint16
	Phentsize  uint16
	Phnum      int
	Shentsize  uint16
	Shnum      int
	Shstrndx   int
}

func (id Ident) headerSize() int {
	if id.Is64() {
		return header64Size
	}
	return header32Size
}

func (id Ident) progSize() uint16 {
	if id.Is64() {
		return prog64Size
	}
	return prog32Size
}

func (id Ident) sectSize() uint16 {
	if id.Is64() {
		return sect64Size
	}
	return sect32Size
}

// Parse decodes and validates the file header at the start of buf. Both
// header tables are checked to lie inside buf.
func Parse(buf []byte) (Header, error) {
	var h Header
	if len(buf) < header32Size {
		return h, errors.Wrapf(ErrTruncatedBuffer, "%d bytes", len(buf))
	}
	if !bytes.Equal(buf[:4], elfMagic) {
		return h, errors.Wrapf(ErrInvalidMagic, "% x", buf[:4])
	}
	id := Ident{Class: elf.Class(buf[elf.EI_CLASS]), Data: elf.Data(buf[elf.EI_DATA])}
	switch id.Class {
	case elf.ELFCLASS32, elf.ELFCLASS64:
	default:
		return h, errors.Wrapf(ErrUnsupportedClass, "%d", id.Class)
	}
	switch id.Data {
	case elf.ELFDATA2LSB, elf.ELFDATA2MSB:
	default:
		return h, errors.Wrapf(ErrUnsupportedEndianness, "%d", id.Data)
	}
	if v := elf.Version(buf[elf.EI_VERSION]); v != elf.EV_CURRENT {
		return h, errors.Wrapf(ErrUnsupportedVersion, "ident version %d", v)
	}
	if len(buf) < id.headerSize() {
		return h, errors.Wrapf(ErrTruncatedBuffer, "%d bytes for %s header", len(buf), id.Class)
	}

	f := fields{id: id, p: buf, off: identSize}
	h.Ident = id
	h.OSABI = elf.OSABI(buf[elf.EI_OSABI])
	h.ABIVersion = buf[elf.EI_ABIVERSION]
	h.Type = elf.Type(f.u16())
	h.Machine = elf.Machine(f.u16())
	h.Version = elf.Version(f.u32())
	h.Entry = models.VirtAddr(f.word())
	h.Phoff = models.FileOff(f.word())
	h.Shoff = models.FileOff(f.word())
	h.Flags = f.u32()
	h.Ehsize = f.u16()
	h.Phentsize = f.u16()
	phnum := f.u16()
	h.Shentsize = f.u16()
	shnum := f.u16()
	shstrndx := f.u16()

	if h.Version != elf.EV_CURRENT {
		return Header{}, errors.Wrapf(ErrUnsupportedVersion, "header version %d", h.Version)
	}
	if phnum > 0 && h.Phentsize < id.progSize() {
		return Header{}, errors.Wrapf(ErrMalformedTableEntry, "program header entry size %d < %d", h.Phentsize, id.progSize())
	}
	hasSections := shnum > 0 || h.Shoff != 0
	if hasSections && h.Shentsize < id.sectSize() {
		return Header{}, errors.Wrapf(ErrMalformedTableEntry, "section header entry size %d < %d", h.Shentsize, id.sectSize())
	}

	h.Phnum = int(phnum)
	h.Shnum = int(shnum)
	h.Shstrndx = int(shstrndx)
	if h.Shoff != 0 && (shnum == 0 || shstrndx == shnXIndex || phnum == pnXNum) {
		// the real values live in section header 0
		end, ok := span(uint64(h.Shoff), uint64(h.Shentsize), len(buf))
		if !ok {
			return Header{}, errors.Wrapf(ErrOutOfBounds, "section header 0 at %s", h.Shoff)
		}
		s0 := id.decodeSection(buf[h.Shoff:end])
		if shnum == 0 {
			if s0.Size > uint64(len(buf)) {
				return Header{}, errors.Wrapf(ErrMalformedTableEntry, "extended section count %d", s0.Size)
			}
			h.Shnum = int(s0.Size)
		}
		if shstrndx == shnXIndex {
			h.Shstrndx = int(s0.Link)
		}
		if phnum == pnXNum && s0.Info != 0 {
			h.Phnum = int(s0.Info)
		}
	} else if shstrndx >= shnLoReserve {
		h.Shstrndx = 0
	}

	if err := checkTable(buf, uint64(h.Phoff), uint64(h.Phentsize), h.Phnum); err != nil {
		return Header{}, errors.Wrap(err, "program header table")
	}
	if err := checkTable(buf, uint64(h.Shoff), uint64(h.Shentsize), h.Shnum); err != nil {
		return Header{}, errors.Wrap(err, "section header table")
	}
	if h.Shstrndx != 0 && h.Shstrndx >= h.Shnum {
		return Header{}, errors.Wrapf(ErrMalformedTableEntry, "section name table index %d >= %d sections", h.Shstrndx, h.Shnum)
	}
	return h, nil
}

func checkTable(buf []byte, off, stride uint64, count int) error {
	if count == 0 {
		return nil
	}
	size, ok := tableSize(stride, count)
	if !ok {
		return errors.Wrapf(ErrOutOfBounds, "%d entries of %d bytes overflow", count, stride)
	}
	if _, ok := span(off, size, len(buf)); !ok {
		return errors.Wrapf(ErrOutOfBounds, "0x%x bytes at 0x%x, buffer is 0x%x bytes", size, off, len(buf))
	}
	return nil
}
