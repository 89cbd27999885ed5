package elf

import (
	"debug/elf"
	"encoding/binary"
	"math/bits"

	"github.com/pkg/errors"
)

// Ident is the class and data encoding of an image. Parse fixes it once
// and every later multi-byte read goes through it.
type Ident struct {
	Class elf.Class
	Data  elf.Data
}

// WordSize is the width in bytes of addresses and offsets.
func (id Ident) WordSize() int {
	if id.Class == elf.ELFCLASS64 {
		return 8
	}
	return 4
}

func (id Ident) Is64() bool {
	return id.Class == elf.ELFCLASS64
}

// span returns off+size and whether that end is within limit without
// wrapping.
func span(off, size uint64, limit int) (uint64, bool) {
	end, carry := bits.Add64(off, size, 0)
	return end, carry == 0 && end <= uint64(limit)
}

// tableSize returns stride*count, failing if it wraps.
func tableSize(stride uint64, count int) (uint64, bool) {
	if count < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(stride, uint64(count))
	return lo, hi == 0
}

// Uint reads an unsigned field of width 1, 2, 4 or 8 bytes at off.
func Uint(b []byte, off uint64, width int, d elf.Data) (uint64, error) {
	end, ok := span(off, uint64(width), len(b))
	if !ok {
		return 0, errors.Wrapf(ErrOutOfBounds, "%d byte field at 0x%x, buffer is 0x%x bytes", width, off, len(b))
	}
	p := b[off:end]
	big := d == elf.ELFDATA2MSB
	switch width {
	case 1:
		return uint64(p[0]), nil
	case 2:
		if big {
			return uint64(binary.BigEndian.Uint16(p)), nil
		}
		return uint64(binary.LittleEndian.Uint16(p)), nil
	case 4:
		if big {
			return uint64(binary.BigEndian.Uint32(p)), nil
		}
		return uint64(binary.LittleEndian.Uint32(p)), nil
	case 8:
		if big {
			return binary.BigEndian.Uint64(p), nil
		}
		return binary.LittleEndian.Uint64(p), nil
	}
	return 0, errors.Errorf("invalid field width %d", width)
}

// Int reads a two's complement field and sign-extends it.
func Int(b []byte, off uint64, width int, d elf.Data) (int64, error) {
	v, err := Uint(b, off, width, d)
	if err != nil {
		return 0, err
	}
	shift := uint(64 - 8*width)
	return int64(v<<shift) >> shift, nil
}

// fields decodes consecutive fields of one table entry. Entries are
// length-checked against the minimum entry size before a fields is made,
// so the accessors index p directly.
type fields struct {
	id  Ident
	p   []byte
	off int
}

func (f *fields) skip(n int) {
	f.off += n
}

func (f *fields) u8() uint8 {
	v := f.p[f.off]
	f.off++
	return v
}

func (f *fields) u16() uint16 {
	p := f.p[f.off : f.off+2]
	f.off += 2
	if f.id.Data == elf.ELFDATA2MSB {
		return binary.BigEndian.Uint16(p)
	}
	return binary.LittleEndian.Uint16(p)
}

func (f *fields) u32() uint32 {
	p := f.p[f.off : f.off+4]
	f.off += 4
	if f.id.Data == elf.ELFDATA2MSB {
		return binary.BigEndian.Uint32(p)
	}
	return binary.LittleEndian.Uint32(p)
}

func (f *fields) u64() uint64 {
	p := f.p[f.off : f.off+8]
	f.off += 8
	if f.id.Data == elf.ELFDATA2MSB {
		return binary.BigEndian.Uint64(p)
	}
	return binary.LittleEndian.Uint64(p)
}

// word reads an address or offset: 4 bytes in 32-bit images, 8 in 64-bit.
func (f *fields) word() uint64 {
	if f.id.Class == elf.ELFCLASS64 {
		return f.u64()
	}
	return uint64(f.u32())
}

// sword is word, sign-extended.
func (f *fields) sword() int64 {
	if f.id.Class == elf.ELFCLASS64 {
		return int64(f.u64())
	}
	return int64(int32(f.u32()))
}
