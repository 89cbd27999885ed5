// Package loader turns a parsed ELF image into the list of regions a
// memory manager has to populate before jumping to the entry point.
package loader

import (
	"debug/elf"

	"github.com/pkg/errors"

	elfcore "github.com/lunixbochs/elfcore/go/elf"
	"github.com/lunixbochs/elfcore/go/models"
)

const (
	UNKNOWN = iota
	EXEC
	DYN
)

// Options adjust how a plan is computed.
type Options struct {
	// Base is the load bias for ET_DYN images. It is added to every
	// destination address and to the entry point. ET_EXEC images ignore it.
	Base models.VirtAddr
	// SkipEmpty drops PT_LOAD entries with no memory size.
	SkipEmpty bool
}

func bias(f elfcore.File, opts Options) uint64 {
	if f.Type == elf.ET_DYN {
		return uint64(opts.Base)
	}
	return 0
}

func protFromFlags(flags elf.ProgFlag) models.Prot {
	var prot models.Prot
	if flags&elf.PF_R != 0 {
		prot |= models.PROT_READ
	}
	if flags&elf.PF_W != 0 {
		prot |= models.PROT_WRITE
	}
	if flags&elf.PF_X != 0 {
		prot |= models.PROT_EXEC
	}
	return prot
}

// segment builds the descriptor for a PT_LOAD header that has already
// passed the program header checks.
func segment(index int, p elfcore.Prog, bias uint64) (models.Segment, error) {
	start, ok := p.Vaddr.Add(bias)
	if !ok {
		return models.Segment{}, errors.Wrapf(elfcore.ErrOutOfBounds, "program header %d: load bias overflows %s", index, p.Vaddr)
	}
	if _, ok := start.Add(p.Memsz); !ok {
		return models.Segment{}, errors.Wrapf(elfcore.ErrOutOfBounds, "program header %d: destination %s+0x%x overflows", index, start, p.Memsz)
	}
	return models.Segment{
		Index: index,
		Src:   p.FileRange(),
		Dst:   models.AddrRange{Start: start, Size: p.Memsz},
		Phys:  p.Paddr,
		Prot:  protFromFlags(p.Flags),
		Zero:  p.Memsz - p.Filesz,
		Align: p.Align,
	}, nil
}

// AppendSegments appends a descriptor for every PT_LOAD header of f to dst
// in program header order. Nothing is allocated when dst has room. On
// error dst is returned unchanged.
func AppendSegments(dst []models.Segment, f elfcore.File, opts Options) ([]models.Segment, error) {
	base := len(dst)
	b := bias(f, opts)
	it := f.Progs()
	for it.Next() {
		p := it.Prog()
		if p.Type != elf.PT_LOAD {
			continue
		}
		if opts.SkipEmpty && p.Memsz == 0 {
			continue
		}
		seg, err := segment(it.Index(), p, b)
		if err != nil {
			return dst[:base], err
		}
		dst = append(dst, seg)
	}
	if err := it.Err(); err != nil {
		return dst[:base], err
	}
	if x, y, found := models.FindOverlap(dst[base:]); found {
		return dst[:base], errors.Wrapf(elfcore.ErrOverlappingSegments, "program headers %d and %d", x, y)
	}
	return dst, nil
}

// Entry returns the entry point of f after applying the load bias.
func Entry(f elfcore.File, opts Options) (models.VirtAddr, error) {
	entry, ok := f.Entry.Add(bias(f, opts))
	if !ok {
		return 0, errors.Wrapf(elfcore.ErrOutOfBounds, "load bias overflows entry point %s", f.Entry)
	}
	return entry, nil
}

// CountSegments returns how many descriptors AppendSegments would produce,
// so callers can size dst up front.
func CountSegments(f elfcore.File, opts Options) (int, error) {
	n := 0
	it := f.Progs()
	for it.Next() {
		p := it.Prog()
		if p.Type == elf.PT_LOAD && !(opts.SkipEmpty && p.Memsz == 0) {
			n++
		}
	}
	return n, it.Err()
}
