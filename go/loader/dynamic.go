package loader

import (
	"debug/elf"

	"github.com/pkg/errors"

	elfcore "github.com/lunixbochs/elfcore/go/elf"
	"github.com/lunixbochs/elfcore/go/models"
)

// DynamicInfo collects the dynamic entries a runtime linker cares about.
// Addresses are link-time values; the load bias is not applied.
type DynamicInfo struct {
	Strtab models.VirtAddr
	Strsz  uint64
	Symtab models.VirtAddr
	Syment uint64
	Hash   models.VirtAddr

	Rela    models.VirtAddr
	Relasz  uint64
	Relaent uint64
	Rel     models.VirtAddr
	Relsz   uint64
	Relent  uint64

	Jmprel   models.VirtAddr
	Pltrelsz uint64
	Pltrel   elf.DynTag

	Init, Fini models.VirtAddr
	Flags      elf.DynFlag
	Flags1     uint64

	// Needed and Soname are offsets into the DT_STRTAB table.
	Needed []uint32
	Soname uint32

	// Unknown counts entries with tags this package does not interpret.
	Unknown int
}

func (p *Plan) dynamicIter() (elfcore.DynIter, bool, error) {
	it := p.File.Progs()
	for it.Next() {
		if prog := it.Prog(); prog.Type == elf.PT_DYNAMIC {
			d, err := p.File.DynamicProg(prog)
			return d, true, errors.Wrapf(err, "program header %d", it.Index())
		}
	}
	if err := it.Err(); err != nil {
		return elfcore.DynIter{}, false, err
	}
	s, ok, err := p.File.SectionByName(".dynamic")
	if err != nil || !ok {
		return elfcore.DynIter{}, false, err
	}
	d, err := p.File.Dynamic(s)
	return d, true, err
}

// Dynamic decodes the image's dynamic table. It prefers PT_DYNAMIC and
// falls back to the .dynamic section. Static images return nil.
func (p *Plan) Dynamic() (*DynamicInfo, error) {
	it, ok, err := p.dynamicIter()
	if err != nil || !ok {
		return nil, err
	}
	info := &DynamicInfo{}
	for it.Next() {
		d := it.Dyn()
		switch d.Tag {
		case elf.DT_STRTAB:
			info.Strtab = d.Ptr()
		case elf.DT_STRSZ:
			info.Strsz = d.Val
		case elf.DT_SYMTAB:
			info.Symtab = d.Ptr()
		case elf.DT_SYMENT:
			info.Syment = d.Val
		case elf.DT_HASH:
			info.Hash = d.Ptr()
		case elf.DT_RELA:
			info.Rela = d.Ptr()
		case elf.DT_RELASZ:
			info.Relasz = d.Val
		case elf.DT_RELAENT:
			info.Relaent = d.Val
		case elf.DT_REL:
			info.Rel = d.Ptr()
		case elf.DT_RELSZ:
			info.Relsz = d.Val
		case elf.DT_RELENT:
			info.Relent = d.Val
		case elf.DT_JMPREL:
			info.Jmprel = d.Ptr()
		case elf.DT_PLTRELSZ:
			info.Pltrelsz = d.Val
		case elf.DT_PLTREL:
			info.Pltrel = elf.DynTag(d.Val)
		case elf.DT_INIT:
			info.Init = d.Ptr()
		case elf.DT_FINI:
			info.Fini = d.Ptr()
		case elf.DT_FLAGS:
			info.Flags = elf.DynFlag(d.Val)
		case elf.DT_FLAGS_1:
			info.Flags1 = d.Val
		case elf.DT_NEEDED:
			info.Needed = append(info.Needed, uint32(d.Val))
		case elf.DT_SONAME:
			info.Soname = uint32(d.Val)
		default:
			if !d.Known() {
				info.Unknown++
			}
		}
	}
	return info, nil
}

// Strings returns the DT_STRTAB table, located through the load plan.
func (p *Plan) Strings(info *DynamicInfo) (elfcore.StringTable, error) {
	if info.Strtab == 0 {
		return elfcore.StringTable{}, errors.Wrap(elfcore.ErrMalformedTableEntry, "no DT_STRTAB entry")
	}
	off, ok := p.Translate(info.Strtab + models.VirtAddr(p.bias))
	if !ok {
		return elfcore.StringTable{}, errors.Wrapf(elfcore.ErrOutOfBounds, "DT_STRTAB %s is not backed by the file", info.Strtab)
	}
	return elfcore.NewStringTable(p.File.Bytes(), models.FileRange{Off: off, Size: info.Strsz})
}

// Needed resolves the DT_NEEDED library names.
func (p *Plan) Needed(info *DynamicInfo) ([]string, error) {
	if len(info.Needed) == 0 {
		return nil, nil
	}
	strs, err := p.Strings(info)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(info.Needed))
	for _, off := range info.Needed {
		name, err := strs.Lookup(off)
		if err != nil {
			return nil, errors.Wrap(err, "DT_NEEDED")
		}
		names = append(names, string(name))
	}
	return names, nil
}
