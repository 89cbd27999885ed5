package loader

import (
	"debug/elf"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	elfcore "github.com/lunixbochs/elfcore/go/elf"
	"github.com/lunixbochs/elfcore/go/models"
)

var machineMap = map[elf.Machine]string{
	elf.EM_386:     "x86",
	elf.EM_X86_64:  "x86_64",
	elf.EM_ARM:     "arm",
	elf.EM_AARCH64: "arm64",
	elf.EM_MIPS:    "mips",
	elf.EM_PPC:     "ppc",
	elf.EM_PPC64:   "ppc64",
	elf.EM_RISCV:   "riscv",
	elf.EM_SPARC:   "sparc",
	elf.EM_68K:     "m68k",
}

// Plan is an owned load plan for callers that can allocate. It keeps a
// reference to the image so the segment sources can be read later.
type Plan struct {
	File elfcore.File

	entry  models.VirtAddr
	bias   uint64
	interp string
	segs   []models.Segment
}

var _ models.Loader = (*Plan)(nil)

// NewPlan computes the load plan of f.
func NewPlan(f elfcore.File, opts Options) (*Plan, error) {
	n, err := CountSegments(f, opts)
	if err != nil {
		return nil, err
	}
	segs, err := AppendSegments(make([]models.Segment, 0, n), f, opts)
	if err != nil {
		return nil, err
	}
	entry, err := Entry(f, opts)
	if err != nil {
		return nil, err
	}
	interp, err := f.Interp()
	if err != nil {
		return nil, errors.Wrap(err, "interpreter")
	}
	return &Plan{
		File:   f,
		entry:  entry,
		bias:   bias(f, opts),
		interp: string(interp),
		segs:   segs,
	}, nil
}

// Load parses buf and computes its plan in one step.
func Load(buf []byte, opts Options) (*Plan, error) {
	f, err := elfcore.NewFile(buf)
	if err != nil {
		return nil, err
	}
	return NewPlan(f, opts)
}

func LoadFile(path string, opts Options) (*Plan, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image")
	}
	plan, err := Load(p, opts)
	return plan, errors.Wrap(err, path)
}

// Entry returns the entry point with the load bias applied.
func (p *Plan) Entry() models.VirtAddr {
	return p.entry
}

// Bias returns the amount added to every link-time address.
func (p *Plan) Bias() uint64 {
	return p.bias
}

// Interp returns the requested program interpreter, if any.
func (p *Plan) Interp() string {
	return p.interp
}

// Segments returns the load descriptors in program header order.
func (p *Plan) Segments() []models.Segment {
	return p.segs
}

func (p *Plan) Arch() string {
	if name, ok := machineMap[p.File.Machine]; ok {
		return name
	}
	return p.File.Machine.String()
}

func (p *Plan) Bits() int {
	return p.File.WordSize() * 8
}

func (p *Plan) ByteOrder() binary.ByteOrder {
	if p.File.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (p *Plan) Type() int {
	switch p.File.Type {
	case elf.ET_EXEC:
		return EXEC
	case elf.ET_DYN:
		return DYN
	default:
		return UNKNOWN
	}
}

// Span returns the smallest range covering every segment destination.
func (p *Plan) Span() (models.AddrRange, bool) {
	var span models.AddrRange
	found := false
	for _, s := range p.segs {
		if s.Dst.Size == 0 {
			continue
		}
		if !found {
			span, found = s.Dst, true
			continue
		}
		span.Merge(s.Dst)
	}
	return span, found
}

// Segment returns the segment whose destination holds addr.
func (p *Plan) Segment(addr models.VirtAddr) (*models.Segment, bool) {
	for i := range p.segs {
		if p.segs[i].ContainsVirt(addr) {
			return &p.segs[i], true
		}
	}
	return nil, false
}

// EntryMapped reports whether the entry point lands in an executable
// segment. The plan does not enforce this; some images only become
// runnable after a later stage fills in the entry segment.
func (p *Plan) EntryMapped() bool {
	s, ok := p.Segment(p.entry)
	return ok && s.Prot&models.PROT_EXEC != 0
}

// Translate maps a destination address back to the file offset its bytes
// come from. Addresses in a zero-filled tail have no file offset.
func (p *Plan) Translate(addr models.VirtAddr) (models.FileOff, bool) {
	for i := range p.segs {
		s := &p.segs[i]
		if s.ContainsFile(addr) {
			return s.Src.Off + models.FileOff(addr-s.Dst.Start), true
		}
	}
	return 0, false
}

// Data returns the file bytes of segment s.
func (p *Plan) Data(s *models.Segment) []byte {
	return s.Data(p.File.Bytes())
}

// Symbols copies the static and dynamic symbol tables out of the image,
// shifted by the load bias.
func (p *Plan) Symbols() ([]models.Symbol, error) {
	return Symbols(p.File, p.bias)
}

// Symbols copies the static and dynamic symbol tables of f, shifted by
// bias. Missing tables are not an error.
func Symbols(f elfcore.File, bias uint64) ([]models.Symbol, error) {
	var out []models.Symbol
	for _, typ := range []elf.SectionType{elf.SHT_SYMTAB, elf.SHT_DYNSYM} {
		st, ok, err := f.SymbolsOfType(typ)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		it := st.Iter()
		for it.Next() {
			s := it.Symbol()
			if !s.Defined() || s.Type() == elf.STT_SECTION || s.Type() == elf.STT_FILE {
				continue
			}
			name, err := it.Name()
			if err != nil {
				return nil, errors.Wrapf(err, "symbol %d", it.Index())
			}
			start := s.Addr() + models.VirtAddr(bias)
			out = append(out, models.Symbol{
				Name:    string(name),
				Start:   start,
				End:     start + models.VirtAddr(s.Size),
				Dynamic: typ == elf.SHT_DYNSYM,
			})
		}
	}
	return out, nil
}
