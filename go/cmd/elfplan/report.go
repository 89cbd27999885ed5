package main

import (
	"cmp"
	"debug/elf"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ianlancetaylor/demangle"
	"github.com/mgutz/ansi"
	"github.com/olekukonko/tablewriter"

	elfcore "github.com/lunixbochs/elfcore/go/elf"
	"github.com/lunixbochs/elfcore/go/loader"
	"github.com/lunixbochs/elfcore/go/models"
)

type report struct {
	w    io.Writer
	cfg  *models.Config
	f    elfcore.File
	plan *loader.Plan
	syms []models.Symbol
}

func (r *report) color(s, style string) string {
	if !r.cfg.Color {
		return s
	}
	return ansi.Color(s, style)
}

func (r *report) title(s string) {
	fmt.Fprintf(r.w, "\n%s\n", r.color(s, "default+b"))
}

func (r *report) table(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(r.w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func (r *report) symName(name string) string {
	if r.cfg.Demangle {
		return demangle.Filter(name)
	}
	return name
}

func (r *report) print() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"header", r.header},
		{"segments", r.segments},
		{"plan", r.loadPlan},
		{"sections", r.sections},
		{"symbols", r.symbols},
		{"relocs", r.relocs},
		{"dynamic", r.dynamic},
		{"notes", r.notes},
	}
	for _, step := range steps {
		if !r.cfg.Shows(step.name) {
			continue
		}
		if err := step.fn(); err != nil {
			return err
		}
	}
	return nil
}

func (r *report) header() error {
	h := r.f.Header
	r.title("ELF header")
	table := r.table("field", "value")
	table.AppendBulk([][]string{
		{"class", h.Class.String()},
		{"data", h.Data.String()},
		{"osabi", h.OSABI.String()},
		{"type", h.Type.String()},
		{"machine", fmt.Sprintf("%s (%s)", h.Machine, r.plan.Arch())},
		{"entry", r.entry()},
		{"program headers", fmt.Sprintf("%d at %s", h.Phnum, h.Phoff)},
		{"section headers", fmt.Sprintf("%d at %s", h.Shnum, h.Shoff)},
		{"flags", fmt.Sprintf("0x%x", h.Flags)},
	})
	if interp := r.plan.Interp(); interp != "" {
		table.Append([]string{"interpreter", interp})
	}
	table.Render()
	return nil
}

func (r *report) entry() string {
	s := r.plan.Entry().String()
	if sym := models.Symbolicate(r.syms, r.plan.Entry()); sym != "" {
		s += " <" + r.symName(sym) + ">"
	}
	if !r.plan.EntryMapped() {
		s = r.color(s, "red")
	}
	return s
}

func (r *report) segments() error {
	r.title("Program headers")
	table := r.table("#", "type", "flags", "offset", "vaddr", "filesz", "memsz", "align")
	it := r.f.Progs()
	for it.Next() {
		p := it.Prog()
		table.Append([]string{
			fmt.Sprint(it.Index()),
			p.Type.String(),
			p.Flags.String(),
			fmt.Sprintf("0x%x", uint64(p.Off)),
			p.Vaddr.String(),
			fmt.Sprintf("0x%x", p.Filesz),
			fmt.Sprintf("0x%x", p.Memsz),
			fmt.Sprintf("0x%x", p.Align),
		})
	}
	table.Render()
	return it.Err()
}

func (r *report) loadPlan() error {
	r.title(fmt.Sprintf("Load plan (%s, %d-bit, bias 0x%x)", r.plan.Arch(), r.plan.Bits(), r.plan.Bias()))
	table := r.table("phdr", "destination", "prot", "source", "size", "zero fill")
	segs := r.plan.Segments()
	for i := range segs {
		s := &segs[i]
		prot := s.Prot.String()
		if s.Prot&models.PROT_WRITE != 0 && s.Prot&models.PROT_EXEC != 0 {
			prot = r.color(prot, "yellow+b")
		}
		table.Append([]string{
			fmt.Sprint(s.Index),
			s.Dst.String(),
			prot,
			s.Src.String(),
			humanize.IBytes(s.Dst.Size),
			humanize.IBytes(s.Zero),
		})
	}
	table.Render()
	if span, ok := r.plan.Span(); ok {
		fmt.Fprintf(r.w, "span %s (%s)\n", span, humanize.IBytes(span.Size))
	}
	return nil
}

func (r *report) sections() error {
	if r.f.Shnum == 0 {
		return nil
	}
	r.title("Section headers")
	table := r.table("#", "name", "type", "flags", "addr", "offset", "size")
	it := r.f.Sections()
	for it.Next() {
		s := it.Section()
		name, err := r.f.SectionName(s)
		if err != nil {
			return err
		}
		table.Append([]string{
			fmt.Sprint(s.Index),
			string(name),
			s.Type.String(),
			s.Flags.String(),
			s.Addr.String(),
			fmt.Sprintf("0x%x", uint64(s.Off)),
			humanize.IBytes(s.Size),
		})
	}
	table.Render()
	return it.Err()
}

func (r *report) symbols() error {
	if len(r.syms) == 0 {
		return nil
	}
	syms := slices.Clone(r.syms)
	slices.SortStableFunc(syms, func(a, b models.Symbol) int {
		return cmp.Compare(a.Start, b.Start)
	})
	r.title("Symbols")
	table := r.table("address", "size", "table", "name")
	for _, s := range syms {
		tab := "symtab"
		if s.Dynamic {
			tab = "dynsym"
		}
		table.Append([]string{s.Start.String(), fmt.Sprintf("0x%x", uint64(s.End-s.Start)), tab, r.symName(s.Name)})
	}
	table.Render()
	return nil
}

func (r *report) relocs() error {
	it := r.f.Sections()
	for it.Next() {
		s := it.Section()
		if s.Type != elf.SHT_REL && s.Type != elf.SHT_RELA {
			continue
		}
		if err := r.relocSection(s); err != nil {
			return err
		}
	}
	return it.Err()
}

func (r *report) relocSection(s elfcore.Section) error {
	name, err := r.f.SectionName(s)
	if err != nil {
		return err
	}
	rels, err := r.f.Relocs(s)
	if err != nil {
		return err
	}
	var syms elfcore.SymbolTable
	if s.Link != 0 {
		if link, err := r.f.Section(int(s.Link)); err == nil {
			syms, _ = r.f.Symbols(link)
		}
	}
	r.title(fmt.Sprintf("Relocations in %s (%d)", name, rels.Len()))
	table := r.table("offset", "type", "symbol", "addend")
	for rels.Next() {
		rel := rels.Reloc()
		sym := ""
		if rel.Sym != 0 {
			if entry, err := syms.Symbol(int(rel.Sym)); err == nil {
				if n, err := syms.Name(entry); err == nil {
					sym = r.symName(string(n))
				}
			}
		}
		addend := ""
		if rel.HasAddend {
			addend = fmt.Sprintf("%+#x", rel.Addend)
		}
		table.Append([]string{fmt.Sprintf("0x%x", rel.Off), relocType(r.f.Machine, rel.Kind), sym, addend})
	}
	table.Render()
	return rels.Err()
}

func relocType(m elf.Machine, kind uint32) string {
	switch m {
	case elf.EM_X86_64:
		return elf.R_X86_64(kind).String()
	case elf.EM_386:
		return elf.R_386(kind).String()
	case elf.EM_ARM:
		return elf.R_ARM(kind).String()
	case elf.EM_AARCH64:
		return elf.R_AARCH64(kind).String()
	case elf.EM_MIPS:
		return elf.R_MIPS(kind).String()
	case elf.EM_PPC64:
		return elf.R_PPC64(kind).String()
	case elf.EM_RISCV:
		return elf.R_RISCV(kind).String()
	}
	return fmt.Sprint(kind)
}

func (r *report) dynamic() error {
	info, err := r.plan.Dynamic()
	if err != nil || info == nil {
		return err
	}
	r.title("Dynamic")
	table := r.table("field", "value")
	table.AppendBulk([][]string{
		{"strtab", fmt.Sprintf("%s (%s)", info.Strtab, humanize.IBytes(info.Strsz))},
		{"symtab", info.Symtab.String()},
		{"rela", fmt.Sprintf("%s (%s)", info.Rela, humanize.IBytes(info.Relasz))},
		{"rel", fmt.Sprintf("%s (%s)", info.Rel, humanize.IBytes(info.Relsz))},
		{"jmprel", fmt.Sprintf("%s (%s)", info.Jmprel, humanize.IBytes(info.Pltrelsz))},
		{"flags", info.Flags.String()},
	})
	needed, err := r.plan.Needed(info)
	if err != nil {
		return err
	}
	if len(needed) > 0 {
		table.Append([]string{"needed", strings.Join(needed, ", ")})
	}
	if info.Unknown > 0 {
		table.Append([]string{"unknown tags", fmt.Sprint(info.Unknown)})
	}
	table.Render()
	return nil
}

func (r *report) notes() error {
	id, err := r.f.BuildID()
	if err != nil {
		return err
	}
	if id == nil {
		return nil
	}
	fmt.Fprintf(r.w, "\nbuild id %s\n", r.color(fmt.Sprintf("%x", id), "cyan"))
	return nil
}
