package models

import "fmt"

// Symbol is an owned copy of a symbol table entry, for callers that keep
// symbols around after the image buffer is gone.
type Symbol struct {
	Name       string
	Start, End VirtAddr
	Dynamic    bool
}

func (s Symbol) Contains(addr VirtAddr) bool {
	if s.End == s.Start {
		return addr == s.Start
	}
	return s.Start <= addr && addr < s.End
}

// Symbolicate finds the symbol closest below addr that contains it and
// formats addr as name+0xoff. It returns an empty string when nothing
// matches.
func Symbolicate(syms []Symbol, addr VirtAddr) string {
	best := -1
	for i := range syms {
		if !syms[i].Contains(addr) {
			continue
		}
		if best < 0 || syms[i].Start > syms[best].Start {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	s := &syms[best]
	if dist := addr - s.Start; dist > 0 {
		return fmt.Sprintf("%s+0x%x", s.Name, uint64(dist))
	}
	return s.Name
}
