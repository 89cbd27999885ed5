package models

import (
	"cmp"
	"fmt"
	"slices"
)

// Prot is the set of access rights a loaded segment needs.
type Prot uint8

const (
	PROT_READ Prot = 1 << iota
	PROT_WRITE
	PROT_EXEC
)

func (p Prot) String() string {
	prots := []Prot{PROT_READ, PROT_WRITE, PROT_EXEC}
	chars := "rwx"
	var s [3]byte
	for i := range prots {
		if p&prots[i] != 0 {
			s[i] = chars[i]
		} else {
			s[i] = '-'
		}
	}
	return string(s[:])
}

// Segment describes one region the memory manager has to populate: copy
// Src from the image to the start of Dst, then zero the remaining Zero
// bytes.
type Segment struct {
	Index int // program header index this segment was built from
	Src   FileRange
	Dst   AddrRange
	Phys  PhysAddr
	Prot  Prot
	Zero  uint64
	Align uint64
}

// Data returns the source bytes of the segment, borrowed from image.
func (s *Segment) Data(image []byte) []byte {
	return image[s.Src.Off:s.Src.End()]
}

// ContainsFile reports whether addr is backed by bytes from the image
// rather than by the zero-filled tail.
func (s *Segment) ContainsFile(addr VirtAddr) bool {
	return s.Dst.Start <= addr && uint64(addr-s.Dst.Start) < s.Src.Size
}

func (s *Segment) ContainsVirt(addr VirtAddr) bool {
	return s.Dst.Contains(addr)
}

func (s *Segment) Overlaps(o *Segment) bool {
	return s.Dst.Overlaps(o.Dst)
}

func (s *Segment) String() string {
	desc := fmt.Sprintf("0x%x-0x%x %s %s", uint64(s.Dst.Start), uint64(s.Dst.End()), s.Prot, s.Src)
	if s.Zero > 0 {
		desc += fmt.Sprintf(" [zero 0x%x]", s.Zero)
	}
	return desc
}

func byAddr(a, b Segment) int {
	return cmp.Compare(a.Dst.Start, b.Dst.Start)
}

func byIndex(a, b Segment) int {
	return cmp.Compare(a.Index, b.Index)
}

// FindOverlap looks for two segments with intersecting destination ranges
// and returns their program header indices. segs is sorted by destination
// while searching and put back in Index order before returning, so it must
// hold unique indices in ascending order.
func FindOverlap(segs []Segment) (a, b int, found bool) {
	slices.SortFunc(segs, byAddr)
	widest := -1
	for i := range segs {
		if segs[i].Dst.Size == 0 {
			continue
		}
		if widest >= 0 && segs[i].Dst.Start < segs[widest].Dst.End() {
			a, b, found = segs[widest].Index, segs[i].Index, true
			break
		}
		if widest < 0 || segs[i].Dst.End() > segs[widest].Dst.End() {
			widest = i
		}
	}
	slices.SortFunc(segs, byIndex)
	return
}
