package models

import (
	"fmt"
	"math/bits"
)

// VirtAddr is an address in the target's virtual address space.
type VirtAddr uint64

// PhysAddr is an address in the target's physical address space. It is
// only meaningful to loaders that run before paging is enabled.
type PhysAddr uint64

// FileOff is a byte offset into the image buffer.
type FileOff uint64

func (v VirtAddr) String() string {
	return fmt.Sprintf("0x%x", uint64(v))
}

func (p PhysAddr) String() string {
	return fmt.Sprintf("phys:0x%x", uint64(p))
}

func (f FileOff) String() string {
	return fmt.Sprintf("file:0x%x", uint64(f))
}

// Add returns v+n and false if the sum wraps.
func (v VirtAddr) Add(n uint64) (VirtAddr, bool) {
	sum, carry := bits.Add64(uint64(v), n, 0)
	return VirtAddr(sum), carry == 0
}

// Add returns p+n and false if the sum wraps.
func (p PhysAddr) Add(n uint64) (PhysAddr, bool) {
	sum, carry := bits.Add64(uint64(p), n, 0)
	return PhysAddr(sum), carry == 0
}

// Add returns f+n and false if the sum wraps.
func (f FileOff) Add(n uint64) (FileOff, bool) {
	sum, carry := bits.Add64(uint64(f), n, 0)
	return FileOff(sum), carry == 0
}

// AddrRange is a half-open range [Start, Start+Size) of virtual addresses.
type AddrRange struct {
	Start VirtAddr
	Size  uint64
}

// End returns the exclusive end of the range. Callers must have checked
// that Start+Size does not wrap.
func (r AddrRange) End() VirtAddr {
	return r.Start + VirtAddr(r.Size)
}

func (r AddrRange) Contains(addr VirtAddr) bool {
	return r.Start <= addr && uint64(addr-r.Start) < r.Size
}

// Overlaps returns true if the ranges have any address in common. Empty
// ranges overlap nothing.
func (r AddrRange) Overlaps(o AddrRange) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	return r.Start < o.End() && o.Start < r.End()
}

// Merge grows r to cover o as well.
func (r *AddrRange) Merge(o AddrRange) {
	end := r.End()
	if o.End() > end {
		end = o.End()
	}
	if o.Start < r.Start {
		r.Start = o.Start
	}
	r.Size = uint64(end - r.Start)
}

func (r AddrRange) String() string {
	return fmt.Sprintf("[0x%x,0x%x)", uint64(r.Start), uint64(r.End()))
}

// FileRange is a half-open range [Off, Off+Size) of bytes in the image.
type FileRange struct {
	Off  FileOff
	Size uint64
}

func (r FileRange) End() FileOff {
	return r.Off + FileOff(r.Size)
}

func (r FileRange) String() string {
	return fmt.Sprintf("file:[0x%x,0x%x)", uint64(r.Off), uint64(r.End()))
}
