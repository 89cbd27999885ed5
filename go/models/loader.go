package models

import (
	"encoding/binary"
)

// Loader is a computed load plan, as consumed by tools that store or
// replay it.
type Loader interface {
	Arch() string
	Bits() int
	ByteOrder() binary.ByteOrder
	Type() int
	Entry() VirtAddr
	Bias() uint64
	Interp() string
	Segments() []Segment
	Data(s *Segment) []byte
	Symbols() ([]Symbol, error)
}
