package elf

import "github.com/pkg/errors"

// Every error returned by this package wraps one of these, so callers can
// tell failure kinds apart with errors.Is.
var (
	ErrInvalidMagic          = errors.New("invalid ELF magic")
	ErrUnsupportedClass      = errors.New("unsupported ELF class")
	ErrUnsupportedEndianness = errors.New("unsupported ELF data encoding")
	ErrUnsupportedVersion    = errors.New("unsupported ELF version")
	ErrTruncatedBuffer       = errors.New("buffer too short for ELF header")
	ErrOutOfBounds           = errors.New("out of bounds")
	ErrMalformedTableEntry   = errors.New("malformed table entry")
	ErrBadStringTableIndex   = errors.New("bad string table index")
	ErrOverlappingSegments   = errors.New("overlapping segments")
)
