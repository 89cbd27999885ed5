package elf

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

// StringTable resolves NUL-terminated names inside one string table
// section. The zero value is an empty table in which every lookup fails.
type StringTable struct {
	data []byte
}

// NewStringTable makes a StringTable over the range r of buf.
func NewStringTable(buf []byte, r models.FileRange) (StringTable, error) {
	end, ok := span(uint64(r.Off), r.Size, len(buf))
	if !ok {
		return StringTable{}, errors.Wrapf(ErrOutOfBounds, "string table %s, buffer is 0x%x bytes", r, len(buf))
	}
	return StringTable{data: buf[r.Off:end:end]}, nil
}

func (t StringTable) Len() int {
	return len(t.data)
}

// Lookup returns the bytes from off up to, not including, the next NUL.
func (t StringTable) Lookup(off uint32) ([]byte, error) {
	if uint64(off) >= uint64(len(t.data)) {
		return nil, errors.Wrapf(ErrBadStringTableIndex, "offset 0x%x, table is 0x%x bytes", off, len(t.data))
	}
	rest := t.data[off:]
	n := bytes.IndexByte(rest, 0)
	if n < 0 {
		return nil, errors.Wrapf(ErrBadStringTableIndex, "string at 0x%x is not terminated", off)
	}
	return rest[:n:n], nil
}
