package elf

import "github.com/pkg/errors"

// Table is a run of fixed-size entries inside an image. Entries are
// borrowed from the image; nothing is copied.
type Table struct {
	buf    []byte
	off    uint64
	stride uint64
	count  int
}

// NewTable checks that count entries of stride bytes starting at off fit
// inside buf.
func NewTable(buf []byte, off, stride uint64, count int) (Table, error) {
	if count < 0 {
		return Table{}, errors.Wrapf(ErrMalformedTableEntry, "negative entry count %d", count)
	}
	if stride == 0 && count > 0 {
		return Table{}, errors.Wrap(ErrMalformedTableEntry, "zero entry size")
	}
	size, ok := tableSize(stride, count)
	if !ok {
		return Table{}, errors.Wrapf(ErrOutOfBounds, "%d entries of %d bytes overflow", count, stride)
	}
	if _, ok := span(off, size, len(buf)); !ok {
		return Table{}, errors.Wrapf(ErrOutOfBounds, "table of 0x%x bytes at 0x%x, buffer is 0x%x bytes", size, off, len(buf))
	}
	return Table{buf: buf, off: off, stride: stride, count: count}, nil
}

func (t Table) Len() int {
	return t.count
}

func (t Table) Stride() int {
	return int(t.stride)
}

// entry returns entry i without range checking i.
func (t Table) entry(i int) []byte {
	lo := t.off + uint64(i)*t.stride
	hi := lo + t.stride
	return t.buf[lo:hi:hi]
}

// Entry returns the raw bytes of entry i.
func (t Table) Entry(i int) ([]byte, error) {
	if i < 0 || i >= t.count {
		return nil, errors.Wrapf(ErrOutOfBounds, "entry %d of %d", i, t.count)
	}
	return t.entry(i), nil
}

// Iter returns an iterator positioned before the first entry.
func (t Table) Iter() TableIter {
	return TableIter{t: t, i: -1}
}

// TableIter walks a Table in file order. The zero value is an empty
// iterator.
type TableIter struct {
	t Table
	i int
}

// Next advances to the next entry and reports whether there is one.
func (it *TableIter) Next() bool {
	if it.i+1 >= it.t.count {
		it.i = it.t.count
		return false
	}
	it.i++
	return true
}

// Entry returns the current entry. It is exactly Stride bytes long.
func (it *TableIter) Entry() []byte {
	return it.t.entry(it.i)
}

// Index returns the position of the current entry in the table.
func (it *TableIter) Index() int {
	return it.i
}

// Reset rewinds the iterator to before the first entry.
func (it *TableIter) Reset() {
	it.i = -1
}
