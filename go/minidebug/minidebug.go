// Package minidebug unpacks the xz-compressed ELF image some
// distributions embed in .gnu_debugdata to carry a stripped binary's
// function symbols.
package minidebug

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	elfcore "github.com/lunixbochs/elfcore/go/elf"
)

const SectionName = ".gnu_debugdata"

// Decompressed images may be at most maxRatio times the section size,
// or minLimit bytes if that is larger.
const (
	maxRatio = 64
	minLimit = 1 << 20
)

var (
	ErrNoMiniDebugInfo = errors.New("no .gnu_debugdata section")
	ErrTooLarge        = errors.New(".gnu_debugdata expands past the size limit")
)

// Open decompresses the .gnu_debugdata section of f and parses the
// embedded image. The returned File owns a fresh buffer.
func Open(f elfcore.File) (elfcore.File, error) {
	s, ok, err := f.SectionByName(SectionName)
	if err != nil {
		return elfcore.File{}, err
	}
	if !ok {
		return elfcore.File{}, ErrNoMiniDebugInfo
	}
	data, err := f.SectionData(s)
	if err != nil {
		return elfcore.File{}, err
	}
	reader, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return elfcore.File{}, errors.Wrap(err, "failed to open xz stream")
	}
	limit := int64(len(data)) * maxRatio
	if limit < minLimit {
		limit = minLimit
	}
	var uncompressed bytes.Buffer
	n, err := io.Copy(&uncompressed, io.LimitReader(reader, limit+1))
	if err != nil {
		return elfcore.File{}, errors.Wrap(err, "failed to decompress "+SectionName)
	}
	if n > limit {
		return elfcore.File{}, errors.Wrapf(ErrTooLarge, "%d compressed bytes, limit %d", len(data), limit)
	}
	inner, err := elfcore.NewFile(uncompressed.Bytes())
	return inner, errors.Wrap(err, "embedded image")
}
