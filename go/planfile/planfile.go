// Package planfile stores a load plan, including the bytes of each
// segment, so a later stage can populate memory without the ELF image.
//
// The file is a struc-packed header followed by a snappy stream of
// segment records in the byte order named by the header.
package planfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/elfcore/go/models"
)

var PLAN_MAGIC = "ELFP"

const VERSION = 1

type Header struct {
	// MAGIC ("ELFP")
	Magic string `struc:"[4]byte"`
	// file format version
	Version uint32

	// Architecture name as reported by the loader. Right-null-padded.
	Arch string `struc:"[32]byte"`
	Bits uint8

	// Byte Order - 0 for little, 1 for big
	OrderNum uint8
	Order    binary.ByteOrder `struc:"skip"`

	// loader.EXEC, loader.DYN or loader.UNKNOWN
	Type  uint8
	Entry uint64
	Bias  uint64

	InterpLen int    `struc:"uint16,sizeof=Interp"`
	Interp    string
	Count     uint32
}

// Record is one packed segment.
type Record struct {
	Index   uint32
	Off     uint64
	Vaddr   uint64
	Memsz   uint64
	Paddr   uint64
	Align   uint64
	Prot    uint8
	DataLen int    `struc:"uint64,sizeof=Data"`
	Data    []byte
}

// recordHead is the fixed part of a Record. Read unpacks it first so the
// data length can be checked before anything is allocated for it.
type recordHead struct {
	Index   uint32
	Off     uint64
	Vaddr   uint64
	Memsz   uint64
	Paddr   uint64
	Align   uint64
	Prot    uint8
	DataLen uint64
}

func readRecord(s *models.StrucStream) (*Record, error) {
	var head recordHead
	if err := s.Unpack(&head); err != nil {
		return nil, err
	}
	if head.DataLen > head.Memsz || head.DataLen > math.MaxInt64 {
		return nil, errors.Errorf("segment %d: %d data bytes exceed memory size 0x%x", head.Index, head.DataLen, head.Memsz)
	}
	// the buffer grows with the bytes actually present in the stream
	var data bytes.Buffer
	if _, err := io.CopyN(&data, s.R, int64(head.DataLen)); err != nil {
		return nil, errors.Wrapf(err, "segment %d data", head.Index)
	}
	return &Record{
		Index:   head.Index,
		Off:     head.Off,
		Vaddr:   head.Vaddr,
		Memsz:   head.Memsz,
		Paddr:   head.Paddr,
		Align:   head.Align,
		Prot:    head.Prot,
		DataLen: data.Len(),
		Data:    data.Bytes(),
	}, nil
}

func (r *Record) Segment() models.Segment {
	return models.Segment{
		Index: int(r.Index),
		Src:   models.FileRange{Off: models.FileOff(r.Off), Size: uint64(len(r.Data))},
		Dst:   models.AddrRange{Start: models.VirtAddr(r.Vaddr), Size: r.Memsz},
		Phys:  models.PhysAddr(r.Paddr),
		Prot:  models.Prot(r.Prot),
		Zero:  r.Memsz - uint64(len(r.Data)),
		Align: r.Align,
	}
}

func orderNum(order binary.ByteOrder) uint8 {
	if order == binary.BigEndian {
		return 1
	}
	return 0
}

// Write packs l and the bytes of every segment to w.
func Write(w io.Writer, l models.Loader) error {
	order := l.ByteOrder()
	segs := l.Segments()
	header := &Header{
		Magic:    PLAN_MAGIC,
		Version:  VERSION,
		Arch:     l.Arch(),
		Bits:     uint8(l.Bits()),
		OrderNum: orderNum(order),
		Type:     uint8(l.Type()),
		Entry:    uint64(l.Entry()),
		Bias:     l.Bias(),
		Interp:   l.Interp(),
		Count:    uint32(len(segs)),
	}
	if err := struc.Pack(w, header); err != nil {
		return errors.Wrap(err, "failed to pack header")
	}
	zw := snappy.NewBufferedWriter(w)
	stream := &models.StrucStream{W: zw, Order: order}
	for i := range segs {
		s := &segs[i]
		rec := &Record{
			Index: uint32(s.Index),
			Off:   uint64(s.Src.Off),
			Vaddr: uint64(s.Dst.Start),
			Memsz: s.Dst.Size,
			Paddr: uint64(s.Phys),
			Align: s.Align,
			Prot:  uint8(s.Prot),
			Data:  l.Data(s),
		}
		if err := stream.Pack(rec); err != nil {
			zw.Close()
			return errors.Wrapf(err, "failed to pack segment %d", s.Index)
		}
	}
	return errors.Wrap(zw.Close(), "failed to flush segments")
}

// Plan is the decoded content of a plan file.
type Plan struct {
	Header   Header
	Segments []models.Segment
	Data     [][]byte
}

// Read unpacks a plan file from r.
func Read(r io.Reader) (*Plan, error) {
	p := &Plan{}
	if err := struc.Unpack(r, &p.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	h := &p.Header
	if h.Magic != PLAN_MAGIC {
		return nil, errors.New("invalid plan file magic")
	}
	if h.Version != VERSION {
		return nil, errors.Errorf("unsupported plan file version %d", h.Version)
	}
	h.Arch = strings.TrimRight(h.Arch, "\x00")
	switch h.OrderNum {
	case 0:
		h.Order = binary.LittleEndian
	case 1:
		h.Order = binary.BigEndian
	default:
		return nil, errors.Errorf("invalid byte order %d", h.OrderNum)
	}
	stream := &models.StrucStream{R: snappy.NewReader(r), Order: h.Order}
	for i := uint32(0); i < h.Count; i++ {
		rec, err := readRecord(stream)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to unpack segment record %d", i)
		}
		p.Segments = append(p.Segments, rec.Segment())
		p.Data = append(p.Data, rec.Data)
	}
	return p, nil
}

// Entry returns the entry point recorded in the header.
func (p *Plan) Entry() models.VirtAddr {
	return models.VirtAddr(p.Header.Entry)
}
