package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
)

// StrucStream packs and unpacks struc records with a fixed byte order.
// Either side may be nil if the stream only goes one way.
type StrucStream struct {
	W     io.Writer
	R     io.Reader
	Order binary.ByteOrder
}

func (s *StrucStream) Pack(i interface{}) error {
	return struc.PackWithOrder(s.W, i, s.Order)
}

func (s *StrucStream) Unpack(i interface{}) error {
	return struc.UnpackWithOrder(s.R, i, s.Order)
}
