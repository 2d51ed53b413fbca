package packet

import (
	"bytes"
	"io"
)

// RESERVED stands in for type nibble 0x0 (forbidden on the wire) so
// Unpack can return the parsed fixed header alongside its error.
type RESERVED struct {
	*FixedHeader
}

func (pkt *RESERVED) Kind() byte {
	return pkt.FixedHeader.Kind
}

func (pkt *RESERVED) String() string {
	return kindName(0x0)
}

func (pkt *RESERVED) Pack(io.Writer) error {
	return nil
}

func (pkt *RESERVED) Unpack(*bytes.Buffer) error {
	return nil
}
