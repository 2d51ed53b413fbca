package packet

import (
	"bytes"
	"io"
)

// PINGRESP answers a PINGREQ (3.13): always the two bytes 0xD0 0x00.
type PINGRESP struct {
	*FixedHeader `json:"FixedHeader,omitempty"`
}

func (pkt *PINGRESP) Kind() byte {
	return 0xD
}

func (pkt *PINGRESP) String() string {
	return kindName(0xD)
}

func (pkt *PINGRESP) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 0
	return pkt.FixedHeader.Pack(w)
}

func (pkt *PINGRESP) Unpack(*bytes.Buffer) error {
	return nil
}
