package packet

import (
	"bytes"
	"io"
)

// PINGREQ is the keep-alive probe (3.12): fixed header only, always
// the two bytes 0xC0 0x00.
type PINGREQ struct {
	*FixedHeader `json:"FixedHeader,omitempty"`
}

func (pkt *PINGREQ) Kind() byte {
	return 0xC
}

func (pkt *PINGREQ) String() string {
	return kindName(0xC)
}

func (pkt *PINGREQ) Pack(w io.Writer) error {
	pkt.FixedHeader.RemainingLength = 0
	return pkt.FixedHeader.Pack(w)
}

func (pkt *PINGREQ) Unpack(*bytes.Buffer) error {
	return nil
}
