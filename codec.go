package mqtt

import (
	"bytes"

	"github.com/webmqtt/engine/packet"
)

// encodeStatus is returned by encoder.service per call.
type encodeStatus int

const (
	encodeInProgress encodeStatus = iota
	encodeDone
)

// encoder streams a single binary packet's bytes across repeated
// service calls, so a caller-supplied output buffer that fills up
// mid-packet doesn't lose position. Reset on every connection open and
// re-initialized (via initForPacket) before every new packet.
type encoder struct {
	staged *bytes.Buffer
}

func newEncoder() *encoder {
	return &encoder{staged: packet.GetBuffer()}
}

// initForPacket packs p in full into the internal staging buffer. MQTT
// packets are small enough (bounded by maximumPacketSizeToServer) that
// packing in one shot and then streaming the result out in chunks is
// simpler than a truly incremental packer, and matches the contract:
// service() is what is restartable across output-buffer boundaries,
// not Pack itself.
func (e *encoder) initForPacket(p packet.Packet) error {
	e.staged.Reset()
	return p.Pack(e.staged)
}

// service writes as much of the staged packet as fits into out,
// returning encodeDone once every byte has been drained. Calling
// service again after encodeDone returns encodeDone with zero bytes
// written (encoder idempotence).
func (e *encoder) service(out []byte) (encodeStatus, int) {
	if e.staged.Len() == 0 {
		return encodeDone, 0
	}
	n, _ := e.staged.Read(out)
	if e.staged.Len() == 0 {
		return encodeDone, n
	}
	return encodeInProgress, n
}

func (e *encoder) reset() {
	e.staged.Reset()
}

// decoder consumes incoming byte chunks of arbitrary size (one
// connection may deliver a packet split across many reads, or several
// packets coalesced into one read) and emits fully-formed internal
// packets. Reset on every connection open.
type decoder struct {
	version byte
	buf     bytes.Buffer
}

func newDecoder(version byte) *decoder {
	return &decoder{version: version}
}

func (d *decoder) reset() {
	d.buf.Reset()
}

// decode appends chunk to the internal buffer and extracts every
// complete packet it now contains, leaving any partial trailing packet
// buffered for the next call.
func (d *decoder) decode(chunk []byte) ([]packet.Packet, error) {
	d.buf.Write(chunk)

	var out []packet.Packet
	for {
		pkt, consumed, err := d.tryDecodeOne(d.buf.Bytes())
		if err != nil {
			return out, err
		}
		if pkt == nil {
			break
		}
		out = append(out, pkt)
		d.buf.Next(consumed)
	}
	return out, nil
}

// tryDecodeOne attempts to parse a single packet from the front of
// data. It returns (nil, 0, nil) when data holds an incomplete packet
// (not yet an error — more bytes are expected on a later decode call).
func (d *decoder) tryDecodeOne(data []byte) (packet.Packet, int, error) {
	if len(data) < 2 {
		return nil, 0, nil
	}
	remaining, headerLen, ok := peekRemainingLength(data[1:])
	if !ok {
		return nil, 0, nil
	}
	total := 1 + headerLen + int(remaining)
	if len(data) < total {
		return nil, 0, nil
	}
	r := bytes.NewReader(data[:total])
	pkt, err := packet.Unpack(d.version, r)
	if err != nil {
		return nil, 0, err
	}
	return pkt, total, nil
}

// peekRemainingLength decodes the VLI remaining-length field without
// consuming from the caller's buffer, reporting whether enough bytes
// were present to fully decode it.
func peekRemainingLength(b []byte) (value uint32, lenBytes int, ok bool) {
	var v uint32
	for i := 0; i < 4; i++ {
		if i >= len(b) {
			return 0, 0, false
		}
		v |= uint32(b[i]&0x7F) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, true
		}
	}
	return 0, 0, false
}
