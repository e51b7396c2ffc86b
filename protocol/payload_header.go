package protocol

import (
	"fmt"

	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

func (h *PayloadHeader) NextPayloadType() PayloadType {
	return h.NextPayload
}

func (h *PayloadHeader) Header() *PayloadHeader {
	return h
}

func (h PayloadHeader) Encode() (b []byte) {
	b = make([]byte, PAYLOAD_HEADER_LENGTH)
	packets.WriteB8(b, 0, uint8(h.NextPayload))
	if h.IsCritical {
		packets.WriteB8(b, 1, 0x80)
	}
	packets.WriteB16(b, 2, h.PayloadLength+PAYLOAD_HEADER_LENGTH)
	return
}

func (h *PayloadHeader) Decode(b []byte) error {
	if len(b) < PAYLOAD_HEADER_LENGTH {
		return errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("payload header too short: %d", len(b)))
	}
	pt, _ := packets.ReadB8(b, 0)
	h.NextPayload = PayloadType(pt)
	if c, _ := packets.ReadB8(b, 1); c&0x80 != 0 {
		h.IsCritical = true
	}
	h.PayloadLength, _ = packets.ReadB16(b, 2)
	return nil
}
