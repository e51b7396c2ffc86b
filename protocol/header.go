package protocol

import (
	"fmt"

	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

func DecodeIkeHeader(b []byte) (h *IkeHeader, err error) {
	h = &IkeHeader{}
	if len(b) < IKE_HEADER_LEN {
		return nil, errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("header too short: %d < %d", len(b), IKE_HEADER_LEN))
	}
	h.SpiI = append([]byte{}, b[:8]...)
	h.SpiR = append([]byte{}, b[8:16]...)
	pt, _ := packets.ReadB8(b, 16)
	h.NextPayload = PayloadType(pt)
	ver, _ := packets.ReadB8(b, 17)
	h.MajorVersion = ver >> 4
	h.MinorVersion = ver & 0x0f
	if h.MajorVersion != IKEV2_MAJOR_VERSION {
		return nil, errors.Wrap(ERR_INVALID_MAJOR_VERSION,
			fmt.Sprintf("major version %d", h.MajorVersion))
	}
	et, _ := packets.ReadB8(b, 18)
	h.ExchangeType = IkeExchangeType(et)
	flags, _ := packets.ReadB8(b, 19)
	h.Flags = IkeFlags(flags)
	h.MsgId, _ = packets.ReadB32(b, 20)
	h.MsgLength, _ = packets.ReadB32(b, 24)
	if h.MsgLength < IKE_HEADER_LEN {
		return nil, errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("invalid message length %d", h.MsgLength))
	}
	return
}

func (h *IkeHeader) Encode() (b []byte) {
	b = make([]byte, IKE_HEADER_LEN)
	copy(b, h.SpiI)
	copy(b[8:], h.SpiR)
	packets.WriteB8(b, 16, uint8(h.NextPayload))
	packets.WriteB8(b, 17, h.MajorVersion<<4|h.MinorVersion)
	packets.WriteB8(b, 18, uint8(h.ExchangeType))
	packets.WriteB8(b, 19, uint8(h.Flags))
	packets.WriteB32(b, 20, h.MsgId)
	packets.WriteB32(b, 24, h.MsgLength)
	return
}
