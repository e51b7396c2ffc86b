package protocol

import (
	"fmt"
	"net"

	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

func decodeSelector(b []byte) (sel *Selector, used int, err error) {
	if len(b) < MIN_LEN_SELECTOR {
		err = errors.Wrap(ERR_INVALID_SYNTAX, "selector too small")
		return
	}
	stype, _ := packets.ReadB8(b, 0)
	id, _ := packets.ReadB8(b, 1)
	slen, _ := packets.ReadB16(b, 2)
	if len(b) < int(slen) {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("bad selector length %d", slen))
		return
	}
	sport, _ := packets.ReadB16(b, 4)
	eport, _ := packets.ReadB16(b, 6)
	var alen int
	switch SelectorType(stype) {
	case TS_IPV4_ADDR_RANGE:
		alen = net.IPv4len
	case TS_IPV6_ADDR_RANGE:
		alen = net.IPv6len
	default:
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("unknown selector type %d", stype))
		return
	}
	if int(slen) != MIN_LEN_SELECTOR+2*alen {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("selector length %d does not fit type", slen))
		return
	}
	sel = &Selector{
		Type:         SelectorType(stype),
		IpProtocolId: id,
		StartPort:    sport,
		Endport:      eport,
		StartAddress: append(net.IP{}, b[MIN_LEN_SELECTOR:MIN_LEN_SELECTOR+alen]...),
		EndAddress:   append(net.IP{}, b[MIN_LEN_SELECTOR+alen:slen]...),
	}
	used = int(slen)
	return
}

func encodeSelector(sel *Selector) (b []byte) {
	b = make([]byte, MIN_LEN_SELECTOR)
	packets.WriteB8(b, 0, uint8(sel.Type))
	packets.WriteB8(b, 1, sel.IpProtocolId)
	packets.WriteB16(b, 4, sel.StartPort)
	packets.WriteB16(b, 6, sel.Endport)
	b = append(b, sel.StartAddress...)
	b = append(b, sel.EndAddress...)
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

func (s *TrafficSelectorPayload) Type() PayloadType {
	return s.TrafficSelectorPayloadType
}

func (s *TrafficSelectorPayload) Encode() (b []byte) {
	b = []byte{uint8(len(s.Selectors)), 0, 0, 0}
	for _, sel := range s.Selectors {
		b = append(b, encodeSelector(sel)...)
	}
	return
}

func (s *TrafficSelectorPayload) Decode(b []byte) error {
	if len(b) < MIN_LEN_TRAFFIC_SELECTOR {
		return errors.Wrap(ERR_INVALID_SYNTAX, "traffic selector too small")
	}
	numSel, _ := packets.ReadB8(b, 0)
	b = b[MIN_LEN_TRAFFIC_SELECTOR:]
	for i := 0; i < int(numSel); i++ {
		sel, used, err := decodeSelector(b)
		if err != nil {
			return err
		}
		s.Selectors = append(s.Selectors, sel)
		b = b[used:]
	}
	if len(b) > 0 {
		return errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("%d bytes after last selector", len(b)))
	}
	return nil
}
