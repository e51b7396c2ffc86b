package ike

import (
	"net"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/pkg/errors"
)

// encodeTx serializes an outgoing message. With a suite the payloads go
// inside an SK payload; the SK header's Next Payload names the first
// embedded payload (rfc7296 3.14).
func encodeTx(hdr *protocol.IkeHeader, payloads *protocol.Payloads, suite Suite, forInitiator bool) ([]byte, error) {
	if suite == nil {
		body := protocol.EncodePayloads(payloads)
		hdr.MsgLength = uint32(len(body) + protocol.IKE_HEADER_LEN)
		if len(payloads.Array) > 0 {
			hdr.NextPayload = payloads.Array[0].Type()
		} else {
			hdr.NextPayload = protocol.PayloadTypeNone
		}
		return append(hdr.Encode(), body...), nil
	}
	payload := protocol.EncodePayloads(payloads)
	plen := len(payload) + suite.Overhead(len(payload))
	firstPayload := protocol.PayloadTypeNone // no payloads is one possibility
	if len(payloads.Array) > 0 {
		firstPayload = payloads.Array[0].Type()
	}
	ph := protocol.PayloadHeader{
		NextPayload:   firstPayload,
		PayloadLength: uint16(plen),
	}.Encode()
	hdr.NextPayload = protocol.PayloadTypeSK
	hdr.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(ph) + plen)
	headers := append(hdr.Encode(), ph...)
	return suite.EncryptMac(headers, payload, forInitiator)
}

// encodeTxFragments splits the plaintext across SKF payloads, each
// encrypted on its own (rfc7383 2.5).
func encodeTxFragments(hdr *protocol.IkeHeader, payloads *protocol.Payloads, suite Suite, forInitiator bool, fragSize int) ([][]byte, error) {
	payload := protocol.EncodePayloads(payloads)
	firstPayload := protocol.PayloadTypeNone
	if len(payloads.Array) > 0 {
		firstPayload = payloads.Array[0].Type()
	}
	total := (len(payload) + fragSize - 1) / fragSize
	if total < 1 {
		total = 1
	}
	if total > protocol.MAX_IKE_FRAGMENTS {
		return nil, errors.Errorf("message needs %d fragments, limit is %d",
			total, protocol.MAX_IKE_FRAGMENTS)
	}
	var out [][]byte
	for num := 1; num <= total; num++ {
		chunk := payload
		if len(chunk) > fragSize {
			chunk = chunk[:fragSize]
		}
		payload = payload[len(chunk):]
		// 4 bytes of fragment number & total precede the ciphertext
		plen := 4 + len(chunk) + suite.Overhead(len(chunk))
		np := protocol.PayloadTypeNone
		if num == 1 {
			np = firstPayload
		}
		ph := protocol.PayloadHeader{
			NextPayload:   np,
			PayloadLength: uint16(plen),
		}.Encode()
		fh := protocol.EncryptedFragmentPayload{
			FragmentNumber: uint16(num),
			TotalFragments: uint16(total),
		}
		fhdr := fh.Encode()[:4]
		h := *hdr
		h.NextPayload = protocol.PayloadTypeSKF
		h.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(ph) + plen)
		headers := append(h.Encode(), ph...)
		headers = append(headers, fhdr...)
		b, err := suite.EncryptMac(headers, chunk, forInitiator)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (d *Demux) responseHeader(spiI, spiR protocol.Spi, exch protocol.IkeExchangeType, weAreInitiator bool, msgid uint32) *protocol.IkeHeader {
	flags := protocol.RESPONSE
	if weAreInitiator {
		flags |= protocol.INITIATOR
	}
	return &protocol.IkeHeader{
		SpiI:         spiI,
		SpiR:         spiR,
		MajorVersion: protocol.IKEV2_MAJOR_VERSION,
		MinorVersion: protocol.IKEV2_MINOR_VERSION,
		ExchangeType: exch,
		Flags:        flags,
		MsgId:        msgid,
	}
}

func notifyPayloads(n protocol.NotificationType, data []byte) *protocol.Payloads {
	pl := protocol.MakePayloads()
	pl.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		ProtocolId:       protocol.IKE,
		NotificationType: n,
		Data:             data,
	})
	return pl
}

// sendNotifyFromMd answers a message no SA exists for: a plaintext
// notify echoing the peer's SPIs. Used only at the IKE_SA_INIT stage.
func (d *Demux) sendNotifyFromMd(md *Message, n protocol.NotificationType, data []byte) {
	hdr := d.responseHeader(md.IkeHeader.SpiI, md.IkeHeader.SpiR,
		md.IkeHeader.ExchangeType, false, md.IkeHeader.MsgId)
	b, err := encodeTx(hdr, notifyPayloads(n, data), nil, false)
	if err != nil {
		d.log.Warningf("building %s response: %v", n, err)
		return
	}
	d.log.Infof("responding with %s to %s request", n, md.IkeHeader.ExchangeType)
	d.transmit(b, md.RemoteAddr)
}

// sendNotifyFromSa answers through an established SA, encrypted when
// key material exists.
func (d *Demux) sendNotifyFromSa(sa *Sa, md *Message, n protocol.NotificationType, data []byte) {
	ike := d.ikeSaOf(sa)
	if ike == nil {
		d.sendNotifyFromMd(md, n, data)
		return
	}
	hdr := d.responseHeader(ike.SpiI, ike.SpiR, md.IkeHeader.ExchangeType,
		ike.Role == RoleInitiator, md.IkeHeader.MsgId)
	b, err := encodeTx(hdr, notifyPayloads(n, data), ike.Suite, ike.Role == RoleInitiator)
	if err != nil {
		d.saLog(ike).Warningf("building %s response: %v", n, err)
		return
	}
	d.saLog(ike).Infof("responding with %s to %s request", n, md.IkeHeader.ExchangeType)
	d.transmitToSa(ike, b)
}

// RecordReply encodes a reply to md and retains it; the completion path
// sends it and keeps it for retransmission. Fragments when the peer
// fragments and the encoded payloads exceed cfg.FragmentSize.
func (d *Demux) RecordReply(sa *Sa, md *Message, payloads *protocol.Payloads, encrypted bool) error {
	ike := d.ikeSaOf(sa)
	if ike == nil {
		return errors.New("no IKE SA to reply on")
	}
	hdr := d.responseHeader(ike.SpiI, ike.SpiR, md.IkeHeader.ExchangeType,
		ike.Role == RoleInitiator, md.IkeHeader.MsgId)
	var suite Suite
	if encrypted {
		if ike.Suite == nil {
			return errors.New("cannot encrypt, no key material yet")
		}
		suite = ike.Suite
	}
	if suite != nil && ike.SeenFragments {
		if est := len(protocol.EncodePayloads(payloads)); est > d.cfg.FragmentSize {
			frags, err := encodeTxFragments(hdr, payloads, suite,
				ike.Role == RoleInitiator, d.cfg.FragmentSize)
			if err != nil {
				return err
			}
			ike.recordSent(md.IkeHeader.MsgId, nil, frags)
			return nil
		}
	}
	b, err := encodeTx(hdr, payloads, suite, ike.Role == RoleInitiator)
	if err != nil {
		return err
	}
	ike.recordSent(md.IkeHeader.MsgId, b, nil)
	return nil
}

// RecordRequest encodes a request using the next Message ID and retains
// it; the completion path sends it and arms retransmission.
func (d *Demux) RecordRequest(ike *Sa, exch protocol.IkeExchangeType, payloads *protocol.Payloads, encrypted bool) error {
	msgid := ike.NextUse
	if msgid == InvalidMsgId {
		msgid = 0
	}
	var flags protocol.IkeFlags
	if ike.Role == RoleInitiator {
		flags = protocol.INITIATOR
	}
	hdr := &protocol.IkeHeader{
		SpiI:         ike.SpiI,
		SpiR:         ike.SpiR,
		MajorVersion: protocol.IKEV2_MAJOR_VERSION,
		MinorVersion: protocol.IKEV2_MINOR_VERSION,
		ExchangeType: exch,
		Flags:        flags,
		MsgId:        msgid,
	}
	var suite Suite
	if encrypted {
		if ike.Suite == nil {
			return errors.New("cannot encrypt, no key material yet")
		}
		suite = ike.Suite
	}
	b, err := encodeTx(hdr, payloads, suite, ike.Role == RoleInitiator)
	if err != nil {
		return err
	}
	ike.recordSent(InvalidMsgId, b, nil)
	return nil
}

// sendRecorded re-emits the retained packet (or fragment list) of the
// SA; retransmissions never re-enter a handler.
func (d *Demux) sendRecorded(sa *Sa) {
	ike := d.ikeSaOf(sa)
	if ike == nil {
		return
	}
	if len(ike.sentFragments) > 0 {
		for _, f := range ike.sentFragments {
			d.transmitToSa(ike, f)
		}
		return
	}
	if len(ike.sentPacket) > 0 {
		d.transmitToSa(ike, ike.sentPacket)
	}
}

func (d *Demux) transmitToSa(ike *Sa, b []byte) {
	d.transmit(b, ike.Remote)
}

func (d *Demux) transmit(b []byte, to net.Addr) {
	if d.send == nil || b == nil {
		return
	}
	if err := d.send(b, to); err != nil {
		d.log.Warningf("write: %v", err)
	}
}
