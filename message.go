package ike

import (
	"fmt"
	"net"

	"github.com/davecgh/go-spew/spew"
	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PacketLog turns on verbose dumps of every decoded payload.
var PacketLog = false

// PayloadSummary is the outcome of one payload-decoding pass over a
// message (clear or encrypted).
type PayloadSummary struct {
	Parsed   bool
	Seen     protocol.PayloadSet
	Repeated protocol.PayloadSet
	// Notification is NOTHING_WRONG when the walk completed; otherwise
	// the error notification the walk failed with
	Notification protocol.NotificationType
	// Data accompanies the notification; for
	// UNSUPPORTED_CRITICAL_PAYLOAD it is the offending type byte
	Data []byte
}

func (s PayloadSummary) Ok() bool {
	return s.Notification == protocol.NOTHING_WRONG
}

// Message is everything known about one incoming message: the decoded
// header, the payload digest with its per-type chains, the clear and
// encrypted summaries, and the SA and transition once resolved.
type Message struct {
	IkeHeader             *protocol.IkeHeader
	Payloads              *protocol.Payloads
	LocalAddr, RemoteAddr net.Addr

	Data []byte // raw datagram

	chain map[protocol.PayloadType][]protocol.Payload

	ClearPayloads     PayloadSummary
	EncryptedPayloads PayloadSummary

	// offset of the SK/SKF ciphertext within Data
	ivOffset int

	FromState  state.State
	Transition *Transition
	Sa         *Sa
}

// DecodeMessage decodes the header and retains the raw packet; payloads
// are walked on demand by the dispatcher so that at most one pass runs.
func DecodeMessage(b []byte, local, remote net.Addr) (*Message, error) {
	hdr, err := protocol.DecodeIkeHeader(b)
	if err != nil {
		return nil, err
	}
	if len(b) < int(hdr.MsgLength) {
		return nil, errors.Wrap(protocol.ERR_INVALID_SYNTAX,
			fmt.Sprintf("message truncated: %d < %d", len(b), hdr.MsgLength))
	}
	return &Message{
		IkeHeader:  hdr,
		Payloads:   protocol.MakePayloads(),
		LocalAddr:  local,
		RemoteAddr: remote,
		Data:       b[:hdr.MsgLength],
		chain:      make(map[protocol.PayloadType][]protocol.Payload),
	}, nil
}

// Chain lists all occurrences of a payload type in message order.
func (m *Message) Chain(t protocol.PayloadType) []protocol.Payload {
	return m.chain[t]
}

func (m *Message) IsRequest() bool {
	return !m.IkeHeader.Flags.IsResponse()
}

func (m *Message) IsResponse() bool {
	return m.IkeHeader.Flags.IsResponse()
}

// SentByInitiator reports the I(nitiator) header bit.
func (m *Message) SentByInitiator() bool {
	return m.IkeHeader.Flags.IsInitiator()
}

// Skf returns the encrypted-fragment payload, if any.
func (m *Message) Skf() *protocol.EncryptedFragmentPayload {
	if pl := m.Payloads.Get(protocol.PayloadTypeSKF); pl != nil {
		return pl.(*protocol.EncryptedFragmentPayload)
	}
	return nil
}

// DecodePayloads walks one chained payload list into the digest,
// appending to the per-type chains and producing a summary. b is the
// payload area, np the first payload type, base the offset of b within
// the datagram (used to record the ciphertext position of SK/SKF).
//
// Unknown payloads abort the walk only when critical (rfc7296 2.5); a
// non-critical unknown is logged and skipped. SK and SKF terminate the
// walk since their content is nested (rfc7296 3.14).
func (m *Message) DecodePayloads(b []byte, np protocol.PayloadType, base int, log *logrus.Entry) (sum PayloadSummary) {
	sum.Parsed = true
	sum.Notification = protocol.NOTHING_WRONG
	for np != protocol.PayloadTypeNone {
		if len(m.Payloads.Array) >= protocol.MAX_PAYLOADS_PER_MESSAGE {
			log.Warningf("more than %d payloads in message; rejected",
				protocol.MAX_PAYLOADS_PER_MESSAGE)
			sum.Notification = protocol.INVALID_SYNTAX
			return
		}
		if len(b) < protocol.PAYLOAD_HEADER_LENGTH {
			log.Warningf("truncated payload header: %d bytes left", len(b))
			sum.Notification = protocol.INVALID_SYNTAX
			return
		}
		pHeader := &protocol.PayloadHeader{}
		if err := pHeader.Decode(b[:protocol.PAYLOAD_HEADER_LENGTH]); err != nil {
			sum.Notification = protocol.INVALID_SYNTAX
			return
		}
		if int(pHeader.PayloadLength) < protocol.PAYLOAD_HEADER_LENGTH ||
			len(b) < int(pHeader.PayloadLength) {
			log.Warningf("bad length %d in payload header", pHeader.PayloadLength)
			sum.Notification = protocol.INVALID_SYNTAX
			return
		}
		payload := protocol.NewPayload(np, pHeader)
		if payload == nil {
			// unknown to us; the generic header is already decoded and
			// carries the critical bit and the successor type
			if pHeader.IsCritical {
				log.Warningf("message contained an unknown critical payload type (%s)", np)
				sum.Notification = protocol.UNSUPPORTED_CRITICAL_PAYLOAD
				sum.Data = []byte{uint8(np)}
				return
			}
			log.Infof("non-critical payload of unknown type (%s) ignored", np)
			np = pHeader.NextPayload
			b = b[pHeader.PayloadLength:]
			base += int(pHeader.PayloadLength)
			continue
		}
		// the seen set is a bitset over the type number
		if np >= 64 {
			log.Warningf("payload type %d outside supported range", np)
			sum.Notification = protocol.INVALID_SYNTAX
			return
		}
		if sum.Seen.Has(np) {
			sum.Repeated = sum.Repeated.Add(np)
		}
		sum.Seen = sum.Seen.Add(np)

		pbuf := b[protocol.PAYLOAD_HEADER_LENGTH:pHeader.PayloadLength]
		if err := payload.Decode(pbuf); err != nil {
			log.Warningf("malformed %s payload: %v", np, err)
			sum.Notification = protocol.INVALID_SYNTAX
			return
		}
		if PacketLog {
			log.Debugf("payload %s: %s", np, spew.Sdump(payload))
		}
		m.Payloads.Add(payload)
		m.chain[np] = append(m.chain[np], payload)

		switch np {
		case protocol.PayloadTypeSK:
			m.ivOffset = base + protocol.PAYLOAD_HEADER_LENGTH
			np = protocol.PayloadTypeNone
		case protocol.PayloadTypeSKF:
			// fragment number & total precede the ciphertext
			m.ivOffset = base + protocol.PAYLOAD_HEADER_LENGTH + 4
			np = protocol.PayloadTypeNone
		default:
			np = pHeader.NextPayload
			b = b[pHeader.PayloadLength:]
			base += int(pHeader.PayloadLength)
		}
	}
	return
}

// decodeClear runs the clear pass at most once.
func (m *Message) decodeClear(log *logrus.Entry) PayloadSummary {
	if m.ClearPayloads.Parsed {
		return m.ClearPayloads
	}
	m.ClearPayloads = m.DecodePayloads(
		m.Data[protocol.IKE_HEADER_LEN:m.IkeHeader.MsgLength],
		m.IkeHeader.NextPayload, protocol.IKE_HEADER_LEN, log)
	return m.ClearPayloads
}

// SkCiphertext is the ciphertext window of the SK/SKF payload and the
// associated data preceding it.
func (m *Message) SkCiphertext() (aad, ct []byte) {
	if m.ivOffset == 0 {
		return nil, nil
	}
	return m.Data[:m.ivOffset], m.Data[m.ivOffset:m.IkeHeader.MsgLength]
}

// EnsurePayloads checks for the presence of each listed payload type.
func (m *Message) EnsurePayloads(payloadTypes []protocol.PayloadType) error {
	for _, pt := range payloadTypes {
		if m.Payloads.Get(pt) == nil {
			return errors.Errorf("essential payload %s is missing from %s message",
				pt, m.IkeHeader.ExchangeType)
		}
	}
	return nil
}
