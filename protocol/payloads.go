package protocol

// Payloads is an ordered payload list
type Payloads struct {
	Array []Payload
}

func MakePayloads() *Payloads {
	return &Payloads{}
}

func (p *Payloads) Get(t PayloadType) Payload {
	for _, pl := range p.Array {
		if pl.Type() == t {
			return pl
		}
	}
	return nil
}

func (p *Payloads) Add(t Payload) {
	p.Array = append(p.Array, t)
}

func (p *Payloads) GetNotifications() (ns []*NotifyPayload) {
	for _, pl := range p.Array {
		if pl.Type() == PayloadTypeN {
			ns = append(ns, pl.(*NotifyPayload))
		}
	}
	return
}

func (p *Payloads) GetNotification(nt NotificationType) *NotifyPayload {
	for _, pl := range p.Array {
		if pl.Type() == PayloadTypeN {
			if n := pl.(*NotifyPayload); n.NotificationType == nt {
				return n
			}
		}
	}
	return nil
}

// NewPayload returns an empty payload of the given type ready for
// Decode, or nil when the type is not known to this implementation.
func NewPayload(t PayloadType, hdr *PayloadHeader) Payload {
	switch t {
	case PayloadTypeSA:
		return &SaPayload{PayloadHeader: hdr}
	case PayloadTypeKE:
		return &KePayload{PayloadHeader: hdr}
	case PayloadTypeIDi:
		return &IdPayload{PayloadHeader: hdr, IdPayloadType: PayloadTypeIDi}
	case PayloadTypeIDr:
		return &IdPayload{PayloadHeader: hdr, IdPayloadType: PayloadTypeIDr}
	case PayloadTypeCERT:
		return &CertPayload{PayloadHeader: hdr}
	case PayloadTypeCERTREQ:
		return &CertRequestPayload{PayloadHeader: hdr}
	case PayloadTypeAUTH:
		return &AuthPayload{PayloadHeader: hdr}
	case PayloadTypeNonce:
		return &NoncePayload{PayloadHeader: hdr}
	case PayloadTypeN:
		return &NotifyPayload{PayloadHeader: hdr}
	case PayloadTypeD:
		return &DeletePayload{PayloadHeader: hdr}
	case PayloadTypeV:
		return &VendorIdPayload{PayloadHeader: hdr}
	case PayloadTypeTSi:
		return &TrafficSelectorPayload{PayloadHeader: hdr, TrafficSelectorPayloadType: PayloadTypeTSi}
	case PayloadTypeTSr:
		return &TrafficSelectorPayload{PayloadHeader: hdr, TrafficSelectorPayloadType: PayloadTypeTSr}
	case PayloadTypeSK:
		return &EncryptedPayload{PayloadHeader: hdr}
	case PayloadTypeSKF:
		return &EncryptedFragmentPayload{PayloadHeader: hdr}
	case PayloadTypeCP:
		return &ConfigurationPayload{PayloadHeader: hdr}
	case PayloadTypeEAP:
		return &EapPayload{PayloadHeader: hdr}
	}
	return nil
}

// EncodePayloads chains and serializes the list; the Next Payload of
// each header points at its successor.
func EncodePayloads(payloads *Payloads) (b []byte) {
	for idx, pl := range payloads.Array {
		body := pl.Encode()
		hdr := pl.Header()
		hdr.PayloadLength = uint16(len(body))
		next := PayloadTypeNone
		if idx < len(payloads.Array)-1 {
			next = payloads.Array[idx+1].Type()
		}
		hdr.NextPayload = next
		b = append(b, append(hdr.Encode(), body...)...)
	}
	return
}
