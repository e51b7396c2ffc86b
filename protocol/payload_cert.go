package protocol

import (
	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

func (s *CertPayload) Type() PayloadType {
	return PayloadTypeCERT
}

func (s *CertPayload) Encode() (b []byte) {
	b = []byte{uint8(s.CertEncodingType)}
	return append(b, s.Data...)
}

func (s *CertPayload) Decode(b []byte) error {
	if len(b) < 1 {
		return errors.Wrap(ERR_INVALID_SYNTAX, "cert payload empty")
	}
	// Header has already been decoded
	enc, _ := packets.ReadB8(b, 0)
	s.CertEncodingType = CertEncodingType(enc)
	s.Data = append([]byte{}, b[1:]...)
	return nil
}

func (s *CertRequestPayload) Type() PayloadType {
	return PayloadTypeCERTREQ
}

func (s *CertRequestPayload) Encode() (b []byte) {
	b = []byte{uint8(s.CertEncodingType)}
	return append(b, s.CaData...)
}

func (s *CertRequestPayload) Decode(b []byte) error {
	if len(b) < 1 {
		return errors.Wrap(ERR_INVALID_SYNTAX, "certreq payload empty")
	}
	enc, _ := packets.ReadB8(b, 0)
	s.CertEncodingType = CertEncodingType(enc)
	s.CaData = append([]byte{}, b[1:]...)
	return nil
}
