package protocol

import (
	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

func (s *AuthPayload) Type() PayloadType {
	return PayloadTypeAUTH
}

func (s *AuthPayload) Encode() (b []byte) {
	b = []byte{uint8(s.AuthMethod), 0, 0, 0}
	return append(b, s.Data...)
}

func (s *AuthPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return errors.Wrap(ERR_INVALID_SYNTAX, "auth payload too small")
	}
	// Header has already been decoded
	am, _ := packets.ReadB8(b, 0)
	s.AuthMethod = AuthMethod(am)
	s.Data = append([]byte{}, b[4:]...)
	return nil
}
