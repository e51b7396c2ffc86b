package protocol

import (
	"fmt"

	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

// SK and SKF carry ciphertext; their content is decoded only after
// decryption. The Next Payload field of their header names the first
// embedded payload (rfc7296 3.14), so the outer walk stops here.

func (s *EncryptedPayload) Type() PayloadType  { return PayloadTypeSK }
func (s *EncryptedPayload) Encode() (b []byte) { return }
func (s *EncryptedPayload) Decode(b []byte) error {
	return nil
}

func (s *EncryptedFragmentPayload) Type() PayloadType { return PayloadTypeSKF }

func (s *EncryptedFragmentPayload) Encode() (b []byte) {
	b = make([]byte, 4)
	packets.WriteB16(b, 0, s.FragmentNumber)
	packets.WriteB16(b, 2, s.TotalFragments)
	return append(b, s.Content...)
}

func (s *EncryptedFragmentPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return errors.Wrap(ERR_INVALID_SYNTAX, "skf payload too small")
	}
	s.FragmentNumber, _ = packets.ReadB16(b, 0)
	s.TotalFragments, _ = packets.ReadB16(b, 2)
	if s.TotalFragments == 0 {
		return errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("skf total is zero, number %d", s.FragmentNumber))
	}
	s.Content = append([]byte{}, b[4:]...)
	return nil
}
