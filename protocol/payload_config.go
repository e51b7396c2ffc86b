package protocol

import (
	"fmt"

	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

func (s *ConfigurationPayload) Type() PayloadType {
	return PayloadTypeCP
}

func (s *ConfigurationPayload) Encode() (b []byte) {
	b = []byte{uint8(s.ConfigurationType), 0, 0, 0}
	for _, attr := range s.ConfigurationAttributes {
		ab := make([]byte, 4)
		packets.WriteB16(ab, 0, uint16(attr.ConfigurationAttributeType)&0x7fff)
		packets.WriteB16(ab, 2, uint16(len(attr.Value)))
		b = append(b, ab...)
		b = append(b, attr.Value...)
	}
	return
}

func (s *ConfigurationPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return errors.Wrap(ERR_INVALID_SYNTAX, "config payload too small")
	}
	ct, _ := packets.ReadB8(b, 0)
	s.ConfigurationType = ConfigurationType(ct)
	b = b[4:]
	for len(b) > 0 {
		if len(b) < 4 {
			return errors.Wrap(ERR_INVALID_SYNTAX, "config attribute too small")
		}
		at, _ := packets.ReadB16(b, 0)
		alen, _ := packets.ReadB16(b, 2)
		if len(b) < 4+int(alen) {
			return errors.Wrap(ERR_INVALID_SYNTAX,
				fmt.Sprintf("config attribute overruns payload: %d", alen))
		}
		s.ConfigurationAttributes = append(s.ConfigurationAttributes,
			ConfigurationAttribute{
				ConfigurationAttributeType: ConfigurationAttributeType(at & 0x7fff),
				Value:                      append([]byte{}, b[4:4+alen]...),
			})
		b = b[4+alen:]
	}
	return nil
}

func (s *VendorIdPayload) Type() PayloadType {
	return PayloadTypeV
}
func (s *VendorIdPayload) Encode() (b []byte) { return s.Data }
func (s *VendorIdPayload) Decode(b []byte) error {
	s.Data = append([]byte{}, b...)
	return nil
}

func (s *EapPayload) Type() PayloadType  { return PayloadTypeEAP }
func (s *EapPayload) Encode() (b []byte) { return s.Data }
func (s *EapPayload) Decode(b []byte) error {
	s.Data = append([]byte{}, b...)
	return nil
}
