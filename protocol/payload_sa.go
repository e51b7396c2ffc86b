package protocol

import (
	"fmt"

	"github.com/msgboxio/ikev2/packets"
	"github.com/pkg/errors"
)

// SA payload

func (prop *SaProposal) IsSpiSizeCorrect(spiSize int) bool {
	switch prop.ProtocolId {
	case IKE:
		return spiSize == 8
	case ESP, AH:
		return spiSize == 4
	}
	return false
}

//   Proposal Substructure

func decodeProposal(b []byte) (prop *SaProposal, used int, err error) {
	if len(b) < MIN_LEN_PROPOSAL {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("proposal too small %d < %d", len(b), MIN_LEN_PROPOSAL))
		return
	}
	prop = &SaProposal{}
	if last, _ := packets.ReadB8(b, 0); last == 0 {
		prop.IsLast = true
	}
	propLength, _ := packets.ReadB16(b, 2)
	prop.Number, _ = packets.ReadB8(b, 4)
	pId, _ := packets.ReadB8(b, 5)
	prop.ProtocolId = ProtocolId(pId)
	spiSize, _ := packets.ReadB8(b, 6)
	numTransforms, _ := packets.ReadB8(b, 7)
	// variable parts
	used = MIN_LEN_PROPOSAL + int(spiSize)
	if len(b) < used {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("proposal too small for spi %d < %d", len(b), used))
		return
	}
	prop.Spi = append([]byte{}, b[MIN_LEN_PROPOSAL:used]...)
	if int(propLength) < used || len(b) < int(propLength) {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("bad proposal length %d", propLength))
		return
	}
	b = b[used:int(propLength)]
	for len(b) > 0 {
		trans, usedT, errT := decodeTransform(b)
		if errT != nil {
			err = errT
			return
		}
		prop.SaTransforms = append(prop.SaTransforms, trans)
		b = b[usedT:]
		if trans.IsLast {
			if len(b) > 0 {
				err = errors.Wrap(ERR_INVALID_SYNTAX,
					fmt.Sprintf("%d bytes after last transform", len(b)))
				return
			}
			break
		}
	}
	if len(prop.SaTransforms) != int(numTransforms) {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("wrong number of transforms %d != %d",
				len(prop.SaTransforms), numTransforms))
		return
	}
	used = int(propLength)
	return
}

func encodeProposal(prop *SaProposal, number int, isLast bool) (b []byte) {
	b = make([]byte, MIN_LEN_PROPOSAL)
	if !isLast {
		packets.WriteB8(b, 0, 2)
	}
	packets.WriteB8(b, 4, uint8(number))
	packets.WriteB8(b, 5, uint8(prop.ProtocolId))
	packets.WriteB8(b, 6, uint8(len(prop.Spi)))
	packets.WriteB8(b, 7, uint8(len(prop.SaTransforms)))
	b = append(b, prop.Spi...)
	for idx, tr := range prop.SaTransforms {
		b = append(b, encodeTransform(tr, idx == len(prop.SaTransforms)-1)...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

//   Transform Substructure

func decodeAttribute(b []byte) (attr *TransformAttribute, used int, err error) {
	if len(b) < MIN_LEN_ATTRIBUTE {
		err = errors.Wrap(ERR_INVALID_SYNTAX, "attribute too small")
		return
	}
	if at, _ := packets.ReadB16(b, 0); AttributeType(at&0x7fff) != ATTRIBUTE_TYPE_KEY_LENGTH {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("wrong attribute type 0x%x", at))
		return
	}
	alen, _ := packets.ReadB16(b, 2)
	attr = &TransformAttribute{
		Type:  ATTRIBUTE_TYPE_KEY_LENGTH,
		Value: alen,
	}
	used = MIN_LEN_ATTRIBUTE
	return
}

func decodeTransform(b []byte) (trans *SaTransform, used int, err error) {
	if len(b) < MIN_LEN_TRANSFORM {
		err = errors.Wrap(ERR_INVALID_SYNTAX, "transform too small")
		return
	}
	trans = &SaTransform{}
	if last, _ := packets.ReadB8(b, 0); last == 0 {
		trans.IsLast = true
	}
	trLength, _ := packets.ReadB16(b, 2)
	if int(trLength) < MIN_LEN_TRANSFORM || len(b) < int(trLength) {
		err = errors.Wrap(ERR_INVALID_SYNTAX,
			fmt.Sprintf("bad transform length %d", trLength))
		return
	}
	trType, _ := packets.ReadB8(b, 4)
	trans.Transform.Type = TransformType(trType)
	trans.Transform.TransformId, _ = packets.ReadB16(b, 6)
	// variable parts
	b = b[MIN_LEN_TRANSFORM:int(trLength)]
	for len(b) > 0 {
		attr, attrUsed, attrErr := decodeAttribute(b)
		if attrErr != nil {
			err = attrErr
			return
		}
		b = b[attrUsed:]
		if attr.Type == ATTRIBUTE_TYPE_KEY_LENGTH {
			trans.KeyLength = attr.Value
		}
	}
	used = int(trLength)
	return
}

func encodeTransform(trans *SaTransform, isLast bool) (b []byte) {
	b = make([]byte, MIN_LEN_TRANSFORM)
	if !isLast {
		packets.WriteB8(b, 0, 3)
	}
	packets.WriteB8(b, 4, uint8(trans.Transform.Type))
	packets.WriteB16(b, 6, trans.Transform.TransformId)
	if trans.KeyLength != 0 {
		attr := make([]byte, MIN_LEN_ATTRIBUTE)
		packets.WriteB16(attr, 0, 0x8000|uint16(ATTRIBUTE_TYPE_KEY_LENGTH)) // key length in bits
		packets.WriteB16(attr, 2, trans.KeyLength)
		b = append(b, attr...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return
}

// payload

func (s *SaPayload) Type() PayloadType {
	return PayloadTypeSA
}
func (s *SaPayload) Encode() (b []byte) {
	for idx, prop := range s.Proposals {
		b = append(b, encodeProposal(prop, idx+1, idx == len(s.Proposals)-1)...)
	}
	return
}
func (s *SaPayload) Decode(b []byte) (err error) {
	// Header has already been decoded
	for len(b) > 0 {
		prop, used, errP := decodeProposal(b)
		if errP != nil {
			return errP
		}
		s.Proposals = append(s.Proposals, prop)
		b = b[used:]
		if prop.IsLast {
			if len(b) > 0 {
				return errors.Wrap(ERR_INVALID_SYNTAX,
					fmt.Sprintf("%d bytes after last proposal", len(b)))
			}
			break
		}
	}
	return
}
