package ike

import (
	"testing"

	"github.com/msgboxio/ikev2/packets"
	"github.com/msgboxio/ikev2/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() *logrus.Entry {
	return logrus.NewEntry(quietLogger())
}

func TestDecodeRoundTrip(t *testing.T) {
	spi := MakeSpi()
	b := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	md := decodeFor(t, b)
	sum := md.decodeClear(testEntry())
	require.True(t, sum.Ok(), "clear decode failed: %s", sum.Notification)
	assert.True(t, sum.Seen.Has(protocol.PayloadTypeSA))
	assert.True(t, sum.Seen.Has(protocol.PayloadTypeKE))
	assert.True(t, sum.Seen.Has(protocol.PayloadTypeNonce))
	assert.True(t, sum.Repeated.IsEmpty())

	// decoding then re-encoding a well-formed chain is the identity
	again := protocol.EncodePayloads(md.Payloads)
	assert.Equal(t, b[protocol.IKE_HEADER_LEN:], again)
}

func TestDecodeUnknownNonCriticalSkipped(t *testing.T) {
	spi := MakeSpi()
	b := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	// prepend an unknown, non-critical payload type 60 pointing at SA
	unknown := []byte{uint8(protocol.PayloadTypeSA), 0, 0, 8, 0xde, 0xad, 0xbe, 0xef}
	raw := append(append([]byte{}, b[:protocol.IKE_HEADER_LEN]...), unknown...)
	raw = append(raw, b[protocol.IKE_HEADER_LEN:]...)
	packets.WriteB8(raw, 16, 60) // header next-payload
	packets.WriteB32(raw, 24, uint32(len(raw)))

	md := decodeFor(t, raw)
	sum := md.decodeClear(testEntry())
	require.True(t, sum.Ok(), "unknown non-critical payload must never abort the walk")
	assert.True(t, sum.Seen.Has(protocol.PayloadTypeSA))
}

func TestDecodeUnknownCriticalRejected(t *testing.T) {
	spi := MakeSpi()
	b := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	unknown := []byte{uint8(protocol.PayloadTypeSA), 0x80, 0, 8, 0xde, 0xad, 0xbe, 0xef}
	raw := append(append([]byte{}, b[:protocol.IKE_HEADER_LEN]...), unknown...)
	raw = append(raw, b[protocol.IKE_HEADER_LEN:]...)
	packets.WriteB8(raw, 16, 60)
	packets.WriteB32(raw, 24, uint32(len(raw)))

	md := decodeFor(t, raw)
	sum := md.decodeClear(testEntry())
	require.False(t, sum.Ok())
	assert.Equal(t, protocol.UNSUPPORTED_CRITICAL_PAYLOAD, sum.Notification)
	require.Len(t, sum.Data, 1)
	assert.Equal(t, byte(60), sum.Data[0])
}

func TestDecodeTooManyPayloads(t *testing.T) {
	pl := protocol.MakePayloads()
	for i := 0; i < protocol.MAX_PAYLOADS_PER_MESSAGE+1; i++ {
		pl.Add(&protocol.NotifyPayload{
			PayloadHeader:    &protocol.PayloadHeader{},
			ProtocolId:       protocol.IKE,
			NotificationType: protocol.INITIAL_CONTACT,
		})
	}
	spi := MakeSpi()
	b := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, pl, nil)
	md := decodeFor(t, b)
	sum := md.decodeClear(testEntry())
	require.False(t, sum.Ok())
	assert.Equal(t, protocol.INVALID_SYNTAX, sum.Notification)
}

func TestDecodeRepeatedTracking(t *testing.T) {
	pl := protocol.MakePayloads()
	pl.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		ProtocolId:       protocol.IKE,
		NotificationType: protocol.INITIAL_CONTACT,
	})
	pl.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		ProtocolId:       protocol.IKE,
		NotificationType: protocol.IKEV2_FRAGMENTATION_SUPPORTED,
	})
	spi := MakeSpi()
	b := encodeRequest(t, spi, zeroSpi, protocol.INFORMATIONAL, 2, true, pl, nil)
	md := decodeFor(t, b)
	sum := md.decodeClear(testEntry())
	require.True(t, sum.Ok())
	assert.True(t, sum.Repeated.Has(protocol.PayloadTypeN))
	// chain lists the occurrences in message order
	chain := md.Chain(protocol.PayloadTypeN)
	require.Len(t, chain, 2)
	assert.Equal(t, protocol.INITIAL_CONTACT,
		chain[0].(*protocol.NotifyPayload).NotificationType)
	assert.Equal(t, protocol.IKEV2_FRAGMENTATION_SUPPORTED,
		chain[1].(*protocol.NotifyPayload).NotificationType)
}

func TestDecodeSkStopsWalk(t *testing.T) {
	suite := &testSuite{key: 7}
	spi := MakeSpi()
	b := encodeRequest(t, spi, MakeSpi(), protocol.IKE_AUTH, 1, true, authPayloads(true), suite)
	md := decodeFor(t, b)
	sum := md.decodeClear(testEntry())
	require.True(t, sum.Ok())
	assert.True(t, sum.Seen.Has(protocol.PayloadTypeSK))
	// nothing after the SK payload was touched
	assert.Len(t, md.Payloads.Array, 1)
	aad, ct := md.SkCiphertext()
	require.NotNil(t, ct)
	clear, err := suite.VerifyDecrypt(aad, ct, true)
	require.NoError(t, err)
	assert.Equal(t, protocol.EncodePayloads(authPayloads(true)), clear)
}

func TestDecodeTruncatedMessage(t *testing.T) {
	spi := MakeSpi()
	b := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	_, err := DecodeMessage(b[:len(b)-4], testLocal, testRemote)
	assert.Error(t, err)
}
