package ike

import (
	"math/big"
	"net"
	"testing"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/sirupsen/logrus"
)

// testSuite is a stand-in for the negotiated transforms: "encryption"
// is the identity, integrity is a keyed 4-byte sum, so corrupting
// either key or bytes is caught.
type testSuite struct {
	key byte
}

const testIcvLen = 4

func (s *testSuite) Overhead(clearLen int) int {
	return testIcvLen
}

func (s *testSuite) sum(aad, body []byte) []byte {
	var acc uint32 = uint32(s.key)
	for _, b := range aad {
		acc = acc*31 + uint32(b)
	}
	for _, b := range body {
		acc = acc*31 + uint32(b)
	}
	return []byte{byte(acc >> 24), byte(acc >> 16), byte(acc >> 8), byte(acc)}
}

func (s *testSuite) VerifyDecrypt(aad, ct []byte, forInitiator bool) ([]byte, error) {
	if len(ct) < testIcvLen {
		return nil, errShortCiphertext
	}
	body := ct[:len(ct)-testIcvLen]
	icv := ct[len(ct)-testIcvLen:]
	want := s.sum(aad, body)
	for i := range icv {
		if icv[i] != want[i] {
			return nil, errBadIntegrity
		}
	}
	return append([]byte{}, body...), nil
}

func (s *testSuite) EncryptMac(headers, payload []byte, forInitiator bool) ([]byte, error) {
	b := append(append([]byte{}, headers...), payload...)
	return append(b, s.sum(headers, payload)...), nil
}

var (
	errShortCiphertext = protocol.ERR_INVALID_SYNTAX
	errBadIntegrity    = protocol.ERR_AUTHENTICATION_FAILED
)

var (
	testLocal  = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 500}
	testRemote = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 500}
)

// sendRecorder captures everything a demux transmits.
type sendRecorder struct {
	packets [][]byte
	to      []net.Addr
}

func (r *sendRecorder) send(b []byte, to net.Addr) error {
	r.packets = append(r.packets, append([]byte{}, b...))
	r.to = append(r.to, to)
	return nil
}

func (r *sendRecorder) reset() {
	r.packets, r.to = nil, nil
}

func (r *sendRecorder) last() []byte {
	if len(r.packets) == 0 {
		return nil
	}
	return r.packets[len(r.packets)-1]
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestDemux(cfg *Config, handlers *Handlers) (*Demux, *sendRecorder) {
	rec := &sendRecorder{}
	d := NewDemux(cfg, handlers, quietLogger(), nil, rec.send)
	return d, rec
}

// wire format helpers

func testProposal(spi []byte) *protocol.SaProposal {
	return &protocol.SaProposal{
		ProtocolId: protocol.IKE,
		Spi:        append([]byte{}, spi...),
		SaTransforms: []*protocol.SaTransform{
			{Transform: protocol.Transform{
				Type:        protocol.TRANSFORM_TYPE_ENCR,
				TransformId: uint16(protocol.ENCR_AES_CBC)},
				KeyLength: 256},
			{Transform: protocol.Transform{
				Type:        protocol.TRANSFORM_TYPE_PRF,
				TransformId: uint16(protocol.PRF_HMAC_SHA2_256)}},
			{Transform: protocol.Transform{
				Type:        protocol.TRANSFORM_TYPE_INTEG,
				TransformId: uint16(protocol.AUTH_HMAC_SHA2_256_128)}},
			{Transform: protocol.Transform{
				Type:        protocol.TRANSFORM_TYPE_DH,
				TransformId: uint16(protocol.MODP_2048)},
				IsLast: true},
		},
	}
}

func initPayloads(spi []byte) *protocol.Payloads {
	pl := protocol.MakePayloads()
	pl.Add(&protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Proposals:     protocol.Proposals{testProposal(spi)},
	})
	pl.Add(&protocol.KePayload{
		PayloadHeader: &protocol.PayloadHeader{},
		DhTransformId: protocol.MODP_2048,
		KeyData:       new(big.Int).SetInt64(0x0123456789abcdef),
	})
	pl.Add(&protocol.NoncePayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Nonce:         new(big.Int).SetBytes(makeNonce(32)),
	})
	return pl
}

func makeNonce(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func testSelector() *protocol.Selector {
	return &protocol.Selector{
		Type:         protocol.TS_IPV4_ADDR_RANGE,
		StartPort:    0,
		Endport:      65535,
		StartAddress: net.IPv4(10, 1, 0, 0).To4(),
		EndAddress:   net.IPv4(10, 1, 255, 255).To4(),
	}
}

func authPayloads(initiator bool) *protocol.Payloads {
	pl := protocol.MakePayloads()
	idType := protocol.PayloadTypeIDi
	if !initiator {
		idType = protocol.PayloadTypeIDr
	}
	pl.Add(&protocol.IdPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		IdPayloadType: idType,
		IdType:        protocol.ID_FQDN,
		Data:          []byte("test.example.org"),
	})
	pl.Add(&protocol.AuthPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		AuthMethod:    protocol.AUTH_SHARED_KEY_MESSAGE_INTEGRITY_CODE,
		Data:          makeNonce(20),
	})
	pl.Add(&protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Proposals:     protocol.Proposals{childProposal()},
	})
	pl.Add(&protocol.TrafficSelectorPayload{
		PayloadHeader:              &protocol.PayloadHeader{},
		TrafficSelectorPayloadType: protocol.PayloadTypeTSi,
		Selectors:                  []*protocol.Selector{testSelector()},
	})
	pl.Add(&protocol.TrafficSelectorPayload{
		PayloadHeader:              &protocol.PayloadHeader{},
		TrafficSelectorPayloadType: protocol.PayloadTypeTSr,
		Selectors:                  []*protocol.Selector{testSelector()},
	})
	return pl
}

func childProposal() *protocol.SaProposal {
	return &protocol.SaProposal{
		ProtocolId: protocol.ESP,
		Spi:        []byte{1, 2, 3, 4},
		SaTransforms: []*protocol.SaTransform{
			{Transform: protocol.Transform{
				Type:        protocol.TRANSFORM_TYPE_ENCR,
				TransformId: uint16(protocol.ENCR_AES_CBC)},
				KeyLength: 256},
			{Transform: protocol.Transform{
				Type:        protocol.TRANSFORM_TYPE_ESN,
				TransformId: uint16(protocol.ESN_NONE)},
				IsLast: true},
		},
	}
}

// encodeRequest builds a request datagram the way a peer would.
func encodeRequest(t *testing.T, spiI, spiR protocol.Spi, exch protocol.IkeExchangeType, msgid uint32, fromInitiator bool, payloads *protocol.Payloads, suite Suite) []byte {
	t.Helper()
	var flags protocol.IkeFlags
	if fromInitiator {
		flags = protocol.INITIATOR
	}
	hdr := &protocol.IkeHeader{
		SpiI:         spiI,
		SpiR:         spiR,
		MajorVersion: protocol.IKEV2_MAJOR_VERSION,
		MinorVersion: protocol.IKEV2_MINOR_VERSION,
		ExchangeType: exch,
		Flags:        flags,
		MsgId:        msgid,
	}
	b, err := encodeTx(hdr, payloads, suite, fromInitiator)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

// decodeFor parses a captured packet back into a digest.
func decodeFor(t *testing.T, b []byte) *Message {
	t.Helper()
	md, err := DecodeMessage(b, testLocal, testRemote)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return md
}
