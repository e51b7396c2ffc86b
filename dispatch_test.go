package ike

import (
	"testing"

	"github.com/msgboxio/ikev2/packets"
	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peer is one side of a simulated exchange: a demux with counting stub
// handlers that drive a minimal but complete INIT/AUTH/rekey flow over
// the null test suite.
type peer struct {
	d     *Demux
	rec   *sendRecorder
	suite *testSuite

	calls map[string]int
}

func (p *peer) called(name string) {
	p.calls[name]++
}

func newResponderPeer(cfg *Config) *peer {
	p := &peer{suite: &testSuite{key: 7}, calls: make(map[string]int)}
	handlers := &Handlers{
		InitRequest: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("InitRequest")
			spiR := MakeSpi()
			sa = d.NewIkeSa(RoleResponder, state.InitR0, md.IkeHeader.SpiI, spiR,
				&ConnectionPolicy{Name: "test"}, md.LocalAddr, md.RemoteAddr)
			// key material available immediately in these tests
			sa.Suite = p.suite
			sa.PeerSupportsFrag = true
			md.Sa = sa
			if err := d.RecordReply(sa, md, initPayloads(spiR), false); err != nil {
				return Fatal()
			}
			return Ok()
		},
		AuthRequest: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("AuthRequest")
			d.EstablishIkeSa(sa, state.EstablishedR)
			child := d.NewChildSa(sa, RoleResponder, state.CreateChildR, md.IkeHeader.MsgId)
			if err := d.RecordReply(sa, md, authPayloads(false), true); err != nil {
				return Fatal()
			}
			md.Sa = child
			return Ok()
		},
		RekeyIkeRequest: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("RekeyIkeRequest")
			// stage the rekeyed SPI pair for emancipation
			saP := md.Payloads.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
			sa.RekeySpiI = append(protocol.Spi{}, saP.Proposals[0].Spi...)
			sa.RekeySpiR = MakeSpi()
			sa.Suite = p.suite
			if err := d.RecordReply(sa, md, initPayloads(sa.RekeySpiR), true); err != nil {
				return Fatal()
			}
			return Ok()
		},
		ChildRequest: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("ChildRequest")
			if err := d.RecordReply(sa, md, rekeyChildPayloads(), true); err != nil {
				return Fatal()
			}
			return Ok()
		},
		Informational: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("Informational")
			if md.IsRequest() {
				if err := d.RecordReply(sa, md, protocol.MakePayloads(), true); err != nil {
					return Fatal()
				}
				// an informational reply goes out even without SEND on
				// the row; the completion path books it as replied
				d.sendRecorded(sa)
			}
			return Ok()
		},
	}
	p.d, p.rec = newTestDemux(cfg, handlers)
	return p
}

func newInitiatorPeer(cfg *Config) *peer {
	p := &peer{suite: &testSuite{key: 7}, calls: make(map[string]int)}
	handlers := &Handlers{
		InitResponse: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("InitResponse")
			sa.Suite = p.suite
			sa.PeerSupportsFrag = true
			if err := d.RecordRequest(sa, protocol.IKE_AUTH, authPayloads(true), true); err != nil {
				return Fatal()
			}
			return Ok()
		},
		AuthResponse: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("AuthResponse")
			d.EstablishIkeSa(sa, state.EstablishedI)
			child := d.NewChildSa(sa, RoleInitiator, state.CreateChildI, md.IkeHeader.MsgId)
			md.Sa = child
			return Ok()
		},
		RekeyIkeResponse: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("RekeyIkeResponse")
			saP := md.Payloads.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
			sa.RekeySpiR = append(protocol.Spi{}, saP.Proposals[0].Spi...)
			return Ok()
		},
		ChildResponse: func(d *Demux, sa *Sa, md *Message) Result {
			p.called("ChildResponse")
			return Ok()
		},
	}
	p.d, p.rec = newTestDemux(cfg, handlers)
	return p
}

func rekeyChildPayloads() *protocol.Payloads {
	pl := protocol.MakePayloads()
	pl.Add(&protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Proposals:     protocol.Proposals{childProposal()},
	})
	pl.Add(&protocol.NoncePayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Nonce:         initPayloads(MakeSpi()).Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload).Nonce,
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

// establish runs the clean INIT/AUTH flow between a and b and returns
// the two IKE SAs.
func establish(t *testing.T, a, b *peer) (aIke, bIke *Sa) {
	t.Helper()
	spiI := MakeSpi()
	aIke = a.d.NewIkeSa(RoleInitiator, state.InitI0, spiI, zeroSpi,
		&ConnectionPolicy{Name: "test"}, testLocal, testRemote)
	require.NoError(t, a.d.Initiate(aIke, func() error {
		return a.d.RecordRequest(aIke, protocol.IKE_SA_INIT, initPayloads(spiI), false)
	}))
	require.Len(t, a.rec.packets, 1, "SA_INIT request must go out")

	// -> responder
	b.d.ProcessPacket(a.rec.last(), testLocal, testRemote)
	require.Equal(t, 1, b.calls["InitRequest"])
	require.Len(t, b.rec.packets, 1, "SA_INIT response must go out")

	// <- initiator processes the reply; the AUTH request follows
	a.rec.reset()
	a.d.ProcessPacket(b.rec.last(), testLocal, testRemote)
	require.Equal(t, 1, a.calls["InitResponse"])
	require.Len(t, a.rec.packets, 1, "IKE_AUTH request must go out")
	require.Equal(t, state.AuthI, aIke.State)

	// -> responder processes AUTH
	b.rec.reset()
	b.d.ProcessPacket(a.rec.last(), testLocal, testRemote)
	require.Equal(t, 1, b.calls["AuthRequest"])
	require.Len(t, b.rec.packets, 1, "IKE_AUTH response must go out")

	bIke = b.d.Table().FindByInitiator(spiI)
	require.NotNil(t, bIke)

	// <- initiator completes
	a.rec.reset()
	a.d.ProcessPacket(b.rec.last(), testLocal, testRemote)
	require.Equal(t, 1, a.calls["AuthResponse"])
	return aIke, bIke
}

func TestCleanEstablish(t *testing.T) {
	a, b := newInitiatorPeer(nil), newResponderPeer(nil)
	aIke, bIke := establish(t, a, b)

	assert.Equal(t, state.EstablishedI, aIke.State)
	assert.Equal(t, state.EstablishedR, bIke.State)

	// one Child SA on each side; the finished creating exchange is no
	// longer indexed by (parent, msgid)
	aChildren := a.d.Table().Children(aIke.Serial)
	require.Len(t, aChildren, 1)
	assert.Equal(t, state.ChildInstalledI, aChildren[0].State)
	assert.Nil(t, a.d.Table().FindChild(aIke.Serial, 1, RoleInitiator))
	bChildren := b.d.Table().Children(bIke.Serial)
	require.Len(t, bChildren, 1)
	assert.Equal(t, state.ChildInstalledR, bChildren[0].State)

	// window positions
	assert.Equal(t, uint32(1), aIke.LastAck)
	assert.Equal(t, uint32(2), aIke.NextUse)
	assert.Equal(t, uint32(1), bIke.LastRecv)
	assert.Equal(t, uint32(1), bIke.LastReplied)

	// no half-open SAs remain
	assert.Equal(t, 0, b.d.Table().HalfOpenCount())
}

func TestSaInitNonZeroMsgIdDropped(t *testing.T) {
	b := newResponderPeer(nil)
	spi := MakeSpi()
	raw := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 1, true, initPayloads(spi), nil)
	b.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Zero(t, b.calls["InitRequest"])
	assert.Empty(t, b.rec.packets)
}

func TestSaInitNonZeroResponderSpiDropped(t *testing.T) {
	b := newResponderPeer(nil)
	spi := MakeSpi()
	raw := encodeRequest(t, spi, MakeSpi(), protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	b.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Zero(t, b.calls["InitRequest"])
	assert.Empty(t, b.rec.packets)
}

func TestSaInitConflictingFlagsDropped(t *testing.T) {
	b := newResponderPeer(nil)
	spi := MakeSpi()
	// a request claiming to come from the responder side
	raw := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, false, initPayloads(spi), nil)
	b.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Zero(t, b.calls["InitRequest"])
	assert.Empty(t, b.rec.packets)
}

func TestRoleConsistencyEnforced(t *testing.T) {
	a, b := newInitiatorPeer(nil), newResponderPeer(nil)
	aIke, _ := establish(t, a, b)

	// an INFORMATIONAL "request" with the initiator bit set arrives at
	// the original initiator; it must be dropped before any handler
	raw := encodeRequest(t, aIke.SpiI, aIke.SpiR, protocol.INFORMATIONAL, 2, true,
		protocol.MakePayloads(), a.suite)
	a.rec.reset()
	a.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Empty(t, a.rec.packets)
}

func TestUnknownCriticalPayloadAnswered(t *testing.T) {
	b := newResponderPeer(nil)
	spi := MakeSpi()
	raw := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	// prepend an unknown critical payload
	unknown := []byte{uint8(protocol.PayloadTypeSA), 0x80, 0, 8, 1, 2, 3, 4}
	mangled := append(append([]byte{}, raw[:protocol.IKE_HEADER_LEN]...), unknown...)
	mangled = append(mangled, raw[protocol.IKE_HEADER_LEN:]...)
	packets.WriteB8(mangled, 16, 60)
	packets.WriteB32(mangled, 24, uint32(len(mangled)))

	b.d.ProcessPacket(mangled, testLocal, testRemote)
	assert.Zero(t, b.calls["InitRequest"], "no state may be created")
	require.Len(t, b.rec.packets, 1)

	md := decodeFor(t, b.rec.last())
	md.decodeClear(testEntry())
	n := md.Payloads.GetNotification(protocol.UNSUPPORTED_CRITICAL_PAYLOAD)
	require.NotNil(t, n)
	assert.Equal(t, []byte{60}, n.Data)
}

func TestResponseRetransmit(t *testing.T) {
	a, b := newInitiatorPeer(nil), newResponderPeer(nil)

	spiI := MakeSpi()
	aIke := a.d.NewIkeSa(RoleInitiator, state.InitI0, spiI, zeroSpi,
		&ConnectionPolicy{Name: "test"}, testLocal, testRemote)
	require.NoError(t, a.d.Initiate(aIke, func() error {
		return a.d.RecordRequest(aIke, protocol.IKE_SA_INIT, initPayloads(spiI), false)
	}))
	b.d.ProcessPacket(a.rec.last(), testLocal, testRemote)
	a.rec.reset()
	a.d.ProcessPacket(b.rec.last(), testLocal, testRemote)
	authReq := a.rec.last()

	// first AUTH: handler runs, response recorded
	b.rec.reset()
	b.d.ProcessPacket(authReq, testLocal, testRemote)
	require.Equal(t, 1, b.calls["AuthRequest"])
	require.Len(t, b.rec.packets, 1)
	first := b.rec.last()

	// the identical datagram again: no handler, byte-identical reply
	b.rec.reset()
	b.d.ProcessPacket(authReq, testLocal, testRemote)
	assert.Equal(t, 1, b.calls["AuthRequest"], "retransmissions never re-enter the handler")
	require.Len(t, b.rec.packets, 1)
	assert.Equal(t, first, b.rec.last())
}

func TestCookieChallenge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HalfOpenSoftThreshold = 0 // always demand cookies
	b := newResponderPeer(cfg)

	spi := MakeSpi()
	raw := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	b.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Zero(t, b.calls["InitRequest"], "no state before the cookie round-trip")
	assert.Equal(t, 0, b.d.Table().Count())
	require.Len(t, b.rec.packets, 1)

	md := decodeFor(t, b.rec.last())
	md.decodeClear(testEntry())
	n := md.Payloads.GetNotification(protocol.COOKIE)
	require.NotNil(t, n, "expected a COOKIE challenge")
	require.Len(t, n.Data, cookieLen)

	// retry with the token as the first payload
	pl := protocol.MakePayloads()
	pl.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		ProtocolId:       protocol.IKE,
		NotificationType: protocol.COOKIE,
		Data:             n.Data,
	})
	for _, p := range initPayloads(spi).Array {
		pl.Add(p)
	}
	b.rec.reset()
	retry := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, pl, nil)
	b.d.ProcessPacket(retry, testLocal, testRemote)
	assert.Equal(t, 1, b.calls["InitRequest"], "valid cookie must be accepted")
}

func TestHalfOpenHardLimitDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HalfOpenHardThreshold = 0
	b := newResponderPeer(cfg)

	spi := MakeSpi()
	raw := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, initPayloads(spi), nil)
	b.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Zero(t, b.calls["InitRequest"])
	assert.Empty(t, b.rec.packets, "above the hard cap nothing is answered")
}

func TestFragmentedAuthHandledOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FragmentSize = 40 // requests are never fragmented; the AUTH fragments are built by hand below
	a, b := newInitiatorPeer(cfg), newResponderPeer(nil)

	spiI := MakeSpi()
	aIke := a.d.NewIkeSa(RoleInitiator, state.InitI0, spiI, zeroSpi,
		&ConnectionPolicy{Name: "test"}, testLocal, testRemote)
	require.NoError(t, a.d.Initiate(aIke, func() error {
		return a.d.RecordRequest(aIke, protocol.IKE_SA_INIT, initPayloads(spiI), false)
	}))
	b.d.ProcessPacket(a.rec.last(), testLocal, testRemote)
	bIke := b.d.Table().FindByInitiator(spiI)
	require.NotNil(t, bIke)

	// build the fragmented AUTH request by hand
	hdr := &protocol.IkeHeader{
		SpiI:         aIke.SpiI,
		SpiR:         bIke.SpiR,
		MajorVersion: protocol.IKEV2_MAJOR_VERSION,
		MinorVersion: protocol.IKEV2_MINOR_VERSION,
		ExchangeType: protocol.IKE_AUTH,
		Flags:        protocol.INITIATOR,
		MsgId:        1,
	}
	frags, err := encodeTxFragments(hdr, authPayloads(true), a.suite, true, 40)
	require.NoError(t, err)
	require.True(t, len(frags) >= 3)

	// deliver out of order: 2, 3, ..., 1
	b.rec.reset()
	for _, f := range frags[1:] {
		b.d.ProcessPacket(f, testLocal, testRemote)
		assert.Zero(t, b.calls["AuthRequest"], "handler must wait for all fragments")
	}
	b.d.ProcessPacket(frags[0], testLocal, testRemote)
	assert.Equal(t, 1, b.calls["AuthRequest"],
		"handler runs exactly once, after the last missing fragment")
}

func TestIkeRekeyEmancipation(t *testing.T) {
	a, b := newInitiatorPeer(nil), newResponderPeer(nil)
	aIke, bIke := establish(t, a, b)
	// an extra child that must survive the rekey
	extra := b.d.NewChildSa(bIke, RoleResponder, state.ChildInstalledR, 7)

	newSpiI := MakeSpi()
	rekeySa := a.d.NewChildSa(aIke, RoleInitiator, state.RekeyIkeI0, aIke.NextUse)
	a.rec.reset()
	require.NoError(t, a.d.Initiate(rekeySa, func() error {
		return a.d.RecordRequest(aIke, protocol.CREATE_CHILD_SA, initPayloads(newSpiI), true)
	}))
	require.Len(t, a.rec.packets, 1)
	rekeySa.RekeySpiI = newSpiI

	// responder emancipates
	b.rec.reset()
	b.d.ProcessPacket(a.rec.last(), testLocal, testRemote)
	require.Equal(t, 1, b.calls["RekeyIkeRequest"])
	require.Len(t, b.rec.packets, 1, "rekey reply must go out")

	emancipated := b.d.Table().FindByInitiator(newSpiI)
	require.NotNil(t, emancipated, "new IKE SA must be reachable under the new SPIs")
	assert.Equal(t, state.EstablishedR, emancipated.State)
	assert.False(t, emancipated.IsChildSa())

	// fresh message id window
	assert.Equal(t, InvalidMsgId, emancipated.LastAck)
	assert.Equal(t, uint32(0), emancipated.NextUse)
	assert.Equal(t, InvalidMsgId, emancipated.LastRecv)

	// children migrated to the new parent, old SA on its way out
	assert.Equal(t, emancipated.Serial, extra.ClonedFrom)
	assert.Equal(t, state.IkeSaDelete, bIke.State)

	// initiator side emancipates on the response
	a.rec.reset()
	a.d.ProcessPacket(b.rec.last(), testLocal, testRemote)
	require.Equal(t, 1, a.calls["RekeyIkeResponse"])
	aNew := a.d.Table().FindByInitiator(newSpiI)
	require.NotNil(t, aNew)
	assert.Equal(t, state.EstablishedI, aNew.State)
	assert.Equal(t, uint32(0), aNew.NextUse)
}

func TestBusySaDropsMessages(t *testing.T) {
	a, b := newInitiatorPeer(nil), newResponderPeer(nil)
	aIke, _ := establish(t, a, b)

	aIke.busy = true
	raw := encodeRequest(t, aIke.SpiI, aIke.SpiR, protocol.INFORMATIONAL, 2, false,
		protocol.MakePayloads(), a.suite)
	a.rec.reset()
	a.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Empty(t, a.rec.packets, "a busy SA drops inbound messages")
}

func TestCorruptEncryptedPayloadDroppedSilently(t *testing.T) {
	a, b := newInitiatorPeer(nil), newResponderPeer(nil)
	aIke, _ := establish(t, a, b)

	raw := encodeRequest(t, aIke.SpiI, aIke.SpiR, protocol.INFORMATIONAL, 2, false,
		protocol.MakePayloads(), a.suite)
	raw[len(raw)-1] ^= 0xff // break the integrity check
	a.rec.reset()
	a.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Empty(t, a.rec.packets, "integrity failure must never be answered")
	// and the SA survives (STF_IGNORE, not a teardown)
	assert.Equal(t, state.EstablishedI, aIke.State)
}

func TestNoSaResponseDropped(t *testing.T) {
	b := newResponderPeer(nil)
	raw := encodeRequest(t, MakeSpi(), MakeSpi(), protocol.INFORMATIONAL, 3, false,
		protocol.MakePayloads(), &testSuite{key: 7})
	raw[19] |= uint8(protocol.RESPONSE)
	b.d.ProcessPacket(raw, testLocal, testRemote)
	assert.Empty(t, b.rec.packets, "responses to unknown SAs are dropped, never answered")
}
