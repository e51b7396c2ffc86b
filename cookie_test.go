package ike

import (
	"testing"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cookieMd(t *testing.T, spi protocol.Spi, token []byte) *Message {
	t.Helper()
	pl := protocol.MakePayloads()
	if token != nil {
		pl.Add(&protocol.NotifyPayload{
			PayloadHeader:    &protocol.PayloadHeader{},
			ProtocolId:       protocol.IKE,
			NotificationType: protocol.COOKIE,
			Data:             token,
		})
	}
	for _, p := range initPayloads(spi).Array {
		pl.Add(p)
	}
	b := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, pl, nil)
	md := decodeFor(t, b)
	md.decodeClear(testEntry())
	return md
}

func TestCookieStateless(t *testing.T) {
	jar := newCookieJar()
	spi := MakeSpi()
	md := cookieMd(t, spi, nil)

	token := jar.make(md)
	require.Len(t, token, cookieLen)
	// same inputs, same token: nothing per-peer was stored
	assert.Equal(t, token, jar.make(md))

	assert.True(t, jar.check(cookieMd(t, spi, token)))
	// token bound to the SPI
	assert.False(t, jar.check(cookieMd(t, MakeSpi(), token)))
	// mangled token fails
	bad := append([]byte{}, token...)
	bad[10] ^= 1
	assert.False(t, jar.check(cookieMd(t, spi, bad)))
}

func TestCookieMustBeFirstPayload(t *testing.T) {
	jar := newCookieJar()
	spi := MakeSpi()
	token := jar.make(cookieMd(t, spi, nil))

	// cookie buried behind the SA payload is not accepted
	pl := protocol.MakePayloads()
	for _, p := range initPayloads(spi).Array {
		pl.Add(p)
	}
	pl.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		ProtocolId:       protocol.IKE,
		NotificationType: protocol.COOKIE,
		Data:             token,
	})
	b := encodeRequest(t, spi, zeroSpi, protocol.IKE_SA_INIT, 0, true, pl, nil)
	md := decodeFor(t, b)
	md.decodeClear(testEntry())
	assert.False(t, jar.check(md))
}

func TestCookieSurvivesOneRotation(t *testing.T) {
	jar := newCookieJar()
	spi := MakeSpi()
	md := cookieMd(t, spi, nil)
	token := jar.make(md)

	jar.rotate()
	assert.True(t, jar.check(cookieMd(t, spi, token)), "previous secret stays valid")

	jar.rotate()
	assert.False(t, jar.check(cookieMd(t, spi, token)), "two rotations retire a token")
}
