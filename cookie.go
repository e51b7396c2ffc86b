package ike

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"net"

	"github.com/msgboxio/ikev2/protocol"
)

// An implementation of COOKIE as specified in rfc7296 2.6. The token is
// stateless: <VersionIDofSecret> | HMAC-SHA256<secret>(Ni | SPIi | IPi), so
// a responder under load validates peer reachability without keeping
// per-peer state.

const cookieLen = 2 + sha256.Size

type cookieJar struct {
	version [2]byte
	secret  [64]byte
	// the previous secret stays valid across one rotation
	prevVersion [2]byte
	prevSecret  [64]byte
	hasPrev     bool
}

func newCookieJar() *cookieJar {
	j := &cookieJar{}
	rand.Read(j.version[:])
	rand.Read(j.secret[:])
	return j
}

// rotate replaces the secret; tokens minted with the previous one keep
// verifying until the next rotation.
func (j *cookieJar) rotate() {
	j.prevVersion, j.prevSecret, j.hasPrev = j.version, j.secret, true
	rand.Read(j.version[:])
	rand.Read(j.secret[:])
}

func cookieDigest(secret []byte, nonce, spiI, ip []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(nonce)
	mac.Write(spiI)
	mac.Write(ip)
	return mac.Sum(nil)
}

func (j *cookieJar) make(md *Message) []byte {
	no := md.Payloads.Get(protocol.PayloadTypeNonce)
	if no == nil {
		return nil
	}
	nonce := no.(*protocol.NoncePayload).Nonce.Bytes()
	digest := cookieDigest(j.secret[:], nonce, md.IkeHeader.SpiI, AddrToIp(md.RemoteAddr))
	return append(append([]byte{}, j.version[:]...), digest...)
}

// check verifies the COOKIE notify of a resubmitted IKE_SA_INIT; it
// must be the first payload (rfc7296 2.6).
func (j *cookieJar) check(md *Message) bool {
	if md.IkeHeader.NextPayload != protocol.PayloadTypeN {
		return false
	}
	n := md.Payloads.GetNotification(protocol.COOKIE)
	if n == nil || len(n.Data) != cookieLen {
		return false
	}
	no := md.Payloads.Get(protocol.PayloadTypeNonce)
	if no == nil {
		return false
	}
	nonce := no.(*protocol.NoncePayload).Nonce.Bytes()
	ip := AddrToIp(md.RemoteAddr)

	var secret []byte
	switch {
	case n.Data[0] == j.version[0] && n.Data[1] == j.version[1]:
		secret = j.secret[:]
	case j.hasPrev && n.Data[0] == j.prevVersion[0] && n.Data[1] == j.prevVersion[1]:
		secret = j.prevSecret[:]
	default:
		return false
	}
	return hmac.Equal(n.Data[2:], cookieDigest(secret, nonce, md.IkeHeader.SpiI, ip))
}

// AddrToIp extracts the IP of a udp address.
func AddrToIp(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	}
	return nil
}
