package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/msgboxio/ikev2/protocol"
)

type prfFunc func(key, data []byte) []byte

func prfTransform(trfId uint16) (prfLen int, prf prfFunc, ok bool) {
	switch protocol.PrfTransformId(trfId) {
	case protocol.PRF_HMAC_MD5:
		return md5.Size, hashPrf(md5.New), true
	case protocol.PRF_HMAC_SHA1:
		return sha1.Size, hashPrf(sha1.New), true
	case protocol.PRF_HMAC_SHA2_256:
		return sha256.Size, hashPrf(sha256.New), true
	case protocol.PRF_HMAC_SHA2_512:
		return sha512.Size, hashPrf(sha512.New), true
	default:
		return 0, nil, false
	}
}

func hashPrf(h func() hash.Hash) prfFunc {
	return func(key, data []byte) []byte {
		mac := hmac.New(h, key)
		mac.Write(data)
		return mac.Sum(nil)
	}
}

// PlusN is prf+ from rfc7296 2.13, generating n bytes of keying
// material.
func (cs *CipherSuite) PlusN(key, data []byte, n int) []byte {
	var out, t []byte
	var round byte = 1
	for len(out) < n {
		buf := append(append(append([]byte{}, t...), data...), round)
		t = cs.Prf(key, buf)
		out = append(out, t...)
		round++
	}
	return out[:n]
}
