package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/pkg/errors"
)

type macFunc func(b, key []byte) []byte

func integrityTransform(trfId uint16) (macLen, macKeyLen int, mac macFunc, ok bool) {
	switch protocol.AuthTransformId(trfId) {
	case protocol.AUTH_HMAC_MD5_96:
		return 12, md5.Size, hashMac(md5.New, 12), true
	case protocol.AUTH_HMAC_SHA1_96:
		return 12, sha1.Size, hashMac(sha1.New, 12), true
	case protocol.AUTH_HMAC_SHA2_256_128:
		return 16, sha256.Size, hashMac(sha256.New, 16), true
	case protocol.AUTH_HMAC_SHA2_512_256:
		return 32, sha512.Size, hashMac(sha512.New, 32), true
	default:
		return 0, 0, nil, false
	}
}

func hashMac(h func() hash.Hash, truncLen int) macFunc {
	return func(b, key []byte) []byte {
		mac := hmac.New(h, key)
		mac.Write(b)
		return mac.Sum(nil)[:truncLen]
	}
}

// verifyMac checks the ICV at the tail of ct over aad || ct[:-maclen].
func verifyMac(aad, ct, key []byte, macLen int, mac macFunc) error {
	if len(ct) < macLen {
		return errors.New("ciphertext shorter than icv")
	}
	body := ct[:len(ct)-macLen]
	icv := ct[len(ct)-macLen:]
	signed := append(append([]byte{}, aad...), body...)
	if !hmac.Equal(icv, mac(signed, key)) {
		return errors.New("integrity check failed")
	}
	return nil
}
