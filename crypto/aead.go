package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/pkg/errors"
)

/*
   rfc5282: Using Authenticated Encryption Algorithms with the
   Encrypted Payload of IKEv2.

   The associated data covers the IKE header, any unencrypted payloads
   and the SK (or SKF, including number/total) header; the nonce is the
   4 byte key salt followed by the 8 byte explicit IV; the ICV is the
   authentication tag.
*/

type aeadFunc func(key []byte) (cipher.AEAD, error)

type aeadCipher struct {
	aeadFunc
	blockLen, keyLen, saltLen, ivLen, icvLen int

	id protocol.EncrTransformId
}

func (cs *aeadCipher) String() string {
	return cs.id.String()
}

func aeadTransform(cipherId uint16, keyBytes int) (*aeadCipher, bool) {
	switch protocol.EncrTransformId(cipherId) {
	case protocol.AEAD_AES_GCM_16:
		if keyBytes == 0 {
			keyBytes = 32
		}
		return &aeadCipher{
			aeadFunc: aeadAesGcm,
			blockLen: aes.BlockSize,
			keyLen:   keyBytes,
			saltLen:  4,
			ivLen:    8,
			icvLen:   16,
			id:       protocol.AEAD_AES_GCM_16,
		}, true
	}
	return nil, false
}

func aeadAesGcm(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	// 8B explicit iv + 4B salt
	return cipher.NewGCMWithNonceSize(block, 12)
}

func (cs *aeadCipher) Overhead(clearLen int) int {
	// padding + iv + icv
	padlen := cs.blockLen - clearLen%cs.blockLen
	return padlen + cs.ivLen + cs.icvLen
}

// key material carries the salt appended to the key proper
func (cs *aeadCipher) split(skE []byte) (key, salt []byte, err error) {
	if len(skE) < cs.keyLen+cs.saltLen {
		return nil, nil, errors.New("short aead key material")
	}
	return skE[:cs.keyLen], skE[cs.keyLen : cs.keyLen+cs.saltLen], nil
}

func (cs *aeadCipher) verifyDecrypt(aad, ct, skE []byte) ([]byte, error) {
	key, salt, err := cs.split(skE)
	if err != nil {
		return nil, err
	}
	if len(ct) < cs.ivLen+cs.icvLen {
		return nil, errors.New("ciphertext too short")
	}
	aead, err := cs.aeadFunc(key)
	if err != nil {
		return nil, err
	}
	iv := ct[:cs.ivLen]
	nonce := append(append([]byte{}, salt...), iv...)
	clear, err := aead.Open(nil, nonce, ct[cs.ivLen:], aad)
	if err != nil {
		return nil, err
	}
	// remove pad; the pad-length byte excludes itself
	padlen := int(clear[len(clear)-1]) + 1
	if padlen > len(clear) {
		return nil, errors.New("pad length is larger than payload")
	}
	return clear[:len(clear)-padlen], nil
}

func (cs *aeadCipher) encryptMac(headers, payload, skE []byte) ([]byte, error) {
	key, salt, err := cs.split(skE)
	if err != nil {
		return nil, err
	}
	aead, err := cs.aeadFunc(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, cs.ivLen)
	rand.Read(iv)
	nonce := append(append([]byte{}, salt...), iv...)
	padlen := cs.blockLen - len(payload)%cs.blockLen
	pt := append(append([]byte{}, payload...), make([]byte, padlen)...)
	pt[len(pt)-1] = byte(padlen - 1)
	out := append(append([]byte{}, headers...), iv...)
	return aead.Seal(out, nonce, pt, headers), nil
}
