// Package crypto holds the cipher-suite plumbing of the engine; the
// demultiplexer consumes it through the ike.Suite interface only.
package crypto

import (
	"github.com/msgboxio/ikev2/protocol"
	"github.com/pkg/errors"
)

// CipherSuite is one negotiated transform set.
type CipherSuite struct {
	PrfLen int
	Prf    prfFunc

	// lengths, in bytes, of the key material needed for each component
	KeyLen, MacKeyLen int

	MacLen, IvLen, BlockLen int

	Cipher cipherFunc
	Mac    macFunc

	Aead *aeadCipher
}

// NewCipherSuite builds a suite from the accepted proposal's
// transforms.
func NewCipherSuite(trs []*protocol.SaTransform) (*CipherSuite, error) {
	cs := &CipherSuite{}
	ok := false
	for _, tr := range trs {
		switch tr.Transform.Type {
		case protocol.TRANSFORM_TYPE_DH:
			// group operations stay with the handlers; nothing kept here
		case protocol.TRANSFORM_TYPE_PRF:
			// for hmac based prf, preferred key size is size of output
			cs.PrfLen, cs.Prf, ok = prfTransform(tr.Transform.TransformId)
			if !ok {
				return nil, errors.Errorf("unsupported prf transform %d", tr.Transform.TransformId)
			}
		case protocol.TRANSFORM_TYPE_ENCR:
			if cs.Aead, ok = aeadTransform(tr.Transform.TransformId, int(tr.KeyLength)/8); ok {
				continue
			}
			// for block mode ciphers, iv length equals block length
			cs.BlockLen, cs.Cipher, ok = cipherTransform(tr.Transform.TransformId)
			if !ok {
				return nil, errors.Errorf("unsupported cipher transform %d", tr.Transform.TransformId)
			}
			cs.IvLen = cs.BlockLen
			cs.KeyLen = int(tr.KeyLength) / 8 // from attribute, in bits
		case protocol.TRANSFORM_TYPE_INTEG:
			cs.MacLen, cs.MacKeyLen, cs.Mac, ok = integrityTransform(tr.Transform.TransformId)
			if !ok {
				return nil, errors.Errorf("unsupported mac transform %d", tr.Transform.TransformId)
			}
		case protocol.TRANSFORM_TYPE_ESN:
			// data plane concern
		default:
			return nil, errors.Errorf("unsupported transform type %d", tr.Transform.Type)
		}
	}
	if cs.Aead == nil && (cs.Cipher == nil || cs.Mac == nil) {
		return nil, errors.New("incomplete cipher suite")
	}
	return cs, nil
}

// Keyring pairs a suite with the directional SK_e/SK_a keys and
// implements the engine's Suite interface. forInitiator selects the
// initiator's keys, i.e. the direction of the message's sender.
type Keyring struct {
	Suite                  *CipherSuite
	SkEi, SkEr, SkAi, SkAr []byte
}

func (k *Keyring) keys(forInitiator bool) (skE, skA []byte) {
	if forInitiator {
		return k.SkEi, k.SkAi
	}
	return k.SkEr, k.SkAr
}

func (k *Keyring) Overhead(clearLen int) int {
	if a := k.Suite.Aead; a != nil {
		return a.Overhead(clearLen)
	}
	cs := k.Suite
	padlen := cs.BlockLen - clearLen%cs.BlockLen
	return cs.IvLen + padlen + cs.MacLen
}

// VerifyDecrypt checks integrity of and decrypts one SK or SKF
// ciphertext; aad is everything before the ciphertext on the wire.
func (k *Keyring) VerifyDecrypt(aad, ct []byte, forInitiator bool) ([]byte, error) {
	skE, skA := k.keys(forInitiator)
	if a := k.Suite.Aead; a != nil {
		return a.verifyDecrypt(aad, ct, skE)
	}
	cs := k.Suite
	if len(ct) < cs.IvLen+cs.MacLen {
		return nil, errors.New("ciphertext too short")
	}
	// MAC-then-decrypt
	if err := verifyMac(aad, ct, skA, cs.MacLen, cs.Mac); err != nil {
		return nil, err
	}
	return decrypt(ct[:len(ct)-cs.MacLen], skE, cs.IvLen, cs.BlockLen, cs.Cipher)
}

// EncryptMac produces headers || iv || ciphertext || icv.
func (k *Keyring) EncryptMac(headers, payload []byte, forInitiator bool) ([]byte, error) {
	skE, skA := k.keys(forInitiator)
	if a := k.Suite.Aead; a != nil {
		return a.encryptMac(headers, payload, skE)
	}
	cs := k.Suite
	// encrypt-then-MAC
	encr, err := encrypt(payload, skE, cs.IvLen, cs.BlockLen, cs.Cipher)
	if err != nil {
		return nil, err
	}
	b := append(headers, encr...)
	return append(b, cs.Mac(b, skA)...), nil
}
