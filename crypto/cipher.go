package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/dgryski/go-camellia"
	"github.com/msgboxio/ikev2/protocol"
	"github.com/pkg/errors"
)

// cipherFunc returns the CBC cipher.BlockMode for key and iv; there is
// no null cipher.
type cipherFunc func(key, iv []byte, isRead bool) cipher.BlockMode

func cipherTransform(cipherId uint16) (blockLen int, c cipherFunc, ok bool) {
	switch protocol.EncrTransformId(cipherId) {
	case protocol.ENCR_CAMELLIA_CBC:
		return camellia.BlockSize, cipherCamellia, true
	case protocol.ENCR_AES_CBC:
		return aes.BlockSize, cipherAES, true
	default:
		return 0, nil, false
	}
}

func cipherAES(key, iv []byte, isRead bool) cipher.BlockMode {
	block, _ := aes.NewCipher(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

func cipherCamellia(key, iv []byte, isRead bool) cipher.BlockMode {
	block, _ := camellia.New(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

// decrypt takes iv || ciphertext and strips the rfc7296 3.14 padding.
func decrypt(b, key []byte, ivLen, blockLen int, cf cipherFunc) ([]byte, error) {
	if len(b) < ivLen {
		return nil, errors.New("ciphertext shorter than iv")
	}
	iv := b[:ivLen]
	ct := b[ivLen:]
	if len(ct) == 0 || len(ct)%blockLen != 0 {
		return nil, errors.Errorf("ciphertext length %d is not a block multiple", len(ct))
	}
	clear := make([]byte, len(ct))
	cf(key, iv, true).CryptBlocks(clear, ct)
	padlen := int(clear[len(clear)-1]) + 1
	if padlen > len(clear) {
		return nil, errors.New("pad length is larger than payload")
	}
	return clear[:len(clear)-padlen], nil
}

func encrypt(payload, key []byte, ivLen, blockLen int, cf cipherFunc) ([]byte, error) {
	iv := make([]byte, ivLen)
	rand.Read(iv)
	padlen := blockLen - len(payload)%blockLen
	pt := append(append([]byte{}, payload...), make([]byte, padlen)...)
	pt[len(pt)-1] = byte(padlen - 1)
	ct := make([]byte, len(pt))
	cf(key, iv, false).CryptBlocks(ct, pt)
	return append(iv, ct...), nil
}
