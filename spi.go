package ike

import (
	"crypto/rand"

	"github.com/msgboxio/ikev2/packets"
	"github.com/msgboxio/ikev2/protocol"
)

// MakeSpi mints a fresh random 8-byte IKE SPI.
func MakeSpi() (ret protocol.Spi) {
	spi := make([]byte, 8)
	rand.Read(spi)
	return spi
}

func SpiToInt64(spi protocol.Spi) uint64 {
	if len(spi) < 8 {
		return 0
	}
	v, _ := packets.ReadB64(spi, 0)
	return v
}

func SpiIsZero(spi protocol.Spi) bool {
	for _, b := range spi {
		if b != 0 {
			return false
		}
	}
	return true
}

var zeroSpi = make(protocol.Spi, 8)
