package ike

import (
	"time"
)

// Config is the engine-wide policy; per-connection knobs live on
// ConnectionPolicy.
type Config struct {
	// FragmentationAllowed permits rfc7383 fragment reassembly
	FragmentationAllowed bool

	// HalfOpenSoftThreshold is the half-open SA count at or above which
	// IKE_SA_INIT requests must carry a valid COOKIE
	HalfOpenSoftThreshold int
	// HalfOpenHardThreshold is the count at or above which new exchanges
	// are dropped outright
	HalfOpenHardThreshold int

	// ResponderWait is how long a responder absorbs peer retransmits
	// before discarding a failed or superseded SA
	ResponderWait time.Duration

	// RetransmitInterval is the base interval between request
	// retransmissions, jittered and doubled each try
	RetransmitInterval time.Duration
	// RetransmitTries is the number of retransmissions before the
	// exchange is abandoned and the SA destroyed
	RetransmitTries int

	// ReplaceInterval schedules SA replacement after establishment
	ReplaceInterval time.Duration

	// FragmentSize is the encoded payload (plaintext) size above which
	// recorded responses are fragmented, when the peer fragments too; it
	// is also the plaintext chunk size of each fragment
	FragmentSize int
}

// DefaultConfig mirrors the daemon defaults.
func DefaultConfig() *Config {
	return &Config{
		FragmentationAllowed:  true,
		HalfOpenSoftThreshold: 128,
		HalfOpenHardThreshold: 512,
		ResponderWait:         30 * time.Second,
		RetransmitInterval:    2 * time.Second,
		RetransmitTries:       5,
		ReplaceInterval:       time.Hour,
		FragmentSize:          1280,
	}
}
