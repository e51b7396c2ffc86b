package ike

import (
	"math/rand"
	"time"
)

// Jitter returns a time.Duration between duration and duration +
// maxFactor * duration, to keep peers from converging on periodic
// behavior. A maxFactor of 0.0 selects a suggested default.
func Jitter(duration time.Duration, maxFactor float64) time.Duration {
	if maxFactor == 0.0 {
		maxFactor = 1.0
	}
	return duration + time.Duration(rand.Float64()*maxFactor*float64(duration))
}
