package service

import (
	"math"
	"time"
)

// BackoffPolicy computes the delay before the next send attempt:
// Base * Factor^retryCount, clamped to Max.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// Delay returns the wait after retryCount failed attempts, with clamping.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if p.Base <= 0 {
		p.Base = 5 * time.Second
	}
	if p.Factor <= 0 {
		p.Factor = 2
	}

	d := time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(retryCount)))
	if p.Max > 0 && (d > p.Max || d <= 0) {
		d = p.Max
	}
	if d <= 0 {
		d = p.Base
	}
	return d
}
