// Package jitter provides the random draws used for pacing, retry delays and
// identity rotation. Every consumer takes a Source so tests can pin outcomes.
package jitter

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Source yields uniformly distributed floats in [0, 1).
type Source interface {
	Float64() float64
}

type cryptoSource struct{}

var float53 = big.NewInt(1 << 53)

func (cryptoSource) Float64() float64 {
	n, err := rand.Int(rand.Reader, float53)
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / float64(1<<53)
}

// Default returns a Source backed by crypto/rand.
func Default() Source {
	return cryptoSource{}
}

// Or returns src, or Default when src is nil.
func Or(src Source) Source {
	if src == nil {
		return Default()
	}
	return src
}

// Float draws a float in [lo, hi).
func Float(src Source, lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + src.Float64()*(hi-lo)
}

// Duration draws a duration in [lo, hi). A zero range yields lo.
func Duration(src Source, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(src.Float64()*float64(hi-lo))
}

// Chance reports true with probability p.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Pick returns a uniformly chosen element of items, or the zero value when empty.
func Pick[T any](src Source, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	i := int(src.Float64() * float64(len(items)))
	if i >= len(items) {
		i = len(items) - 1
	}
	return items[i]
}

// Fixed is a Source that always returns the same value. Handy in tests.
type Fixed float64

// Float64 implements Source.
func (f Fixed) Float64() float64 { return float64(f) }

// Sequence replays values in order and then repeats the last one.
type Sequence struct {
	Values []float64
	next   int
}

// Float64 implements Source.
func (s *Sequence) Float64() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	if s.next >= len(s.Values) {
		return s.Values[len(s.Values)-1]
	}
	v := s.Values[s.next]
	s.next++
	return v
}
