package ratelimiter

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter throttles how fast new connections are admitted.
//
// It is a token bucket: tokens refill at a sustained rate up to a burst
// ceiling and every admitted connection consumes one. A zero rate disables
// limiting entirely.
//
// Thread safety:
// All methods are safe for concurrent use, including SetLimit and SetBurst
// while the acceptor is running (used by configuration hot reload).
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter admitting perSecond connections on average with
// bursts of up to burst connections.
//
// When burst is zero and perSecond is positive, the burst defaults to
// ceil(perSecond) so at least one connection can always be admitted.
func New(perSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(toLimit(perSecond), normalizeBurst(perSecond, burst))}
}

// Allow reports whether one connection may be admitted now, consuming a
// token when it may.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. Zero disables limiting.
func (l *Limiter) SetLimit(perSecond float64) {
	l.limiter.SetLimit(toLimit(perSecond))
	if l.limiter.Burst() == 0 {
		l.limiter.SetBurst(normalizeBurst(perSecond, 0))
	}
}

// SetBurst changes the bucket capacity.
func (l *Limiter) SetBurst(burst int) {
	l.limiter.SetBurst(normalizeBurst(float64(l.limiter.Limit()), burst))
}

// Unlimited reports whether limiting is disabled.
func (l *Limiter) Unlimited() bool {
	return l.limiter.Limit() == rate.Inf
}

// Tokens returns the number of tokens currently in the bucket.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

func toLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func normalizeBurst(perSecond float64, burst int) int {
	if burst > 0 {
		return burst
	}
	if perSecond <= 0 || math.IsInf(perSecond, 1) {
		return 0
	}
	return int(math.Ceil(perSecond))
}
