// Package ratelimiter implements a token bucket limiter for transfer rates in bytes per second.
// A Limiter with rate zero does not limit.
package ratelimiter

import (
	"errors"
	"sync"
	"time"

	"github.com/juju/ratelimit"
)

// MinCapacity is the smallest bucket size. A piece message (16 KiB block and header) always fits in a bucket.
const MinCapacity = 64 * 1024

// RefillInterval is how long Wait sleeps after a failed attempt.
const RefillInterval = 50 * time.Millisecond

// ErrStopped is returned by Wait when the stop channel is closed.
var ErrStopped = errors.New("stopped while waiting for rate limiter")

// Limiter is safe for concurrent use by many connections.
type Limiter struct {
	m      sync.RWMutex
	rate   int64
	bucket *ratelimit.Bucket
}

// New returns a Limiter that allows bytesPerSec bytes per second. Zero or negative means unlimited.
func New(bytesPerSec int64) *Limiter {
	l := &Limiter{}
	l.SetRate(bytesPerSec)
	return l
}

// SetRate changes the rate. The bucket is refilled when the rate changes.
func (l *Limiter) SetRate(bytesPerSec int64) {
	l.m.Lock()
	defer l.m.Unlock()
	if bytesPerSec <= 0 {
		l.rate = 0
		l.bucket = nil
		return
	}
	capacity := bytesPerSec
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	l.rate = bytesPerSec
	l.bucket = ratelimit.NewBucketWithRate(float64(bytesPerSec), capacity)
}

// Rate returns the configured rate. Zero means unlimited.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	l.m.RLock()
	defer l.m.RUnlock()
	return l.rate
}

// TryConsume takes n tokens if they are all available now. It never takes a partial amount.
// A nil or unlimited Limiter always succeeds.
func (l *Limiter) TryConsume(n int64) bool {
	if l == nil {
		return true
	}
	l.m.RLock()
	b := l.bucket
	l.m.RUnlock()
	if b == nil {
		return true
	}
	_, ok := b.TakeMaxDuration(n, 0)
	return ok
}

// Wait consumes n tokens, retrying every RefillInterval until they are available.
// Amounts larger than the bucket are consumed in chunks.
func (l *Limiter) Wait(n int64, stopC <-chan struct{}) error {
	if l == nil {
		return nil
	}
	for n > 0 {
		chunk := n
		l.m.RLock()
		if l.bucket != nil && chunk > l.bucket.Capacity() {
			chunk = l.bucket.Capacity()
		}
		l.m.RUnlock()
		for !l.TryConsume(chunk) {
			select {
			case <-time.After(RefillInterval):
			case <-stopC:
				return ErrStopped
			}
		}
		n -= chunk
	}
	return nil
}

// WaitAll waits on each limiter in order. Nil limiters are skipped.
func WaitAll(n int64, stopC <-chan struct{}, limiters ...*Limiter) error {
	for _, l := range limiters {
		if err := l.Wait(n, stopC); err != nil {
			return err
		}
	}
	return nil
}
