package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnlimited(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.TryConsume(1<<30))
	}
	var nilLimiter *Limiter
	assert.True(t, nilLimiter.TryConsume(1))
	assert.Equal(t, int64(0), nilLimiter.Rate())
}

func TestAllOrNothing(t *testing.T) {
	l := New(1)
	assert.True(t, l.TryConsume(MinCapacity-10))
	assert.False(t, l.TryConsume(100))
	// the failed attempt did not take the remaining tokens
	assert.True(t, l.TryConsume(5))
}

func TestSetRate(t *testing.T) {
	l := New(1000)
	assert.True(t, l.TryConsume(MinCapacity))
	assert.False(t, l.TryConsume(MinCapacity))
	l.SetRate(0)
	assert.True(t, l.TryConsume(MinCapacity))
	assert.Equal(t, int64(0), l.Rate())
	l.SetRate(1000)
	assert.Equal(t, int64(1000), l.Rate())
}

func TestWaitStops(t *testing.T) {
	l := New(1)
	assert.True(t, l.TryConsume(MinCapacity))
	stopC := make(chan struct{})
	close(stopC)
	assert.Equal(t, ErrStopped, l.Wait(10, stopC))
}

func TestWaitRefills(t *testing.T) {
	l := New(10 * MinCapacity)
	assert.True(t, l.TryConsume(10*MinCapacity))
	start := time.Now()
	assert.NoError(t, WaitAll(MinCapacity, nil, l, nil))
	assert.True(t, time.Since(start) >= 50*time.Millisecond)
}
