package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes reconnect delays that grow multiplicatively up to a ceiling.
type Backoff struct {
	mu         sync.Mutex
	initial    time.Duration
	max        time.Duration
	current    time.Duration
	multiplier float64
	jitter     func(time.Duration) time.Duration
}

// NewBackoff creates a backoff without jitter. A multiplier below 1 is treated as 2.
func NewBackoff(initial, max time.Duration, multiplier float64) *Backoff {
	if multiplier < 1 {
		multiplier = 2
	}
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial:    initial,
		max:        max,
		current:    initial,
		multiplier: multiplier,
	}
}

// SetJitter installs fn to perturb every returned delay. nil disables jitter.
func (b *Backoff) SetJitter(fn func(time.Duration) time.Duration) {
	b.mu.Lock()
	b.jitter = fn
	b.mu.Unlock()
}

// Next returns the current delay and grows it for the following call.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.current
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max || next <= 0 {
		next = b.max
	}
	b.current = next

	if b.jitter != nil {
		d = b.jitter(d)
	}
	return d
}

// Reset restores the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = b.initial
	b.mu.Unlock()
}

// RandomJitter spreads d over [d/2, 3d/2).
func RandomJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
