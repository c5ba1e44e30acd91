package generation

import (
	"context"
	"sync"
	"time"

	"iconstudio/internal/genclient"
)

// imageBurstFloor lets the beauty and segmentation renders of one
// generation or patch start together instead of queueing behind each other.
const imageBurstFloor = 2

// modalityLimiter keeps one token bucket per request modality, so a short
// brief request never waits behind queued image renders.
type modalityLimiter struct {
	mu      sync.Mutex
	rps     float64
	burst   int
	buckets map[genclient.Modality]*bucket
	now     func() time.Time
}

// newModalityLimiter returns nil when rps <= 0; a nil limiter never blocks.
func newModalityLimiter(rps float64, burst int) *modalityLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &modalityLimiter{
		rps:     rps,
		burst:   burst,
		buckets: make(map[genclient.Modality]*bucket),
		now:     time.Now,
	}
}

func (l *modalityLimiter) bucketFor(m genclient.Modality) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[m]
	if !ok {
		size := l.burst
		if m == genclient.ModalityImage && size < imageBurstFloor {
			size = imageBurstFloor
		}
		b = &bucket{rate: l.rps, size: float64(size), tokens: float64(size), last: l.now()}
		l.buckets[m] = b
	}
	return b
}

// Acquire waits for a token in m's bucket. A canceled wait hands its token back.
func (l *modalityLimiter) Acquire(ctx context.Context, m genclient.Modality) error {
	if l == nil {
		return nil
	}
	b := l.bucketFor(m)
	wait := b.reserve(l.now())
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// bucket refills lazily from the elapsed time. tokens goes negative while
// callers are queued; each one waits for its own share of the deficit.
type bucket struct {
	mu     sync.Mutex
	rate   float64
	size   float64
	tokens float64
	last   time.Time
}

func (b *bucket) reserve(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.rate
		if b.tokens > b.size {
			b.tokens = b.size
		}
		b.last = now
	}
	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens / b.rate * float64(time.Second))
}

func (b *bucket) cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens++
	if b.tokens > b.size {
		b.tokens = b.size
	}
}
