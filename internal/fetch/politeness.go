package fetch

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// identityPool rotates the client identity string every rotateEvery requests
// to reduce trivial blocking.
type identityPool struct {
	mu          sync.Mutex
	agents      []string
	rotateEvery int
	requests    int
	index       int
}

func newIdentityPool(agents []string, rotateEvery int) *identityPool {
	if rotateEvery <= 0 {
		rotateEvery = 10
	}
	return &identityPool{agents: agents, rotateEvery: rotateEvery}
}

// Next returns the identity for the upcoming request.
func (p *identityPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.agents) == 0 {
		return ""
	}
	if p.requests > 0 && p.requests%p.rotateEvery == 0 {
		p.index = (p.index + 1) % len(p.agents)
	}
	p.requests++
	return p.agents[p.index]
}

// jitteredDelay draws a politeness pause from [min, max].
type jitteredDelay struct {
	min time.Duration
	max time.Duration
}

func (d jitteredDelay) next() time.Duration {
	if d.max <= d.min {
		return d.min
	}
	return d.min + time.Duration(rand.Int63n(int64(d.max-d.min)))
}

// pause blocks for delay or until the context finishes.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// domainBlocker tracks repeated forbidden responses and gives up on hosts
// that keep rejecting us.
type domainBlocker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	blocked   map[string]struct{}
}

func newDomainBlocker(threshold int) *domainBlocker {
	if threshold <= 0 {
		threshold = 3
	}
	return &domainBlocker{
		threshold: threshold,
		counts:    make(map[string]int),
		blocked:   make(map[string]struct{}),
	}
}

func (b *domainBlocker) IsBlocked(host string) bool {
	if host == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blocked[strings.ToLower(host)]
	return ok
}

// MarkForbidden increments the counter for host and returns true once blocked.
func (b *domainBlocker) MarkForbidden(host string) bool {
	if host == "" {
		return false
	}
	key := strings.ToLower(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, blocked := b.blocked[key]; blocked {
		return true
	}
	b.counts[key]++
	if b.counts[key] >= b.threshold {
		b.blocked[key] = struct{}{}
		return true
	}
	return false
}
