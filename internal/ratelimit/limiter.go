// Package ratelimit spaces out requests that share a key (usually an upstream host).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter answers whether an action keyed by key may run now.
type RateLimiter interface {
	Allow(key string) bool
}

// Limiter enforces a minimum interval between requests to the same host.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]*rate.Limiter
	minInterval time.Duration
}

func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]*rate.Limiter),
		minInterval: minInterval,
	}
}

func (l *Limiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.minInterval), 1)
		l.hosts[host] = lim
	}
	return lim
}

// Allow reports whether host may be hit now; a rejected call does not reserve a slot.
func (l *Limiter) Allow(host string) bool {
	return l.limiter(host).Allow()
}

// Wait blocks until host may be hit.
func (l *Limiter) Wait(host string) {
	_ = l.WaitContext(context.Background(), host)
}

// WaitContext blocks until host may be hit or ctx is done.
func (l *Limiter) WaitContext(ctx context.Context, host string) error {
	return l.limiter(host).Wait(ctx)
}

func (l *Limiter) Reset(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, host)
}

func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]*rate.Limiter)
}

var _ RateLimiter = (*Limiter)(nil)
