package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the token authorization checks are made with.
type TokenSource interface {
	Token() string
}

// Checker performs an uncached authorization check. *Client satisfies it.
type Checker interface {
	MayImpersonate(ctx context.Context, token, netid string) (bool, error)
}

type cacheEntry struct {
	allowed bool
	at      time.Time
}

// AuthCache memoizes impersonation authorization checks per token and
// target. Concurrent checks for the same key share one request. Checks fail
// closed: any failure answers false and is not cached, so the next call
// asks again.
type AuthCache struct {
	checker Checker
	tokens  TokenSource
	ttl     time.Duration
	now     func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// AuthCacheOption configures an AuthCache.
type AuthCacheOption func(*AuthCache)

// WithTTL expires entries after ttl. Zero keeps them for the life of the
// cache.
func WithTTL(ttl time.Duration) AuthCacheOption {
	return func(c *AuthCache) { c.ttl = ttl }
}

// WithNow sets the time source used for TTL checks.
func WithNow(now func() time.Time) AuthCacheOption {
	return func(c *AuthCache) { c.now = now }
}

// NewAuthCache creates a cache that checks with checker using the token
// from tokens.
func NewAuthCache(checker Checker, tokens TokenSource, opts ...AuthCacheOption) *AuthCache {
	c := &AuthCache{
		checker: checker,
		tokens:  tokens,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MayImpersonateAnyone reports whether the current principal may
// impersonate at least some users.
func (c *AuthCache) MayImpersonateAnyone(ctx context.Context) bool {
	return c.check(ctx, "")
}

// MayImpersonate reports whether the current principal may impersonate
// netid.
func (c *AuthCache) MayImpersonate(ctx context.Context, netid string) bool {
	if netid == "" {
		return false
	}
	return c.check(ctx, netid)
}

// Reset drops every cached answer.
func (c *AuthCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *AuthCache) check(ctx context.Context, netid string) bool {
	token := c.tokens.Token()
	if token == "" {
		return false
	}
	key := cacheKey(token, netid)
	if allowed, ok := c.lookup(key); ok {
		return allowed
	}

	// The shared check must not die with whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		allowed, err := c.checker.MayImpersonate(flightCtx, token, netid)
		if err != nil {
			return false, err
		}
		c.store(key, allowed)
		return allowed, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			log.Ctx(ctx).Warn().Err(res.Err).Bool("targeted", netid != "").Msg("impersonation check failed")
			return false
		}
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (c *AuthCache) lookup(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.ttl > 0 && c.now().Sub(e.at) >= c.ttl {
		delete(c.entries, key)
		return false, false
	}
	return e.allowed, true
}

func (c *AuthCache) store(key string, allowed bool) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{allowed: allowed, at: c.now()}
	c.mu.Unlock()
}

// cacheKey identifies a check without keeping the raw token around.
func cacheKey(token, netid string) string {
	sum := sha256.Sum256([]byte(token))
	if netid == "" {
		return "any:" + hex.EncodeToString(sum[:])
	}
	return "user:" + hex.EncodeToString(sum[:]) + ":" + netid
}
