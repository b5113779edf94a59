// Package rediscache is an example license.Cache backing store over
// Redis; the stored format is caller-defined
// on persisted license state. It is not part of the sans-I/O core --
// it is one concrete way a caller can wire the license.Cache port,
// demonstrated here because go-redis/v9 is a real dependency the
// example pack (USA-RedDragon-DMRHub) reaches for as a backing store.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vantage-sec/rdpcore/license"
)

// Cache implements license.Cache over a single Redis key namespace.
// Lookup/Store are synchronous from the core's point of view: any
// Redis error (network, timeout) is treated as a cache miss on read,
// and logged-and-swallowed on write, matching the port's contract that
// both operations are "infallible from the core's view".
type Cache struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
	onError   func(op, hwid string, err error)
}

var _ license.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithKeyPrefix overrides the default "rdpcore:license:" namespace.
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) { c.keyPrefix = prefix }
}

// WithTTL sets an expiry on stored license blobs; zero (the default)
// means no expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithErrorHandler registers a callback invoked whenever a Redis
// operation fails, so a caller can log it without the core itself
// ever seeing a license-cache error.
func WithErrorHandler(f func(op, hwid string, err error)) Option {
	return func(c *Cache) { c.onError = f }
}

// New wraps an existing *redis.Client as a license.Cache.
func New(rdb *redis.Client, opts ...Option) *Cache {
	c := &Cache{rdb: rdb, keyPrefix: "rdpcore:license:"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(hwid string) string {
	return c.keyPrefix + hwid
}

func (c *Cache) reportError(op, hwid string, err error) {
	if c.onError != nil {
		c.onError(op, hwid, err)
	}
}

// Lookup implements license.Cache.
func (c *Cache) Lookup(hwid string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	blob, err := c.rdb.Get(ctx, c.key(hwid)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.reportError("lookup", hwid, err)
		}
		return nil, false
	}
	return blob, true
}

// Store implements license.Cache.
func (c *Cache) Store(hwid string, blob []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.rdb.Set(ctx, c.key(hwid), blob, c.ttl).Err(); err != nil {
		c.reportError("store", hwid, fmt.Errorf("rediscache: set %s: %w", hwid, err))
	}
}
