// Package cache provides the provider-data and response caches. Both sit on
// a Store that keeps entries with their stored time, hides entries older
// than the TTL and evicts the oldest entries once it grows past a bound.
package cache

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultMaxEntries = 100
	DefaultEvictCount = 20

	DefaultProviderTTL = time.Hour
	DefaultResponseTTL = 30 * time.Minute
)

var ErrStoreUnavailable = errors.New("CACHE_UNAVAILABLE")

// Store is a bounded key/value store. Get reports stale entries as absent;
// they stay stored until overwritten or evicted.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Len(ctx context.Context) (int, error)
}

// Options configure a Store.
type Options struct {
	// Name labels metrics ("provider", "response").
	Name string
	// TTL of zero disables expiry.
	TTL time.Duration
	// MaxEntries is the size above which EvictCount oldest entries go.
	MaxEntries int
	EvictCount int
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.EvictCount <= 0 {
		o.EvictCount = DefaultEvictCount
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) stale(storedAt time.Time) bool {
	return o.TTL > 0 && o.Now().Sub(storedAt) > o.TTL
}
