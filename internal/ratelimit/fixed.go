package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed window limiter shared by all API replicas through Redis.
type Fixed struct {
	L *limiter.Limiter
}

// NewFixed builds a Fixed limiter allowing max requests per period. A nil
// client keeps counters in process memory.
func NewFixed(rdb *redis.Client, prefix string, period time.Duration, max int64) (Fixed, error) {
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}
	var (
		store limiter.Store
		err   error
	)
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, opts)
		if err != nil {
			return Fixed{}, err
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return Fixed{L: limiter.New(store, limiter.Rate{Period: period, Limit: max})}, nil
}

// Allow counts one request for key.
func (f Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	if f.L == nil {
		return Decision{Allowed: true}, nil
	}
	lc, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     int(lc.Limit),
		Remaining: int(lc.Remaining),
		Reset:     time.Unix(lc.Reset, 0),
	}, nil
}
