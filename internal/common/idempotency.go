package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client supplied retry key for write endpoints.
const IdempotencyHeader = "Idempotency-Key"

// Idem guards write endpoints against concurrent duplicates of the same
// Idempotency-Key. The key is only held while the first request is in flight;
// sequential retries fall through to the handler, which is expected to return
// the originally stored result for the key.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func hashKey(scope, key string) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + key))
	return "pos:idem:" + hex.EncodeToString(sum[:])
}

// Middleware enforces the in-flight guard.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(IdempotencyHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		scope, _ := UserID(ctx)
		key := hashKey(scope+r.URL.Path, header)
		ttl := i.TTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		ok, err := i.R.SetNX(ctx, key, "in-flight", ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_FLIGHT", "a request with this idempotency key is still being processed", nil)
			return
		}
		defer func() {
			_ = i.R.Del(context.Background(), key).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
