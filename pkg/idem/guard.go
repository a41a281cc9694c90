// Package idem provides pre-write duplicate detection for the onboarding
// sagas. The guard narrows the window in which the same logical operation can
// run twice; it is advisory and never blocks work when Redis is unreachable,
// since the source behavior it protects had no guard at all.
package idem

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"talentcore/internal/util"
)

// DefaultTTL bounds how long a claimed key blocks duplicates.
const DefaultTTL = 5 * time.Minute

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard detects duplicate invocations by claiming a Redis key per idempotency
// key. A nil guard is valid and admits everything.
type Guard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewGuard creates a Redis-backed guard. Returns nil when addr is empty so
// callers can wire it unconditionally.
func NewGuard(addr, password, prefix string, ttl time.Duration) *Guard {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "talentcore:idem"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Acquire claims the idempotency key. It returns acquired=false only when the
// key is already held within the TTL window; Redis errors degrade to
// acquired=true with a warning. The release func frees the claim early, e.g.
// after a failed run, so a retry is not locked out for the full TTL.
func (g *Guard) Acquire(ctx context.Context, key string) (release func(context.Context), acquired bool) {
	noop := func(context.Context) {}
	if g == nil || g.client == nil {
		return noop, true
	}
	fullKey := g.prefix + ":" + key
	token := util.NewID()
	ok, err := g.client.SetNX(ctx, fullKey, token, g.ttl).Result()
	if err != nil {
		slog.Warn("idempotency guard unavailable, admitting operation", "key", key, "err", err)
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return func(ctx context.Context) {
		if err := releaseScript.Run(ctx, g.client, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
			slog.Warn("idempotency guard release failed", "key", key, "err", err)
		}
	}, true
}
