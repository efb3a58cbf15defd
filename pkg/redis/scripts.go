package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts a hit and starts the window on the first one in
// the same round trip, so a crash can never leave a counter without a TTL.
var fixedWindowScript = redis.NewScript(`
local hits = redis.call('INCR', KEYS[1])
if hits == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return hits
`)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// FixedWindowAllow counts one hit against scope and reports whether the
// count is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c == nil || c.cmd == nil {
		return false, 0, errNotInitialized
	}
	if window <= 0 {
		window = time.Minute
	}
	hits, err := fixedWindowScript.Run(ctx, c.cmd, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return hits <= limit, hits, nil
}

// ReleaseIfHolder deletes key when its value is still holder. It reports
// false when the key expired or another holder took it.
func (c *Client) ReleaseIfHolder(ctx context.Context, key, holder string) (bool, error) {
	if c == nil || c.cmd == nil {
		return false, errNotInitialized
	}
	deleted, err := releaseScript.Run(ctx, c.cmd, []string{key}, holder).Int64()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}
