package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript checks every sorted set, then adds the member to all of them
// only if none is full. A member already in a set holds its slot and keeps
// its original score. Scores are unix milliseconds.
//
// ARGV: now_ms, member, then (limit, window_ms) per key.
// Returns {1} on success or {0, key_index, retry_at_ms}.
var acquireScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local member = ARGV[2]
for i, key in ipairs(KEYS) do
	local limit = tonumber(ARGV[1 + i * 2])
	local window = tonumber(ARGV[2 + i * 2])
	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	if not redis.call('ZSCORE', key, member) and redis.call('ZCARD', key) >= limit then
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		local retry = now + window
		if oldest[2] then
			retry = tonumber(oldest[2]) + window
		end
		return {0, i, retry}
	end
end
for i, key in ipairs(KEYS) do
	local window = tonumber(ARGV[2 + i * 2])
	redis.call('ZADD', key, 'NX', now, member)
	redis.call('PEXPIRE', key, window)
end
return {1}
`)

// Redis is a sliding-window Limiter over Redis sorted sets. Counters are
// shared across processes.
type Redis struct {
	client redis.Scripter
}

func NewRedis(client redis.Scripter) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Acquire(ctx context.Context, now time.Time, member string, rules ...Rule) error {
	if len(rules) == 0 {
		return nil
	}
	keys := make([]string, len(rules))
	args := make([]any, 0, 2+len(rules)*2)
	args = append(args, now.UnixMilli(), member)
	for i, rule := range rules {
		keys[i] = rule.Key
		args = append(args, rule.Limit, rule.Window.Milliseconds())
	}

	res, err := acquireScript.Run(ctx, r.client, keys, args...).Slice()
	if err != nil {
		return fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) == 0 {
		return fmt.Errorf("rate limit script: empty reply")
	}
	if ok, _ := toInt64(res[0]); ok == 1 {
		return nil
	}
	if len(res) < 3 {
		return fmt.Errorf("rate limit script: malformed reply %v", res)
	}
	idx, _ := toInt64(res[1])
	retryMs, _ := toInt64(res[2])
	key := ""
	if idx >= 1 && int(idx) <= len(rules) {
		key = rules[idx-1].Key
	}
	return &ExceededError{Key: key, RetryAt: time.UnixMilli(retryMs).UTC()}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	}
	return 0, false
}

var _ Limiter = (*Redis)(nil)
