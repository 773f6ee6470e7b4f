package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	uuid "github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/proyectoio2/back/internal/core/port"
)

// slidingWindowScript trims expired attempts, then records the new one only
// if the window still has room. Scores are unix milliseconds.
//
// KEYS[1] window key
// ARGV[1] now, ARGV[2] window ms, ARGV[3] limit, ARGV[4] member, ARGV[5] cutoff
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[5])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return {1, count + 1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], '0', '0', 'WITHSCORES')
return {0, count, oldest[2]}
`)

// RateLimitRepository persists rate-limit attempts in Redis sorted sets.
type RateLimitRepository struct {
	client    redis.Scripter
	keyPrefix string
}

// NewRateLimitRepository constructs a repository using the provided Redis client and key prefix.
func NewRateLimitRepository(client redis.Scripter, keyPrefix string) *RateLimitRepository {
	return &RateLimitRepository{client: client, keyPrefix: keyPrefix}
}

// Allow records an attempt for identifier unless limit attempts already happened within window.
func (r *RateLimitRepository) Allow(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (port.RateLimitDecision, error) {
	if limit <= 0 {
		return port.RateLimitDecision{}, errors.New("limit must be positive")
	}
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		return port.RateLimitDecision{}, errors.New("window must be at least one millisecond")
	}

	nowMS := now.UnixMilli()
	res, err := slidingWindowScript.Run(ctx, r.client, []string{r.key(identifier)},
		strconv.FormatInt(nowMS, 10),
		strconv.FormatInt(windowMS, 10),
		strconv.Itoa(limit),
		uuid.NewString(),
		strconv.FormatInt(nowMS-windowMS, 10),
	).Slice()
	if err != nil {
		return port.RateLimitDecision{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 3 {
		return port.RateLimitDecision{}, fmt.Errorf("redis sliding window: unexpected reply %v", res)
	}

	allowed, err := replyInt(res[0])
	if err != nil {
		return port.RateLimitDecision{}, err
	}
	count, err := replyInt(res[1])
	if err != nil {
		return port.RateLimitDecision{}, err
	}
	decision := port.RateLimitDecision{Allowed: allowed == 1, Count: int(count)}
	if decision.Allowed {
		return decision, nil
	}

	oldest, err := replyInt(res[2])
	if err != nil {
		return port.RateLimitDecision{}, err
	}
	if retry := time.Duration(oldest+windowMS-nowMS) * time.Millisecond; retry > 0 {
		decision.RetryAfter = retry
	}
	return decision, nil
}

func replyInt(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("parse redis reply %q: %w", val, err)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("unexpected redis reply type %T", v)
	}
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.keyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.keyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
