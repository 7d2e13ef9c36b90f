package limiters

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrVerificationRateLimited is returned once a member has reached the
	// failure threshold within the cooldown window.
	ErrVerificationRateLimited = errors.New("verification rate limited")
	// ErrVerificationUnavailable marks Redis failures.
	ErrVerificationUnavailable = errors.New("verification limiter unavailable")
)

// VerificationConfig holds the failure threshold and window.
type VerificationConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// VerificationLimiter tracks failed verification attempts per member.
type VerificationLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	cooldown    time.Duration
}

// NewVerificationLimiter returns nil when redisClient is nil or MaxAttempts
// is not positive, which disables limiting.
func NewVerificationLimiter(redisClient redis.UniversalClient, cfg VerificationConfig) *VerificationLimiter {
	if redisClient == nil || cfg.MaxAttempts <= 0 {
		return nil
	}
	return &VerificationLimiter{
		redis:       redisClient,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
	}
}

func (l *VerificationLimiter) key(memberID string) string {
	return "mvl:" + memberID
}

// Check returns ErrVerificationRateLimited when memberID is locked.
func (l *VerificationLimiter) Check(ctx context.Context, memberID string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(memberID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return errors.Mark(errors.Wrap(err, "read verification counter"), ErrVerificationUnavailable)
	}
	if int(count) >= l.maxAttempts {
		return ErrVerificationRateLimited
	}
	return nil
}

// RecordFailure counts one failed attempt. It returns
// ErrVerificationRateLimited when this failure reaches the threshold.
// The window starts at the first failure and is never extended.
func (l *VerificationLimiter) RecordFailure(ctx context.Context, memberID string) error {
	if l == nil {
		return nil
	}
	key := l.key(memberID)
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if l.cooldown > 0 {
			pipe.ExpireNX(ctx, key, l.cooldown)
		}
		return nil
	})
	if err != nil {
		return errors.Mark(errors.Wrap(err, "increment verification counter"), ErrVerificationUnavailable)
	}
	if int(incr.Val()) >= l.maxAttempts {
		return ErrVerificationRateLimited
	}
	return nil
}

// Reset clears the counter after a successful verification.
func (l *VerificationLimiter) Reset(ctx context.Context, memberID string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(memberID)).Err(); err != nil {
		return errors.Mark(errors.Wrap(err, "reset verification counter"), ErrVerificationUnavailable)
	}
	return nil
}
