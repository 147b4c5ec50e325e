package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mareye-api/internal/client"
	"mareye-api/internal/util"
)

const otpSendPrefix = "rate_limit:otp_send:"

// SendLimiter is a fixed-window counter per email shared by every instance.
type SendLimiter struct {
	client *client.RedisClient
	limit  int
	window time.Duration
}

func NewSendLimiter(c *client.RedisClient, limit int, window time.Duration) *SendLimiter {
	return &SendLimiter{client: c, limit: limit, window: window}
}

func (l *SendLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	count, err := l.client.IncrWithExpire(ctx, otpSendPrefix+key, l.window)
	if err != nil {
		return false, fmt.Errorf("failed to increment send counter: %w", err)
	}
	if count > int64(l.limit) {
		util.Warn("OTP send limit exceeded", util.Email("email", key), zap.Int64("count", count))
		return false, nil
	}
	return true, nil
}
