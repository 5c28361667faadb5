package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_Allow(t *testing.T) {
	// 容量2，初始满桶：前两次放行，第三次被拒
	tb := NewTokenBucket(60, 2)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucket_WaitRespectsContext(t *testing.T) {
	// 速率极低，桶已被排空，Wait应该被上下文取消打断
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_RefillOverTime(t *testing.T) {
	// 600 QPM = 每秒10个令牌
	tb := NewTokenBucket(600, 1)
	require.True(t, tb.Allow())
	require.False(t, tb.Allow())

	time.Sleep(150 * time.Millisecond)
	assert.True(t, tb.Allow(), "等待后应补充出新令牌")
}

func TestRetryWithBackoff(t *testing.T) {
	tb := NewTokenBucket(6000, 100).WithRetryPolicy(time.Millisecond, 3)

	calls := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("429 Too Many Requests")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	// 不可重试的错误直接返回
	calls = 0
	err = tb.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("invalid request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("read tcp: connection reset by peer")))
	assert.True(t, isRetryableError(errors.New("HTTP 429 Too Many Requests")))
	assert.True(t, isRetryableError(errors.New("model is overloaded")))
	assert.False(t, isRetryableError(errors.New("参数非法")))
}
