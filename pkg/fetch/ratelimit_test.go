package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDelay_RespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, testLogger())
	rl.UpdateLastRequestTime("twitcasting.tv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	rl.ApplyDelay(ctx, "twitcasting.tv", 5*time.Second)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestApplyDelay_SleepsForExpectedDuration(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, testLogger())
	rl.UpdateLastRequestTime("twitcasting.tv")

	start := time.Now()
	rl.ApplyDelay(context.Background(), "twitcasting.tv", 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestApplyDelay_NoDelay(t *testing.T) {
	t.Run("first request to host", func(t *testing.T) {
		rl := NewRateLimiter(time.Second, testLogger())
		start := time.Now()
		rl.ApplyDelay(context.Background(), "fresh-host.tv", 5*time.Second)
		assert.Less(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("delay disabled", func(t *testing.T) {
		rl := NewRateLimiter(0, testLogger())
		rl.UpdateLastRequestTime("twitcasting.tv")
		start := time.Now()
		rl.ApplyDelay(context.Background(), "twitcasting.tv", 0)
		assert.Less(t, time.Since(start), 10*time.Millisecond)
	})
}
