package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/typeflow/typeflow/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessJob_OrganizationAtCapacityReturnsError(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	w := &Worker{
		logger:           discardLogger(),
		limiter:          rate.NewLimiter(rate.Inf, 1),
		concurrencyLimit: NewTenantConcurrencyLimiter(redisClient, 1),
	}

	ctx := context.Background()
	organizationID := "test-org"

	acquired, err := w.concurrencyLimit.Acquire(ctx, organizationID, "job-1")
	require.NoError(t, err)
	require.True(t, acquired)

	msg := &queue.ExecutionMessage{
		JobID:          "job-2",
		OrganizationID: organizationID,
		WorkflowID:     "workflow-1",
		TriggerType:    "manual",
	}

	result, err := w.ProcessJob(ctx, msg)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrTenantAtCapacity)
}

func TestProcessJob_RespectsRateLimit(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	w := &Worker{
		logger:           discardLogger(),
		limiter:          rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		concurrencyLimit: NewTenantConcurrencyLimiter(redisClient, 10),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Drain the single burst token so the next call must wait on the
	// limiter and observes the context deadline instead.
	require.NoError(t, w.limiter.Wait(context.Background()))

	_, err := w.ProcessJob(ctx, &queue.ExecutionMessage{
		JobID:          "job-1",
		OrganizationID: "org",
		WorkflowID:     "workflow-1",
		TriggerType:    "manual",
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTenantConcurrencyLimiter_AcquireRelease(t *testing.T) {
	redisClient := setupTestRedis(t)
	defer redisClient.Close()

	limiter := NewTenantConcurrencyLimiter(redisClient, 1)
	ctx := context.Background()

	acquired, err := limiter.Acquire(ctx, "org-a", "job-1")
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = limiter.Acquire(ctx, "org-a", "job-2")
	require.NoError(t, err)
	assert.False(t, acquired, "second acquire should fail while first slot is held")

	require.NoError(t, limiter.Release(ctx, "org-a", "job-1"))

	acquired, err = limiter.Acquire(ctx, "org-a", "job-2")
	require.NoError(t, err)
	assert.True(t, acquired, "acquire should succeed once the slot is released")
}

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	client.FlushDB(ctx)
	return client
}
