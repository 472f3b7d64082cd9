package integration

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendfast/drawbridge/internal/database"
	"github.com/lendfast/drawbridge/internal/models"
	"github.com/lendfast/drawbridge/internal/repositories"
	"github.com/lendfast/drawbridge/internal/services"
)

func TestCheckAndIncrement_WindowBudget(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewRateLimitRepository(testDB.DB)
	const identifier = "admin-budget"

	for i := 1; i <= 10; i++ {
		result, err := repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be within budget", i)
		assert.Equal(t, 10-i, result.Remaining)
	}

	// The 11th call is over budget. The denial carries the window close
	// time so callers can compute Retry-After.
	result, err := repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, 10, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.WithinDuration(t, time.Now().Add(time.Minute), result.ResetAt, 5*time.Second)
}

func TestCheckAndIncrement_WindowRollover(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewRateLimitRepository(testDB.DB)
	const identifier = "admin-rollover"

	// Burn through the budget and one denial; denials still bump the count
	for i := 0; i < 11; i++ {
		_, err := repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, 10, time.Minute)
		require.NoError(t, err)
	}

	record, err := repo.GetRecord(ctx, identifier, models.EndpointAdminWrite)
	require.NoError(t, err)
	assert.Equal(t, 11, record.RequestCount)

	// Age the window past its close; the next call resets in place rather
	// than inserting a second row
	require.NoError(t, BackdateWindow(ctx, testDB.Pool, identifier, models.EndpointAdminWrite, 61*time.Second))

	result, err := repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 9, result.Remaining)

	record, err = repo.GetRecord(ctx, identifier, models.EndpointAdminWrite)
	require.NoError(t, err)
	assert.Equal(t, 1, record.RequestCount)
}

func TestCheckAndIncrement_Concurrent(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewRateLimitRepository(testDB.DB)
	const (
		identifier = "admin-concurrent"
		callers    = 25
		budget     = 10
	)

	var wg sync.WaitGroup
	decisions := make(chan bool, callers)
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, budget, time.Minute)
			if err != nil {
				errs <- err
				return
			}
			decisions <- result.Allowed
		}()
	}
	wg.Wait()
	close(decisions)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent check failed: %v", err)
	}

	allowed := 0
	for ok := range decisions {
		if ok {
			allowed++
		}
	}

	// The upsert serializes on the row lock, so exactly budget callers fit
	// regardless of interleaving
	assert.Equal(t, budget, allowed)

	record, err := repo.GetRecord(ctx, identifier, models.EndpointAdminWrite)
	require.NoError(t, err)
	assert.Equal(t, callers, record.RequestCount)
}

func TestBlock_FreezesCounter(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewRateLimitRepository(testDB.DB)
	const identifier = "admin-blocked"

	for i := 0; i < 2; i++ {
		_, err := repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, 10, time.Minute)
		require.NoError(t, err)
	}

	until := time.Now().Add(10 * time.Minute)
	require.NoError(t, repo.Block(ctx, identifier, models.EndpointAdminWrite, time.Minute, until))

	// Denied with the block horizon, and the attempt does not bump the count
	result, err := repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, 10, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.WithinDuration(t, until, result.ResetAt, time.Second)

	record, err := repo.GetRecord(ctx, identifier, models.EndpointAdminWrite)
	require.NoError(t, err)
	assert.Equal(t, 2, record.RequestCount)

	require.NoError(t, repo.Unblock(ctx, identifier, models.EndpointAdminWrite))

	result, err = repo.CheckAndIncrement(ctx, identifier, models.EndpointAdminWrite, 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestDeleteStale_KeepsLiveAndBlockedRows(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	repo := repositories.NewRateLimitRepository(testDB.DB)

	// Fresh row, window still open
	_, err := repo.CheckAndIncrement(ctx, "admin-live", models.EndpointAdminWrite, 10, time.Minute)
	require.NoError(t, err)

	// Window closed two hours ago, well past any grace period
	_, err = repo.CheckAndIncrement(ctx, "admin-stale", models.EndpointAdminWrite, 10, time.Minute)
	require.NoError(t, err)
	require.NoError(t, BackdateWindow(ctx, testDB.Pool, "admin-stale", models.EndpointAdminWrite, 2*time.Hour))

	// Equally stale window but under an active block: must survive the sweep
	_, err = repo.CheckAndIncrement(ctx, "admin-held", models.EndpointAdminWrite, 10, time.Minute)
	require.NoError(t, err)
	require.NoError(t, BackdateWindow(ctx, testDB.Pool, "admin-held", models.EndpointAdminWrite, 2*time.Hour))
	require.NoError(t, repo.Block(ctx, "admin-held", models.EndpointAdminWrite, time.Minute, time.Now().Add(time.Hour)))

	deleted, err := repo.DeleteStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetRecord(ctx, "admin-stale", models.EndpointAdminWrite)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetRecord(ctx, "admin-live", models.EndpointAdminWrite)
	assert.NoError(t, err)

	_, err = repo.GetRecord(ctx, "admin-held", models.EndpointAdminWrite)
	assert.NoError(t, err)
}

func TestThrottleService_DeniesOverBudget(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repositories.NewRateLimitRepository(testDB.DB)
	svc := services.NewThrottleService(repo, services.DefaultThrottleConfig(), logger)

	const identifier = "admin-svc"

	for i := 0; i < 10; i++ {
		result, err := svc.CheckMutate(ctx, identifier)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := svc.CheckMutate(ctx, identifier)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
	require.NotNil(t, result)
	assert.False(t, result.Allowed)

	var rateErr *models.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rateErr.RetryAfter, time.Minute)
}

func TestThrottleService_FailsClosed(t *testing.T) {
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// A second pool against the same server, closed before use, stands in
	// for Postgres being unreachable
	pool, err := pgxpool.New(ctx, testDB.ConnString)
	require.NoError(t, err)
	deadDB := database.NewFromPool(pool, logger)
	pool.Close()

	repo := repositories.NewRateLimitRepository(deadDB)
	svc := services.NewThrottleService(repo, services.DefaultThrottleConfig(), logger)

	result, err := svc.CheckMutate(ctx, "admin-dead")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrThrottleUnavailable)
}
