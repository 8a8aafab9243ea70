package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilImmediateSuccess(t *testing.T) {
	res, err := Until(context.Background(), Config{Interval: time.Hour, Timeout: time.Second}, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestUntilSwallowsCheckFailures(t *testing.T) {
	calls := 0
	check := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	res, err := Until(context.Background(), Config{Interval: 5 * time.Millisecond, Timeout: time.Second}, check)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.NoError(t, res.LastErr)
}

func TestUntilDeadline(t *testing.T) {
	checkErr := errors.New("not ready")
	res, err := Until(context.Background(), Config{Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond},
		func(context.Context) error { return checkErr })

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadline)
	assert.ErrorIs(t, err, checkErr)
	assert.GreaterOrEqual(t, res.Attempts, 2)
	assert.GreaterOrEqual(t, res.Elapsed, 40*time.Millisecond)
}

func TestUntilCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Until(ctx, Config{Interval: 5 * time.Millisecond, Timeout: time.Minute},
		func(context.Context) error { return errors.New("not ready") })

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDeadline)
}

func TestUntilCheckSeesDeadline(t *testing.T) {
	var deadline time.Time
	_, _ = Until(context.Background(), Config{Interval: time.Millisecond, Timeout: 30 * time.Millisecond},
		func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		})
	assert.False(t, deadline.IsZero())
}
