// Package poll provides bounded-deadline polling.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadline は期限内に条件が満たされなかったことを表す
var ErrDeadline = errors.New("deadline exceeded while polling")

// Check は1回分の確認処理。nilを返すと成功
type Check func(ctx context.Context) error

// Config はポーリングの設定
type Config struct {
	Interval time.Duration // 試行間隔
	Timeout  time.Duration // 全体の期限
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Interval: 1 * time.Second,
		Timeout:  2 * time.Minute,
	}
}

// Result はポーリング結果
type Result struct {
	Attempts int
	Elapsed  time.Duration
	LastErr  error // 最後に失敗したCheckのエラー
}

// Until はcheckが成功するか期限切れになるまでIntervalごとに呼び出す
// checkの失敗は握りつぶして再試行し、期限切れのみErrDeadlineとして返す
// ctxがキャンセルされた場合はctx.Err()を返す
func Until(ctx context.Context, config Config, check Check) (Result, error) {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}

	start := time.Now()
	deadlineCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	var result Result
	for {
		result.Attempts++
		err := check(deadlineCtx)
		result.Elapsed = time.Since(start)
		if err == nil {
			result.LastErr = nil
			return result, nil
		}
		result.LastErr = err

		select {
		case <-deadlineCtx.Done():
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, fmt.Errorf("%w after %v (%d attempts): %w",
				ErrDeadline, config.Timeout, result.Attempts, err)
		case <-ticker.C:
		}
	}
}
