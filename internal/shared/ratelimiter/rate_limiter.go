package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterInterface は、外部API呼び出しの頻度を制限するインターフェースです。
type RateLimiterInterface interface {
	Wait(ctx context.Context) error
}

// RateLimiter は、連続する呼び出しの間に最小間隔を強制します。
// 1つのインスタンスを全ワーカーで共有します。
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter は新しいRateLimiterのインスタンスを生成します。
// interval が0以下の場合は制限しません。
func NewRateLimiter(interval time.Duration) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	// バースト1: 前回の呼び出しから interval 経過するまで次の呼び出しを許可しない
	return &RateLimiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait は前回の呼び出しから interval が経過するまで待機します。
// 待機中に ctx がキャンセルされた場合はエラーを返します。
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return rl.limiter.Wait(ctx)
}
