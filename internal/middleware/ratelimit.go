package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/giftman/internal/bot"
)

// rateLimitReply はレート超過時のユーザー向け応答。
const rateLimitReply = "Слишком много запросов. Подождите немного."

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	Rate            rate.Limit    // アイデンティティごとのレート（updates/sec）
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 30 updates/min/identity、バースト10。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            rate.Limit(30.0 / 60.0),
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

// identityLimiter はアイデンティティごとのリミッターとアクセス時刻を保持する。
type identityLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はアイデンティティごとのレート制限を管理する。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	limiters map[int64]*identityLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[int64]*identityLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Middleware はレート制限ミドルウェアを返す。
// 超過したアップデートは応答1件を返して破棄する。
func (rl *RateLimiter) Middleware(logger *slog.Logger, sender bot.Sender) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			if !rl.allow(update.From.ID) {
				logger.Warn("rate limit exceeded",
					slog.Int64("from_id", update.From.ID),
				)
				reply := &bot.Message{ChatID: update.ChatID, Text: rateLimitReply}
				return sender.SendMessage(ctx, reply)
			}
			return next.Handle(ctx, update)
		})
	}
}

// allow はアイデンティティのトークンを1つ消費する。
func (rl *RateLimiter) allow(identity int64) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[identity]
	if !ok {
		entry = &identityLimiter{
			limiter: rate.NewLimiter(rl.config.Rate, rl.config.Burst),
		}
		rl.limiters[identity] = entry
	}
	entry.lastAccess = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// cleanupLoop は一定間隔でアクセスの無いエントリを削除する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup はクリーンアップ間隔の2倍以上アクセスの無いエントリを削除する。
func (rl *RateLimiter) cleanup() {
	threshold := 2 * rl.config.CleanupInterval
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for identity, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > threshold {
			delete(rl.limiters, identity)
		}
	}
}
