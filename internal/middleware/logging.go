package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/giftman/internal/bot"
)

// NewLoggingMiddleware はアップデートのJSON構造化ログを出力する
// ミドルウェアを返す。ログにはupdate_id、from_id、種別（message/callback）、
// duration_ms、エラーの有無を含む。
func NewLoggingMiddleware(logger *slog.Logger) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			start := time.Now()

			err := next.Handle(ctx, update)

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			kind := "message"
			if update.IsCallback() {
				kind = "callback"
			}

			attrs := []any{
				slog.Int64("update_id", update.ID),
				slog.Int64("from_id", update.From.ID),
				slog.String("kind", kind),
				slog.Float64("duration_ms", durationMs),
			}

			level := slog.LevelInfo
			if err != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", err.Error()))
			}

			logger.Log(ctx, level, "bot_update", attrs...)
			return err
		})
	}
}
