package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/hitoshi/giftman/internal/bot"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぐ
// ミドルウェアを生成する。panicはエラーに変換して返し、
// ディスパッチャのエラー境界が汎用応答に変換する。
func NewRecoveryMiddleware() bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.Int64("update_id", update.ID),
						slog.Int64("from_id", update.From.ID),
						slog.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic in update handler: %v", rec)
				}
			}()
			return next.Handle(ctx, update)
		})
	}
}
