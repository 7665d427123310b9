package middleware

import (
	"context"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/session"
)

// NewSerializeMiddleware は同一アイデンティティのアップデートを
// 直列化するミドルウェアを生成する。ワークフローのステート読み取りと
// 遷移がアップデート間で競合しないことを保証する。
func NewSerializeMiddleware(sessions *session.Store) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			release := sessions.Acquire(update.From.ID)
			defer release()
			return next.Handle(ctx, update)
		})
	}
}
