package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/repository"
)

const (
	adminOnlyReply       = "Эта команда доступна только администраторам."
	serviceUserOnlyReply = "Эта команда доступна только сервисному пользователю."
	collectorOnlyReply   = "Вы не являетесь сборщиком."
)

// NewRequireAdmin は管理者権限を要求するロールゲートを生成する。
// 権限が無い場合は拒否応答を返し、ハンドラへは転送しない。
func NewRequireAdmin(sender bot.Sender) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			actor, err := ActorFromContext(ctx)
			if err != nil {
				return err
			}
			if !actor.IsAdmin() {
				reply := &bot.Message{ChatID: update.ChatID, Text: adminOnlyReply}
				return sender.SendMessage(ctx, reply)
			}
			return next.Handle(ctx, update)
		})
	}
}

// NewRequireServiceUser はサービスユーザーであることを要求する
// ロールゲートを生成する。
func NewRequireServiceUser(serviceUsers repository.ServiceUserRepository, sender bot.Sender) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			actor, err := ActorFromContext(ctx)
			if err != nil {
				return err
			}

			deny := func() error {
				reply := &bot.Message{ChatID: update.ChatID, Text: serviceUserOnlyReply}
				return sender.SendMessage(ctx, reply)
			}

			if !actor.IsRegistered() {
				return deny()
			}
			current, err := serviceUsers.Get(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve service user: %w", err)
			}
			if current == nil || current.PersonID != actor.Person.ID {
				return deny()
			}
			return next.Handle(ctx, update)
		})
	}
}

// NewRequireCollector は自分の集金担当者レコードの存在を要求する
// ロールゲートを生成する。
func NewRequireCollector(sender bot.Sender) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			actor, err := ActorFromContext(ctx)
			if err != nil {
				return err
			}
			if actor.OwnCollector == nil {
				reply := &bot.Message{ChatID: update.ChatID, Text: collectorOnlyReply}
				return sender.SendMessage(ctx, reply)
			}
			return next.Handle(ctx, update)
		})
	}
}

// NewRequireActiveCollector は自分がアクティブな集金担当者である
// ことを要求するロールゲートを生成する。送金レポート用。
func NewRequireActiveCollector(sender bot.Sender) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			actor, err := ActorFromContext(ctx)
			if err != nil {
				return err
			}
			if !actor.IsActiveCollector() {
				reply := &bot.Message{ChatID: update.ChatID, Text: collectorOnlyReply}
				return sender.SendMessage(ctx, reply)
			}
			return next.Handle(ctx, update)
		})
	}
}
