package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/repository"
	"github.com/hitoshi/giftman/internal/session"
)

// 未登録ユーザーに許可される入口。
const (
	startCommand     = "start"
	registerCallback = "register"
	// registrationStatePrefix は登録フローのステート名前空間。
	// この名前空間内のセッションを持つ未登録ユーザーは通過できる。
	registrationStatePrefix = "registration:"
)

const (
	notRegisteredReply     = "Вы ещё не зарегистрированы. Нажмите /start, чтобы начать."
	alreadyRegisteredReply = "Вы уже зарегистрированы."
)

// NewIdentityMiddleware はアクター解決と登録ゲートのミドルウェアを生成する。
//
// 送信者のPerson・管理者権限・自分の集金担当者レコード・アクティブな
// 集金担当者を解決し、Actorとしてコンテキストに格納する。
// 未登録ユーザーは /start、registerコールバック、登録フロー中の
// テキスト入力のみ通過できる。登録済みユーザーのregister押下は
// 「既に登録済み」応答で打ち切る。
// 解決中の永続化エラーはエラーとして返し、ディスパッチャの
// エラー境界が汎用応答に変換する。
func NewIdentityMiddleware(
	persons repository.PersonRepository,
	admins repository.AdminRepository,
	collectors repository.CollectorRepository,
	sessions *session.Store,
	sender bot.Sender,
) bot.Middleware {
	return func(next bot.Handler) bot.Handler {
		return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			person, err := persons.FindByID(ctx, update.From.ID)
			if err != nil {
				return fmt.Errorf("failed to resolve person: %w", err)
			}

			if person == nil {
				if !allowedUnregistered(update, sessions) {
					reply := &bot.Message{ChatID: update.ChatID, Text: notRegisteredReply}
					return sender.SendMessage(ctx, reply)
				}
				return next.Handle(WithActor(ctx, &Actor{}), update)
			}

			// 登録済みユーザーのregister押下は短絡する
			if update.Callback == registerCallback {
				reply := &bot.Message{ChatID: update.ChatID, Text: alreadyRegisteredReply}
				return sender.SendMessage(ctx, reply)
			}

			actor := &Actor{Person: person}

			actor.AdminGrant, err = admins.FindByPerson(ctx, person.ID)
			if err != nil {
				return fmt.Errorf("failed to resolve admin grant: %w", err)
			}
			actor.OwnCollector, err = collectors.FindByPerson(ctx, person.ID)
			if err != nil {
				return fmt.Errorf("failed to resolve own collector: %w", err)
			}
			actor.ActiveCollector, err = collectors.FindActive(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve active collector: %w", err)
			}

			return next.Handle(WithActor(ctx, actor), update)
		})
	}
}

// allowedUnregistered は未登録ユーザーに許可されたアップデートかを判定する。
func allowedUnregistered(update *bot.Update, sessions *session.Store) bool {
	if update.Command() == startCommand {
		return true
	}
	if update.Callback == registerCallback {
		return true
	}
	return strings.HasPrefix(sessions.State(update.From.ID), registrationStatePrefix)
}
