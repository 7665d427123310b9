// Package handler はボットの操作ハンドラとHTTP面（webhook・ヘルスチェック・
// メトリクス）を提供する。ハンドラはディスパッチャに登録され、
// ミドルウェアチェーンの内側で実行される。
package handler

import (
	"context"
	"fmt"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/middleware"
	"github.com/hitoshi/giftman/internal/repository"
	"github.com/hitoshi/giftman/internal/workflow"
)

// 共通コールバックデータ。
const (
	RegisterCallback = "register"
)

const helpText = `Доступные команды:
/profile — мой профиль
/wishes — мой список желаний
/collector — панель сборщика
/support — связаться с поддержкой
/cancel — отменить текущее действие`

// StartHandler は/start・registerコールバック・ヘルプ・サポート連絡先を処理する。
type StartHandler struct {
	engine           *workflow.Engine
	registrationFlow *workflow.Flow
	serviceUsers     repository.ServiceUserRepository
	persons          repository.PersonRepository
	sender           bot.Sender
}

// NewStartHandler はStartHandlerを生成する。
func NewStartHandler(
	engine *workflow.Engine,
	registrationFlow *workflow.Flow,
	serviceUsers repository.ServiceUserRepository,
	persons repository.PersonRepository,
	sender bot.Sender,
) *StartHandler {
	return &StartHandler{
		engine:           engine,
		registrationFlow: registrationFlow,
		serviceUsers:     serviceUsers,
		persons:          persons,
		sender:           sender,
	}
}

// Start は/startコマンドを処理する。未登録なら登録ボタンを表示する。
func (h *StartHandler) Start(ctx context.Context, update *bot.Update) error {
	actor, err := middleware.ActorFromContext(ctx)
	if err != nil {
		return err
	}

	if actor.IsRegistered() {
		text := fmt.Sprintf("С возвращением, %s!\n\n%s", actor.Person.GivenName, helpText)
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: text})
	}

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   "Привет! Я помогаю собирать на подарки ко дням рождения. Зарегистрируйтесь, чтобы начать.",
		Keyboard: bot.Keyboard{
			bot.Row(bot.Button{Text: "Зарегистрироваться", Callback: RegisterCallback}),
		},
	})
}

// Register はregisterコールバックで登録フローを開始する。
// 登録済みユーザーはIdentityミドルウェアが先に打ち切る。
func (h *StartHandler) Register(ctx context.Context, update *bot.Update) error {
	return h.engine.Start(ctx, h.registrationFlow, update, map[string]string{
		workflow.KeyMode: workflow.ModeCreate,
	})
}

// Help は/helpコマンドを処理する。
func (h *StartHandler) Help(ctx context.Context, update *bot.Update) error {
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: helpText})
}

// Support は/supportコマンドでサービスユーザーの連絡先を返す。
func (h *StartHandler) Support(ctx context.Context, update *bot.Update) error {
	serviceUser, err := h.serviceUsers.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve service user: %w", err)
	}
	if serviceUser == nil {
		return h.sender.SendMessage(ctx, &bot.Message{
			ChatID: update.ChatID,
			Text:   "Контакт поддержки пока не настроен.",
		})
	}

	contact, err := h.persons.FindByID(ctx, serviceUser.PersonID)
	if err != nil {
		return fmt.Errorf("failed to resolve support contact: %w", err)
	}
	if contact == nil || contact.Handle == "" {
		return h.sender.SendMessage(ctx, &bot.Message{
			ChatID: update.ChatID,
			Text:   "Контакт поддержки пока не настроен.",
		})
	}

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   fmt.Sprintf("По вопросам работы бота обращайтесь к @%s.", contact.Handle),
	})
}

// CancelHandler はグローバルなキャンセル（コマンドとコールバック）を処理する。
type CancelHandler struct {
	engine *workflow.Engine
	sender bot.Sender
}

// NewCancelHandler はCancelHandlerを生成する。
func NewCancelHandler(engine *workflow.Engine, sender bot.Sender) *CancelHandler {
	return &CancelHandler{engine: engine, sender: sender}
}

// Cancel は進行中のセッションを破棄する。セッションが無くても成功応答する。
func (h *CancelHandler) Cancel(ctx context.Context, update *bot.Update) error {
	h.engine.Cancel(update.From.ID)
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Действие отменено."})
}

// NewFallback はどのルートにも一致しないアップデートへの応答ハンドラを返す。
func NewFallback(sender bot.Sender) bot.Handler {
	return bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
		return sender.SendMessage(ctx, &bot.Message{
			ChatID: update.ChatID,
			Text:   "Я не понял. Нажмите /help, чтобы посмотреть возможности.",
		})
	})
}
