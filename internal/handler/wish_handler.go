package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/workflow"
)

// ウィッシュ操作のコールバックデータ。
const (
	WishAddCallback          = "wish_add"
	WishEditCallbackPrefix   = "wish_edit:"
	WishDeleteCallbackPrefix = "wish_del:"
	WishConfirmDeletePrefix  = "wish_del_confirm:"
)

// WishServiceInterface はウィッシュハンドラが必要とするサービスインターフェース。
type WishServiceInterface interface {
	// ListFor はメンバーの全ウィッシュを作成順で返す。
	ListFor(ctx context.Context, personID int64) ([]*model.Wish, error)
	// Find は指定IDのウィッシュを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, wishID string) (*model.Wish, error)
	// Remove は所有者本人のウィッシュを削除する。
	Remove(ctx context.Context, wishID string, personID int64) error
}

// WishHandler はウィッシュリストの表示・追加・編集・削除を処理する。
type WishHandler struct {
	wishes   WishServiceInterface
	engine   *workflow.Engine
	wishFlow *workflow.Flow
	sender   bot.Sender
}

// NewWishHandler はWishHandlerを生成する。
func NewWishHandler(wishes WishServiceInterface, engine *workflow.Engine, wishFlow *workflow.Flow, sender bot.Sender) *WishHandler {
	return &WishHandler{wishes: wishes, engine: engine, wishFlow: wishFlow, sender: sender}
}

// List は/wishesコマンドで自分のウィッシュリストを番号付きで表示する。
func (h *WishHandler) List(ctx context.Context, update *bot.Update) error {
	wishes, err := h.wishes.ListFor(ctx, update.From.ID)
	if err != nil {
		return err
	}

	if len(wishes) == 0 {
		return h.sender.SendMessage(ctx, &bot.Message{
			ChatID: update.ChatID,
			Text:   "Ваш список желаний пуст.",
			Keyboard: bot.Keyboard{
				bot.Row(bot.Button{Text: "Добавить", Callback: WishAddCallback}),
			},
		})
	}

	var b strings.Builder
	b.WriteString("Ваш список желаний:\n")
	keyboard := make(bot.Keyboard, 0, len(wishes)+1)
	for i, wish := range wishes {
		fmt.Fprintf(&b, "%d. %s", i+1, wish.Text)
		if wish.URL != "" {
			fmt.Fprintf(&b, " (%s)", wish.URL)
		}
		b.WriteString("\n")
		keyboard = append(keyboard, bot.Row(
			bot.Button{Text: fmt.Sprintf("Изменить %d", i+1), Callback: WishEditCallbackPrefix + wish.ID},
			bot.Button{Text: fmt.Sprintf("Удалить %d", i+1), Callback: WishDeleteCallbackPrefix + wish.ID},
		))
	}
	keyboard = append(keyboard, bot.Row(bot.Button{Text: "Добавить", Callback: WishAddCallback}))

	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: b.String(), Keyboard: keyboard})
}

// Add はウィッシュ追加フローを開始する。
func (h *WishHandler) Add(ctx context.Context, update *bot.Update) error {
	return h.engine.Start(ctx, h.wishFlow, update, map[string]string{
		workflow.KeyMode: workflow.ModeCreate,
	})
}

// Edit は自分のウィッシュの編集フローを確認画面から開始する。
func (h *WishHandler) Edit(ctx context.Context, update *bot.Update) error {
	wish, err := h.ownWish(ctx, strings.TrimPrefix(update.Callback, WishEditCallbackPrefix), update.From.ID)
	if err != nil {
		return err
	}
	if wish == nil {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Желание не найдено."})
	}

	return h.engine.StartConfirm(ctx, h.wishFlow, update, map[string]string{
		workflow.KeyMode:     workflow.ModeEdit,
		workflow.KeyWishID:   wish.ID,
		workflow.KeyWishText: wish.Text,
		workflow.KeyWishURL:  wish.URL,
	})
}

// Delete は削除確認を表示する。
func (h *WishHandler) Delete(ctx context.Context, update *bot.Update) error {
	wishID := strings.TrimPrefix(update.Callback, WishDeleteCallbackPrefix)
	wish, err := h.ownWish(ctx, wishID, update.From.ID)
	if err != nil {
		return err
	}
	if wish == nil {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Желание не найдено."})
	}

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   fmt.Sprintf("Удалить желание «%s»?", wish.Text),
		Keyboard: bot.Keyboard{
			bot.Row(
				bot.Button{Text: "Удалить", Callback: WishConfirmDeletePrefix + wish.ID},
				bot.Button{Text: "Отмена", Callback: workflow.CancelCallback},
			),
		},
	})
}

// ConfirmDelete は確認済みの削除を実行する。
func (h *WishHandler) ConfirmDelete(ctx context.Context, update *bot.Update) error {
	wishID := strings.TrimPrefix(update.Callback, WishConfirmDeletePrefix)
	if err := h.wishes.Remove(ctx, wishID, update.From.ID); err != nil {
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Желание не найдено."})
		}
		return err
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Желание удалено."})
}

// ownWish は所有者本人のウィッシュを返す。他人のものはnil扱いにする。
func (h *WishHandler) ownWish(ctx context.Context, wishID string, personID int64) (*model.Wish, error) {
	wish, err := h.wishes.Find(ctx, wishID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wish: %w", err)
	}
	if wish == nil || wish.PersonID != personID {
		return nil, nil
	}
	return wish, nil
}
