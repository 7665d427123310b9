package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/notify"
	"github.com/hitoshi/giftman/internal/session"
	"github.com/hitoshi/giftman/internal/workflow"
)

// GreetTextState はお祝いメッセージ本文の入力待ちステート。
const GreetTextState = "greet:text"

// keyGreetHonoree はお祝い対象者IDのセッションキー。
const keyGreetHonoree = "greet_honoree_id"

// TransferServiceInterface は誕生日アクションが必要とする送金台帳の
// サービスインターフェース。
type TransferServiceInterface interface {
	// Record は送金を冪等に記録する。新規記録の場合はtrueを返す。
	Record(ctx context.Context, senderID, honoreeID int64) (bool, error)
	// SendGreeting はお祝いメッセージを保存し、対象者へ転送する。
	SendGreeting(ctx context.Context, senderID, honoreeID int64, text string) error
}

// CollectorFinder はアクティブな集金担当者の照会インターフェース。
type CollectorFinder interface {
	Active(ctx context.Context) (*model.Collector, error)
}

// PersonFinder はメンバーの照会インターフェース。
type PersonFinder interface {
	Find(ctx context.Context, id int64) (*model.Person, error)
}

// WishLister は他メンバーのウィッシュリストの照会インターフェース。
type WishLister interface {
	ListFor(ctx context.Context, personID int64) ([]*model.Wish, error)
}

// BirthdayHandler は誕生日通知のボタン（подарок・перевёл・поздравить）を処理する。
type BirthdayHandler struct {
	transfers  TransferServiceInterface
	collectors CollectorFinder
	persons    PersonFinder
	wishes     WishLister
	sessions   *session.Store
	sender     bot.Sender
}

// NewBirthdayHandler はBirthdayHandlerを生成する。
func NewBirthdayHandler(
	transfers TransferServiceInterface,
	collectors CollectorFinder,
	persons PersonFinder,
	wishes WishLister,
	sessions *session.Store,
	sender bot.Sender,
) *BirthdayHandler {
	return &BirthdayHandler{
		transfers:  transfers,
		collectors: collectors,
		persons:    persons,
		wishes:     wishes,
		sessions:   sessions,
		sender:     sender,
	}
}

// GiftInfo は対象者のウィッシュリストとアクティブな集金担当者の
// 送金先データを表示する。担当者不在の場合はその旨を伝える。
func (h *BirthdayHandler) GiftInfo(ctx context.Context, update *bot.Update) error {
	honoreeID, err := callbackID(update.Callback, notify.GiftInfoCallbackPrefix)
	if err != nil {
		return err
	}

	honoree, err := h.persons.Find(ctx, honoreeID)
	if err != nil {
		return fmt.Errorf("failed to find honoree: %w", err)
	}
	if honoree == nil {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Участник не найден."})
	}

	wishes, err := h.wishes.ListFor(ctx, honoreeID)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Подарок для %s\n\n", honoree.FullName())
	if len(wishes) == 0 {
		b.WriteString("Список желаний пуст.\n")
	} else {
		b.WriteString("Список желаний:\n")
		for i, wish := range wishes {
			fmt.Fprintf(&b, "%d. %s", i+1, wish.Text)
			if wish.URL != "" {
				fmt.Fprintf(&b, " (%s)", wish.URL)
			}
			b.WriteString("\n")
		}
	}

	active, err := h.collectors.Active(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		b.WriteString("\nСборщик ещё не назначен. Реквизиты появятся позже.")
	} else {
		fmt.Fprintf(&b, "\nПеревод на подарок: %s", active.Phone)
		if active.Bank != "" {
			fmt.Fprintf(&b, " (%s)", active.Bank)
		}
	}

	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: b.String()})
}

// Transferred は「Я перевёл」の押下を冪等に記録する。
// 重複押下はエラーにせず「уже записан」と応答する。
func (h *BirthdayHandler) Transferred(ctx context.Context, update *bot.Update) error {
	honoreeID, err := callbackID(update.Callback, notify.TransferredCallbackPrefix)
	if err != nil {
		return err
	}

	created, err := h.transfers.Record(ctx, update.From.ID, honoreeID)
	if err != nil {
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Участник не найден."})
		}
		return err
	}

	text := "Перевод записан. Спасибо!"
	if !created {
		text = "Ваш перевод уже был записан ранее."
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: text})
}

// Greet はお祝いメッセージ本文の入力待ちセッションを開始する。
func (h *BirthdayHandler) Greet(ctx context.Context, update *bot.Update) error {
	honoreeID, err := callbackID(update.Callback, notify.GreetCallbackPrefix)
	if err != nil {
		return err
	}

	sess := h.sessions.Begin(update.From.ID, GreetTextState)
	sess.SetValue(keyGreetHonoree, strconv.FormatInt(honoreeID, 10))

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   "Напишите текст поздравления:",
		Keyboard: bot.Keyboard{
			bot.Row(bot.Button{Text: "Отмена", Callback: workflow.CancelCallback}),
		},
	})
}

// GreetText は入力されたお祝いメッセージを保存・転送する。
func (h *BirthdayHandler) GreetText(ctx context.Context, update *bot.Update) error {
	sess := h.sessions.Get(update.From.ID)
	if sess == nil {
		return replySessionExpired(ctx, h.sender, update.ChatID)
	}
	defer h.sessions.Clear(update.From.ID)

	raw, err := sess.Value(keyGreetHonoree)
	if err != nil {
		return sessionDataReply(ctx, err, h.sessions, h.sender, update)
	}
	honoreeID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("failed to parse honoree id from session: %w", err)
	}

	if err := h.transfers.SendGreeting(ctx, update.From.ID, honoreeID, update.Text); err != nil {
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Участник не найден."})
		}
		return err
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Поздравление отправлено."})
}

// callbackID は「prefix:<id>」形式のコールバックデータからIDを取り出す。
func callbackID(callback, prefix string) (int64, error) {
	raw := strings.TrimPrefix(callback, prefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse callback id %q: %w", raw, err)
	}
	return id, nil
}
