package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/session"
)

// sessionExpiredReply は失効・欠落したセッションへの共通応答。
const sessionExpiredReply = "Сессия истекла. Начните заново."

// replySessionExpired は失効応答を送信する。
func replySessionExpired(ctx context.Context, sender bot.Sender, chatID int64) error {
	return sender.SendMessage(ctx, &bot.Message{ChatID: chatID, Text: sessionExpiredReply})
}

// sessionDataReply はセッションデータ欠落（TTL失効後の再Beginなどで
// ステートだけが残った場合）をセッション破棄と失効応答に変換する。
// 欠落以外のエラーはそのまま返す。
func sessionDataReply(ctx context.Context, err error, sessions *session.Store, sender bot.Sender, update *bot.Update) error {
	var missing *model.StateDataMissingError
	if errors.As(err, &missing) {
		sessions.Clear(update.From.ID)
		return replySessionExpired(ctx, sender, update.ChatID)
	}
	return err
}
