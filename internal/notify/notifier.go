// Package notify は誕生日のリードタイム通知のファンアウトを提供する。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/metrics"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/repository"
)

// 通知メッセージのボタンが使うコールバックデータの前置詞。
// ハンドラ側の登録と一致させること。
const (
	GiftInfoCallbackPrefix    = "giftinfo:"
	TransferredCallbackPrefix = "transferred:"
	GreetCallbackPrefix       = "greet:"
)

// TransferLedger は送金済み送金者の照会インターフェース。
type TransferLedger interface {
	// TransferredSenders は対象者宛に送金済みの送金者ID集合を返す。
	TransferredSenders(ctx context.Context, honoreeID int64) (map[int64]bool, error)
}

// Notifier は誕生日が近いメンバーの通知を全メンバーへファンアウトする。
type Notifier struct {
	persons  repository.PersonRepository
	ledger   TransferLedger
	sender   bot.Sender
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

// NewNotifier はNotifierを生成する。
func NewNotifier(
	persons repository.PersonRepository,
	ledger TransferLedger,
	sender bot.Sender,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	location *time.Location,
) *Notifier {
	return &Notifier{
		persons:  persons,
		ledger:   ledger,
		sender:   sender,
		metrics:  m,
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// Run はdaysBefore日後に誕生日を迎えるメンバーごとに、本人を除く
// 全メンバーへ通知を送る。daysBefore==1の場合、既に送金済みの
// 受信者には「перевёл」ボタンを表示しない。
// 個別の送信失敗はログに記録してスキップし、全体は中断しない。
func (n *Notifier) Run(ctx context.Context, daysBefore int) error {
	target := n.now().In(n.location).AddDate(0, 0, daysBefore)

	honorees, err := n.persons.ListByBirthday(ctx, target.Month(), target.Day())
	if err != nil {
		return fmt.Errorf("failed to list honorees: %w", err)
	}
	if len(honorees) == 0 {
		return nil
	}

	everyone, err := n.persons.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}

	for _, honoree := range honorees {
		if err := n.fanOut(ctx, honoree, everyone, daysBefore); err != nil {
			return err
		}
	}
	return nil
}

// fanOut は1人の対象者について全受信者へ通知を送る。
func (n *Notifier) fanOut(ctx context.Context, honoree *model.Person, everyone []*model.Person, daysBefore int) error {
	var transferred map[int64]bool
	if daysBefore == 1 {
		var err error
		transferred, err = n.ledger.TransferredSenders(ctx, honoree.ID)
		if err != nil {
			return fmt.Errorf("failed to load transferred senders: %w", err)
		}
	}

	text := n.buildText(honoree, daysBefore)
	sent := 0

	for _, recipient := range everyone {
		if recipient.ID == honoree.ID {
			continue
		}

		suppressCTA := daysBefore == 1 && transferred[recipient.ID]
		message := &bot.Message{
			ChatID:   recipient.ID,
			Text:     text,
			Keyboard: n.buildKeyboard(honoree.ID, suppressCTA),
		}
		if err := n.sender.SendMessage(ctx, message); err != nil {
			n.metrics.RecordNotificationFailure()
			n.logger.Error("failed to deliver birthday notification",
				slog.Int64("honoree_id", honoree.ID),
				slog.Int64("recipient_id", recipient.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.metrics.RecordNotificationSent()
		sent++
	}

	n.logger.Info("birthday notifications sent",
		slog.Int64("honoree_id", honoree.ID),
		slog.Int("days_before", daysBefore),
		slog.Int("sent", sent),
	)
	return nil
}

// buildText は通知本文を組み立てる。
func (n *Notifier) buildText(honoree *model.Person, daysBefore int) string {
	date := honoree.BirthDate.Format("02.01")
	switch daysBefore {
	case 1:
		return fmt.Sprintf("Завтра (%s) день рождения у %s!", date, honoree.FullName())
	case 7:
		return fmt.Sprintf("Через неделю (%s) день рождения у %s!", date, honoree.FullName())
	default:
		return fmt.Sprintf("Через %d дн. (%s) день рождения у %s!", daysBefore, date, honoree.FullName())
	}
}

// buildKeyboard は通知のボタンを組み立てる。
// suppressCTAがtrueの場合「Я перевёл」を表示しない。
func (n *Notifier) buildKeyboard(honoreeID int64, suppressCTA bool) bot.Keyboard {
	id := strconv.FormatInt(honoreeID, 10)
	row := bot.Row(bot.Button{Text: "Подарок", Callback: GiftInfoCallbackPrefix + id})
	if !suppressCTA {
		row = append(row, bot.Button{Text: "Я перевёл", Callback: TransferredCallbackPrefix + id})
	}
	return bot.Keyboard{
		row,
		bot.Row(bot.Button{Text: "Поздравить", Callback: GreetCallbackPrefix + id}),
	}
}
