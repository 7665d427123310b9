package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/middleware"
	"github.com/hitoshi/giftman/internal/transfer"
	"github.com/hitoshi/giftman/internal/workflow"
)

// 集金担当者パネルのコールバックデータ。
const (
	CollectorCreateCallback = "collector_create"
	CollectorEditCallback   = "collector_edit"
	CollectorReportCallback = "collector_report"
)

// ReportProvider は集金レポートの照会インターフェース。
type ReportProvider interface {
	GroupedReport(ctx context.Context) ([]*transfer.ReportGroup, error)
}

// CollectorHandler は集金担当者パネル（状態表示・登録・レポート）を処理する。
type CollectorHandler struct {
	report        ReportProvider
	engine        *workflow.Engine
	collectorFlow *workflow.Flow
	sender        bot.Sender
}

// NewCollectorHandler はCollectorHandlerを生成する。
func NewCollectorHandler(report ReportProvider, engine *workflow.Engine, collectorFlow *workflow.Flow, sender bot.Sender) *CollectorHandler {
	return &CollectorHandler{report: report, engine: engine, collectorFlow: collectorFlow, sender: sender}
}

// Panel は/collectorコマンドで自分の集金担当者状態を表示する。
func (h *CollectorHandler) Panel(ctx context.Context, update *bot.Update) error {
	actor, err := middleware.ActorFromContext(ctx)
	if err != nil {
		return err
	}

	if actor.OwnCollector == nil {
		return h.sender.SendMessage(ctx, &bot.Message{
			ChatID: update.ChatID,
			Text:   "Вы ещё не зарегистрированы как сборщик.",
			Keyboard: bot.Keyboard{
				bot.Row(bot.Button{Text: "Стать сборщиком", Callback: CollectorCreateCallback}),
			},
		})
	}

	own := actor.OwnCollector
	status := "неактивен"
	if actor.IsActiveCollector() {
		status = "активен"
	}
	bank := own.Bank
	if bank == "" {
		bank = "не указан"
	}
	text := fmt.Sprintf("Ваши реквизиты сборщика:\nТелефон: %s\nБанк: %s\nСтатус: %s",
		own.Phone, bank, status)

	keyboard := bot.Keyboard{
		bot.Row(bot.Button{Text: "Изменить реквизиты", Callback: CollectorEditCallback}),
	}
	if actor.IsActiveCollector() {
		keyboard = append(keyboard, bot.Row(bot.Button{Text: "Отчёт по переводам", Callback: CollectorReportCallback}))
	}

	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: text, Keyboard: keyboard})
}

// Create は集金担当者の登録フローを開始する。
func (h *CollectorHandler) Create(ctx context.Context, update *bot.Update) error {
	return h.engine.Start(ctx, h.collectorFlow, update, map[string]string{
		workflow.KeyMode: workflow.ModeCreate,
	})
}

// Edit は保存済みの送金先データを初期値として確認画面へ再入する。
// RequireCollectorゲートの内側で呼ばれる。
func (h *CollectorHandler) Edit(ctx context.Context, update *bot.Update) error {
	actor, err := middleware.ActorFromContext(ctx)
	if err != nil {
		return err
	}

	own := actor.OwnCollector
	return h.engine.StartConfirm(ctx, h.collectorFlow, update, map[string]string{
		workflow.KeyMode:  workflow.ModeEdit,
		workflow.KeyPhone: own.Phone,
		workflow.KeyBank:  own.Bank,
	})
}

// Report は全送金記録を対象者ごとにまとめたレポートを表示する。
// RequireActiveCollectorゲートの内側で呼ばれる。
func (h *CollectorHandler) Report(ctx context.Context, update *bot.Update) error {
	groups, err := h.report.GroupedReport(ctx)
	if err != nil {
		return err
	}

	if len(groups) == 0 {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Переводов пока нет."})
	}

	var b strings.Builder
	b.WriteString("Отчёт по переводам:\n")
	for _, group := range groups {
		fmt.Fprintf(&b, "\n%s — %d перевод(ов):\n", group.Honoree.FullName(), len(group.Senders))
		for _, sender := range group.Senders {
			fmt.Fprintf(&b, "  • %s\n", sender.FullName())
		}
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: b.String()})
}
