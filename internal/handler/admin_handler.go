package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/session"
	"github.com/hitoshi/giftman/internal/workflow"
)

// 管理者パネルのコールバックデータとステート。
const (
	AdminDeleteCallback     = "admin:delete"
	AdminAssignCallback     = "admin:assign"
	AdminDeactivateCallback = "admin:deactivate"

	AdminConfirmDeleteCallback     = "admin:confirm_delete"
	AdminConfirmAssignCallback     = "admin:confirm_assign"
	AdminConfirmDeactivateCallback = "admin:confirm_deactivate"

	AdminDeleteSelectState = "admin:delete_select"
	AdminAssignSelectState = "admin:assign_select"
)

// 番号選択リストとターゲットのセッションキー。
const (
	keyPersonList = "persons"
	keyTargetID   = "target_id"
)

const badSelectionReply = "Неверный номер. Введите номер из списка."

// PersonServiceInterface は管理者パネルが必要とするメンバー管理の
// サービスインターフェース。
type PersonServiceInterface interface {
	// List は全メンバーを姓の昇順で返す。
	List(ctx context.Context) ([]*model.Person, error)
	// Find は指定IDのメンバーを取得する。未登録の場合はnilを返す。
	Find(ctx context.Context, id int64) (*model.Person, error)
	// Delete はメンバーと関連データを削除する。
	Delete(ctx context.Context, id int64) error
}

// CollectorAssigner はアクティブな集金担当者の任免インターフェース。
type CollectorAssigner interface {
	// Activate は指定メンバーをアクティブな集金担当者にする。
	Activate(ctx context.Context, personID int64) error
	// Deactivate は現アクティブな集金担当者を解除する。
	Deactivate(ctx context.Context) error
}

// AdminHandler は管理者パネル（参加者削除・集金担当者の任免）を処理する。
// 全操作はRequireAdminゲートの内側で呼ばれ、破壊的操作は確認付き。
type AdminHandler struct {
	persons    PersonServiceInterface
	collectors CollectorAssigner
	sessions   *session.Store
	sender     bot.Sender
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(persons PersonServiceInterface, collectors CollectorAssigner, sessions *session.Store, sender bot.Sender) *AdminHandler {
	return &AdminHandler{persons: persons, collectors: collectors, sessions: sessions, sender: sender}
}

// Panel は/adminコマンドで参加者一覧と操作ボタンを表示する。
func (h *AdminHandler) Panel(ctx context.Context, update *bot.Update) error {
	listing, _, err := h.personListing(ctx)
	if err != nil {
		return err
	}

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   "Панель администратора.\n\n" + listing,
		Keyboard: bot.Keyboard{
			bot.Row(bot.Button{Text: "Удалить участника", Callback: AdminDeleteCallback}),
			bot.Row(bot.Button{Text: "Назначить сборщика", Callback: AdminAssignCallback}),
			bot.Row(bot.Button{Text: "Снять сборщика", Callback: AdminDeactivateCallback}),
		},
	})
}

// StartDelete は参加者削除の番号選択を開始する。
func (h *AdminHandler) StartDelete(ctx context.Context, update *bot.Update) error {
	return h.startSelection(ctx, update, AdminDeleteSelectState, "Введите номер участника для удаления:")
}

// StartAssign は集金担当者任命の番号選択を開始する。
func (h *AdminHandler) StartAssign(ctx context.Context, update *bot.Update) error {
	return h.startSelection(ctx, update, AdminAssignSelectState, "Введите номер участника для назначения сборщиком:")
}

// startSelection は番号付き一覧をセッションにキャッシュし、選択待ちに入る。
func (h *AdminHandler) startSelection(ctx context.Context, update *bot.Update, state, prompt string) error {
	listing, ids, err := h.personListing(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Участников пока нет."})
	}

	sess := h.sessions.Begin(update.From.ID, state)
	sess.SetList(keyPersonList, ids)

	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   listing + "\n" + prompt,
		Keyboard: bot.Keyboard{
			bot.Row(bot.Button{Text: "Отмена", Callback: workflow.CancelCallback}),
		},
	})
}

// SelectDelete は削除対象の番号入力を処理し、確認を表示する。
func (h *AdminHandler) SelectDelete(ctx context.Context, update *bot.Update) error {
	return h.selectTarget(ctx, update, func(target *model.Person) (*bot.Message, error) {
		return &bot.Message{
			ChatID: update.ChatID,
			Text:   fmt.Sprintf("Удалить участника %s? Все его данные будут стёрты.", target.FullName()),
			Keyboard: bot.Keyboard{
				bot.Row(
					bot.Button{Text: "Подтвердить", Callback: AdminConfirmDeleteCallback},
					bot.Button{Text: "Отмена", Callback: workflow.CancelCallback},
				),
			},
		}, nil
	})
}

// SelectAssign は任命対象の番号入力を処理し、確認を表示する。
func (h *AdminHandler) SelectAssign(ctx context.Context, update *bot.Update) error {
	return h.selectTarget(ctx, update, func(target *model.Person) (*bot.Message, error) {
		return &bot.Message{
			ChatID: update.ChatID,
			Text:   fmt.Sprintf("Назначить %s активным сборщиком?", target.FullName()),
			Keyboard: bot.Keyboard{
				bot.Row(
					bot.Button{Text: "Подтвердить", Callback: AdminConfirmAssignCallback},
					bot.Button{Text: "Отмена", Callback: workflow.CancelCallback},
				),
			},
		}, nil
	})
}

// selectTarget は番号入力をリストのIDに解決し、確認メッセージを送る。
// 不正な入力はステートを保ったまま再入力を促す。
func (h *AdminHandler) selectTarget(ctx context.Context, update *bot.Update, confirm func(target *model.Person) (*bot.Message, error)) error {
	sess := h.sessions.Get(update.From.ID)
	if sess == nil {
		return replySessionExpired(ctx, h.sender, update.ChatID)
	}

	ids, err := sess.List(keyPersonList)
	if err != nil {
		return sessionDataReply(ctx, err, h.sessions, h.sender, update)
	}

	index, err := strconv.Atoi(strings.TrimSpace(update.Text))
	if err != nil || index < 1 || index > len(ids) {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: badSelectionReply})
	}

	targetID := ids[index-1]
	target, err := h.persons.Find(ctx, targetID)
	if err != nil {
		return fmt.Errorf("failed to find selection target: %w", err)
	}
	if target == nil {
		return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: badSelectionReply})
	}

	sess.SetValue(keyTargetID, strconv.FormatInt(targetID, 10))

	message, err := confirm(target)
	if err != nil {
		return err
	}
	return h.sender.SendMessage(ctx, message)
}

// ConfirmDelete は確認済みの参加者削除を実行する。関連データはCASCADE削除。
func (h *AdminHandler) ConfirmDelete(ctx context.Context, update *bot.Update) error {
	targetID, ok, err := h.takeTarget(ctx, update)
	if err != nil || !ok {
		return err
	}

	if err := h.persons.Delete(ctx, targetID); err != nil {
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Участник не найден."})
		}
		return err
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Участник удалён."})
}

// ConfirmAssign は確認済みの集金担当者任命を実行する。
// 任命先に集金担当者レコードが無い場合はその旨を応答する。
func (h *AdminHandler) ConfirmAssign(ctx context.Context, update *bot.Update) error {
	targetID, ok, err := h.takeTarget(ctx, update)
	if err != nil || !ok {
		return err
	}

	if err := h.collectors.Activate(ctx, targetID); err != nil {
		var notFound *model.NotFoundError
		if errors.As(err, &notFound) {
			return h.sender.SendMessage(ctx, &bot.Message{
				ChatID: update.ChatID,
				Text:   "У этого участника нет реквизитов сборщика. Сначала он должен зарегистрироваться как сборщик.",
			})
		}
		return err
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Активный сборщик назначен."})
}

// StartDeactivate は集金担当者解除の確認を表示する。
func (h *AdminHandler) StartDeactivate(ctx context.Context, update *bot.Update) error {
	return h.sender.SendMessage(ctx, &bot.Message{
		ChatID: update.ChatID,
		Text:   "Снять активного сборщика?",
		Keyboard: bot.Keyboard{
			bot.Row(
				bot.Button{Text: "Подтвердить", Callback: AdminConfirmDeactivateCallback},
				bot.Button{Text: "Отмена", Callback: workflow.CancelCallback},
			),
		},
	})
}

// ConfirmDeactivate は確認済みの集金担当者解除を実行する。
func (h *AdminHandler) ConfirmDeactivate(ctx context.Context, update *bot.Update) error {
	if err := h.collectors.Deactivate(ctx); err != nil {
		return err
	}
	return h.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: "Активный сборщик снят."})
}

// takeTarget はセッションから選択済みターゲットIDを取り出し、セッションを破棄する。
// セッションが無い場合は失効応答を送りok=falseを返す。
func (h *AdminHandler) takeTarget(ctx context.Context, update *bot.Update) (int64, bool, error) {
	sess := h.sessions.Get(update.From.ID)
	if sess == nil {
		return 0, false, replySessionExpired(ctx, h.sender, update.ChatID)
	}
	defer h.sessions.Clear(update.From.ID)

	raw, err := sess.Value(keyTargetID)
	if err != nil {
		return 0, false, sessionDataReply(ctx, err, h.sessions, h.sender, update)
	}
	targetID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse target id from session: %w", err)
	}
	return targetID, true, nil
}

// personListing は番号付きの参加者一覧テキストとIDリストを返す。
func (h *AdminHandler) personListing(ctx context.Context) (string, []int64, error) {
	persons, err := h.persons.List(ctx)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("Участники:\n")
	ids := make([]int64, 0, len(persons))
	for i, person := range persons {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, person.FullName(), person.BirthDate.Format(workflow.BirthDateLayout))
		ids = append(ids, person.ID)
	}
	if len(persons) == 0 {
		b.WriteString("пока никого нет\n")
	}
	return b.String(), ids, nil
}
