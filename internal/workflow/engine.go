// Package workflow は複数ステップの会話フローを駆動するエンジンを提供する。
//
// フローは Collecting(step_1..n) → Confirming → {Committed |
// EditSelecting → Collecting(step_k) → Confirming} と進み、
// 非終端のどこからでもキャンセルできる。検証失敗はステートを進めず、
// 収集済みの値を保持したまま再入力を促す。コミットの成否に関わらず
// セッションは必ず破棄する。
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/session"
)

// セッション内の予約キー。
const (
	// KeyMode はフローの動作モード（作成/編集）を保持する。
	KeyMode = "_mode"
	// keyEditing は1フィールドのみ修正中であることを示すフラグ。
	keyEditing = "_editing"
)

// フローの動作モード。
const (
	ModeCreate = "create"
	ModeEdit   = "edit"
)

// 確認・編集選択ステートのサフィックス。
const (
	confirmState    = "confirm"
	editSelectState = "edit_select"
)

const (
	sessionExpiredReply = "Сессия истекла. Начните заново."
	alreadyExistsReply  = "Такая запись уже существует. Начните заново."
	notFoundReply       = "Запись не найдена. Возможно, она была удалена."
	cancelButtonLabel   = "Отмена"
	skipButtonLabel     = "Пропустить"
	confirmButtonLabel  = "Подтвердить"
	editButtonLabel     = "Изменить"
)

// CancelCallback はセッションを破棄するグローバルなコールバックデータ。
const CancelCallback = "cancel"

// Step はフローの1入力ステップを表す。
type Step struct {
	// Name はステート名の一部になる識別子。
	Name string
	// Key は検証済みの値を保存するセッションキー。
	Key string
	// Prompt はステップ進入時に送るメッセージ。
	Prompt string
	// EditLabel は編集選択画面のボタンラベル。
	EditLabel string
	// Optional がtrueの場合、スキップボタンで値なしのまま進める。
	Optional bool
	// Validate は入力を検証し、正規化済みの値を返す。
	// 検証失敗は*ValidationErrorで返すこと。
	Validate func(input string) (string, error)
}

// Flow は1つの会話フローの定義。
type Flow struct {
	// Name はステート名とコールバックの名前空間になる識別子。
	Name string
	// Steps は収集ステップの並び。
	Steps []Step
	// Summary は確認画面に表示するテキストを組み立てる。
	Summary func(sess *session.Session) (string, error)
	// Commit は収集済みの値をドメインサービスへ反映し、
	// 成功応答のテキストを返す。
	Commit func(ctx context.Context, update *bot.Update, sess *session.Session) (string, error)
}

// stateFor はステップのステート名を返す（例: "registration:family_name"）。
func (f *Flow) stateFor(stepName string) string {
	return f.Name + ":" + stepName
}

// callbackPrefix はこのフローのコールバック名前空間を返す。
func (f *Flow) callbackPrefix() string {
	return "wf:" + f.Name + ":"
}

// stepIndex はステップ名からインデックスを返す。見つからない場合は-1。
func (f *Flow) stepIndex(name string) int {
	for i := range f.Steps {
		if f.Steps[i].Name == name {
			return i
		}
	}
	return -1
}

// Engine はフローの進行とセッション遷移を管理する。
type Engine struct {
	sessions *session.Store
	sender   bot.Sender
	logger   *slog.Logger
}

// NewEngine はEngineを生成する。
func NewEngine(sessions *session.Store, sender bot.Sender, logger *slog.Logger) *Engine {
	return &Engine{sessions: sessions, sender: sender, logger: logger}
}

// Register はフローのステートルートとコールバックをディスパッチャへ登録する。
func (e *Engine) Register(d *bot.Dispatcher, flow *Flow) {
	for i := range flow.Steps {
		step := flow.Steps[i]
		d.HandleState(flow.stateFor(step.Name), bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
			return e.handleInput(ctx, flow, update)
		}))
	}
	// 確認・編集選択ステート中の素のテキストは画面を再表示する
	d.HandleState(flow.stateFor(confirmState), bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
		return e.showConfirm(ctx, flow, update)
	}))
	d.HandleState(flow.stateFor(editSelectState), bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
		return e.showEditSelect(ctx, flow, update)
	}))
	d.HandleCallbackPrefix(flow.callbackPrefix(), bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
		return e.handleCallback(ctx, flow, update)
	}))
}

// Start はフローを開始する。既存のセッションは破棄される。
// initialにはモードや編集対象IDなどの初期値を渡す。
func (e *Engine) Start(ctx context.Context, flow *Flow, update *bot.Update, initial map[string]string) error {
	first := flow.Steps[0]
	sess := e.sessions.Begin(update.From.ID, flow.stateFor(first.Name))
	for key, value := range initial {
		sess.SetValue(key, value)
	}
	return e.promptStep(ctx, flow, &first, update.ChatID)
}

// StartConfirm は初期値を収集済みとして確認画面からフローを開始する。
// プロフィール編集のように、保存済みデータを確認画面に直接出して
// 一部だけ修正させる再入用。既存のセッションは破棄される。
func (e *Engine) StartConfirm(ctx context.Context, flow *Flow, update *bot.Update, initial map[string]string) error {
	sess := e.sessions.Begin(update.From.ID, flow.stateFor(confirmState))
	for key, value := range initial {
		sess.SetValue(key, value)
	}
	return e.showConfirm(ctx, flow, update)
}

// Cancel は進行中のセッションを破棄する。
func (e *Engine) Cancel(key int64) {
	e.sessions.Clear(key)
}

// handleInput は収集ステップへのテキスト入力を処理する。
func (e *Engine) handleInput(ctx context.Context, flow *Flow, update *bot.Update) error {
	sess := e.sessions.Get(update.From.ID)
	if sess == nil {
		return e.reply(ctx, update.ChatID, sessionExpiredReply)
	}

	stepName := strings.TrimPrefix(e.sessions.State(update.From.ID), flow.Name+":")
	index := flow.stepIndex(stepName)
	if index < 0 {
		return fmt.Errorf("unknown step %q in flow %q", stepName, flow.Name)
	}
	step := &flow.Steps[index]

	value, err := step.Validate(update.Text)
	if err != nil {
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			// ステートは進めず、収集済みの値を保持したまま再入力を促す
			if sendErr := e.reply(ctx, update.ChatID, invalid.Message); sendErr != nil {
				return sendErr
			}
			return e.promptStep(ctx, flow, step, update.ChatID)
		}
		return fmt.Errorf("failed to validate input for %s: %w", flow.stateFor(step.Name), err)
	}

	sess.SetValue(step.Key, value)
	return e.advance(ctx, flow, sess, update, index)
}

// advance は次のステップまたは確認画面へ進める。
// 1フィールド修正中の場合はステップを飛ばして確認画面へ戻る。
func (e *Engine) advance(ctx context.Context, flow *Flow, sess *session.Session, update *bot.Update, currentIndex int) error {
	if sess.ValueOr(keyEditing, "") != "" {
		sess.DeleteValue(keyEditing)
		return e.gotoConfirm(ctx, flow, update)
	}
	if currentIndex+1 < len(flow.Steps) {
		next := &flow.Steps[currentIndex+1]
		e.sessions.SetState(update.From.ID, flow.stateFor(next.Name))
		return e.promptStep(ctx, flow, next, update.ChatID)
	}
	return e.gotoConfirm(ctx, flow, update)
}

// handleCallback はフローのコールバック（confirm/edit/skip/edit:<step>）を処理する。
func (e *Engine) handleCallback(ctx context.Context, flow *Flow, update *bot.Update) error {
	action := strings.TrimPrefix(update.Callback, flow.callbackPrefix())

	sess := e.sessions.Get(update.From.ID)
	if sess == nil {
		return e.reply(ctx, update.ChatID, sessionExpiredReply)
	}

	switch {
	case action == "confirm":
		return e.commit(ctx, flow, sess, update)
	case action == "edit":
		e.sessions.SetState(update.From.ID, flow.stateFor(editSelectState))
		return e.showEditSelect(ctx, flow, update)
	case action == "skip":
		return e.handleSkip(ctx, flow, sess, update)
	case strings.HasPrefix(action, "edit:"):
		return e.handleEditChoice(ctx, flow, sess, update, strings.TrimPrefix(action, "edit:"))
	default:
		return fmt.Errorf("unknown workflow action %q in flow %q", action, flow.Name)
	}
}

// handleSkip は省略可能なステップを値なしで通過させる。
func (e *Engine) handleSkip(ctx context.Context, flow *Flow, sess *session.Session, update *bot.Update) error {
	stepName := strings.TrimPrefix(e.sessions.State(update.From.ID), flow.Name+":")
	index := flow.stepIndex(stepName)
	if index < 0 || !flow.Steps[index].Optional {
		return fmt.Errorf("skip requested for non-optional state %q", stepName)
	}
	sess.SetValue(flow.Steps[index].Key, "")
	return e.advance(ctx, flow, sess, update, index)
}

// handleEditChoice は修正するフィールドを選び、そのステップへ戻す。
func (e *Engine) handleEditChoice(ctx context.Context, flow *Flow, sess *session.Session, update *bot.Update, stepName string) error {
	index := flow.stepIndex(stepName)
	if index < 0 {
		return fmt.Errorf("unknown step %q in edit choice for flow %q", stepName, flow.Name)
	}
	sess.SetValue(keyEditing, "1")
	step := &flow.Steps[index]
	e.sessions.SetState(update.From.ID, flow.stateFor(step.Name))
	return e.promptStep(ctx, flow, step, update.ChatID)
}

// gotoConfirm は確認ステートへ遷移し、確認画面を表示する。
func (e *Engine) gotoConfirm(ctx context.Context, flow *Flow, update *bot.Update) error {
	e.sessions.SetState(update.From.ID, flow.stateFor(confirmState))
	return e.showConfirm(ctx, flow, update)
}

// showConfirm は収集済みの値のサマリと確認ボタンを表示する。
func (e *Engine) showConfirm(ctx context.Context, flow *Flow, update *bot.Update) error {
	sess := e.sessions.Get(update.From.ID)
	if sess == nil {
		return e.reply(ctx, update.ChatID, sessionExpiredReply)
	}

	summary, err := flow.Summary(sess)
	if err != nil {
		return fmt.Errorf("failed to build summary for flow %q: %w", flow.Name, err)
	}

	keyboard := bot.Keyboard{
		bot.Row(
			bot.Button{Text: confirmButtonLabel, Callback: flow.callbackPrefix() + "confirm"},
			bot.Button{Text: editButtonLabel, Callback: flow.callbackPrefix() + "edit"},
		),
		bot.Row(bot.Button{Text: cancelButtonLabel, Callback: CancelCallback}),
	}
	return e.sender.SendMessage(ctx, &bot.Message{ChatID: update.ChatID, Text: summary, Keyboard: keyboard})
}

// showEditSelect は修正するフィールドの選択肢を表示する。
func (e *Engine) showEditSelect(ctx context.Context, flow *Flow, update *bot.Update) error {
	keyboard := make(bot.Keyboard, 0, len(flow.Steps)+1)
	for i := range flow.Steps {
		step := &flow.Steps[i]
		keyboard = append(keyboard, bot.Row(bot.Button{
			Text:     step.EditLabel,
			Callback: flow.callbackPrefix() + "edit:" + step.Name,
		}))
	}
	keyboard = append(keyboard, bot.Row(bot.Button{Text: cancelButtonLabel, Callback: CancelCallback}))
	return e.sender.SendMessage(ctx, &bot.Message{
		ChatID:   update.ChatID,
		Text:     "Что изменить?",
		Keyboard: keyboard,
	})
}

// commit は収集済みの値をドメインへ反映する。
// 成功・ドメインエラー・予期しないエラーのいずれでもセッションは破棄する。
// 重複・不存在のドメインエラーは固有の応答に変換し、
// 予期しないエラーのみディスパッチャ境界へ返す。
func (e *Engine) commit(ctx context.Context, flow *Flow, sess *session.Session, update *bot.Update) error {
	defer e.sessions.Clear(update.From.ID)

	reply, err := flow.Commit(ctx, update, sess)
	if err != nil {
		var exists *model.AlreadyExistsError
		var notFound *model.NotFoundError
		switch {
		case errors.As(err, &exists):
			e.logger.Warn("workflow commit rejected",
				slog.String("flow", flow.Name),
				slog.Int64("from_id", update.From.ID),
				slog.String("error", err.Error()),
			)
			return e.reply(ctx, update.ChatID, alreadyExistsReply)
		case errors.As(err, &notFound):
			e.logger.Warn("workflow commit rejected",
				slog.String("flow", flow.Name),
				slog.Int64("from_id", update.From.ID),
				slog.String("error", err.Error()),
			)
			return e.reply(ctx, update.ChatID, notFoundReply)
		}
		return fmt.Errorf("failed to commit flow %q: %w", flow.Name, err)
	}

	e.logger.Info("workflow committed",
		slog.String("flow", flow.Name),
		slog.Int64("from_id", update.From.ID),
	)
	return e.reply(ctx, update.ChatID, reply)
}

// promptStep はステップのプロンプトを送信する。
func (e *Engine) promptStep(ctx context.Context, flow *Flow, step *Step, chatID int64) error {
	keyboard := bot.Keyboard{}
	if step.Optional {
		keyboard = append(keyboard, bot.Row(bot.Button{
			Text:     skipButtonLabel,
			Callback: flow.callbackPrefix() + "skip",
		}))
	}
	keyboard = append(keyboard, bot.Row(bot.Button{Text: cancelButtonLabel, Callback: CancelCallback}))
	return e.sender.SendMessage(ctx, &bot.Message{ChatID: chatID, Text: step.Prompt, Keyboard: keyboard})
}

// reply はキーボードなしの単純な応答を送信する。
func (e *Engine) reply(ctx context.Context, chatID int64, text string) error {
	return e.sender.SendMessage(ctx, &bot.Message{ChatID: chatID, Text: text})
}
