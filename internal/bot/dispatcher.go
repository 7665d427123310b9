package bot

import (
	"context"
	"log/slog"
	"strings"
)

// genericErrorReply は予期しないエラー時のユーザー向け応答。
const genericErrorReply = "Произошла ошибка. Попробуйте ещё раз позже."

// StateResolver はアイデンティティの現在のワークフローステートを返す。
// ステートが無い場合は空文字列を返す。
type StateResolver func(ctx context.Context, update *Update) string

// Dispatcher は受信アップデートを登録済みハンドラへ振り分ける。
// 優先順位: コールバック完全一致 → コールバック前置一致 →
// コマンド → ワークフローステート → フォールバック。
// ハンドラから返されたエラーはここが最終境界となり、
// ログ出力と汎用エラー応答に変換する。
type Dispatcher struct {
	logger        *slog.Logger
	sender        Sender
	stateResolver StateResolver

	commands         map[string]Handler
	callbacks        map[string]Handler
	callbackPrefixes []prefixRoute
	states           map[string]Handler
	fallback         Handler

	middlewares []Middleware
	chain       Handler
	errorHook   func(ctx context.Context, update *Update)
}

type prefixRoute struct {
	prefix  string
	handler Handler
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(logger *slog.Logger, sender Sender, stateResolver StateResolver) *Dispatcher {
	return &Dispatcher{
		logger:        logger,
		sender:        sender,
		stateResolver: stateResolver,
		commands:      make(map[string]Handler),
		callbacks:     make(map[string]Handler),
		states:        make(map[string]Handler),
	}
}

// Use はディスパッチ全体に適用するミドルウェアを追加する。
// 追加順に外側から適用される。Buildの前に呼ぶこと。
func (d *Dispatcher) Use(middlewares ...Middleware) {
	d.middlewares = append(d.middlewares, middlewares...)
}

// HandleCommand はスラッシュコマンドのハンドラを登録する。
// nameは先頭の/を除いたコマンド名。
func (d *Dispatcher) HandleCommand(name string, h Handler) {
	d.commands[name] = h
}

// HandleCallback はコールバックデータ完全一致のハンドラを登録する。
func (d *Dispatcher) HandleCallback(data string, h Handler) {
	d.callbacks[data] = h
}

// HandleCallbackPrefix はコールバックデータ前置一致のハンドラを登録する。
// 「wish_edit:<id>」のようなパラメータ付きコールバック用。
func (d *Dispatcher) HandleCallbackPrefix(prefix string, h Handler) {
	d.callbackPrefixes = append(d.callbackPrefixes, prefixRoute{prefix: prefix, handler: h})
}

// HandleState はワークフローステート中のテキスト入力ハンドラを登録する。
func (d *Dispatcher) HandleState(state string, h Handler) {
	d.states[state] = h
}

// HandleFallback はどのルートにも一致しない場合のハンドラを登録する。
func (d *Dispatcher) HandleFallback(h Handler) {
	d.fallback = h
}

// OnError は予期しないエラー時にDispatchが呼ぶフックを登録する。
// 進行中のワークフローセッションの破棄に使う。汎用エラー応答の
// 送信前に呼ばれる。
func (d *Dispatcher) OnError(hook func(ctx context.Context, update *Update)) {
	d.errorHook = hook
}

// Build はミドルウェアチェーンを確定する。全ハンドラ登録後に1度呼ぶ。
func (d *Dispatcher) Build() {
	d.chain = Chain(HandlerFunc(d.route), d.middlewares...)
}

// Dispatch はアップデートをチェーンに通し、エラーを最終処理する。
// エラー境界: ハンドラのエラーはログに記録し、OnErrorフックで
// 進行中のセッションを破棄した上で、ユーザーには汎用エラー応答を
// 返す。エラーを上位（webhookサーバ）へは伝播しない。
func (d *Dispatcher) Dispatch(ctx context.Context, update *Update) {
	chain := d.chain
	if chain == nil {
		chain = HandlerFunc(d.route)
	}

	if err := chain.Handle(ctx, update); err != nil {
		d.logger.Error("update handling failed",
			slog.Int64("update_id", update.ID),
			slog.Int64("from_id", update.From.ID),
			slog.String("error", err.Error()),
		)
		if d.errorHook != nil {
			d.errorHook(ctx, update)
		}
		reply := &Message{ChatID: update.ChatID, Text: genericErrorReply}
		if sendErr := d.sender.SendMessage(ctx, reply); sendErr != nil {
			d.logger.Error("failed to send error reply",
				slog.Int64("chat_id", update.ChatID),
				slog.String("error", sendErr.Error()),
			)
		}
	}
}

// route はアップデートを優先順位に従って振り分ける。
func (d *Dispatcher) route(ctx context.Context, update *Update) error {
	if update.IsCallback() {
		if h, ok := d.callbacks[update.Callback]; ok {
			return h.Handle(ctx, update)
		}
		for _, route := range d.callbackPrefixes {
			if strings.HasPrefix(update.Callback, route.prefix) {
				return route.handler.Handle(ctx, update)
			}
		}
	} else {
		if command := update.Command(); command != "" {
			if h, ok := d.commands[command]; ok {
				return h.Handle(ctx, update)
			}
		}
		if d.stateResolver != nil {
			if state := d.stateResolver(ctx, update); state != "" {
				if h, ok := d.states[state]; ok {
					return h.Handle(ctx, update)
				}
			}
		}
	}

	if d.fallback != nil {
		return d.fallback.Handle(ctx, update)
	}
	return nil
}
