package bot

import "context"

// Handler はアップデートを処理するインターフェース。
type Handler interface {
	Handle(ctx context.Context, update *Update) error
}

// HandlerFunc は関数をHandlerとして使うためのアダプタ。
type HandlerFunc func(ctx context.Context, update *Update) error

// Handle はf(ctx, update)を呼び出す。
func (f HandlerFunc) Handle(ctx context.Context, update *Update) error {
	return f(ctx, update)
}

// Middleware はHandlerをラップするミドルウェア。
// func(next Handler) Handler の形でチェーンを構成する。
type Middleware func(next Handler) Handler

// Chain はミドルウェアを先頭が最外殻になる順で合成する。
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
