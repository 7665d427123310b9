package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// mockSender は送信されたメッセージを記録するSender実装。
type mockSender struct {
	mu       sync.Mutex
	messages []*Message
	sendErr  error
}

func (m *mockSender) SendMessage(_ context.Context, message *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockSender) sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.messages...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestUpdate_Command(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"スラッシュコマンド", "/start", "start"},
		{"引数付きコマンド", "/get_admin секрет", "get_admin"},
		{"通常テキスト", "Иванов", ""},
		{"空文字列", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &Update{Text: tt.text}
			if got := u.Command(); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatcher_RoutesCommand(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(discardLogger(), sender, nil)

	called := false
	d.HandleCommand("start", HandlerFunc(func(ctx context.Context, u *Update) error {
		called = true
		return nil
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Text: "/start", ChatID: 1})
	if !called {
		t.Error("コマンドハンドラが呼ばれなかった")
	}
}

func TestDispatcher_CallbackExactBeforePrefix(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(discardLogger(), sender, nil)

	var got string
	d.HandleCallback("wish_add", HandlerFunc(func(ctx context.Context, u *Update) error {
		got = "exact"
		return nil
	}))
	d.HandleCallbackPrefix("wish_", HandlerFunc(func(ctx context.Context, u *Update) error {
		got = "prefix"
		return nil
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Callback: "wish_add"})
	if got != "exact" {
		t.Errorf("完全一致より前置一致が優先された: %q", got)
	}

	got = ""
	d.Dispatch(context.Background(), &Update{Callback: "wish_edit:abc"})
	if got != "prefix" {
		t.Errorf("前置一致ハンドラが呼ばれなかった: %q", got)
	}
}

func TestDispatcher_StateRouting(t *testing.T) {
	sender := &mockSender{}
	resolver := func(ctx context.Context, u *Update) string {
		return "registration:family_name"
	}
	d := NewDispatcher(discardLogger(), sender, resolver)

	var received string
	d.HandleState("registration:family_name", HandlerFunc(func(ctx context.Context, u *Update) error {
		received = u.Text
		return nil
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Text: "Иванов"})
	if received != "Иванов" {
		t.Errorf("ステートハンドラへの入力 = %q", received)
	}
}

func TestDispatcher_CommandBeatsState(t *testing.T) {
	sender := &mockSender{}
	resolver := func(ctx context.Context, u *Update) string { return "wish:text" }
	d := NewDispatcher(discardLogger(), sender, resolver)

	var got string
	d.HandleCommand("start", HandlerFunc(func(ctx context.Context, u *Update) error {
		got = "command"
		return nil
	}))
	d.HandleState("wish:text", HandlerFunc(func(ctx context.Context, u *Update) error {
		got = "state"
		return nil
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Text: "/start"})
	if got != "command" {
		t.Errorf("ステート中でもコマンドが優先されるべき: %q", got)
	}
}

func TestDispatcher_ErrorBoundarySendsGenericReply(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(discardLogger(), sender, nil)

	d.HandleCommand("start", HandlerFunc(func(ctx context.Context, u *Update) error {
		return errors.New("db down")
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Text: "/start", ChatID: 42})

	messages := sender.sent()
	if len(messages) != 1 {
		t.Fatalf("送信件数 = %d, want 1", len(messages))
	}
	if messages[0].ChatID != 42 {
		t.Errorf("送信先ChatID = %d, want 42", messages[0].ChatID)
	}
	if messages[0].Text != genericErrorReply {
		t.Errorf("応答テキスト = %q", messages[0].Text)
	}
}

func TestDispatcher_ErrorBoundaryCallsOnError(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(discardLogger(), sender, nil)

	var hookedID int64
	d.OnError(func(_ context.Context, u *Update) {
		hookedID = u.From.ID
	})
	d.HandleCommand("start", HandlerFunc(func(ctx context.Context, u *Update) error {
		return errors.New("db down")
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Text: "/start", ChatID: 42, From: User{ID: 7}})

	if hookedID != 7 {
		t.Errorf("OnErrorフックのFrom.ID = %d, want 7", hookedID)
	}
}

func TestDispatcher_OnErrorNotCalledOnSuccess(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(discardLogger(), sender, nil)

	called := false
	d.OnError(func(context.Context, *Update) { called = true })
	d.HandleCommand("start", HandlerFunc(func(ctx context.Context, u *Update) error {
		return nil
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Text: "/start", ChatID: 42, From: User{ID: 7}})

	if called {
		t.Error("成功時にOnErrorフックが呼ばれた")
	}
}

func TestDispatcher_MiddlewareOrder(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(discardLogger(), sender, nil)

	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, u *Update) error {
				order = append(order, name)
				return next.Handle(ctx, u)
			})
		}
	}
	d.Use(mw("outer"), mw("inner"))
	d.HandleFallback(HandlerFunc(func(ctx context.Context, u *Update) error {
		order = append(order, "handler")
		return nil
	}))
	d.Build()

	d.Dispatch(context.Background(), &Update{Text: "привет"})

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("実行順 = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("実行順 = %v, want %v", order, want)
		}
	}
}
