package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/giftman/internal/bot"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

// newTestRouter は全アップデートを記録するディスパッチャ付きのルーターを返す。
func newTestRouter(t *testing.T, db Pinger) (http.Handler, *[]*bot.Update) {
	t.Helper()
	var received []*bot.Update
	d := bot.NewDispatcher(testLogger(), &mockSender{}, nil)
	d.HandleFallback(bot.HandlerFunc(func(ctx context.Context, update *bot.Update) error {
		received = append(received, update)
		return nil
	}))
	d.Build()

	router := NewRouter(&RouterDeps{
		Dispatcher:    d,
		DB:            db,
		Logger:        testLogger(),
		WebhookSecret: "s3cret",
	})
	return router, &received
}

func TestWebhook_WrongSecretReturns404(t *testing.T) {
	router, received := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/wrong", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if len(*received) != 0 {
		t.Error("不正なシークレットでアップデートが処理された")
	}
}

func TestWebhook_InvalidJSONReturns400(t *testing.T) {
	router, _ := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestWebhook_ValidUpdateDispatched(t *testing.T) {
	router, received := newTestRouter(t, &mockPinger{})

	body := `{"update_id": 7, "chat_id": 1, "from": {"id": 1, "handle": "ivan"}, "text": "/start"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(*received) != 1 {
		t.Fatalf("処理されたアップデート数 = %d, want 1", len(*received))
	}
	update := (*received)[0]
	if update.From.ID != 1 || update.Text != "/start" {
		t.Errorf("アップデート = %+v", update)
	}
}

func TestHealth_OK(t *testing.T) {
	router, _ := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHealth_DBDownReturns503(t *testing.T) {
	router, _ := newTestRouter(t, &mockPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
