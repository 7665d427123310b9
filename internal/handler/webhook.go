package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/giftman/internal/bot"
)

// Pinger はヘルスチェック用のデータベース接続インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はHTTP面のルーティングに必要な依存をまとめる。
type RouterDeps struct {
	Dispatcher    *bot.Dispatcher
	DB            Pinger
	Logger        *slog.Logger
	Metrics       http.Handler
	WebhookSecret string
}

// NewRouter はwebhook・ヘルスチェック・メトリクスのルーティングを
// 構成したchi.Routerを返す。
//
//	POST /webhook/{secret} — チャネルからのアップデート受信
//	GET  /health           — DB疎通を含むヘルスチェック
//	GET  /metrics          — Prometheusメトリクス
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	h := &webhookHandler{
		dispatcher: deps.Dispatcher,
		db:         deps.DB,
		logger:     deps.Logger,
		secret:     deps.WebhookSecret,
	}

	r.Post("/webhook/{secret}", h.Receive)
	r.Get("/health", h.Health)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	return r
}

type webhookHandler struct {
	dispatcher *bot.Dispatcher
	db         Pinger
	logger     *slog.Logger
	secret     string
}

// Receive はチャネルからのアップデートを受信し、ディスパッチャへ渡す。
// シークレット不一致は404で応答する（URLの探索を許さない）。
// ハンドラのエラーはディスパッチャ境界で処理済みのため、常に200を返す。
func (h *webhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		http.NotFound(w, r)
		return
	}

	var update bot.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.Warn("failed to decode webhook update",
			slog.String("error", err.Error()),
		)
		http.Error(w, "invalid update payload", http.StatusBadRequest)
		return
	}

	h.dispatcher.Dispatch(r.Context(), &update)
	w.WriteHeader(http.StatusOK)
}

// Health はデータベースの疎通を確認する。
func (h *webhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Error("health check failed",
			slog.String("error", err.Error()),
		)
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
