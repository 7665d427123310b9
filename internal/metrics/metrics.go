// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア・ドメインサービス・ワーカーから利用する。
type MetricsCollector interface {
	RecordUpdate(kind string)
	RecordUpdateError()
	RecordUpdateLatency(duration time.Duration)
	RecordTransferRecorded()
	RecordTransferDuplicate()
	RecordNotificationSent()
	RecordNotificationFailure()
	RecordUniquenessViolation()
	RecordPurgedRows(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	updates              *prometheus.CounterVec
	updateErrors         prometheus.Counter
	updateLatency        prometheus.Histogram
	transfersRecorded    prometheus.Counter
	transferDuplicates   prometheus.Counter
	notificationsSent    prometheus.Counter
	notificationFailures prometheus.Counter
	uniquenessViolations prometheus.Counter
	purgedRows           prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "giftman_updates_total",
			Help: "受信アップデートの合計数（種別ラベル付き）",
		}, []string{"kind"}),
		updateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftman_update_errors_total",
			Help: "処理エラーになったアップデートの合計数",
		}),
		updateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "giftman_update_latency_seconds",
			Help:    "アップデート処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		transfersRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftman_transfers_recorded_total",
			Help: "新規に記録された送金の合計数",
		}),
		transferDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftman_transfer_duplicates_total",
			Help: "重複として無視された送金申告の合計数",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftman_notifications_sent_total",
			Help: "送信に成功した誕生日通知の合計数",
		}),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftman_notification_failures_total",
			Help: "送信に失敗した誕生日通知の合計数",
		}),
		uniquenessViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftman_collector_uniqueness_violations_total",
			Help: "検出された集金担当者の単一アクティブ制約違反の合計数",
		}),
		purgedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "giftman_purged_rows_total",
			Help: "パージで削除された行の合計数",
		}),
	}

	reg.MustRegister(
		c.updates,
		c.updateErrors,
		c.updateLatency,
		c.transfersRecorded,
		c.transferDuplicates,
		c.notificationsSent,
		c.notificationFailures,
		c.uniquenessViolations,
		c.purgedRows,
	)

	return c
}

// RecordUpdate は受信アップデートを種別（message/callback）ごとに記録する。
func (c *Collector) RecordUpdate(kind string) {
	c.updates.WithLabelValues(kind).Inc()
}

// RecordUpdateError は処理エラーを記録する。
func (c *Collector) RecordUpdateError() {
	c.updateErrors.Inc()
}

// RecordUpdateLatency はアップデート処理のレイテンシを記録する。
func (c *Collector) RecordUpdateLatency(duration time.Duration) {
	c.updateLatency.Observe(duration.Seconds())
}

// RecordTransferRecorded は新規送金記録を記録する。
func (c *Collector) RecordTransferRecorded() {
	c.transfersRecorded.Inc()
}

// RecordTransferDuplicate は重複送金申告を記録する。
func (c *Collector) RecordTransferDuplicate() {
	c.transferDuplicates.Inc()
}

// RecordNotificationSent は通知送信成功を記録する。
func (c *Collector) RecordNotificationSent() {
	c.notificationsSent.Inc()
}

// RecordNotificationFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notificationFailures.Inc()
}

// RecordUniquenessViolation は単一アクティブ制約違反の検出を記録する。
func (c *Collector) RecordUniquenessViolation() {
	c.uniquenessViolations.Inc()
}

// RecordPurgedRows はパージで削除された行数を記録する。
func (c *Collector) RecordPurgedRows(count int64) {
	c.purgedRows.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
