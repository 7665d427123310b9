package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_RegistersAndServes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpdate("message")
	c.RecordUpdate("callback")
	c.RecordUpdateError()
	c.RecordUpdateLatency(50 * time.Millisecond)
	c.RecordTransferRecorded()
	c.RecordTransferDuplicate()
	c.RecordNotificationSent()
	c.RecordNotificationFailure()
	c.RecordUniquenessViolation()
	c.RecordPurgedRows(7)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expected := []string{
		"giftman_updates_total",
		"giftman_update_errors_total",
		"giftman_transfers_recorded_total",
		"giftman_transfer_duplicates_total",
		"giftman_notifications_sent_total",
		"giftman_notification_failures_total",
		"giftman_collector_uniqueness_violations_total",
		"giftman_purged_rows_total",
	}
	for _, name := range expected {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("メトリクス %s が公開されていない", name)
		}
	}
}

func TestCollector_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("同一レジストリへの二重登録がpanicしなかった")
		}
	}()
	_ = NewCollector(reg)
}
