package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/giftman/internal/model"
)

// mockCollectorRepo はCollectorRepositoryのfuncフィールドモック。
type mockCollectorRepo struct {
	createFn      func(ctx context.Context, collector *model.Collector) error
	swapActiveFn  func(ctx context.Context, personID int64) error
	countActiveFn func(ctx context.Context) (int, error)
	deactivateFn  func(ctx context.Context) error
	findActiveFn  func(ctx context.Context) (*model.Collector, error)
}

func (m *mockCollectorRepo) Create(ctx context.Context, collector *model.Collector) error {
	if m.createFn != nil {
		return m.createFn(ctx, collector)
	}
	return nil
}
func (m *mockCollectorRepo) FindByPerson(context.Context, int64) (*model.Collector, error) {
	return nil, nil
}
func (m *mockCollectorRepo) UpdateRouting(context.Context, int64, string, string) error {
	return nil
}
func (m *mockCollectorRepo) FindActive(ctx context.Context) (*model.Collector, error) {
	if m.findActiveFn != nil {
		return m.findActiveFn(ctx)
	}
	return nil, nil
}
func (m *mockCollectorRepo) SwapActive(ctx context.Context, personID int64) error {
	if m.swapActiveFn != nil {
		return m.swapActiveFn(ctx, personID)
	}
	return nil
}
func (m *mockCollectorRepo) Deactivate(ctx context.Context) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx)
	}
	return nil
}
func (m *mockCollectorRepo) CountActive(ctx context.Context) (int, error) {
	if m.countActiveFn != nil {
		return m.countActiveFn(ctx)
	}
	return 1, nil
}

// mockMetrics は呼び出し回数を数えるMetricsCollectorモック。
type mockMetrics struct {
	uniquenessViolations int
}

func (m *mockMetrics) RecordUpdate(string)               {}
func (m *mockMetrics) RecordUpdateError()                {}
func (m *mockMetrics) RecordUpdateLatency(time.Duration) {}
func (m *mockMetrics) RecordTransferRecorded()           {}
func (m *mockMetrics) RecordTransferDuplicate()          {}
func (m *mockMetrics) RecordNotificationSent()           {}
func (m *mockMetrics) RecordNotificationFailure()        {}
func (m *mockMetrics) RecordUniquenessViolation()        { m.uniquenessViolations++ }
func (m *mockMetrics) RecordPurgedRows(int64)            {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestManager_Activate(t *testing.T) {
	var swapped int64
	repo := &mockCollectorRepo{
		swapActiveFn: func(ctx context.Context, personID int64) error {
			swapped = personID
			return nil
		},
		countActiveFn: func(ctx context.Context) (int, error) { return 1, nil },
	}
	m := NewManager(repo, &mockMetrics{}, testLogger())

	if err := m.Activate(context.Background(), 42); err != nil {
		t.Fatalf("Activateに失敗: %v", err)
	}
	if swapped != 42 {
		t.Errorf("SwapActiveの対象 = %d, want 42", swapped)
	}
}

func TestManager_Activate_NotFoundPropagates(t *testing.T) {
	repo := &mockCollectorRepo{
		swapActiveFn: func(ctx context.Context, personID int64) error {
			return model.NewNotFoundError("Collector", personID)
		},
	}
	m := NewManager(repo, &mockMetrics{}, testLogger())

	err := m.Activate(context.Background(), 42)
	var notFound *model.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("エラー = %v, want NotFoundError", err)
	}
}

// TestManager_Activate_ViolationDetected はコミット後チェックが違反を
// 検出・記録するが、有効化自体は失敗にしないことを検証する。
func TestManager_Activate_ViolationDetected(t *testing.T) {
	repo := &mockCollectorRepo{
		countActiveFn: func(ctx context.Context) (int, error) { return 2, nil },
	}
	mm := &mockMetrics{}
	m := NewManager(repo, mm, testLogger())

	if err := m.Activate(context.Background(), 42); err != nil {
		t.Fatalf("Activateに失敗: %v", err)
	}
	if mm.uniquenessViolations != 1 {
		t.Errorf("違反の記録回数 = %d, want 1", mm.uniquenessViolations)
	}
}

// TestManager_Activate_CountCheckFailureTolerated は監視チェック自体の
// 失敗が有効化の失敗にならないことを検証する。
func TestManager_Activate_CountCheckFailureTolerated(t *testing.T) {
	repo := &mockCollectorRepo{
		countActiveFn: func(ctx context.Context) (int, error) {
			return 0, errors.New("db down")
		},
	}
	m := NewManager(repo, &mockMetrics{}, testLogger())

	if err := m.Activate(context.Background(), 42); err != nil {
		t.Errorf("監視チェック失敗でActivateがエラーになった: %v", err)
	}
}

func TestManager_Register_CreatesInactive(t *testing.T) {
	var created *model.Collector
	repo := &mockCollectorRepo{
		createFn: func(ctx context.Context, collector *model.Collector) error {
			created = collector
			return nil
		},
	}
	m := NewManager(repo, &mockMetrics{}, testLogger())

	if err := m.Register(context.Background(), 42, "+79991234567", "Сбербанк"); err != nil {
		t.Fatalf("Registerに失敗: %v", err)
	}
	if created == nil {
		t.Fatal("Createが呼ばれなかった")
	}
	if created.IsActive {
		t.Error("新規登録がアクティブ状態で作成された")
	}
	if created.PersonID != 42 || created.Phone != "+79991234567" || created.Bank != "Сбербанк" {
		t.Errorf("作成内容 = %+v", created)
	}
	if created.ID == "" {
		t.Error("IDが採番されていない")
	}
}
