// Package collector は集金担当者の単一アクティブ不変条件を管理する。
//
// 「システム全体でアクティブな集金担当者は常に最大1人」という不変条件は
// 3段構えで守る: (1) 有効化はSwapActiveの1トランザクション
// （行ロックで直列化）のみで行う、(2) データベースの部分一意インデックスが
// 競合をエラーに変える、(3) コミット後の件数チェックが違反を検出して
// 重大ログとメトリクスで知らせる。(3)は監視であり、自動修復はしない。
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/giftman/internal/metrics"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/repository"
)

// Manager は集金担当者の登録・送金先更新・有効化・無効化を提供する。
type Manager struct {
	collectors repository.CollectorRepository
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewManager はManagerを生成する。
func NewManager(collectors repository.CollectorRepository, m metrics.MetricsCollector, logger *slog.Logger) *Manager {
	return &Manager{collectors: collectors, metrics: m, logger: logger}
}

// Register は集金担当者レコードを非アクティブ状態で作成する。
// 有効化は管理者のAssign操作でのみ行われる。
// 既に登録済みの場合はAlreadyExistsErrorを返す。
func (m *Manager) Register(ctx context.Context, personID int64, phone, bank string) error {
	now := time.Now()
	collector := &model.Collector{
		ID:        uuid.NewString(),
		PersonID:  personID,
		Phone:     phone,
		Bank:      bank,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.collectors.Create(ctx, collector); err != nil {
		return err
	}
	m.logger.Info("collector registered",
		slog.Int64("person_id", personID),
	)
	return nil
}

// UpdateRouting は送金先データ（電話番号・銀行名）を更新する。
// 未登録の場合はNotFoundErrorを返す。
func (m *Manager) UpdateRouting(ctx context.Context, personID int64, phone, bank string) error {
	if err := m.collectors.UpdateRouting(ctx, personID, phone, bank); err != nil {
		return err
	}
	m.logger.Info("collector routing updated",
		slog.Int64("person_id", personID),
	)
	return nil
}

// Activate は指定メンバーをアクティブな集金担当者にする。
// 現アクティブの解除と新規の有効化は1トランザクションで行われる。
// コミット後に件数を検証し、不変条件違反を検出した場合は重大ログと
// メトリクスで通知する（自動修復はしない）。
// レコードが存在しない場合はNotFoundErrorを返す。
func (m *Manager) Activate(ctx context.Context, personID int64) error {
	if err := m.collectors.SwapActive(ctx, personID); err != nil {
		return err
	}

	m.logger.Info("collector activated",
		slog.Int64("person_id", personID),
	)

	count, err := m.collectors.CountActive(ctx)
	if err != nil {
		// 監視チェックの失敗は有効化自体の失敗にはしない
		m.logger.Error("failed to verify active collector count",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if count > 1 {
		violation := model.NewCollectorUniquenessError(count)
		m.metrics.RecordUniquenessViolation()
		m.logger.Error("collector uniqueness invariant violated",
			slog.Int("active_count", count),
			slog.String("error", violation.Error()),
		)
	}
	return nil
}

// Deactivate は現アクティブな集金担当者を解除する。
// アクティブが不在でもエラーにしない。
func (m *Manager) Deactivate(ctx context.Context) error {
	if err := m.collectors.Deactivate(ctx); err != nil {
		return err
	}
	m.logger.Info("collector deactivated")
	return nil
}

// Active は現在アクティブな集金担当者を返す。不在の場合はnilを返す。
func (m *Manager) Active(ctx context.Context) (*model.Collector, error) {
	collector, err := m.collectors.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find active collector: %w", err)
	}
	return collector, nil
}

// Find は指定メンバーの集金担当者レコードを返す。無い場合はnilを返す。
func (m *Manager) Find(ctx context.Context, personID int64) (*model.Collector, error) {
	return m.collectors.FindByPerson(ctx, personID)
}
