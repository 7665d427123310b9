package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/giftman/internal/model"
)

// PostgresCollectorRepo はPostgreSQLを使用した集金担当者リポジトリ。
type PostgresCollectorRepo struct {
	db *sql.DB
}

// NewPostgresCollectorRepo はPostgresCollectorRepoを生成する。
func NewPostgresCollectorRepo(db *sql.DB) *PostgresCollectorRepo {
	return &PostgresCollectorRepo{db: db}
}

// Create は集金担当者レコードを非アクティブ状態で作成する。
// 既に存在する場合はAlreadyExistsErrorを返す。
func (r *PostgresCollectorRepo) Create(ctx context.Context, collector *model.Collector) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collectors (id, person_id, phone, bank, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		collector.ID, collector.PersonID, collector.Phone, nullableString(collector.Bank),
		collector.CreatedAt, collector.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewAlreadyExistsError("Collector", collector.PersonID)
		}
		return fmt.Errorf("failed to insert collector: %w", err)
	}
	return nil
}

// FindByPerson はメンバーの集金担当者レコードを取得する。見つからない場合はnilを返す。
func (r *PostgresCollectorRepo) FindByPerson(ctx context.Context, personID int64) (*model.Collector, error) {
	return r.findOne(ctx, `WHERE person_id = $1`, personID)
}

// FindActive は現在アクティブな集金担当者を取得する。不在の場合はnilを返す。
func (r *PostgresCollectorRepo) FindActive(ctx context.Context) (*model.Collector, error) {
	return r.findOne(ctx, `WHERE is_active`)
}

// findOne は条件に一致する集金担当者を1件取得する。
func (r *PostgresCollectorRepo) findOne(ctx context.Context, where string, args ...interface{}) (*model.Collector, error) {
	collector := &model.Collector{}
	var bank sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, person_id, phone, bank, is_active, created_at, updated_at
		 FROM collectors `+where,
		args...,
	).Scan(&collector.ID, &collector.PersonID, &collector.Phone, &bank,
		&collector.IsActive, &collector.CreatedAt, &collector.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find collector: %w", err)
	}

	collector.Bank = bank.String
	return collector, nil
}

// UpdateRouting は送金先データ（電話番号・銀行名）を更新する。
// 存在しない場合はNotFoundErrorを返す。
func (r *PostgresCollectorRepo) UpdateRouting(ctx context.Context, personID int64, phone, bank string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE collectors SET phone = $2, bank = $3, updated_at = now()
		 WHERE person_id = $1`,
		personID, phone, nullableString(bank),
	)
	if err != nil {
		return fmt.Errorf("failed to update collector routing: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("Collector", personID)
	}
	return nil
}

// SwapActive は1トランザクション内で現アクティブを解除し、
// 指定メンバーをアクティブにする。対象行をFOR UPDATEでロックすることで
// 同時実行のアクティベーションを直列化し、「解除→有効化」の間に
// 別のトランザクションが割り込むことを防ぐ。
// レコードが存在しない場合はNotFoundErrorを返す。
func (r *PostgresCollectorRepo) SwapActive(ctx context.Context, personID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 対象行と現アクティブ行の両方をロックする。
	// person_id順でロックすることでデッドロックを避ける。
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM collectors
		 WHERE is_active OR person_id = $1
		 ORDER BY person_id
		 FOR UPDATE`,
		personID,
	)
	if err != nil {
		return fmt.Errorf("failed to lock collector rows: %w", err)
	}
	if err := drainRows(rows); err != nil {
		return fmt.Errorf("failed to read locked rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE collectors SET is_active = FALSE, updated_at = now() WHERE is_active`,
	); err != nil {
		return fmt.Errorf("failed to deactivate current collector: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE collectors SET is_active = TRUE, updated_at = now() WHERE person_id = $1`,
		personID,
	)
	if err != nil {
		return fmt.Errorf("failed to activate collector: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("Collector", personID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Deactivate は現アクティブな集金担当者を解除する。
// アクティブが不在でもエラーにしない。
func (r *PostgresCollectorRepo) Deactivate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE collectors SET is_active = FALSE, updated_at = now() WHERE is_active`,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate collector: %w", err)
	}
	return nil
}

// CountActive はアクティブな集金担当者の件数を返す。
// 不変条件の監視用（期待値は常に0または1）。
func (r *PostgresCollectorRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collectors WHERE is_active`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active collectors: %w", err)
	}
	return count, nil
}

// drainRows は行セットを読み切って閉じる。ロック取得のみが目的のクエリ用。
func drainRows(rows *sql.Rows) error {
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

// compile-time interface check
var _ CollectorRepository = (*PostgresCollectorRepo)(nil)
