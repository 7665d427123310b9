package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/giftman/internal/model"
)

// PostgresTransferRepo はPostgreSQLを使用した送金記録リポジトリ。
type PostgresTransferRepo struct {
	db *sql.DB
}

// NewPostgresTransferRepo はPostgresTransferRepoを生成する。
func NewPostgresTransferRepo(db *sql.DB) *PostgresTransferRepo {
	return &PostgresTransferRepo{db: db}
}

// Record は送金記録を冪等に作成する。
// 既存チェックと挿入を同一トランザクション内で行い、同時に同じ組が
// 挿入された場合は (sender_id, honoree_id) の一意制約が最終判定となる。
// 新規に記録された場合はtrue、既に記録済みの場合はfalseを返す。
func (r *PostgresTransferRepo) Record(ctx context.Context, transfer *model.Transfer) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存チェック（フレンドリーな「記録済み」応答用）
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transfers WHERE sender_id = $1 AND honoree_id = $2)`,
		transfer.SenderID, transfer.HonoreeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing transfer: %w", err)
	}
	if exists {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transfers (id, sender_id, honoree_id, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		transfer.ID, transfer.SenderID, transfer.HonoreeID, transfer.RecordedAt,
	)
	if err != nil {
		// チェックと挿入の間に別リクエストが同じ組を入れたケース。
		// 一意制約が検出するので「記録済み」として扱う。
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// ListByHonoree は対象者宛の送金記録を記録日時の降順で返す。
func (r *PostgresTransferRepo) ListByHonoree(ctx context.Context, honoreeID int64) ([]*model.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_id, honoree_id, recorded_at
		 FROM transfers WHERE honoree_id = $1 ORDER BY recorded_at DESC`,
		honoreeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers by honoree: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// ListAll は全送金記録を対象者ID・記録日時降順で返す。
// 集金担当者向けレポートのグルーピングに使用する。
func (r *PostgresTransferRepo) ListAll(ctx context.Context) ([]*model.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_id, honoree_id, recorded_at
		 FROM transfers ORDER BY honoree_id, recorded_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// scanTransfers は複数行のtransfersをスキャンする。
func scanTransfers(rows *sql.Rows) ([]*model.Transfer, error) {
	var transfers []*model.Transfer
	for rows.Next() {
		transfer := &model.Transfer{}
		if err := rows.Scan(&transfer.ID, &transfer.SenderID, &transfer.HonoreeID,
			&transfer.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}
	return transfers, nil
}

// compile-time interface check
var _ TransferRepository = (*PostgresTransferRepo)(nil)
