package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/giftman/internal/model"
)

// PostgresAdminRepo はPostgreSQLを使用した管理者権限リポジトリ。
type PostgresAdminRepo struct {
	db *sql.DB
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db *sql.DB) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

// Create は管理者権限を付与する。既に付与済みの場合はAlreadyExistsErrorを返す。
func (r *PostgresAdminRepo) Create(ctx context.Context, personID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_grants (id, person_id) VALUES ($1, $2)`,
		uuid.NewString(), personID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewAlreadyExistsError("AdminGrant", personID)
		}
		return fmt.Errorf("failed to insert admin grant: %w", err)
	}
	return nil
}

// FindByPerson はメンバーの管理者権限を取得する。未付与の場合はnilを返す。
func (r *PostgresAdminRepo) FindByPerson(ctx context.Context, personID int64) (*model.AdminGrant, error) {
	grant := &model.AdminGrant{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, person_id, created_at FROM admin_grants WHERE person_id = $1`,
		personID,
	).Scan(&grant.ID, &grant.PersonID, &grant.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin grant: %w", err)
	}
	return grant, nil
}

// DeleteByPerson は管理者権限を剥奪する。未付与の場合はNotFoundErrorを返す。
func (r *PostgresAdminRepo) DeleteByPerson(ctx context.Context, personID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_grants WHERE person_id = $1`,
		personID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete admin grant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("AdminGrant", personID)
	}
	return nil
}

// ListAll は全管理者権限を付与日時の昇順で返す。
func (r *PostgresAdminRepo) ListAll(ctx context.Context) ([]*model.AdminGrant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, person_id, created_at FROM admin_grants ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin grants: %w", err)
	}
	defer rows.Close()

	var grants []*model.AdminGrant
	for rows.Next() {
		grant := &model.AdminGrant{}
		if err := rows.Scan(&grant.ID, &grant.PersonID, &grant.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admin grants: %w", err)
	}
	return grants, nil
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
