package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/giftman/internal/model"
)

// PostgresWishRepo はPostgreSQLを使用したウィッシュリポジトリ。
type PostgresWishRepo struct {
	db *sql.DB
}

// NewPostgresWishRepo はPostgresWishRepoを生成する。
func NewPostgresWishRepo(db *sql.DB) *PostgresWishRepo {
	return &PostgresWishRepo{db: db}
}

// FindByID は指定IDのウィッシュを取得する。見つからない場合はnilを返す。
func (r *PostgresWishRepo) FindByID(ctx context.Context, id string) (*model.Wish, error) {
	wish := &model.Wish{}
	var url sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, person_id, text, url, created_at, updated_at FROM wishes WHERE id = $1`,
		id,
	).Scan(&wish.ID, &wish.PersonID, &wish.Text, &url, &wish.CreatedAt, &wish.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wish by ID: %w", err)
	}

	wish.URL = url.String
	return wish, nil
}

// Create はウィッシュを作成する。
func (r *PostgresWishRepo) Create(ctx context.Context, wish *model.Wish) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wishes (id, person_id, text, url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		wish.ID, wish.PersonID, wish.Text, nullableString(wish.URL),
		wish.CreatedAt, wish.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert wish: %w", err)
	}
	return nil
}

// Update は所有者本人のウィッシュのテキストとURLを更新する。
// 所有者不一致または不存在の場合はNotFoundErrorを返す。
func (r *PostgresWishRepo) Update(ctx context.Context, wish *model.Wish) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE wishes SET text = $3, url = $4, updated_at = now()
		 WHERE id = $1 AND person_id = $2`,
		wish.ID, wish.PersonID, wish.Text, nullableString(wish.URL),
	)
	if err != nil {
		return fmt.Errorf("failed to update wish: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("Wish", 0)
	}
	return nil
}

// DeleteByIDAndOwner は所有者本人のウィッシュを削除する。
// 所有者不一致または不存在の場合はNotFoundErrorを返す。
func (r *PostgresWishRepo) DeleteByIDAndOwner(ctx context.Context, id string, personID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM wishes WHERE id = $1 AND person_id = $2`,
		id, personID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete wish: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("Wish", 0)
	}
	return nil
}

// ListByPerson はメンバーの全ウィッシュを作成順で返す。
func (r *PostgresWishRepo) ListByPerson(ctx context.Context, personID int64) ([]*model.Wish, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, person_id, text, url, created_at, updated_at
		 FROM wishes WHERE person_id = $1 ORDER BY created_at`,
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishes: %w", err)
	}
	defer rows.Close()

	var wishes []*model.Wish
	for rows.Next() {
		wish := &model.Wish{}
		var url sql.NullString
		if err := rows.Scan(&wish.ID, &wish.PersonID, &wish.Text, &url,
			&wish.CreatedAt, &wish.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wish: %w", err)
		}
		wish.URL = url.String
		wishes = append(wishes, wish)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wishes: %w", err)
	}
	return wishes, nil
}

// compile-time interface check
var _ WishRepository = (*PostgresWishRepo)(nil)
