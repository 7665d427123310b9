package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/giftman/internal/model"
)

// PostgresServiceUserRepo はPostgreSQLを使用したサービスユーザーリポジトリ。
// service_userテーブルはシングルトン行（singleton=TRUE）のみを保持する。
type PostgresServiceUserRepo struct {
	db *sql.DB
}

// NewPostgresServiceUserRepo はPostgresServiceUserRepoを生成する。
func NewPostgresServiceUserRepo(db *sql.DB) *PostgresServiceUserRepo {
	return &PostgresServiceUserRepo{db: db}
}

// Set はサービスユーザーを設定する。既存の指定は上書きされる。
func (r *PostgresServiceUserRepo) Set(ctx context.Context, personID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO service_user (singleton, person_id, updated_at)
		 VALUES (TRUE, $1, now())
		 ON CONFLICT (singleton) DO UPDATE SET person_id = $1, updated_at = now()`,
		personID,
	)
	if err != nil {
		return fmt.Errorf("failed to set service user: %w", err)
	}
	return nil
}

// Get は現在のサービスユーザーを取得する。未設定の場合はnilを返す。
func (r *PostgresServiceUserRepo) Get(ctx context.Context) (*model.ServiceUser, error) {
	su := &model.ServiceUser{}
	err := r.db.QueryRowContext(ctx,
		`SELECT person_id, updated_at FROM service_user WHERE singleton`,
	).Scan(&su.PersonID, &su.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service user: %w", err)
	}
	return su, nil
}

// Init は未設定の場合のみサービスユーザーを設定する。起動時のブートストラップ用。
func (r *PostgresServiceUserRepo) Init(ctx context.Context, personID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO service_user (singleton, person_id, updated_at)
		 VALUES (TRUE, $1, now())
		 ON CONFLICT (singleton) DO NOTHING`,
		personID,
	)
	if err != nil {
		return fmt.Errorf("failed to init service user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ServiceUserRepository = (*PostgresServiceUserRepo)(nil)
