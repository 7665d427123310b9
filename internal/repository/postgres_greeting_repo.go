package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/giftman/internal/model"
)

// PostgresGreetingRepo はPostgreSQLを使用したお祝いメッセージリポジトリ。
type PostgresGreetingRepo struct {
	db *sql.DB
}

// NewPostgresGreetingRepo はPostgresGreetingRepoを生成する。
func NewPostgresGreetingRepo(db *sql.DB) *PostgresGreetingRepo {
	return &PostgresGreetingRepo{db: db}
}

// Create はお祝いメッセージを保存する。
func (r *PostgresGreetingRepo) Create(ctx context.Context, greeting *model.Greeting) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO greetings (id, sender_id, honoree_id, text, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		greeting.ID, greeting.SenderID, greeting.HonoreeID, greeting.Text, greeting.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert greeting: %w", err)
	}
	return nil
}

// ListByHonoree は対象者宛のお祝いメッセージを作成順で返す。
func (r *PostgresGreetingRepo) ListByHonoree(ctx context.Context, honoreeID int64) ([]*model.Greeting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_id, honoree_id, text, created_at
		 FROM greetings WHERE honoree_id = $1 ORDER BY created_at`,
		honoreeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list greetings: %w", err)
	}
	defer rows.Close()

	var greetings []*model.Greeting
	for rows.Next() {
		greeting := &model.Greeting{}
		if err := rows.Scan(&greeting.ID, &greeting.SenderID, &greeting.HonoreeID,
			&greeting.Text, &greeting.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan greeting: %w", err)
		}
		greetings = append(greetings, greeting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate greetings: %w", err)
	}
	return greetings, nil
}

// compile-time interface check
var _ GreetingRepository = (*PostgresGreetingRepo)(nil)
