package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/giftman/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// PostgresPersonRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresPersonRepo struct {
	db *sql.DB
}

// NewPostgresPersonRepo はPostgresPersonRepoを生成する。
func NewPostgresPersonRepo(db *sql.DB) *PostgresPersonRepo {
	return &PostgresPersonRepo{db: db}
}

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresPersonRepo) FindByID(ctx context.Context, id int64) (*model.Person, error) {
	person := &model.Person{}
	var handle sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, handle, family_name, given_name, patronymic, birth_date, created_at, updated_at
		 FROM persons WHERE id = $1`,
		id,
	).Scan(&person.ID, &handle, &person.FamilyName, &person.GivenName,
		&person.Patronymic, &person.BirthDate, &person.CreatedAt, &person.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find person by ID: %w", err)
	}

	person.Handle = handle.String
	return person, nil
}

// Create はメンバーを作成する。
// 同一IDが既に存在する場合はAlreadyExistsErrorを返す。
func (r *PostgresPersonRepo) Create(ctx context.Context, person *model.Person) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO persons (id, handle, family_name, given_name, patronymic, birth_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		person.ID, nullableString(person.Handle), person.FamilyName, person.GivenName,
		person.Patronymic, person.BirthDate, person.CreatedAt, person.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewAlreadyExistsError("Person", person.ID)
		}
		return fmt.Errorf("failed to insert person: %w", err)
	}
	return nil
}

// Update はメンバーの氏名・誕生日・ハンドルを更新する。
// 存在しない場合はNotFoundErrorを返す。
func (r *PostgresPersonRepo) Update(ctx context.Context, person *model.Person) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE persons
		 SET handle = $2, family_name = $3, given_name = $4, patronymic = $5,
		     birth_date = $6, updated_at = now()
		 WHERE id = $1`,
		person.ID, nullableString(person.Handle), person.FamilyName,
		person.GivenName, person.Patronymic, person.BirthDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update person: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("Person", person.ID)
	}
	return nil
}

// DeleteByID は指定IDのメンバーを削除する。
// 関連するwishes、transfers、greetings、admin_grants、collectors、
// service_userはCASCADE削除される。
func (r *PostgresPersonRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM persons WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError("Person", id)
	}
	return nil
}

// ListAll は全メンバーを姓の昇順で返す。
func (r *PostgresPersonRepo) ListAll(ctx context.Context) ([]*model.Person, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, handle, family_name, given_name, patronymic, birth_date, created_at, updated_at
		 FROM persons ORDER BY family_name, given_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	return scanPersons(rows)
}

// ListByBirthday は誕生日の月日が一致するメンバーを返す。年は無視する。
func (r *PostgresPersonRepo) ListByBirthday(ctx context.Context, month time.Month, day int) ([]*model.Person, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, handle, family_name, given_name, patronymic, birth_date, created_at, updated_at
		 FROM persons
		 WHERE EXTRACT(MONTH FROM birth_date) = $1 AND EXTRACT(DAY FROM birth_date) = $2
		 ORDER BY family_name`,
		int(month), day,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons by birthday: %w", err)
	}
	defer rows.Close()

	return scanPersons(rows)
}

// scanPersons は複数行のpersonsをスキャンする。
func scanPersons(rows *sql.Rows) ([]*model.Person, error) {
	var persons []*model.Person
	for rows.Next() {
		person := &model.Person{}
		var handle sql.NullString
		if err := rows.Scan(&person.ID, &handle, &person.FamilyName, &person.GivenName,
			&person.Patronymic, &person.BirthDate, &person.CreatedAt, &person.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		person.Handle = handle.String
		persons = append(persons, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate persons: %w", err)
	}
	return persons, nil
}

// nullableString は空文字列をNULLとして保存するためのヘルパー。
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ PersonRepository = (*PostgresPersonRepo)(nil)
