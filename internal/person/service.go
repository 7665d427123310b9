// Package person はメンバー管理のドメインサービスを提供する。
package person

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/repository"
)

// Service はメンバーの登録・更新・削除・一覧を提供する。
type Service struct {
	persons repository.PersonRepository
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(persons repository.PersonRepository, logger *slog.Logger) *Service {
	return &Service{persons: persons, logger: logger}
}

// Register は新規メンバーを登録する。
// 既に登録済みの場合はAlreadyExistsErrorを返す。
func (s *Service) Register(ctx context.Context, person *model.Person) error {
	if err := s.persons.Create(ctx, person); err != nil {
		return err
	}
	s.logger.Info("person registered",
		slog.Int64("person_id", person.ID),
	)
	return nil
}

// UpdateProfile は既存メンバーの氏名と誕生日を更新する。
// 未登録の場合はNotFoundErrorを返す。
func (s *Service) UpdateProfile(ctx context.Context, person *model.Person) error {
	if err := s.persons.Update(ctx, person); err != nil {
		return err
	}
	s.logger.Info("person profile updated",
		slog.Int64("person_id", person.ID),
	)
	return nil
}

// Find は指定IDのメンバーを取得する。未登録の場合はnilを返す。
func (s *Service) Find(ctx context.Context, id int64) (*model.Person, error) {
	return s.persons.FindByID(ctx, id)
}

// Delete はメンバーを削除する。関連データはCASCADE削除される。
// 管理者パネルからのみ呼ばれる。
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.persons.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.logger.Info("person deleted",
		slog.Int64("person_id", id),
	)
	return nil
}

// List は全メンバーを姓の昇順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Person, error) {
	persons, err := s.persons.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	return persons, nil
}
