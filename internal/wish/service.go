// Package wish はウィッシュリストのドメインサービスを提供する。
package wish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/repository"
	"github.com/hitoshi/giftman/internal/security"
)

// Service はウィッシュの追加・編集・削除・一覧を提供する。
// 本文は保存前にサニタイズし、URLは到達性検証（設定で無効化可能）を行う。
type Service struct {
	wishes    repository.WishRepository
	sanitizer security.TextSanitizer
	guard     security.LinkGuardService
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	wishes repository.WishRepository,
	sanitizer security.TextSanitizer,
	guard security.LinkGuardService,
	logger *slog.Logger,
) *Service {
	return &Service{wishes: wishes, sanitizer: sanitizer, guard: guard, logger: logger}
}

// Add はウィッシュを追加する。
func (s *Service) Add(ctx context.Context, personID int64, text, url string) (*model.Wish, error) {
	text = s.sanitizer.Sanitize(text)
	if url != "" {
		if err := s.guard.ValidateURL(url); err != nil {
			return nil, fmt.Errorf("invalid wish URL: %w", err)
		}
		if err := s.guard.Probe(ctx, url); err != nil {
			s.logger.Warn("wish URL probe failed",
				slog.Int64("person_id", personID),
				slog.String("error", err.Error()),
			)
		}
	}

	now := time.Now()
	wish := &model.Wish{
		ID:        uuid.NewString(),
		PersonID:  personID,
		Text:      text,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.wishes.Create(ctx, wish); err != nil {
		return nil, err
	}

	s.logger.Info("wish added",
		slog.String("wish_id", wish.ID),
		slog.Int64("person_id", personID),
	)
	return wish, nil
}

// Edit は所有者本人のウィッシュを更新する。
// 所有者不一致または不存在の場合はNotFoundErrorを返す。
func (s *Service) Edit(ctx context.Context, wishID string, personID int64, text, url string) error {
	text = s.sanitizer.Sanitize(text)
	if url != "" {
		if err := s.guard.ValidateURL(url); err != nil {
			return fmt.Errorf("invalid wish URL: %w", err)
		}
	}

	wish := &model.Wish{
		ID:       wishID,
		PersonID: personID,
		Text:     text,
		URL:      url,
	}
	if err := s.wishes.Update(ctx, wish); err != nil {
		return err
	}

	s.logger.Info("wish updated",
		slog.String("wish_id", wishID),
		slog.Int64("person_id", personID),
	)
	return nil
}

// Remove は所有者本人のウィッシュを削除する。
// 所有者不一致または不存在の場合はNotFoundErrorを返す。
func (s *Service) Remove(ctx context.Context, wishID string, personID int64) error {
	if err := s.wishes.DeleteByIDAndOwner(ctx, wishID, personID); err != nil {
		return err
	}
	s.logger.Info("wish removed",
		slog.String("wish_id", wishID),
		slog.Int64("person_id", personID),
	)
	return nil
}

// ListFor はメンバーの全ウィッシュを作成順で返す。
func (s *Service) ListFor(ctx context.Context, personID int64) ([]*model.Wish, error) {
	wishes, err := s.wishes.ListByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishes: %w", err)
	}
	return wishes, nil
}

// Find は指定IDのウィッシュを取得する。見つからない場合はnilを返す。
func (s *Service) Find(ctx context.Context, wishID string) (*model.Wish, error) {
	return s.wishes.FindByID(ctx, wishID)
}
