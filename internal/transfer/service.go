// Package transfer は誕生日送金の台帳ドメインサービスを提供する。
//
// 送金記録は (送金者, 対象者) の組につき1件の冪等な操作で、
// 重複申告はエラーではなく「記録済み」として扱う。同時申告の最終判定は
// ストレージの一意制約が行う。
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/metrics"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/repository"
	"github.com/hitoshi/giftman/internal/security"
)

// Service は送金記録・お祝いメッセージ・集金レポートを提供する。
type Service struct {
	transfers  repository.TransferRepository
	greetings  repository.GreetingRepository
	persons    repository.PersonRepository
	collectors repository.CollectorRepository
	sanitizer  security.TextSanitizer
	sender     bot.Sender
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	transfers repository.TransferRepository,
	greetings repository.GreetingRepository,
	persons repository.PersonRepository,
	collectors repository.CollectorRepository,
	sanitizer security.TextSanitizer,
	sender bot.Sender,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		transfers:  transfers,
		greetings:  greetings,
		persons:    persons,
		collectors: collectors,
		sanitizer:  sanitizer,
		sender:     sender,
		metrics:    m,
		logger:     logger,
	}
}

// Record は送金を冪等に記録する。
// 新規に記録された場合はtrueを返し、アクティブな集金担当者へ通知する。
// 既に記録済みの場合はfalseを返す（エラーではない）。
// 対象者が存在しない場合はNotFoundErrorを返す。
func (s *Service) Record(ctx context.Context, senderID, honoreeID int64) (bool, error) {
	honoree, err := s.persons.FindByID(ctx, honoreeID)
	if err != nil {
		return false, fmt.Errorf("failed to find honoree: %w", err)
	}
	if honoree == nil {
		return false, model.NewNotFoundError("Person", honoreeID)
	}

	created, err := s.transfers.Record(ctx, &model.Transfer{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		HonoreeID:  honoreeID,
		RecordedAt: time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to record transfer: %w", err)
	}
	if !created {
		s.metrics.RecordTransferDuplicate()
		return false, nil
	}

	s.metrics.RecordTransferRecorded()
	s.logger.Info("transfer recorded",
		slog.Int64("sender_id", senderID),
		slog.Int64("honoree_id", honoreeID),
	)

	s.notifyActiveCollector(ctx, senderID, honoree)
	return true, nil
}

// notifyActiveCollector は新規送金をアクティブな集金担当者へ通知する。
// 通知の失敗は記録自体を失敗させない。
func (s *Service) notifyActiveCollector(ctx context.Context, senderID int64, honoree *model.Person) {
	active, err := s.collectors.FindActive(ctx)
	if err != nil {
		s.logger.Error("failed to find active collector for notification",
			slog.String("error", err.Error()),
		)
		return
	}
	if active == nil || active.PersonID == senderID {
		return
	}

	sender, err := s.persons.FindByID(ctx, senderID)
	if err != nil || sender == nil {
		s.logger.Error("failed to find sender for notification",
			slog.Int64("sender_id", senderID),
		)
		return
	}

	text := fmt.Sprintf("%s отметил(а) перевод на подарок для %s.",
		sender.FullName(), honoree.FullName())
	message := &bot.Message{ChatID: active.PersonID, Text: text}
	if err := s.sender.SendMessage(ctx, message); err != nil {
		s.logger.Error("failed to notify active collector",
			slog.Int64("collector_person_id", active.PersonID),
			slog.String("error", err.Error()),
		)
	}
}

// SendGreeting はお祝いメッセージを保存し、対象者へ転送する。
// 転送の失敗は保存を失敗させない。
func (s *Service) SendGreeting(ctx context.Context, senderID, honoreeID int64, text string) error {
	honoree, err := s.persons.FindByID(ctx, honoreeID)
	if err != nil {
		return fmt.Errorf("failed to find honoree: %w", err)
	}
	if honoree == nil {
		return model.NewNotFoundError("Person", honoreeID)
	}
	sender, err := s.persons.FindByID(ctx, senderID)
	if err != nil {
		return fmt.Errorf("failed to find sender: %w", err)
	}
	if sender == nil {
		return model.NewNotFoundError("Person", senderID)
	}

	text = s.sanitizer.Sanitize(text)
	greeting := &model.Greeting{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		HonoreeID: honoreeID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := s.greetings.Create(ctx, greeting); err != nil {
		return fmt.Errorf("failed to save greeting: %w", err)
	}

	forward := &bot.Message{
		ChatID: honoreeID,
		Text:   fmt.Sprintf("Поздравление от %s:\n%s", sender.FullName(), text),
	}
	if err := s.sender.SendMessage(ctx, forward); err != nil {
		s.logger.Error("failed to forward greeting",
			slog.Int64("honoree_id", honoreeID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// TransferredSenders は対象者宛に送金済みの送金者ID集合を返す。
// 通知のCTA抑制に使用する。
func (s *Service) TransferredSenders(ctx context.Context, honoreeID int64) (map[int64]bool, error) {
	transfers, err := s.transfers.ListByHonoree(ctx, honoreeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	senders := make(map[int64]bool, len(transfers))
	for _, transfer := range transfers {
		senders[transfer.SenderID] = true
	}
	return senders, nil
}

// ReportGroup は集金レポートの1対象者分のまとまり。
type ReportGroup struct {
	Honoree *model.Person
	Senders []*model.Person
}

// GroupedReport は全送金記録を対象者ごとにまとめて返す。
// アクティブな集金担当者向けのレポートに使用する。
func (s *Service) GroupedReport(ctx context.Context) ([]*ReportGroup, error) {
	transfers, err := s.transfers.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	// ListAllは対象者IDでソート済み
	personCache := make(map[int64]*model.Person)
	findPerson := func(id int64) (*model.Person, error) {
		if person, ok := personCache[id]; ok {
			return person, nil
		}
		person, err := s.persons.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		personCache[id] = person
		return person, nil
	}

	var groups []*ReportGroup
	var current *ReportGroup
	var currentHonoreeID int64
	for _, transfer := range transfers {
		if current == nil || currentHonoreeID != transfer.HonoreeID {
			currentHonoreeID = transfer.HonoreeID
			current = nil
			honoree, err := findPerson(transfer.HonoreeID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve honoree: %w", err)
			}
			if honoree == nil {
				continue
			}
			current = &ReportGroup{Honoree: honoree}
			groups = append(groups, current)
		}
		if current == nil {
			continue
		}
		sender, err := findPerson(transfer.SenderID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sender: %w", err)
		}
		if sender != nil {
			current.Senders = append(current.Senders, sender)
		}
	}
	return groups, nil
}
