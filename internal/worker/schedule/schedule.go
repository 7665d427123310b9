// Package schedule は日次バッチ（誕生日通知・記録削除）のスケジューリングを提供する。
// robfig/cronで設定されたタイムゾーンのローカル時刻に従ってジョブを起動する。
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// 通知のリードタイム（日数）。1週間前と前日の2回通知する。
var notifyLeadDays = []int{7, 1}

// ジョブ1回あたりの実行時間上限。
const jobTimeout = 5 * time.Minute

// NotifyRunner は誕生日通知ジョブの実行インターフェース。
type NotifyRunner interface {
	Run(ctx context.Context, daysBefore int) error
}

// PurgeRunner は記録削除ジョブの実行インターフェース。
type PurgeRunner interface {
	Run(ctx context.Context) error
}

// Scheduler は日次ジョブのスケジューリングを行う。
// 通知ジョブは設定された時刻（NOTIFY_AT）に、削除ジョブは毎日0時に実行する。
type Scheduler struct {
	cron     *cron.Cron
	notifier NotifyRunner
	purger   PurgeRunner
	logger   *slog.Logger
}

// NewScheduler はSchedulerを生成する。notifyAtは"HH:MM"形式の
// 通知実行時刻。形式が不正な場合はエラーを返す。
func NewScheduler(
	notifier NotifyRunner,
	purger PurgeRunner,
	logger *slog.Logger,
	location *time.Location,
	notifyAt string,
) (*Scheduler, error) {
	notifySpec, err := notifySpec(notifyAt)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		notifier: notifier,
		purger:   purger,
		logger:   logger,
	}

	if _, err := s.cron.AddFunc(notifySpec, s.runNotify); err != nil {
		return nil, fmt.Errorf("failed to schedule notify job: %w", err)
	}
	if _, err := s.cron.AddFunc("0 0 * * *", s.runPurge); err != nil {
		return nil, fmt.Errorf("failed to schedule purge job: %w", err)
	}

	return s, nil
}

// notifySpec は"HH:MM"形式の時刻をcron式に変換する。
func notifySpec(notifyAt string) (string, error) {
	parsed, err := time.Parse("15:04", notifyAt)
	if err != nil {
		return "", fmt.Errorf("failed to parse notify time %q: %w", notifyAt, err)
	}
	return fmt.Sprintf("%d %d * * *", parsed.Minute(), parsed.Hour()), nil
}

// Start はスケジューラを起動する。ジョブはバックグラウンドの
// ゴルーチンで実行される。
func (s *Scheduler) Start() {
	s.logger.Info("job scheduler started",
		slog.String("timezone", s.cron.Location().String()),
	)
	s.cron.Start()
}

// Stop はスケジューラを停止し、実行中のジョブの完了を待つ。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("job scheduler stopped")
}

// runNotify は全リードタイムの通知ジョブを順に実行する。
// 個別のリードタイムの失敗は記録して次へ進む。
func (s *Scheduler) runNotify() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	for _, daysBefore := range notifyLeadDays {
		if err := s.notifier.Run(ctx, daysBefore); err != nil {
			s.logger.Error("failed to run notify job",
				slog.Int("days_before", daysBefore),
				slog.String("error", err.Error()),
			)
		}
	}
}

// runPurge は記録削除ジョブを実行する。
func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.purger.Run(ctx); err != nil {
		s.logger.Error("failed to run purge job",
			slog.String("error", err.Error()),
		)
	}
}
