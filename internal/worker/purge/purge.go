// Package purge は誕生日経過後の送金記録・お祝いメッセージの
// 自動削除ジョブを提供する。対象者の誕生日（月・日）が今年の暦の上で
// 今日より厳密に前（月が小さい、または同月で日が小さい）になった行を
// 日次バッチで削除する。年をまたぐと暦は巻き戻るため、毎日の実行で
// 「過ぎた誕生日」の記録だけが消え、これからの分は残る。
package purge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/giftman/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Job は誕生日経過後の記録を削除するジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type Job struct {
	db       Executor
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

// NewJob は新しいJobを生成する。locationは「今日」の判定に使う
// タイムゾーン。
func NewJob(db Executor, m metrics.MetricsCollector, logger *slog.Logger, location *time.Location) *Job {
	return &Job{
		db:       db,
		metrics:  m,
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// purgeQueries は削除対象のテーブルごとのクエリ。
// 対象者の誕生日の (月, 日) が今日より暦の上で前の行を削除する。
var purgeQueries = []struct {
	table string
	query string
}{
	{
		table: "transfers",
		query: `DELETE FROM transfers t USING persons p
		 WHERE t.honoree_id = p.id
		   AND (EXTRACT(MONTH FROM p.birth_date) < $1
		        OR (EXTRACT(MONTH FROM p.birth_date) = $1 AND EXTRACT(DAY FROM p.birth_date) < $2))`,
	},
	{
		table: "greetings",
		query: `DELETE FROM greetings g USING persons p
		 WHERE g.honoree_id = p.id
		   AND (EXTRACT(MONTH FROM p.birth_date) < $1
		        OR (EXTRACT(MONTH FROM p.birth_date) = $1 AND EXTRACT(DAY FROM p.birth_date) < $2))`,
	},
}

// Run は誕生日が暦の上で過ぎた対象者の送金記録とお祝いメッセージを
// 削除する。冪等: 削除対象がない場合でもエラーにならない。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()
	today := j.now().In(j.location)
	month := int(today.Month())
	day := today.Day()

	var total int64
	for _, q := range purgeQueries {
		result, err := j.db.ExecContext(ctx, q.query, month, day)
		if err != nil {
			j.logger.Error("failed to run purge",
				slog.String("table", q.table),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("failed to purge %s: %w", q.table, err)
		}
		deleted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get purged row count: %w", err)
		}
		total += deleted
	}

	j.metrics.RecordPurgedRows(total)
	j.logger.Info("purge completed",
		slog.Int64("deleted_count", total),
		slog.Int("month", month),
		slog.Int("day", day),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
