package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type mockNotifier struct {
	runs []int
	err  error
}

func (m *mockNotifier) Run(_ context.Context, daysBefore int) error {
	m.runs = append(m.runs, daysBefore)
	return m.err
}

type mockPurger struct {
	calls int
	err   error
}

func (m *mockPurger) Run(context.Context) error {
	m.calls++
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestNotifySpec(t *testing.T) {
	tests := []struct {
		notifyAt string
		want     string
		wantErr  bool
	}{
		{notifyAt: "10:00", want: "0 10 * * *"},
		{notifyAt: "09:30", want: "30 9 * * *"},
		{notifyAt: "00:00", want: "0 0 * * *"},
		{notifyAt: "23:59", want: "59 23 * * *"},
		{notifyAt: "25:00", wantErr: true},
		{notifyAt: "10:99", wantErr: true},
		{notifyAt: "abc", wantErr: true},
		{notifyAt: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := notifySpec(tt.notifyAt)
		if tt.wantErr {
			if err == nil {
				t.Errorf("notifySpec(%q) のエラーが返らない", tt.notifyAt)
			}
			continue
		}
		if err != nil {
			t.Errorf("notifySpec(%q) がエラーを返した: %v", tt.notifyAt, err)
			continue
		}
		if got != tt.want {
			t.Errorf("notifySpec(%q) = %q, want %q", tt.notifyAt, got, tt.want)
		}
	}
}

func TestNewScheduler_InvalidNotifyAt(t *testing.T) {
	_, err := NewScheduler(&mockNotifier{}, &mockPurger{}, testLogger(), time.UTC, "not-a-time")
	if err == nil {
		t.Fatal("不正な通知時刻でエラーが返らない")
	}
}

func TestScheduler_RunNotify_AllLeadDays(t *testing.T) {
	notifier := &mockNotifier{}
	s, err := NewScheduler(notifier, &mockPurger{}, testLogger(), time.UTC, "10:00")
	if err != nil {
		t.Fatalf("NewSchedulerに失敗: %v", err)
	}

	s.runNotify()

	if len(notifier.runs) != 2 || notifier.runs[0] != 7 || notifier.runs[1] != 1 {
		t.Errorf("通知実行のリードタイム = %v, want [7 1]", notifier.runs)
	}
}

// 個別のリードタイムの通知失敗は残りの実行を妨げない。
func TestScheduler_RunNotify_ErrorDoesNotStopOthers(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("delivery backend down")}
	s, err := NewScheduler(notifier, &mockPurger{}, testLogger(), time.UTC, "10:00")
	if err != nil {
		t.Fatalf("NewSchedulerに失敗: %v", err)
	}

	s.runNotify()

	if len(notifier.runs) != 2 {
		t.Errorf("実行回数 = %d, want 2", len(notifier.runs))
	}
}

func TestScheduler_RunPurge(t *testing.T) {
	purger := &mockPurger{}
	s, err := NewScheduler(&mockNotifier{}, purger, testLogger(), time.UTC, "10:00")
	if err != nil {
		t.Fatalf("NewSchedulerに失敗: %v", err)
	}

	s.runPurge()

	if purger.calls != 1 {
		t.Errorf("削除ジョブの実行回数 = %d, want 1", purger.calls)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(&mockNotifier{}, &mockPurger{}, testLogger(), time.UTC, "10:00")
	if err != nil {
		t.Fatalf("NewSchedulerに失敗: %v", err)
	}

	s.Start()
	s.Stop()
}
