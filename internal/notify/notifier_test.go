package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/model"
)

type mockPersonRepo struct {
	byBirthday []*model.Person
	all        []*model.Person
}

func (m *mockPersonRepo) FindByID(context.Context, int64) (*model.Person, error) {
	return nil, nil
}
func (m *mockPersonRepo) Create(context.Context, *model.Person) error { return nil }
func (m *mockPersonRepo) Update(context.Context, *model.Person) error { return nil }
func (m *mockPersonRepo) DeleteByID(context.Context, int64) error     { return nil }
func (m *mockPersonRepo) ListAll(context.Context) ([]*model.Person, error) {
	return m.all, nil
}
func (m *mockPersonRepo) ListByBirthday(context.Context, time.Month, int) ([]*model.Person, error) {
	return m.byBirthday, nil
}

type mockLedger struct {
	transferred map[int64]bool
}

func (m *mockLedger) TransferredSenders(context.Context, int64) (map[int64]bool, error) {
	return m.transferred, nil
}

type mockSender struct {
	messages []*bot.Message
	failFor  map[int64]bool
}

func (m *mockSender) SendMessage(_ context.Context, message *bot.Message) error {
	if m.failFor[message.ChatID] {
		return errors.New("delivery failed")
	}
	m.messages = append(m.messages, message)
	return nil
}

type mockMetrics struct {
	sent     int
	failures int
}

func (m *mockMetrics) RecordUpdate(string)               {}
func (m *mockMetrics) RecordUpdateError()                {}
func (m *mockMetrics) RecordUpdateLatency(time.Duration) {}
func (m *mockMetrics) RecordTransferRecorded()           {}
func (m *mockMetrics) RecordTransferDuplicate()          {}
func (m *mockMetrics) RecordNotificationSent()           { m.sent++ }
func (m *mockMetrics) RecordNotificationFailure()        { m.failures++ }
func (m *mockMetrics) RecordUniquenessViolation()        {}
func (m *mockMetrics) RecordPurgedRows(int64)            {}

func person(id int64, familyName string) *model.Person {
	return &model.Person{
		ID:         id,
		FamilyName: familyName,
		GivenName:  "Иван",
		Patronymic: "Иваныч",
		BirthDate:  time.Date(1990, time.March, 15, 0, 0, 0, 0, time.UTC),
	}
}

func newNotifier(persons *mockPersonRepo, ledger *mockLedger, sender *mockSender, mm *mockMetrics) *Notifier {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewNotifier(persons, ledger, sender, mm, logger, time.UTC)
}

func TestNotifier_FansOutExcludingHonoree(t *testing.T) {
	honoree := person(1, "Иванов")
	persons := &mockPersonRepo{
		byBirthday: []*model.Person{honoree},
		all:        []*model.Person{honoree, person(2, "Петров"), person(3, "Сидоров")},
	}
	sender := &mockSender{}
	mm := &mockMetrics{}

	n := newNotifier(persons, &mockLedger{}, sender, mm)
	if err := n.Run(context.Background(), 7); err != nil {
		t.Fatalf("Runに失敗: %v", err)
	}

	if len(sender.messages) != 2 {
		t.Fatalf("送信件数 = %d, want 2", len(sender.messages))
	}
	for _, message := range sender.messages {
		if message.ChatID == 1 {
			t.Error("対象者本人に通知が送信された")
		}
		if !strings.Contains(message.Text, "Через неделю") {
			t.Errorf("通知本文 = %q", message.Text)
		}
	}
	if mm.sent != 2 {
		t.Errorf("送信メトリクス = %d, want 2", mm.sent)
	}
}

// TestNotifier_DayBeforeSuppressesCTA は前日通知で送金済みの受信者にのみ
// 「Я перевёл」ボタンが表示されないことを検証する。
func TestNotifier_DayBeforeSuppressesCTA(t *testing.T) {
	honoree := person(1, "Иванов")
	persons := &mockPersonRepo{
		byBirthday: []*model.Person{honoree},
		all:        []*model.Person{honoree, person(2, "Петров"), person(3, "Сидоров")},
	}
	ledger := &mockLedger{transferred: map[int64]bool{2: true}}
	sender := &mockSender{}

	n := newNotifier(persons, ledger, sender, &mockMetrics{})
	if err := n.Run(context.Background(), 1); err != nil {
		t.Fatalf("Runに失敗: %v", err)
	}

	hasTransferButton := func(message *bot.Message) bool {
		for _, row := range message.Keyboard {
			for _, button := range row {
				if strings.HasPrefix(button.Callback, TransferredCallbackPrefix) {
					return true
				}
			}
		}
		return false
	}

	for _, message := range sender.messages {
		switch message.ChatID {
		case 2:
			if hasTransferButton(message) {
				t.Error("送金済みの受信者にCTAが表示された")
			}
		case 3:
			if !hasTransferButton(message) {
				t.Error("未送金の受信者にCTAが表示されない")
			}
		}
		if !strings.Contains(message.Text, "Завтра") {
			t.Errorf("前日通知の本文 = %q", message.Text)
		}
	}
}

// TestNotifier_DeliveryFailureIsolated は個別の配送失敗が他の受信者への
// 送信を妨げないことを検証する。
func TestNotifier_DeliveryFailureIsolated(t *testing.T) {
	honoree := person(1, "Иванов")
	persons := &mockPersonRepo{
		byBirthday: []*model.Person{honoree},
		all:        []*model.Person{honoree, person(2, "Петров"), person(3, "Сидоров"), person(4, "Кузнецов")},
	}
	sender := &mockSender{failFor: map[int64]bool{3: true}}
	mm := &mockMetrics{}

	n := newNotifier(persons, &mockLedger{}, sender, mm)
	if err := n.Run(context.Background(), 7); err != nil {
		t.Fatalf("Runに失敗: %v", err)
	}

	if len(sender.messages) != 2 {
		t.Errorf("送信件数 = %d, want 2", len(sender.messages))
	}
	if mm.failures != 1 {
		t.Errorf("失敗メトリクス = %d, want 1", mm.failures)
	}
	if mm.sent != 2 {
		t.Errorf("送信メトリクス = %d, want 2", mm.sent)
	}
}

func TestNotifier_NoBirthdaysNoSends(t *testing.T) {
	persons := &mockPersonRepo{all: []*model.Person{person(2, "Петров")}}
	sender := &mockSender{}

	n := newNotifier(persons, &mockLedger{}, sender, &mockMetrics{})
	if err := n.Run(context.Background(), 7); err != nil {
		t.Fatalf("Runに失敗: %v", err)
	}
	if len(sender.messages) != 0 {
		t.Errorf("誕生日なしで通知が送信された: %+v", sender.messages)
	}
}
