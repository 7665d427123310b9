package handler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/giftman/internal/bot"
	"github.com/hitoshi/giftman/internal/collector"
	"github.com/hitoshi/giftman/internal/middleware"
	"github.com/hitoshi/giftman/internal/model"
	"github.com/hitoshi/giftman/internal/person"
	"github.com/hitoshi/giftman/internal/security"
	"github.com/hitoshi/giftman/internal/session"
	"github.com/hitoshi/giftman/internal/transfer"
	"github.com/hitoshi/giftman/internal/wish"
)

// memPersonRepo は組み立てテスト用のインメモリPersonRepository。
type memPersonRepo struct {
	persons map[int64]*model.Person
	findErr error
}

func newMemPersonRepo() *memPersonRepo {
	return &memPersonRepo{persons: make(map[int64]*model.Person)}
}

func (r *memPersonRepo) FindByID(_ context.Context, id int64) (*model.Person, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.persons[id], nil
}

func (r *memPersonRepo) Create(_ context.Context, p *model.Person) error {
	if _, ok := r.persons[p.ID]; ok {
		return model.NewAlreadyExistsError("Person", p.ID)
	}
	r.persons[p.ID] = p
	return nil
}

func (r *memPersonRepo) Update(_ context.Context, p *model.Person) error {
	if _, ok := r.persons[p.ID]; !ok {
		return model.NewNotFoundError("Person", p.ID)
	}
	r.persons[p.ID] = p
	return nil
}

func (r *memPersonRepo) DeleteByID(_ context.Context, id int64) error {
	if _, ok := r.persons[id]; !ok {
		return model.NewNotFoundError("Person", id)
	}
	delete(r.persons, id)
	return nil
}

func (r *memPersonRepo) ListAll(context.Context) ([]*model.Person, error) {
	all := make([]*model.Person, 0, len(r.persons))
	for _, p := range r.persons {
		all = append(all, p)
	}
	return all, nil
}

func (r *memPersonRepo) ListByBirthday(context.Context, time.Month, int) ([]*model.Person, error) {
	return nil, nil
}

// memCollectorRepo は集金担当者なしの状態を返すインメモリ実装。
type memCollectorRepo struct{}

func (memCollectorRepo) Create(context.Context, *model.Collector) error { return nil }
func (memCollectorRepo) FindByPerson(context.Context, int64) (*model.Collector, error) {
	return nil, nil
}
func (memCollectorRepo) UpdateRouting(context.Context, int64, string, string) error { return nil }
func (memCollectorRepo) FindActive(context.Context) (*model.Collector, error)       { return nil, nil }
func (memCollectorRepo) SwapActive(context.Context, int64) error                    { return nil }
func (memCollectorRepo) Deactivate(context.Context) error                           { return nil }
func (memCollectorRepo) CountActive(context.Context) (int, error)                   { return 0, nil }

type memWishRepo struct{}

func (memWishRepo) FindByID(context.Context, string) (*model.Wish, error)   { return nil, nil }
func (memWishRepo) Create(context.Context, *model.Wish) error               { return nil }
func (memWishRepo) Update(context.Context, *model.Wish) error               { return nil }
func (memWishRepo) DeleteByIDAndOwner(context.Context, string, int64) error { return nil }
func (memWishRepo) ListByPerson(context.Context, int64) ([]*model.Wish, error) {
	return nil, nil
}

type memTransferRepo struct{}

func (memTransferRepo) Record(context.Context, *model.Transfer) (bool, error) { return true, nil }
func (memTransferRepo) ListByHonoree(context.Context, int64) ([]*model.Transfer, error) {
	return nil, nil
}
func (memTransferRepo) ListAll(context.Context) ([]*model.Transfer, error) { return nil, nil }

type memGreetingRepo struct{}

func (memGreetingRepo) Create(context.Context, *model.Greeting) error { return nil }
func (memGreetingRepo) ListByHonoree(context.Context, int64) ([]*model.Greeting, error) {
	return nil, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordUpdate(string)               {}
func (noopMetrics) RecordUpdateError()                {}
func (noopMetrics) RecordUpdateLatency(time.Duration) {}
func (noopMetrics) RecordTransferRecorded()           {}
func (noopMetrics) RecordTransferDuplicate()          {}
func (noopMetrics) RecordNotificationSent()           {}
func (noopMetrics) RecordNotificationFailure()        {}
func (noopMetrics) RecordUniquenessViolation()        {}
func (noopMetrics) RecordPurgedRows(int64)            {}

// newDispatcherEnv は実サービスとインメモリリポジトリで組み立てた
// ディスパッチャを返す。
func newDispatcherEnv(t *testing.T, persons *memPersonRepo) (*bot.Dispatcher, *mockSender, *session.Store) {
	t.Helper()

	sender := &mockSender{}
	sessions := newSessions(t)
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	logger := testLogger()
	sanitizer := security.NewTextSanitizer()
	linkGuard := security.NewLinkGuard(false)

	d := NewBotDispatcher(&BotDeps{
		Logger:      logger,
		Sender:      sender,
		Sessions:    sessions,
		RateLimiter: limiter,

		Persons:      persons,
		Admins:       &mockAdminRepo{},
		Collectors:   memCollectorRepo{},
		ServiceUsers: &mockServiceUserRepo{},

		PersonService:    person.NewService(persons, logger),
		WishService:      wish.NewService(memWishRepo{}, sanitizer, linkGuard, logger),
		CollectorManager: collector.NewManager(memCollectorRepo{}, noopMetrics{}, logger),
		TransferService: transfer.NewService(
			memTransferRepo{}, memGreetingRepo{}, persons, memCollectorRepo{},
			sanitizer, sender, noopMetrics{}, logger,
		),

		Sanitizer: sanitizer,
		LinkGuard: linkGuard,

		AdminSecretPhrase:   "admin-phrase",
		ServiceSecretPhrase: "service-phrase",
	})
	return d, sender, sessions
}

// TestBotDispatcher_RegistrationEndToEnd は未登録ユーザーの/startから
// 登録完了・プロフィール表示までをディスパッチャ経由で検証する。
func TestBotDispatcher_RegistrationEndToEnd(t *testing.T) {
	persons := newMemPersonRepo()
	d, sender, sessions := newDispatcherEnv(t, persons)

	const userID = int64(500)
	ctx := context.Background()

	sendText := func(text string) {
		d.Dispatch(ctx, &bot.Update{
			ChatID: userID,
			From:   bot.User{ID: userID, Handle: "ivanov"},
			Text:   text,
		})
	}
	sendCallback := func(data string) {
		d.Dispatch(ctx, &bot.Update{
			ChatID:     userID,
			From:       bot.User{ID: userID, Handle: "ivanov"},
			Callback:   data,
			CallbackID: "cb",
		})
	}

	// 未登録ユーザーの/startは登録ボタンを提示する
	sendText("/start")
	if !strings.Contains(sender.lastText(t), "Зарегистрироваться") {
		t.Fatalf("/start reply = %q, want registration prompt", sender.lastText(t))
	}

	// 登録フロー: 姓 → 名 → 父称 → 誕生日 → 確認
	sendCallback(RegisterCallback)
	if !strings.Contains(sender.lastText(t), "фамилию") {
		t.Fatalf("register reply = %q, want family name prompt", sender.lastText(t))
	}

	sendText("Иванов")
	sendText("Иван")
	sendText("Иванович")
	sendText("05.01.1990")
	if !strings.Contains(sender.lastText(t), "Проверьте данные") {
		t.Fatalf("summary reply = %q, want confirmation summary", sender.lastText(t))
	}

	sendCallback("wf:registration:confirm")
	if !strings.Contains(sender.lastText(t), "Регистрация завершена") {
		t.Fatalf("confirm reply = %q, want completion message", sender.lastText(t))
	}

	created := persons.persons[userID]
	if created == nil {
		t.Fatal("person was not persisted")
	}
	if created.FamilyName != "Иванов" || created.GivenName != "Иван" || created.Patronymic != "Иванович" {
		t.Errorf("persisted person = %+v", created)
	}
	if got := created.BirthDate.Format("02.01.2006"); got != "05.01.1990" {
		t.Errorf("birth date = %s, want 05.01.1990", got)
	}
	if sessions.State(userID) != "" {
		t.Errorf("session state = %q, want cleared", sessions.State(userID))
	}

	// 登録済みユーザーはプロフィールを参照できる
	sendText("/profile")
	if !strings.Contains(sender.lastText(t), "Иванов") {
		t.Errorf("/profile reply = %q, want profile with family name", sender.lastText(t))
	}

	// 登録済みユーザーのregister再押下は短絡する
	sendCallback(RegisterCallback)
	if !strings.Contains(sender.lastText(t), "уже зарегистрированы") {
		t.Errorf("repeat register reply = %q, want already-registered notice", sender.lastText(t))
	}
}

// TestBotDispatcher_UnregisteredGate は未登録ユーザーが/start以外の
// コマンドで登録案内を受けることを検証する。
func TestBotDispatcher_UnregisteredGate(t *testing.T) {
	d, sender, _ := newDispatcherEnv(t, newMemPersonRepo())

	d.Dispatch(context.Background(), &bot.Update{
		ChatID: 600,
		From:   bot.User{ID: 600},
		Text:   "/wishes",
	})
	if !strings.Contains(sender.lastText(t), "не зарегистрированы") {
		t.Errorf("gate reply = %q, want not-registered notice", sender.lastText(t))
	}
}

// TestBotDispatcher_UnexpectedErrorClearsSession はフロー途中の
// 予期しないエラーでセッションが破棄されることを検証する。
func TestBotDispatcher_UnexpectedErrorClearsSession(t *testing.T) {
	persons := newMemPersonRepo()
	d, sender, sessions := newDispatcherEnv(t, persons)

	const userID = int64(700)
	d.Dispatch(context.Background(), &bot.Update{
		ChatID: userID,
		From:   bot.User{ID: userID},
		Text:   "/start",
	})
	d.Dispatch(context.Background(), &bot.Update{
		ChatID:     userID,
		From:       bot.User{ID: userID},
		Callback:   RegisterCallback,
		CallbackID: "cb",
	})
	if sessions.State(userID) == "" {
		t.Fatal("登録フローが開始されていない")
	}

	// フロー途中でアイデンティティ解決が失敗する
	persons.findErr = errors.New("db down")
	d.Dispatch(context.Background(), &bot.Update{
		ChatID: userID,
		From:   bot.User{ID: userID},
		Text:   "Иванов",
	})

	if !strings.Contains(sender.lastText(t), "Произошла ошибка") {
		t.Errorf("reply = %q, want generic error reply", sender.lastText(t))
	}
	if sessions.State(userID) != "" {
		t.Errorf("session state = %q, want cleared after unexpected error", sessions.State(userID))
	}
}
