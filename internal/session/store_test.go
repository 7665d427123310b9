package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/giftman/internal/model"
)

func TestStore_BeginGetClear(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Stop()

	if got := store.Get(1); got != nil {
		t.Fatalf("未開始のセッションがnil以外: %+v", got)
	}

	session := store.Begin(1, "registration:family_name")
	session.SetValue("family_name", "Иванов")

	got := store.Get(1)
	if got == nil {
		t.Fatal("開始したセッションが取得できない")
	}
	if store.State(1) != "registration:family_name" {
		t.Errorf("State = %q", store.State(1))
	}
	value, err := got.Value("family_name")
	if err != nil {
		t.Fatalf("Valueに失敗: %v", err)
	}
	if value != "Иванов" {
		t.Errorf("family_name = %q", value)
	}

	store.Clear(1)
	if store.Get(1) != nil {
		t.Error("Clear後にセッションが残っている")
	}
	if store.State(1) != "" {
		t.Errorf("Clear後のState = %q, want \"\"", store.State(1))
	}
}

func TestStore_BeginReplacesExisting(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Stop()

	first := store.Begin(1, "wish:text")
	first.SetValue("text", "Книга")

	second := store.Begin(1, "registration:family_name")
	if _, err := second.Value("text"); err == nil {
		t.Error("新しいセッションに古い値が残っている")
	}
	if store.State(1) != "registration:family_name" {
		t.Errorf("State = %q", store.State(1))
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store := NewStore(30 * time.Millisecond)
	defer store.Stop()

	store.Begin(1, "wish:text")
	time.Sleep(60 * time.Millisecond)

	if store.Get(1) != nil {
		t.Error("TTL経過後もセッションが取得できた")
	}
}

func TestSession_ValueMissing(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Stop()

	session := store.Begin(1, "collector:phone")

	_, err := session.Value("phone")
	var missing *model.StateDataMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("エラー = %v, want StateDataMissingError", err)
	}
	if missing.Key != "phone" {
		t.Errorf("Key = %q", missing.Key)
	}
}

func TestSession_ValueOr(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Stop()

	session := store.Begin(1, "wish:url")
	if got := session.ValueOr("url", ""); got != "" {
		t.Errorf("未設定時のValueOr = %q", got)
	}
	session.SetValue("url", "https://example.com")
	if got := session.ValueOr("url", ""); got != "https://example.com" {
		t.Errorf("設定後のValueOr = %q", got)
	}
}

func TestSession_ListCache(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Stop()

	session := store.Begin(1, "admin:delete_person")
	session.SetList("persons", []int64{10, 20, 30})

	ids, err := session.List("persons")
	if err != nil {
		t.Fatalf("Listに失敗: %v", err)
	}
	if len(ids) != 3 || ids[1] != 20 {
		t.Errorf("ids = %v", ids)
	}

	// 未キャッシュのリストはStateDataMissingError
	_, err = session.List("admins")
	var missing *model.StateDataMissingError
	if !errors.As(err, &missing) {
		t.Errorf("エラー = %v, want StateDataMissingError", err)
	}
}

func TestStore_AcquireSerializesPerKey(t *testing.T) {
	store := NewStore(time.Hour)
	defer store.Stop()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := store.Acquire(1)
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("同一キーの同時実行数 = %d, want 1", maxActive)
	}
}
