// Package session はワークフロー進行中の会話状態をメモリ上に保持する。
// セッションはアイデンティティキー単位で管理され、TTLで自動失効する。
// 同一キーのアップデートはAcquireで直列化してから操作すること。
package session

import (
	"sync"
	"time"

	"github.com/hitoshi/giftman/internal/model"
)

// DefaultTTL はセッションのデフォルト有効期限。
const DefaultTTL = 24 * time.Hour

// cleanupInterval は失効セッションの掃除間隔。
const cleanupInterval = 5 * time.Minute

// Session は1アイデンティティの会話状態を表す。
// State はワークフローの現在ステート、values は収集済みフィールド、
// lists は番号選択用にキャッシュしたIDリスト。
type Session struct {
	mu     sync.Mutex
	State  string
	values map[string]string
	lists  map[string][]int64
}

func newSession(state string) *Session {
	return &Session{
		State:  state,
		values: make(map[string]string),
		lists:  make(map[string][]int64),
	}
}

// SetValue は収集済みフィールドを保存する。
func (s *Session) SetValue(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Value は収集済みフィールドを取得する。
// 存在しない場合はStateDataMissingErrorを返す。
func (s *Session) Value(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", model.NewStateDataMissingError(key)
	}
	return value, nil
}

// ValueOr は収集済みフィールドを取得し、無い場合はfallbackを返す。
// 省略可能フィールド（URL、銀行名）用。
func (s *Session) ValueOr(key, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.values[key]; ok {
		return value
	}
	return fallback
}

// DeleteValue は収集済みフィールドを削除する。
func (s *Session) DeleteValue(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// SetList は番号選択用のIDリストをキャッシュする。
func (s *Session) SetList(name string, ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[name] = append([]int64(nil), ids...)
}

// List はキャッシュ済みIDリストを取得する。
// 存在しない場合はStateDataMissingErrorを返す。
func (s *Session) List(name string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.lists[name]
	if !ok {
		return nil, model.NewStateDataMissingError(name)
	}
	return append([]int64(nil), ids...), nil
}

type entry struct {
	session    *Session
	lastAccess time.Time
}

// Store はアイデンティティキー別のセッションを保持するインメモリストア。
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
	keyMus  map[int64]*sync.Mutex
	ttl     time.Duration
	stopCh  chan struct{}
}

// NewStore はStoreを生成し、バックグラウンドで失効掃除を開始する。
// ttlが0以下の場合はDefaultTTLを使用する。
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	store := &Store{
		entries: make(map[int64]*entry),
		keyMus:  make(map[int64]*sync.Mutex),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go store.cleanupLoop()
	return store
}

// Stop は失効掃除のバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	close(s.stopCh)
}

// Acquire はキーごとのロックを取得し、解放関数を返す。
// 同一アイデンティティのアップデートを直列化し、ワークフローの
// 読み取り・遷移・書き込みの競合を防ぐ。
func (s *Store) Acquire(key int64) func() {
	s.mu.Lock()
	keyMu, ok := s.keyMus[key]
	if !ok {
		keyMu = &sync.Mutex{}
		s.keyMus[key] = keyMu
	}
	s.mu.Unlock()

	keyMu.Lock()
	return keyMu.Unlock
}

// Begin は指定ステートで新しいセッションを開始する。
// 既存のセッションは破棄される。
func (s *Store) Begin(key int64, state string) *Session {
	session := newSession(state)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{session: session, lastAccess: time.Now()}
	return session
}

// Get は現在のセッションを取得する。無い、または失効済みの場合はnilを返す。
func (s *Store) Get(key int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if time.Since(e.lastAccess) > s.ttl {
		delete(s.entries, key)
		return nil
	}
	e.lastAccess = time.Now()
	return e.session
}

// State は現在のセッションのステートを返す。セッションが無い場合は空文字列。
func (s *Store) State(key int64) string {
	session := s.Get(key)
	if session == nil {
		return ""
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.State
}

// SetState は現在のセッションのステートを変更する。
// セッションが無い場合は何もしない。
func (s *Store) SetState(key int64, state string) {
	session := s.Get(key)
	if session == nil {
		return
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	session.State = state
}

// Clear はセッションを破棄する。
func (s *Store) Clear(key int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// cleanupLoop は定期的に失効セッションを削除する。
func (s *Store) cleanupLoop() {
	interval := cleanupInterval
	if s.ttl < interval {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

// removeExpired は失効したセッションとキーロックを削除する。
func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for key, e := range s.entries {
		if now.Sub(e.lastAccess) > s.ttl {
			delete(s.entries, key)
			delete(s.keyMus, key)
		}
	}
}
