// Package model はドメインモデルを定義する。
package model

import "fmt"

// NotFoundError は参照先エンティティが存在しないことを表す。
// ハンドラー側でユーザー向けの「見つかりません」メッセージに変換される。
// 致命的エラーとして扱ってはならない。
type NotFoundError struct {
	Entity string // "Person", "Wish", "Collector" など
	ID     int64  // 不明な場合は0
}

// Error はerrorインターフェースを実装する。
func (e *NotFoundError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Entity)
}

// NewNotFoundError はNotFoundErrorを生成する。
func NewNotFoundError(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// AlreadyExistsError は作成時の一意性違反を表す。
// 重複登録・重複権限付与などの期待されるドメインエラー。
type AlreadyExistsError struct {
	Entity string
	ID     int64
}

// Error はerrorインターフェースを実装する。
func (e *AlreadyExistsError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %d already exists", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s already exists", e.Entity)
}

// NewAlreadyExistsError はAlreadyExistsErrorを生成する。
func NewAlreadyExistsError(entity string, id int64) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

// CollectorUniquenessError はコミット後の検証で複数のアクティブ集金担当者が
// 検出されたことを表す。整合性の重大エラーとしてログに残し、
// 自動修復は行わない（より深いレースを隠蔽しないため）。
type CollectorUniquenessError struct {
	ActiveCount int
}

// Error はerrorインターフェースを実装する。
func (e *CollectorUniquenessError) Error() string {
	return fmt.Sprintf("found %d active collectors, expected exactly 1", e.ActiveCount)
}

// NewCollectorUniquenessError はCollectorUniquenessErrorを生成する。
func NewCollectorUniquenessError(activeCount int) *CollectorUniquenessError {
	return &CollectorUniquenessError{ActiveCount: activeCount}
}

// StateDataMissingError はワークフローが期待するセッションデータの欠落を表す。
// セッション期限切れまたはクリア済みの場合に発生し、ユーザーには
// 「セッションが期限切れ」の旨を通知して状態をクリアする。
type StateDataMissingError struct {
	Key string
}

// Error はerrorインターフェースを実装する。
func (e *StateDataMissingError) Error() string {
	return fmt.Sprintf("session data missing: %s", e.Key)
}

// NewStateDataMissingError はStateDataMissingErrorを生成する。
func NewStateDataMissingError(key string) *StateDataMissingError {
	return &StateDataMissingError{Key: key}
}
