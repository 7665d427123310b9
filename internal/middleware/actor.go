// Package middleware はボットアップデートのミドルウェアチェーンを提供する。
// 合成順は外側から Recovery → Logging → RateLimit → Serialize → Identity。
// ロールゲート（RequireAdmin等）は制限対象のハンドラグループの前にのみ置く。
package middleware

import (
	"context"
	"errors"

	"github.com/hitoshi/giftman/internal/model"
)

// Actor は1アップデートの処理中に参照する認可コンテキスト。
// Identityミドルウェアが解決し、以後のハンドラは再取得せずこれを使う。
type Actor struct {
	Person          *model.Person    // 登録済みメンバー。未登録の場合はnil
	AdminGrant      *model.AdminGrant // 管理者権限。未付与の場合はnil
	OwnCollector    *model.Collector // 自分の集金担当者レコード。無い場合はnil
	ActiveCollector *model.Collector // 現在アクティブな集金担当者。不在の場合はnil
}

// IsRegistered は登録済みメンバーかどうかを返す。
func (a *Actor) IsRegistered() bool {
	return a.Person != nil
}

// IsAdmin は管理者権限を持つかどうかを返す。
func (a *Actor) IsAdmin() bool {
	return a.AdminGrant != nil
}

// IsActiveCollector は自分がアクティブな集金担当者かどうかを返す。
func (a *Actor) IsActiveCollector() bool {
	return a.Person != nil && a.ActiveCollector != nil &&
		a.ActiveCollector.PersonID == a.Person.ID
}

type contextKey string

const actorContextKey contextKey = "actor"

// ErrActorNotInContext はコンテキストにActorが存在しない場合のエラー。
var ErrActorNotInContext = errors.New("actor not found in context")

// WithActor はコンテキストにActorを格納する。
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext はコンテキストからActorを取り出す。
// Identityミドルウェアより内側でのみ使用できる。
func ActorFromContext(ctx context.Context) (*Actor, error) {
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok || actor == nil {
		return nil, ErrActorNotInContext
	}
	return actor, nil
}
