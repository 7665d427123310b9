// Package model はドメインモデルを定義する。
package model

import "time"

// AdminGrant はメンバーへの管理者権限付与を表す。
// Personにつき最大1件。シークレットフレーズの入力で作成され、
// サービスユーザーの操作で削除される。
type AdminGrant struct {
	ID        string
	PersonID  int64
	CreatedAt time.Time
}

// Collector はギフト資金の集金担当者を表す。
// システム全体でIsActive=trueのレコードは最大1件（単一アクティブ制約）。
// 有効化・無効化はcollector.Managerを経由してのみ行う。
type Collector struct {
	ID        string
	PersonID  int64
	Phone     string // 送金先の電話番号トークン
	Bank      string // 銀行名（任意）
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceUser はサポート窓口となるメンバーの指定を表す。
// テーブルには0行または1行のみ存在し、設定は上書きで行う。
type ServiceUser struct {
	PersonID  int64
	UpdatedAt time.Time
}
