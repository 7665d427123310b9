// Package model はドメインモデルを定義する。
package model

import "time"

// Wish はメンバーのウィッシュリスト項目を表す。
// 作成・編集・削除は所有者本人のみが行える。
type Wish struct {
	ID        string
	PersonID  int64
	Text      string // サニタイズ済みテキスト
	URL       string // 任意。http/httpsスキームとドットを含むホストを持つ
	CreatedAt time.Time
	UpdatedAt time.Time
}
