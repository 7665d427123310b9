// Package model はドメインモデルを定義する。
package model

import "time"

// Transfer はギフト資金への送金申告を表す。
// (sender, honoree) の組につき最大1件。実際の送金は外部で行われ、
// ここに保存されるのはユーザー申告の記録のみ。
type Transfer struct {
	ID         string
	SenderID   int64
	HonoreeID  int64
	RecordedAt time.Time
}

// Greeting は誕生日メッセージを表す。
// 対象者の誕生日が過ぎるとTransferと一緒にパージされる。
type Greeting struct {
	ID        string
	SenderID  int64
	HonoreeID int64
	Text      string
	CreatedAt time.Time
}
