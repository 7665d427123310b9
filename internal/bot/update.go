// Package bot はチャネル連携の薄いアダプタ層を提供する。
// 受信アップデートの型、送信インターフェース、ハンドラチェーンと
// ディスパッチャを含む。チャネル固有のプロトコル詳細はここに閉じ込め、
// 上位層はUpdateとSenderのみに依存する。
package bot

import "strings"

// User はアップデートの送信者を表す。
type User struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle,omitempty"`
}

// Update はチャネルから受信した1件のアップデートを表す。
// テキストメッセージ（Text）またはボタン押下（Callback）のいずれか。
type Update struct {
	ID         int64  `json:"update_id"`
	ChatID     int64  `json:"chat_id"`
	From       User   `json:"from"`
	MessageID  int64  `json:"message_id,omitempty"`
	Text       string `json:"text,omitempty"`
	Callback   string `json:"callback_data,omitempty"`
	CallbackID string `json:"callback_id,omitempty"`
}

// IsCallback はボタン押下のアップデートかどうかを返す。
func (u *Update) IsCallback() bool {
	return u.Callback != ""
}

// Command はテキストがスラッシュコマンドの場合、先頭の/を除いた
// コマンド名を返す。コマンドでない場合は空文字列を返す。
func (u *Update) Command() string {
	if !strings.HasPrefix(u.Text, "/") {
		return ""
	}
	command := strings.TrimPrefix(u.Text, "/")
	if i := strings.IndexByte(command, ' '); i >= 0 {
		command = command[:i]
	}
	return command
}

// Button はインラインキーボードのボタンを表す。
type Button struct {
	Text     string `json:"text"`
	Callback string `json:"callback_data"`
}

// Keyboard はインラインキーボードの行列を表す。
type Keyboard [][]Button

// Row は1行のキーボードを生成するヘルパー。
func Row(buttons ...Button) []Button {
	return buttons
}

// Message は送信するメッセージを表す。
type Message struct {
	ChatID   int64    `json:"chat_id"`
	Text     string   `json:"text"`
	Keyboard Keyboard `json:"keyboard,omitempty"`
}
