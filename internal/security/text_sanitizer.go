// Package security は保存するユーザー入力の防御的な検査を提供する。
//
// TextSanitizer はウィッシュ本文や銀行名などの自由入力テキストから
// HTMLタグを除去する。保存データはチャネルへそのまま再送されるため、
// タグの混入を許可リストゼロのポリシーで遮断する。
// LinkGuard はウィッシュに添付されるURLを検証する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はテキストからHTMLタグを全て除去し、前後の空白を
	// 取り除いた結果を返す。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicy（許可タグなし）を保持し、
// スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからHTMLタグを除去して返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
