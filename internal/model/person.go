// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Person はコミュニティの登録メンバーを表す。
// IDは外部チャネルが払い出す識別子であり、アプリ側では採番しない。
type Person struct {
	ID         int64
	Handle     string // 外部チャネルのハンドル名（任意、一意）
	FamilyName string
	GivenName  string
	Patronymic string
	BirthDate  time.Time // 月日のみが意味を持つ。年はプレースホルダの場合がある
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FullName は「姓 名 父称」形式のフルネームを返す。
func (p *Person) FullName() string {
	return fmt.Sprintf("%s %s %s", p.FamilyName, p.GivenName, p.Patronymic)
}

// InitialsName は「姓 名. 父称.」形式の省略名を返す。
// 名または父称が空の場合はそのまま省略する。
func (p *Person) InitialsName() string {
	name := p.FamilyName
	if p.GivenName != "" {
		name += " " + string([]rune(p.GivenName)[:1]) + "."
	}
	if p.Patronymic != "" {
		name += " " + string([]rune(p.Patronymic)[:1]) + "."
	}
	return name
}

// BirthdayMatches は誕生日の月日が指定日付の月日と一致するかを返す。
// 年は比較しない。
func (p *Person) BirthdayMatches(t time.Time) bool {
	return p.BirthDate.Month() == t.Month() && p.BirthDate.Day() == t.Day()
}
