package model

import (
	"testing"
	"time"
)

// TestPerson_FullName はフルネームが「姓 名 父称」形式になることを検証する。
func TestPerson_FullName(t *testing.T) {
	p := &Person{FamilyName: "Иванов", GivenName: "Иван", Patronymic: "Иваныч"}
	if got := p.FullName(); got != "Иванов Иван Иваныч" {
		t.Errorf("FullName() = %q", got)
	}
}

// TestPerson_InitialsName はキリル文字でもイニシャルが正しく切り出されることを検証する。
// マルチバイト文字のためバイトスライスではなくruneで先頭文字を取る。
func TestPerson_InitialsName(t *testing.T) {
	p := &Person{FamilyName: "Иванов", GivenName: "Иван", Patronymic: "Иваныч"}
	if got := p.InitialsName(); got != "Иванов И. И." {
		t.Errorf("InitialsName() = %q", got)
	}
}

// TestPerson_BirthdayMatches は年を無視して月日のみで一致判定することを検証する。
func TestPerson_BirthdayMatches(t *testing.T) {
	p := &Person{BirthDate: time.Date(2000, 1, 5, 0, 0, 0, 0, time.UTC)}

	if !p.BirthdayMatches(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)) {
		t.Error("expected match on same month/day in another year")
	}
	if p.BirthdayMatches(time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected no match on a different day")
	}
}

// TestNotFoundError_Message はエンティティ名とIDがメッセージに含まれることを検証する。
func TestNotFoundError_Message(t *testing.T) {
	err := NewNotFoundError("Person", 42)
	if err.Error() != "Person 42 not found" {
		t.Errorf("Error() = %q", err.Error())
	}

	err = NewNotFoundError("Collector", 0)
	if err.Error() != "Collector not found" {
		t.Errorf("Error() = %q", err.Error())
	}
}
