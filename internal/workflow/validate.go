package workflow

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/giftman/internal/security"
)

// ValidationError はユーザー入力の検証失敗を表す。
// Messageはそのままユーザーへの再入力プロンプトとして送信される。
type ValidationError struct {
	Message string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError はValidationErrorを生成する。
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// BirthDateLayout は誕生日入力のフォーマット（ДД.ММ.ГГГГ）。
const BirthDateLayout = "02.01.2006"

// 入力長の制約。
const (
	nameMinLen = 2
	nameMaxLen = 50
	bankMinLen = 2
	bankMaxLen = 100
	wishMinLen = 3
	wishMaxLen = 500
)

// ValidateName は氏名の1要素（姓・名・父称）を検証する。
// 文字と内部のハイフンのみ、2〜50文字。
func ValidateName(input string) (string, error) {
	name := strings.TrimSpace(input)
	length := utf8.RuneCountInString(name)
	if length < nameMinLen || length > nameMaxLen {
		return "", NewValidationError(
			fmt.Sprintf("Имя должно содержать от %d до %d символов. Попробуйте ещё раз.", nameMinLen, nameMaxLen))
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != '-' {
			return "", NewValidationError("Допустимы только буквы и дефис. Попробуйте ещё раз.")
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return "", NewValidationError("Допустимы только буквы и дефис. Попробуйте ещё раз.")
	}
	return name, nil
}

// ValidateBirthDate は誕生日（ДД.ММ.ГГГГ）を検証し、正規化して返す。
// 存在しない日付と未来の日付は拒否する。
func ValidateBirthDate(input string) (string, error) {
	raw := strings.TrimSpace(input)
	parsed, err := time.Parse(BirthDateLayout, raw)
	if err != nil {
		return "", NewValidationError("Введите дату в формате ДД.ММ.ГГГГ, например 15.03.1990.")
	}
	if parsed.After(time.Now()) {
		return "", NewValidationError("Дата рождения не может быть в будущем.")
	}
	return parsed.Format(BirthDateLayout), nil
}

// ValidatePhone は送金先の電話番号を検証する。
// +7XXXXXXXXXX または 8XXXXXXXXXX の形式のみ許可する。
func ValidatePhone(input string) (string, error) {
	phone := strings.TrimSpace(input)

	digits := phone
	if strings.HasPrefix(phone, "+7") {
		digits = phone[2:]
	} else if strings.HasPrefix(phone, "8") {
		digits = phone[1:]
	} else {
		return "", NewValidationError("Введите номер в формате +7XXXXXXXXXX или 8XXXXXXXXXX.")
	}

	if len(digits) != 10 {
		return "", NewValidationError("Номер должен содержать 10 цифр после кода. Попробуйте ещё раз.")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", NewValidationError("Номер может содержать только цифры. Попробуйте ещё раз.")
		}
	}
	return phone, nil
}

// ValidateBank は銀行名を検証する。2〜100文字。
func ValidateBank(input string) (string, error) {
	bank := strings.TrimSpace(input)
	length := utf8.RuneCountInString(bank)
	if length < bankMinLen || length > bankMaxLen {
		return "", NewValidationError(
			fmt.Sprintf("Название банка должно содержать от %d до %d символов.", bankMinLen, bankMaxLen))
	}
	return bank, nil
}

// NewWishTextValidator はウィッシュ本文のバリデータを生成する。
// サニタイズ後のテキストが3〜500文字であることを検証する。
func NewWishTextValidator(sanitizer security.TextSanitizer) func(input string) (string, error) {
	return func(input string) (string, error) {
		text := sanitizer.Sanitize(input)
		length := utf8.RuneCountInString(text)
		if length < wishMinLen || length > wishMaxLen {
			return "", NewValidationError(
				fmt.Sprintf("Описание должно содержать от %d до %d символов. Попробуйте ещё раз.", wishMinLen, wishMaxLen))
		}
		return text, nil
	}
}

// NewWishURLValidator はウィッシュURLのバリデータを生成する。
func NewWishURLValidator(guard security.LinkGuardService) func(input string) (string, error) {
	return func(input string) (string, error) {
		rawURL := strings.TrimSpace(input)
		if err := guard.ValidateURL(rawURL); err != nil {
			return "", NewValidationError("Ссылка некорректна. Отправьте ссылку вида https://example.com или нажмите «Пропустить».")
		}
		return rawURL, nil
	}
}
