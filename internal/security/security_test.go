package security

import (
	"context"
	"strings"
	"testing"
)

func TestTextSanitizer_StripsTags(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキスト", "Новая книга о Go", "Новая книга о Go"},
		{"scriptタグ除去", `Книга<script>alert(1)</script>`, "Книга"},
		{"リンクタグ除去", `<a href="https://evil.example">книга</a>`, "книга"},
		{"前後の空白除去", "  наушники  ", "наушники"},
		{"空文字列", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	input := `Подарок <b>с тегами</b>`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("冪等性違反: 1回目 %q, 2回目 %q", once, twice)
	}
}

func TestLinkGuard_ValidateURL(t *testing.T) {
	g := NewLinkGuard(false)

	valid := []string{
		"https://example.com/item/1",
		"http://shop.example.org",
	}
	for _, rawURL := range valid {
		if err := g.ValidateURL(rawURL); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", rawURL, err)
		}
	}

	invalid := []struct {
		name   string
		rawURL string
	}{
		{"空URL", ""},
		{"ftpスキーム", "ftp://example.com/file"},
		{"javascriptスキーム", "javascript:alert(1)"},
		{"ホストなし", "https:///path"},
		{"localhost", "http://localhost/admin"},
		{"ドットなしホスト", "http://intranet/"},
		{"ループバックIP", "http://127.0.0.1/"},
		{"プライベートIP", "http://192.168.1.10/"},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/"},
		{"IPv6ループバック", "http://[::1]/"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.ValidateURL(tt.rawURL); err == nil {
				t.Errorf("ValidateURL(%q) = nil, want error", tt.rawURL)
			}
		})
	}
}

func TestLinkGuard_ValidateURL_ErrorMentionsScheme(t *testing.T) {
	g := NewLinkGuard(false)
	err := g.ValidateURL("ftp://example.com")
	if err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Errorf("エラーにスキームの言及がない: %v", err)
	}
}

func TestLinkGuard_ProbeDisabled(t *testing.T) {
	g := NewLinkGuard(false)
	// 無効時は到達できないURLでもエラーにしない
	if err := g.Probe(context.Background(), "https://unreachable.invalid/"); err != nil {
		t.Errorf("無効時のProbe = %v, want nil", err)
	}
}
