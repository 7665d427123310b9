// Package security は保存するユーザー入力の防御的な検査を提供する。
package security

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// LinkGuardService はウィッシュURLの検証機能のインターフェースを定義する。
type LinkGuardService interface {
	// ValidateURL はURLの静的検証を行う。
	// スキーム（http/https）、ドット付きホスト名、IPアドレス範囲を
	// 検証し、不正なURLの場合はエラーを返す。
	ValidateURL(rawURL string) error

	// Probe はURLへの到達性を検証する。SSRF対策済みのクライアントで
	// HEADリクエストを送信し、到達できない場合はエラーを返す。
	// 設定で無効化されている場合は何もせずnilを返す。
	Probe(ctx context.Context, rawURL string) error
}

// allowedSchemes はウィッシュURLで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は検証でブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースする。到達性検証時のDNS解決後の
// IPアドレスはsafeurlがDialerレベルで検証する。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// linkGuard はLinkGuardServiceの実装。
type linkGuard struct {
	probeEnabled bool
	client       *http.Client
}

// NewLinkGuard はLinkGuardServiceの新しいインスタンスを生成する。
// probeEnabledがtrueの場合、Probeはsafeurl製クライアントで
// 到達性を検証する。safeurlはDNS解決後のIPアドレスをDialerの
// Controlフックで検証するため、DNS再バインディング攻撃にも対応する。
func NewLinkGuard(probeEnabled bool) *linkGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(5 * time.Second).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &linkGuard{
		probeEnabled: probeEnabled,
		client:       safeurl.Client(config).Client,
	}
}

// ValidateURL はURLの静的検証を行う。DNS解決は伴わない。
func (g *linkGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	// IPアドレスの場合: ブロック対象CIDRとの照合
	ip := net.ParseIP(host)
	if ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	// ホスト名はドット区切りであること（裸のホスト名は内部名の可能性が高い）
	if !strings.Contains(host, ".") {
		return fmt.Errorf("host must contain a dot: %s", host)
	}

	return nil
}

// Probe はURLへの到達性を検証する。
func (g *linkGuard) Probe(ctx context.Context, rawURL string) error {
	if !g.probeEnabled {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("URL is not reachable: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("URL returned status %d", resp.StatusCode)
	}
	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHostnames はブロック対象のホスト名。
var blockedHostnames = []string{
	"localhost",
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ LinkGuardService = (*linkGuard)(nil)
