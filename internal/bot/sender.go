package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender はメッセージ送信のインターフェース。
type Sender interface {
	// SendMessage はメッセージを送信する。
	SendMessage(ctx context.Context, message *Message) error
}

// HTTPSender はチャネルAPIへJSONをPOSTするSender実装。
type HTTPSender struct {
	apiURL string
	token  string
	client *http.Client
}

// NewHTTPSender はHTTPSenderを生成する。
func NewHTTPSender(apiURL, token string) *HTTPSender {
	return &HTTPSender{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendMessage はメッセージをチャネルAPIへ送信する。
// 2xx以外のレスポンスはエラーとして返す。
func (s *HTTPSender) SendMessage(ctx context.Context, message *Message) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("channel API returned status %d", resp.StatusCode)
	}
	return nil
}

// compile-time interface check
var _ Sender = (*HTTPSender)(nil)
