package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// maxMessageRunes is Telegram's limit for a sendMessage text.
const maxMessageRunes = 4096

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("telegram: bot token is required")

// Telegram posts alerts through the Bot API sendMessage method with HTML
// parse mode.
type Telegram struct {
	client *http.Client
	apiURL string
	token  string
	chatID string
	policy *bluemonday.Policy
}

// NewTelegram builds a Telegram notifier. An empty token is a
// configuration error.
func NewTelegram(token, chatID string, opts ...TelegramOption) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	t := &Telegram{
		client: &http.Client{Timeout: 15 * time.Second},
		apiURL: DefaultTelegramAPI,
		token:  token,
		chatID: chatID,
		policy: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TelegramOption customizes a Telegram notifier.
type TelegramOption func(*Telegram)

// WithAPIURL points the notifier at another Bot API host.
func WithAPIURL(u string) TelegramOption {
	return func(t *Telegram) {
		if u != "" {
			t.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// WithClient replaces the default HTTP client.
func WithClient(c *http.Client) TelegramOption {
	return func(t *Telegram) {
		if c != nil {
			t.client = c
		}
	}
}

// Notify sends message to the configured chat.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", t.format(message))
	form.Set("parse_mode", "HTML")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !body.OK {
		return fmt.Errorf("telegram: send failed: status %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// format renders the plain-text message for HTML parse mode, then trims it
// to the Bot API limit. Tag-like text such as "<Actor>" is escaped and shown,
// not dropped; the policy pass guarantees no markup reaches Telegram.
func (t *Telegram) format(message string) string {
	text := t.policy.Sanitize(html.EscapeString(message))
	if utf8.RuneCountInString(text) <= maxMessageRunes {
		return text
	}
	runes := []rune(text)
	cut := runes[:maxMessageRunes-1]
	// Do not leave a dangling entity such as "&am".
	for i := len(cut) - 1; i >= 0 && i >= len(cut)-8; i-- {
		if cut[i] == ';' {
			break
		}
		if cut[i] == '&' {
			cut = cut[:i]
			break
		}
	}
	return string(cut) + "…"
}
