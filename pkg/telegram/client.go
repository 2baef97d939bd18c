// Package telegram é um cliente mínimo da Bot API do Telegram.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL = "https://api.telegram.org"

	// DefaultRequestTimeout limita cada chamada. No getUpdates o timeout do
	// long polling é somado a ele.
	DefaultRequestTimeout = 30 * time.Second
)

// Update é o envelope recebido em getUpdates ou no webhook.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// APIError é a resposta com "ok": false da Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// Client fala com a Bot API. Os envios passam por um rate.Limiter.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

type Option func(*Client)

// WithAPIURL troca o endereço da API (útil para testes e servidores locais da Bot API).
func WithAPIURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRequestTimeout troca o prazo de cada chamada à API.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithSendRate limita os envios a r mensagens por segundo com rajada burst.
func WithSendRate(r float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultAPIURL,
		http:    &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUpdates faz long polling. timeout é em segundos.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		params["offset"] = offset
	}

	var updates []Update
	wait := c.timeout + time.Duration(timeout)*time.Second
	if err := c.callWithin(ctx, wait, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text}, nil)
}

// SendPhoto envia uma foto por URL ou file_id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.call(ctx, "sendPhoto", map[string]any{"chat_id": chatID, "photo": photo}, nil)
}

// SetWebhook registra a URL do webhook. Com secret não vazio o Telegram
// envia o valor no cabeçalho X-Telegram-Bot-Api-Secret-Token.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := map[string]any{"url": url, "allowed_updates": []string{"message"}}
	if secret != "" {
		params["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", params, nil)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil)
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	return c.callWithin(ctx, c.timeout, method, params, out)
}

func (c *Client) callWithin(ctx context.Context, wait time.Duration, method string, params map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("erro ao montar payload de %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("erro ao criar requisição %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// a URL contém o token; não repassar o erro cru do net/http
		return fmt.Errorf("erro ao chamar %s: %w", method, redact(err, c.token))
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("resposta inválida de %s (status %d): %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("erro ao decodificar resultado de %s: %w", method, err)
		}
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}
