// Package whatsapp is a minimal Meta Graph API client for the Cloud API
// messages endpoint.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

type Config struct {
	BaseURL       string        `envconfig:"BASE_URL" split_words:"true" default:"https://graph.facebook.com/v19.0"`
	Token         string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	PhoneNumberID string        `envconfig:"PHONE_NUMBER_ID" split_words:"true" required:"true"`
	VerifyToken   string        `envconfig:"VERIFY_TOKEN" split_words:"true" required:"true"`
	Timeout       time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Client struct {
	baseURL       string
	token         string
	phoneNumberID string
	verifyToken   string
	httpClient    *http.Client
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type templatePayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type templateBody struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("whatsapp base url is required")
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("whatsapp access token is required")
	}

	phoneNumberID := strings.TrimSpace(cfg.PhoneNumberID)
	if phoneNumberID == "" {
		return nil, errors.New("whatsapp phone number id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:       baseURL,
		token:         token,
		phoneNumberID: phoneNumberID,
		verifyToken:   strings.TrimSpace(cfg.VerifyToken),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// VerifyToken checks the GET /webhook handshake parameters.
func (c *Client) VerifyToken(mode, token string) bool {
	return mode != "" && c.verifyToken != "" && token == c.verifyToken
}

// SendText delivers a free-form text message to a phone identifier.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Text:             textBody{Body: body},
	})
}

// SendTemplate delivers a pre-approved template message. Not used by the
// core reply path, but the Cloud API requires templates to open a
// conversation outside the 24h customer service window.
func (c *Client) SendTemplate(ctx context.Context, to, name, langCode string) error {
	return c.post(ctx, templatePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: templateBody{
			Name:     name,
			Language: templateLanguage{Code: langCode},
		},
	})
}

func (c *Client) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute messages request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read messages response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("whatsapp http status=%d body=%s", resp.StatusCode, string(raw))
	}
	return nil
}
