// Package twiliowhatsapp wraps the Twilio REST API for WhatsApp messaging.
package twiliowhatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender is the outbound surface the messaging layer drives. Recipients are
// canonical WhatsApp addresses ("whatsapp:+<E164>"). Both methods return the
// provider message sid on success.
type Sender interface {
	SendText(ctx context.Context, to string, body string) (string, error)
	SendTemplate(ctx context.Context, to string, templateSid string, variables map[string]string) (string, error)
}

// Opts holds configuration options for the Twilio WhatsApp client.
// This focuses solely on Twilio API requirements
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number ("whatsapp:+<E164>").
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// Compile-time check that Client implements Sender.
var _ Sender = (*Client)(nil)

func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_WHATSAPP_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		fromWhats: cfg.FromWhats,
	}, nil
}

// SendText sends a free-form WhatsApp message. Only valid inside the 24h
// service window Twilio opens after an inbound message.
func (c *Client) SendText(ctx context.Context, to string, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendText failed", "to", to, "error", err)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio message sent", "to", to, "sid", sid)
	return sid, nil
}

// SendTemplate sends an approved content template, the only way to open a
// conversation outside the 24h service window. Variables map placeholder
// indexes to values, e.g. {"1": "Maria"}.
func (c *Client) SendTemplate(ctx context.Context, to string, templateSid string, variables map[string]string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromWhats)
	params.SetContentSid(templateSid)

	if len(variables) > 0 {
		varsJSON, err := json.Marshal(variables)
		if err != nil {
			return "", fmt.Errorf("failed to encode template variables: %w", err)
		}
		params.SetContentVariables(string(varsJSON))
	}

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendTemplate failed", "to", to, "templateSid", templateSid, "error", err)
		return "", fmt.Errorf("failed to send template to %s: %w", to, err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio template sent", "to", to, "templateSid", templateSid, "sid", sid)
	return sid, nil
}

// MockClient records sends for tests.
type MockClient struct {
	SentTexts     []SentText
	SentTemplates []SentTemplate
	NextSid       string
	Err           error
}

type SentText struct {
	To   string
	Body string
}

type SentTemplate struct {
	To          string
	TemplateSid string
	Variables   map[string]string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{
		SentTexts:     []SentText{},
		SentTemplates: []SentTemplate{},
		NextSid:       "SM_mock",
	}
}

func (m *MockClient) SendText(ctx context.Context, to string, body string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.SentTexts = append(m.SentTexts, SentText{To: to, Body: body})
	return m.NextSid, nil
}

func (m *MockClient) SendTemplate(ctx context.Context, to string, templateSid string, variables map[string]string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.SentTemplates = append(m.SentTemplates, SentTemplate{To: to, TemplateSid: templateSid, Variables: variables})
	return m.NextSid, nil
}
