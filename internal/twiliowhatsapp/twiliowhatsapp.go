// Package twiliowhatsapp wraps the Twilio API as an alternative WhatsApp transport.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// DefaultMediaTimeout bounds media downloads from Twilio.
const DefaultMediaTimeout = 5 * time.Second

// AddressPrefix marks WhatsApp addresses in Twilio's API.
const AddressPrefix = "whatsapp:"

// Sender is the Twilio surface used by the messaging layer.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendMedia(ctx context.Context, to string, mediaURL string, caption string) error
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
	ValidateWebhook(fullURL string, params map[string]string, signature string) bool
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
	HTTPClient *http.Client
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the account SID, also used as the media basic-auth user.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the auth token used for REST calls and webhook signatures.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender number, with or without the whatsapp: prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithHTTPClient overrides the client used to download inbound media.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = hc }
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	api        messageCreator
	fromWhats  string
	accountSID string
	authToken  string
	http       *http.Client
	validator  twclient.RequestValidator
}

// NewClient builds a client from options, falling back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, errors.New("fromWhats number must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultMediaTimeout}
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{
		api:        rest.Api,
		fromWhats:  Address(cfg.FromWhats),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		http:       cfg.HTTPClient,
		validator:  twclient.NewRequestValidator(cfg.AuthToken),
	}, nil
}

// Address adds the whatsapp: prefix to a phone number if missing.
func Address(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, AddressPrefix) {
		return number
	}
	return AddressPrefix + number
}

// StripAddress removes the whatsapp: prefix.
func StripAddress(addr string) string {
	return strings.TrimPrefix(strings.TrimSpace(addr), AddressPrefix)
}

func (c *Client) create(to, body, mediaURL string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(to))
	params.SetFrom(c.fromWhats)
	if body != "" {
		params.SetBody(body)
	}
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}
	if _, err := c.api.CreateMessage(params); err != nil {
		slog.Error("Twilio CreateMessage failed", "to", to, "media", mediaURL != "", "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("Twilio message sent", "to", to, "media", mediaURL != "")
	return nil
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if body == "" {
		return errors.New("message body cannot be empty")
	}
	return c.create(to, body, "")
}

// SendMedia sends a media message. Twilio fetches mediaURL itself, so it must be public.
func (c *Client) SendMedia(ctx context.Context, to string, mediaURL string, caption string) error {
	if mediaURL == "" {
		return errors.New("media URL cannot be empty")
	}
	return c.create(to, caption, mediaURL)
}

// FetchMedia downloads inbound media using the account credentials. It
// returns the body and its declared content type.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultMediaTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("failed to fetch media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ValidateWebhook checks the X-Twilio-Signature of a webhook request.
func (c *Client) ValidateWebhook(fullURL string, params map[string]string, signature string) bool {
	return c.validator.Validate(fullURL, params, signature)
}

// SentMessage is one call recorded by MockClient.
type SentMessage struct {
	To       string
	Body     string
	MediaURL string
}

// MockClient implements Sender in memory.
type MockClient struct {
	SentMessages []SentMessage
	Media        map[string][]byte
	SendErr      error
	// AcceptSignature is returned by ValidateWebhook.
	AcceptSignature bool
}

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}, Media: map[string][]byte{}, AcceptSignature: true}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) SendMedia(ctx context.Context, to string, mediaURL string, caption string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: caption, MediaURL: mediaURL})
	return nil
}

func (m *MockClient) FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	data, ok := m.Media[mediaURL]
	if !ok {
		return nil, "", fmt.Errorf("media %s not found", mediaURL)
	}
	return data, http.DetectContentType(data), nil
}

func (m *MockClient) ValidateWebhook(fullURL string, params map[string]string, signature string) bool {
	return m.AcceptSignature
}
