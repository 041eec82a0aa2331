// Package whatsapp wraps the whatsmeow client used as carbot's chat channel.
//
// It covers device login (QR or numeric code), text and media sending, the
// composing indicator, media download and event subscription.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	"rsc.io/qr"

	"github.com/zailonsoft/carbot/internal/store"
)

const (
	// DefaultSQLitePath is the default whatsmeow device database, relative to the working directory.
	DefaultSQLitePath = "file:whatsmeow.db?_foreign_keys=on"
	// DefaultLogLevel is passed to the whatsmeow loggers.
	DefaultLogLevel = "INFO"
)

// ErrNotConnected is returned when a call needs a logged-in device.
var ErrNotConnected = errors.New("whatsapp client not connected")

// Messenger is the subset of the WhatsApp client used by the messaging layer.
type Messenger interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendText(ctx context.Context, to types.JID, body string) error
	SendImage(ctx context.Context, to types.JID, data []byte, mimetype, caption string) error
	SendDocument(ctx context.Context, to types.JID, data []byte, mimetype, filename, caption string) error
	SetComposing(ctx context.Context, to types.JID) error
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	OnEvent(handler func(evt any))
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device database connection string
	QRPath      string // path to write the terminal login QR code
	QRImagePath string // path to write the login QR code as PNG
	NumericCode bool   // print the raw login code instead of a QR code
	LogLevel    string // whatsmeow log level
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes the terminal rendering of the login QR code to path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithQRCodeImage writes the login QR code as a PNG file to path.
func WithQRCodeImage(path string) Option {
	return func(o *Opts) {
		o.QRImagePath = path
	}
}

// WithNumericCode prints the login code as text instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// WithLogLevel sets the whatsmeow log level (DEBUG, INFO, WARN, ERROR).
func WithLogLevel(level string) Option {
	return func(o *Opts) {
		o.LogLevel = level
	}
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
	cfg      Opts

	mu     sync.RWMutex
	qrPNG  []byte
	linked bool
}

// DriverFor returns the database/sql driver name for a whatsmeow DSN.
func DriverFor(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}

func hasForeignKeys(dsn string) bool {
	return strings.Contains(dsn, "foreign_keys")
}

// NewClient opens the device store and builds an unconnected client.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := Opts{DBDSN: DefaultSQLitePath, LogLevel: DefaultLogLevel}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = DefaultSQLitePath
	}

	driver := DriverFor(cfg.DBDSN)
	if driver == "sqlite3" && !hasForeignKeys(cfg.DBDSN) {
		slog.Warn("WhatsApp SQLite DSN lacks foreign keys; whatsmeow recommends ?_foreign_keys=on", "dsn", cfg.DBDSN)
	}
	slog.Debug("WhatsApp NewClient initializing device store", "driver", driver)

	container, err := sqlstore.New(ctx, driver, cfg.DBDSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(device, waLog.Stdout("Client", cfg.LogLevel, true))
	return &Client{waClient: waClient, cfg: cfg}, nil
}

// Connect logs in when the device is new, otherwise reconnects. It returns
// once the device is paired or the login flow fails.
func (c *Client) Connect(ctx context.Context) error {
	if c.waClient.Store.ID != nil {
		if err := c.waClient.Connect(); err != nil {
			return fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
		c.setLinked()
		slog.Info("WhatsApp client connected")
		return nil
	}

	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, err := c.waClient.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to open WhatsApp QR channel: %w", err)
	}
	if err := c.waClient.Connect(); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	for evt := range qrChan {
		switch evt.Event {
		case whatsmeow.QRChannelEventCode:
			if err := c.renderCode(evt.Code); err != nil {
				slog.Error("WhatsApp QR render failed", "error", err)
			}
		case whatsmeow.QRChannelSuccess.Event:
			c.setLinked()
			slog.Info("WhatsApp device linked")
			return nil
		case whatsmeow.QRChannelEventError:
			return fmt.Errorf("whatsapp login failed: %w", evt.Error)
		default:
			slog.Warn("WhatsApp login event", "event", evt.Event)
			if evt.Event == whatsmeow.QRChannelTimeout.Event || strings.HasPrefix(evt.Event, "err-") {
				return fmt.Errorf("whatsapp login ended: %s", evt.Event)
			}
		}
	}
	if c.waClient.Store.ID == nil {
		return errors.New("whatsapp login ended without pairing")
	}
	c.setLinked()
	return nil
}

func (c *Client) renderCode(code string) error {
	writer := io.Writer(os.Stdout)
	if c.cfg.QRPath != "" {
		f, err := os.Create(c.cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	if c.cfg.NumericCode {
		fmt.Fprintln(writer, code)
	} else {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, writer)
	}

	png, err := EncodeQRPNG(code)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.qrPNG = png
	c.mu.Unlock()
	if c.cfg.QRImagePath != "" {
		if err := os.WriteFile(c.cfg.QRImagePath, png, 0o600); err != nil {
			return fmt.Errorf("failed to write QR image: %w", err)
		}
	}
	return nil
}

// EncodeQRPNG renders a login code as a PNG image.
func EncodeQRPNG(code string) ([]byte, error) {
	qc, err := qr.Encode(code, qr.L)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return qc.PNG(), nil
}

func (c *Client) setLinked() {
	c.mu.Lock()
	c.linked = true
	c.qrPNG = nil
	c.mu.Unlock()
}

// QRCodePNG returns the pending login QR code, if the device is waiting to be linked.
func (c *Client) QRCodePNG() ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.linked || c.qrPNG == nil {
		return nil, false
	}
	return c.qrPNG, true
}

// Disconnect closes the websocket.
func (c *Client) Disconnect() {
	c.waClient.Disconnect()
}

// OnEvent registers a whatsmeow event handler.
func (c *Client) OnEvent(handler func(evt any)) {
	c.waClient.AddEventHandler(handler)
}

func (c *Client) ready() error {
	if c.waClient == nil || c.waClient.Store == nil || c.waClient.Store.ID == nil {
		return ErrNotConnected
	}
	return nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to types.JID, body string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if body == "" {
		return errors.New("message body cannot be empty")
	}
	slog.Debug("WhatsApp SendText", "to", to.String(), "body_length", len(body))
	if _, err := c.waClient.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(body)}); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendImage uploads and sends an image with an optional caption.
func (c *Client) SendImage(ctx context.Context, to types.JID, data []byte, mimetype, caption string) error {
	if err := c.ready(); err != nil {
		return err
	}
	up, err := c.waClient.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       optional(caption),
		Mimetype:      proto.String(mimetype),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	if _, err := c.waClient.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to send image to %s: %w", to, err)
	}
	return nil
}

// SendDocument uploads and sends a document.
func (c *Client) SendDocument(ctx context.Context, to types.JID, data []byte, mimetype, filename, caption string) error {
	if err := c.ready(); err != nil {
		return err
	}
	up, err := c.waClient.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("failed to upload document: %w", err)
	}
	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption:       optional(caption),
		FileName:      proto.String(filename),
		Title:         proto.String(filename),
		Mimetype:      proto.String(mimetype),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	if _, err := c.waClient.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to send document to %s: %w", to, err)
	}
	return nil
}

// SetComposing shows the typing indicator in the chat.
func (c *Client) SetComposing(ctx context.Context, to types.JID) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.waClient.SendChatPresence(to, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// Download fetches and decrypts inbound media.
func (c *Client) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	data, err := c.waClient.Download(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return proto.String(s)
}

// ToJID accepts a full JID ("5511999990000@s.whatsapp.net") or a phone
// number in any common notation and returns the user JID.
func ToJID(recipient string) (types.JID, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return types.JID{}, errors.New("recipient cannot be empty")
	}
	if strings.Contains(recipient, "@") {
		jid, err := types.ParseJID(recipient)
		if err != nil {
			return types.JID{}, fmt.Errorf("invalid JID %q: %w", recipient, err)
		}
		return jid, nil
	}
	var b strings.Builder
	for _, r := range recipient {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return types.JID{}, fmt.Errorf("invalid phone number %q", recipient)
		}
	}
	digits := b.String()
	if len(digits) < 8 || len(digits) > 15 {
		return types.JID{}, fmt.Errorf("invalid phone number %q", recipient)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
