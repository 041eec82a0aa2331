package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/twiliowhatsapp"
)

// MediaPathPrefix is where the ops server exposes outbox media to Twilio.
const MediaPathPrefix = "/media/"

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// emptyTwiML acknowledges a webhook without sending a reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService implements Service using the Twilio API. Inbound messages
// arrive through WebhookHandler.
type TwilioService struct {
	*events
	client        twiliowhatsapp.Sender
	outbox        *MediaOutbox
	publicBaseURL string
	verify        bool
	ready         atomic.Bool
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithPublicBaseURL sets the externally reachable base URL of the ops
// server. It is required for outbound media and for signature checks.
func WithPublicBaseURL(base string) TwilioOption {
	return func(s *TwilioService) { s.publicBaseURL = strings.TrimRight(base, "/") }
}

// WithSignatureValidation toggles X-Twilio-Signature verification.
func WithSignatureValidation(enabled bool) TwilioOption {
	return func(s *TwilioService) { s.verify = enabled }
}

// NewTwilioService creates a TwilioService around client.
func NewTwilioService(client twiliowhatsapp.Sender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		events: newEvents("TwilioService"),
		client: client,
		outbox: NewMediaOutbox(DefaultOutboxTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAndCanonicalizeRecipient strips the whatsapp: prefix and
// formatting and returns "+<digits>".
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	canonical := phoneNumberRegex.ReplaceAllString(twiliowhatsapp.StripAddress(recipient), "")
	if canonical == "" {
		return "", fmt.Errorf("%w: no digits found in %q", ErrInvalidRecipient, recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("%w: %q is too short (minimum 6 digits required)", ErrInvalidRecipient, canonical)
	}
	return "+" + canonical, nil
}

// Start marks the service ready; Twilio needs no connection.
func (s *TwilioService) Start(ctx context.Context) error {
	s.ready.Store(true)
	slog.Info("TwilioService started", "media_enabled", s.publicBaseURL != "", "verify_signature", s.verify)
	return nil
}

// Stop closes the channels.
func (s *TwilioService) Stop() error {
	s.ready.Store(false)
	s.close()
	return nil
}

// Ready reports whether Start has run.
func (s *TwilioService) Ready() bool {
	return s.ready.Load()
}

// Outbox returns the store backing outbound media URLs.
func (s *TwilioService) Outbox() *MediaOutbox {
	return s.outbox
}

// SendMessage sends a message via Twilio and emits a receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// SendMedia publishes media in the outbox and asks Twilio to fetch it.
// Without a public base URL only the caption is sent.
func (s *TwilioService) SendMedia(ctx context.Context, to string, media models.Media, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if s.publicBaseURL == "" {
		slog.Warn("TwilioService media skipped, no public base URL", "to", canonicalTo)
		if caption == "" {
			return nil
		}
		return s.SendMessage(ctx, canonicalTo, caption)
	}
	token := s.outbox.Put(media)
	if err := s.client.SendMedia(ctx, canonicalTo, s.publicBaseURL+MediaPathPrefix+token, caption); err != nil {
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// SetComposing is a no-op: Twilio has no typing indicator for WhatsApp.
func (s *TwilioService) SetComposing(ctx context.Context, to string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return nil
}

func (s *TwilioService) verified(r *http.Request) bool {
	if !s.verify {
		return true
	}
	if s.publicBaseURL == "" {
		slog.Warn("TwilioService cannot verify signature without a public base URL")
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return s.client.ValidateWebhook(s.publicBaseURL+r.URL.RequestURI(), params, r.Header.Get("X-Twilio-Signature"))
}

// WebhookHandler handles inbound Twilio message webhooks.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService failed to parse webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if !s.verified(r) {
		slog.Warn("TwilioService webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from, err := s.ValidateAndCanonicalizeRecipient(r.PostFormValue("From"))
	if err != nil {
		slog.Warn("TwilioService webhook invalid sender", "error", err)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	body := r.PostFormValue("Body")
	numMedia, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
	if body == "" && numMedia == 0 {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	msg := models.InboundMessage{
		ID:             r.PostFormValue("MessageSid"),
		ConversationID: from,
		PushName:       r.PostFormValue("ProfileName"),
		Text:           body,
		ReceivedAt:     time.Now(),
	}
	if numMedia > 0 {
		if mediaURL := r.PostFormValue("MediaUrl0"); mediaURL != "" {
			declared := r.PostFormValue("MediaContentType0")
			msg.HasMedia = true
			msg.Download = func(ctx context.Context) (models.Media, error) {
				data, mime, err := s.client.FetchMedia(ctx, mediaURL)
				if err != nil {
					return models.Media{}, err
				}
				if declared != "" {
					mime = declared
				}
				return models.Media{Data: data, Mimetype: mime}, nil
			}
		}
	}

	slog.Info("TwilioService inbound message", "conversation", from, "has_media", msg.HasMedia)
	if !s.emitInbound(msg) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}

// StatusHandler handles Twilio status callbacks and emits receipts.
func (s *TwilioService) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if !s.verified(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var status models.StatusType
	switch r.PostFormValue("MessageStatus") {
	case "sent":
		status = models.StatusTypeSent
	case "delivered":
		status = models.StatusTypeDelivered
	case "read":
		status = models.StatusTypeRead
	}
	if status != "" {
		to, err := s.ValidateAndCanonicalizeRecipient(r.PostFormValue("To"))
		if err == nil {
			s.emitReceipt(models.Receipt{To: to, Status: status, Time: time.Now().Unix()})
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
