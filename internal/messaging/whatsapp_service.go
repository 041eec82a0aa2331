package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"

	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/whatsapp"
)

// WhatsAppService implements Service over the whatsmeow client.
type WhatsAppService struct {
	*events
	client whatsapp.Messenger
	ready  atomic.Bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given client.
func NewWhatsAppService(client whatsapp.Messenger) *WhatsAppService {
	s := &WhatsAppService{events: newEvents("WhatsAppService"), client: client}
	client.OnEvent(s.handleEvent)
	return s
}

// ValidateAndCanonicalizeRecipient returns the JID string for a phone number or JID.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	jid, err := whatsapp.ToJID(recipient)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	return jid.String(), nil
}

func (s *WhatsAppService) jid(to string) (types.JID, error) {
	if s.isStopped() {
		return types.JID{}, ErrServiceStopped
	}
	jid, err := whatsapp.ToJID(to)
	if err != nil {
		return types.JID{}, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	return jid, nil
}

// Start connects the client, running the login flow if the device is new.
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	s.ready.Store(true)
	slog.Info("WhatsAppService started")
	return nil
}

// Stop disconnects the client and closes the channels.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	s.ready.Store(false)
	s.client.Disconnect()
	s.close()
	return nil
}

// Ready reports whether the client is connected.
func (s *WhatsAppService) Ready() bool {
	return s.ready.Load()
}

// SendMessage sends a text message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	jid, err := s.jid(to)
	if err != nil {
		return err
	}
	if err := s.client.SendText(ctx, jid, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", to)
		return err
	}
	s.emitReceipt(models.Receipt{To: jid.String(), Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// SendMedia sends images inline and anything else as a document.
func (s *WhatsAppService) SendMedia(ctx context.Context, to string, media models.Media, caption string) error {
	jid, err := s.jid(to)
	if err != nil {
		return err
	}
	if strings.HasPrefix(media.Mimetype, "image/") {
		err = s.client.SendImage(ctx, jid, media.Data, media.Mimetype, caption)
	} else {
		err = s.client.SendDocument(ctx, jid, media.Data, media.Mimetype, media.Filename, caption)
	}
	if err != nil {
		slog.Error("WhatsAppService SendMedia error", "error", err, "to", to, "mimetype", media.Mimetype)
		return err
	}
	s.emitReceipt(models.Receipt{To: jid.String(), Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// SetComposing shows the typing indicator.
func (s *WhatsAppService) SetComposing(ctx context.Context, to string) error {
	jid, err := s.jid(to)
	if err != nil {
		return err
	}
	return s.client.SetComposing(ctx, jid)
}

func (s *WhatsAppService) handleEvent(evt any) {
	switch v := evt.(type) {
	case *waEvents.Message:
		s.handleIncomingMessage(v)
	case *waEvents.Receipt:
		s.handleMessageReceipt(v)
	case *waEvents.Connected:
		s.ready.Store(true)
	case *waEvents.Disconnected:
		s.ready.Store(false)
		slog.Warn("WhatsAppService disconnected")
	case *waEvents.LoggedOut:
		s.ready.Store(false)
		slog.Error("WhatsAppService device logged out", "reason", v.Reason)
	}
}

func (s *WhatsAppService) handleIncomingMessage(evt *waEvents.Message) {
	msg, ok := s.convert(evt)
	if !ok {
		return
	}
	s.emitInbound(msg)
}

// convert maps a whatsmeow message to the engine envelope. Own messages,
// groups and broadcasts are dropped.
func (s *WhatsAppService) convert(evt *waEvents.Message) (models.InboundMessage, bool) {
	if evt == nil || evt.Message == nil {
		return models.InboundMessage{}, false
	}
	info := evt.Info
	if info.IsFromMe || info.IsGroup || info.Chat.Server == types.BroadcastServer {
		slog.Debug("WhatsAppService ignoring message", "chat", info.Chat.String(), "from_me", info.IsFromMe, "group", info.IsGroup)
		return models.InboundMessage{}, false
	}

	m := evt.Message
	out := models.InboundMessage{
		ID:             info.ID,
		ConversationID: info.Chat.ToNonAD().String(),
		PushName:       info.PushName,
		ReceivedAt:     info.Timestamp,
	}
	switch {
	case m.GetConversation() != "":
		out.Text = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		out.Text = m.GetExtendedTextMessage().GetText()
	}

	if img := m.GetImageMessage(); img != nil {
		out.Text = img.GetCaption()
		out.HasMedia = true
		out.Download = s.downloader(img, img.GetMimetype(), "")
	} else if doc := m.GetDocumentMessage(); doc != nil {
		out.Text = doc.GetCaption()
		out.HasMedia = true
		out.Download = s.downloader(doc, doc.GetMimetype(), doc.GetFileName())
	}

	if out.Text == "" && !out.HasMedia {
		slog.Debug("WhatsAppService ignoring unsupported message type", "chat", out.ConversationID)
		return models.InboundMessage{}, false
	}
	return out, true
}

func (s *WhatsAppService) downloader(msg whatsmeow.DownloadableMessage, mimetype, filename string) models.DownloadFunc {
	return func(ctx context.Context) (models.Media, error) {
		data, err := s.client.Download(ctx, msg)
		if err != nil {
			return models.Media{}, err
		}
		return models.Media{Data: data, Mimetype: mimetype, Filename: filename}, nil
	}
}

func (s *WhatsAppService) handleMessageReceipt(evt *waEvents.Receipt) {
	var status models.StatusType
	switch evt.Type {
	case waEvents.ReceiptTypeDelivered:
		status = models.StatusTypeDelivered
	case waEvents.ReceiptTypeRead:
		status = models.StatusTypeRead
	default:
		return
	}
	s.emitReceipt(models.Receipt{To: evt.Chat.String(), Status: status, Time: evt.Timestamp.Unix()})
}
