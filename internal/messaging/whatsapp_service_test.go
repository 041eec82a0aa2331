package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/whatsapp"
)

var customerJID = types.NewJID("5511999990000", types.DefaultUserServer)

func messageEvent(chat types.JID, msg *waE2E.Message) *waEvents.Message {
	return &waEvents.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: chat},
			ID:            "3EB0ABC",
			PushName:      "Ana",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: msg,
	}
}

func receiveOne(t *testing.T, ch <-chan models.InboundMessage) models.InboundMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("no inbound message")
		return models.InboundMessage{}
	}
}

func TestWhatsAppServiceInboundText(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()
	if !svc.Ready() {
		t.Error("service should be ready after Start")
	}

	mock.Emit(messageEvent(customerJID, &waE2E.Message{Conversation: proto.String("oi")}))
	got := receiveOne(t, svc.Inbound())
	if got.ConversationID != "5511999990000@s.whatsapp.net" || got.Text != "oi" || got.HasMedia {
		t.Errorf("inbound = %+v", got)
	}
	if got.ID != "3EB0ABC" || got.PushName != "Ana" {
		t.Errorf("metadata not copied: %+v", got)
	}

	mock.Emit(messageEvent(customerJID, &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quero financiar")}}))
	if got := receiveOne(t, svc.Inbound()); got.Text != "quero financiar" {
		t.Errorf("extended text = %q", got.Text)
	}
}

func TestWhatsAppServiceInboundMedia(t *testing.T) {
	mock := whatsapp.NewMockClient()
	mock.DownloadData = []byte{0xff, 0xd8}
	svc := NewWhatsAppService(mock)
	defer svc.Stop()

	mock.Emit(messageEvent(customerJID, &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Mimetype: proto.String("image/jpeg"),
		Caption:  proto.String("meu rg"),
	}}))
	got := receiveOne(t, svc.Inbound())
	if !got.HasMedia || got.Text != "meu rg" || got.Download == nil {
		t.Fatalf("inbound = %+v", got)
	}
	media, err := got.Download(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if media.Mimetype != "image/jpeg" || len(media.Data) != 2 {
		t.Errorf("media = %+v", media)
	}

	mock.Emit(messageEvent(customerJID, &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Mimetype: proto.String("application/pdf"),
		FileName: proto.String("renda.pdf"),
	}}))
	doc := receiveOne(t, svc.Inbound())
	mock.DownloadErr = errors.New("expired")
	if _, err := doc.Download(context.Background()); err == nil {
		t.Error("expected download error")
	}
}

func TestWhatsAppServiceIgnoresGroupsBroadcastsAndSelf(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	defer svc.Stop()

	text := &waE2E.Message{Conversation: proto.String("oi")}
	group := messageEvent(types.NewJID("1203630", types.GroupServer), text)
	group.Info.IsGroup = true
	self := messageEvent(customerJID, text)
	self.Info.IsFromMe = true
	broadcast := messageEvent(types.StatusBroadcastJID, text)
	empty := messageEvent(customerJID, &waE2E.Message{})

	for _, evt := range []*waEvents.Message{group, self, broadcast, empty} {
		mock.Emit(evt)
	}
	select {
	case m := <-svc.Inbound():
		t.Errorf("unexpected inbound %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWhatsAppServiceSend(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	ctx := context.Background()

	if err := svc.SendMessage(ctx, "5511999990000", "olá"); err != nil {
		t.Fatal(err)
	}
	if err := svc.SendMedia(ctx, customerJID.String(), models.Media{Data: []byte{1}, Mimetype: "image/png"}, "Gol"); err != nil {
		t.Fatal(err)
	}
	if err := svc.SendMedia(ctx, customerJID.String(), models.Media{Data: []byte{1}, Mimetype: "application/pdf", Filename: "rg.pdf"}, ""); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetComposing(ctx, customerJID.String()); err != nil {
		t.Fatal(err)
	}

	sent := mock.Messages()
	if len(sent) != 3 {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].To != customerJID || sent[0].Kind != "text" {
		t.Errorf("text = %+v", sent[0])
	}
	if sent[1].Kind != "image" || sent[2].Kind != "document" || sent[2].Filename != "rg.pdf" {
		t.Errorf("media kinds = %s, %s", sent[1].Kind, sent[2].Kind)
	}
	if len(mock.Composing) != 1 {
		t.Errorf("composing = %v", mock.Composing)
	}

	receipt := <-svc.Receipts()
	if receipt.Status != models.StatusTypeSent || receipt.To != customerJID.String() {
		t.Errorf("receipt = %+v", receipt)
	}

	if err := svc.SendMessage(ctx, "abc", "x"); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient, got %v", err)
	}
	svc.Stop()
	if err := svc.SendMessage(ctx, "5511999990000", "x"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestWhatsAppServiceReceiptsAndConnection(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)
	defer svc.Stop()

	mock.Emit(&waEvents.Receipt{
		MessageSource: types.MessageSource{Chat: customerJID},
		Type:          waEvents.ReceiptTypeRead,
		Timestamp:     time.Unix(1700000000, 0),
	})
	select {
	case r := <-svc.Receipts():
		if r.Status != models.StatusTypeRead {
			t.Errorf("status = %s", r.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no receipt")
	}

	mock.Emit(&waEvents.Connected{})
	if !svc.Ready() {
		t.Error("Connected should mark ready")
	}
	mock.Emit(&waEvents.Disconnected{})
	if svc.Ready() {
		t.Error("Disconnected should clear ready")
	}
}

func TestWhatsAppServiceCanonicalize(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	got, err := svc.ValidateAndCanonicalizeRecipient("+55 11 99999-0000")
	if err != nil || got != "5511999990000@s.whatsapp.net" {
		t.Errorf("got %q, %v", got, err)
	}
}
