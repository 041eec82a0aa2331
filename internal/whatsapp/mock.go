package whatsapp

import (
	"context"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

// SentMessage is one call recorded by MockClient.
type SentMessage struct {
	To       types.JID
	Kind     string // text, image, document
	Body     string // text body or caption
	Data     []byte
	Mimetype string
	Filename string
}

// MockClient implements Messenger without a network connection. In tests,
// use NewMockClient instead of NewClient.
type MockClient struct {
	mu        sync.Mutex
	Sent      []SentMessage
	Composing []types.JID
	handlers  []func(evt any)

	// SendErr, when set, is returned by every send call.
	SendErr error
	// DownloadData and DownloadErr are returned by Download.
	DownloadData []byte
	DownloadErr  error
	Connected    bool
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.Connected = true
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Disconnect() {
	m.mu.Lock()
	m.Connected = false
	m.mu.Unlock()
}

func (m *MockClient) record(msg SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

func (m *MockClient) SendText(ctx context.Context, to types.JID, body string) error {
	return m.record(SentMessage{To: to, Kind: "text", Body: body})
}

func (m *MockClient) SendImage(ctx context.Context, to types.JID, data []byte, mimetype, caption string) error {
	return m.record(SentMessage{To: to, Kind: "image", Body: caption, Data: data, Mimetype: mimetype})
}

func (m *MockClient) SendDocument(ctx context.Context, to types.JID, data []byte, mimetype, filename, caption string) error {
	return m.record(SentMessage{To: to, Kind: "document", Body: caption, Data: data, Mimetype: mimetype, Filename: filename})
}

func (m *MockClient) SetComposing(ctx context.Context, to types.JID) error {
	m.mu.Lock()
	m.Composing = append(m.Composing, to)
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return m.DownloadData, m.DownloadErr
}

func (m *MockClient) OnEvent(handler func(evt any)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler)
	m.mu.Unlock()
}

// Emit delivers evt to every registered handler, as whatsmeow would.
func (m *MockClient) Emit(evt any) {
	m.mu.Lock()
	handlers := append([]func(evt any){}, m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

// Messages returns a copy of the recorded sends.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Sent...)
}
