// Package messaging connects chat channels to the dialog engine.
//
// A Service is one chat transport (whatsmeow or Twilio). The Dispatcher reads
// its inbound channel and runs the handler sequentially per conversation.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

const (
	// DefaultChannelBufferSize defines the buffer size for inbound and receipt channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds a blocked channel send before the event is dropped.
	DefaultChannelTimeout = 1 * time.Second
)

var (
	// ErrServiceStopped is returned by sends after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrInvalidRecipient wraps recipient validation failures.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// Service defines a pluggable chat transport.
type Service interface {
	// ValidateAndCanonicalizeRecipient returns the transport's canonical form
	// of a recipient, the same form used as conversation id on inbound messages.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message.
	SendMessage(ctx context.Context, to string, body string) error

	// SendMedia sends one attachment with an optional caption.
	SendMedia(ctx context.Context, to string, media models.Media, caption string) error

	// SetComposing shows the typing indicator, where supported.
	SetComposing(ctx context.Context, to string) error

	// Start connects the transport and begins emitting inbound events.
	Start(ctx context.Context) error

	// Stop disconnects and closes the event channels.
	Stop() error

	// Ready reports whether the transport can deliver messages.
	Ready() bool

	// Inbound returns customer messages.
	Inbound() <-chan models.InboundMessage

	// Receipts returns delivery events for sent messages.
	Receipts() <-chan models.Receipt
}

// events owns the channels shared by every Service implementation. Stop
// takes the write lock, so it waits for in-flight emits before closing.
type events struct {
	name     string
	mu       sync.RWMutex
	stopped  bool
	inbound  chan models.InboundMessage
	receipts chan models.Receipt
}

func newEvents(name string) *events {
	return &events{
		name:     name,
		inbound:  make(chan models.InboundMessage, DefaultChannelBufferSize),
		receipts: make(chan models.Receipt, DefaultChannelBufferSize),
	}
}

func (e *events) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

func (e *events) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	close(e.inbound)
	close(e.receipts)
	slog.Info(e.name+" stopped and channels closed")
}

func (e *events) emitInbound(msg models.InboundMessage) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		slog.Warn(e.name+" dropping inbound message (service stopped)", "conversation", msg.ConversationID)
		return false
	}
	select {
	case e.inbound <- msg:
		slog.Debug(e.name+" inbound message forwarded", "conversation", msg.ConversationID, "has_media", msg.HasMedia)
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(e.name+" inbound channel blocked, dropping message", "conversation", msg.ConversationID, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (e *events) emitReceipt(r models.Receipt) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return
	}
	select {
	case e.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(e.name+" receipts channel blocked, dropping receipt", "to", r.To, "status", r.Status)
	}
}

// Inbound returns customer messages.
func (e *events) Inbound() <-chan models.InboundMessage {
	return e.inbound
}

// Receipts returns delivery events.
func (e *events) Receipts() <-chan models.Receipt {
	return e.receipts
}
