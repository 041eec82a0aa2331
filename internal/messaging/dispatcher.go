package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/zailonsoft/carbot/internal/metrics"
	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/store"
)

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg models.InboundMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg models.InboundMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg models.InboundMessage) error {
	return f(ctx, msg)
}

// Dispatcher runs the handler sequentially per conversation id and
// concurrently across ids. Each busy conversation gets one goroutine that
// drains its FIFO queue and exits when the queue is empty.
type Dispatcher struct {
	handler Handler
	dedup   store.DedupRepo
	metrics *metrics.Metrics

	mu     sync.Mutex
	queues map[string][]models.InboundMessage
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDedup drops messages whose id was already recorded.
func WithDedup(d store.DedupRepo) DispatcherOption {
	return func(disp *Dispatcher) { disp.dedup = d }
}

// WithMetrics records inbound counts.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// NewDispatcher creates a Dispatcher for handler.
func NewDispatcher(handler Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{handler: handler, queues: make(map[string][]models.InboundMessage)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run dispatches messages from in until it is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, in <-chan models.InboundMessage) {
	slog.Info("Dispatcher starting")
	defer slog.Info("Dispatcher stopped")
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				slog.Debug("Dispatcher inbound channel closed")
				return
			}
			d.Dispatch(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch queues msg behind any in-flight work for its conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, msg models.InboundMessage) {
	if msg.ConversationID == "" {
		slog.Warn("Dispatcher dropping message without conversation id", "id", msg.ID)
		return
	}
	if d.dedup != nil {
		fresh, err := d.dedup.RecordInbound(ctx, msg.ID, msg.ConversationID)
		if err != nil {
			slog.Error("Dispatcher dedup check failed", "error", err, "conversation", msg.ConversationID)
		} else if !fresh {
			slog.Debug("Dispatcher dropping duplicate message", "id", msg.ID, "conversation", msg.ConversationID)
			return
		}
	}
	kind := "text"
	if msg.HasMedia {
		kind = "media"
	}
	d.metrics.ObserveInbound(kind)

	d.mu.Lock()
	q, busy := d.queues[msg.ConversationID]
	d.queues[msg.ConversationID] = append(q, msg)
	if !busy {
		d.wg.Add(1)
		go d.drain(ctx, msg.ConversationID)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) next(id string) (models.InboundMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queues[id]
	if len(q) == 0 {
		delete(d.queues, id)
		return models.InboundMessage{}, false
	}
	msg := q[0]
	d.queues[id] = q[1:]
	return msg, true
}

func (d *Dispatcher) drain(ctx context.Context, id string) {
	defer d.wg.Done()
	// A message already taken runs to completion even during shutdown.
	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			d.mu.Lock()
			dropped := len(d.queues[id])
			delete(d.queues, id)
			d.mu.Unlock()
			if dropped > 0 {
				slog.Warn("Dispatcher dropping queued messages on shutdown", "conversation", id, "count", dropped)
			}
			return
		}
		msg, ok := d.next(id)
		if !ok {
			return
		}
		if err := d.call(work, msg); err != nil {
			slog.Error("Dispatcher handler failed", "error", err, "conversation", id)
		}
	}
}

func (d *Dispatcher) call(ctx context.Context, msg models.InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher handler panic", "panic", r, "conversation", msg.ConversationID, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handler.Handle(ctx, msg)
}

// Pending returns the number of conversations with queued or in-flight work.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Wait blocks until every conversation worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
