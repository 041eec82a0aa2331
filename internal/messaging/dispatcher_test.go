package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zailonsoft/carbot/internal/metrics"
	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/store"
)

type recordingHandler struct {
	mu      sync.Mutex
	order   map[string][]string
	active  map[string]int
	overlap atomic.Bool
	delay   time.Duration
}

func newRecordingHandler(delay time.Duration) *recordingHandler {
	return &recordingHandler{order: map[string][]string{}, active: map[string]int{}, delay: delay}
}

func (h *recordingHandler) Handle(ctx context.Context, msg models.InboundMessage) error {
	h.mu.Lock()
	h.active[msg.ConversationID]++
	if h.active[msg.ConversationID] > 1 {
		h.overlap.Store(true)
	}
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	h.order[msg.ConversationID] = append(h.order[msg.ConversationID], msg.Text)
	h.active[msg.ConversationID]--
	h.mu.Unlock()
	return nil
}

func TestDispatcherSequentialPerConversation(t *testing.T) {
	h := newRecordingHandler(2 * time.Millisecond)
	d := NewDispatcher(h)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		for _, conv := range []string{"a", "b", "c"} {
			d.Dispatch(ctx, models.InboundMessage{ConversationID: conv, Text: fmt.Sprint(i)})
		}
	}
	d.Wait()

	if h.overlap.Load() {
		t.Fatal("two messages of one conversation ran concurrently")
	}
	for _, conv := range []string{"a", "b", "c"} {
		got := h.order[conv]
		if len(got) != 20 {
			t.Fatalf("%s handled %d messages", conv, len(got))
		}
		for i, text := range got {
			if text != fmt.Sprint(i) {
				t.Fatalf("%s out of order at %d: %v", conv, i, got)
			}
		}
	}
	if d.Pending() != 0 {
		t.Errorf("Pending = %d after Wait", d.Pending())
	}
}

func TestDispatcherConcurrentAcrossConversations(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	d := NewDispatcher(HandlerFunc(func(ctx context.Context, msg models.InboundMessage) error {
		started.Add(1)
		<-release
		return nil
	}))
	ctx := context.Background()
	d.Dispatch(ctx, models.InboundMessage{ConversationID: "a"})
	d.Dispatch(ctx, models.InboundMessage{ConversationID: "b"})

	deadline := time.Now().Add(time.Second)
	for started.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	d.Wait()
	if started.Load() != 2 {
		t.Errorf("conversations did not run in parallel, started = %d", started.Load())
	}
}

func TestDispatcherDedupAndMetrics(t *testing.T) {
	h := newRecordingHandler(0)
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(h, WithDedup(store.NewMemoryDedup(time.Hour)), WithMetrics(m))
	ctx := context.Background()

	msg := models.InboundMessage{ID: "m1", ConversationID: "a", Text: "oi"}
	d.Dispatch(ctx, msg)
	d.Dispatch(ctx, msg)
	d.Dispatch(ctx, models.InboundMessage{ConversationID: ""})
	d.Wait()

	if got := h.order["a"]; len(got) != 1 {
		t.Errorf("duplicate was handled: %v", got)
	}
}

type failingDedup struct{}

func (failingDedup) RecordInbound(context.Context, string, string) (bool, error) {
	return false, errors.New("db down")
}

func TestDispatcherDedupErrorFailsOpen(t *testing.T) {
	h := newRecordingHandler(0)
	d := NewDispatcher(h, WithDedup(failingDedup{}))
	d.Dispatch(context.Background(), models.InboundMessage{ID: "m1", ConversationID: "a", Text: "oi"})
	d.Wait()
	if len(h.order["a"]) != 1 {
		t.Error("message dropped when dedup failed")
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(HandlerFunc(func(ctx context.Context, msg models.InboundMessage) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}))
	ctx := context.Background()
	d.Dispatch(ctx, models.InboundMessage{ConversationID: "a"})
	d.Dispatch(ctx, models.InboundMessage{ConversationID: "a"})
	d.Wait()
	if calls.Load() != 2 {
		t.Errorf("calls = %d, queue stalled after panic", calls.Load())
	}
}

func TestDispatcherRunStopsOnClose(t *testing.T) {
	h := newRecordingHandler(0)
	d := NewDispatcher(h)
	in := make(chan models.InboundMessage, 2)
	in <- models.InboundMessage{ConversationID: "a", Text: "1"}
	in <- models.InboundMessage{ConversationID: "a", Text: "2"}
	close(in)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), in)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	d.Wait()
	if len(h.order["a"]) != 2 {
		t.Errorf("handled = %v", h.order["a"])
	}
}

func TestDispatcherDropsQueueOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	d := NewDispatcher(HandlerFunc(func(hctx context.Context, msg models.InboundMessage) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			if hctx.Err() != nil {
				t.Error("in-flight handler context was cancelled")
			}
		}
		return nil
	}))
	d.Dispatch(ctx, models.InboundMessage{ConversationID: "a"})
	<-started
	d.Dispatch(ctx, models.InboundMessage{ConversationID: "a"})
	cancel()
	close(release)
	d.Wait()
	if calls.Load() != 1 {
		t.Errorf("calls = %d, queued message should be dropped", calls.Load())
	}
}
