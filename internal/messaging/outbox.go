package messaging

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zailonsoft/carbot/internal/models"
)

// DefaultOutboxTTL is how long outbound media stays fetchable.
const DefaultOutboxTTL = time.Hour

// MediaOutbox holds outbound attachments under random tokens until the
// transport (Twilio) fetches them by URL.
type MediaOutbox struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]outboxEntry
	now     func() time.Time
}

type outboxEntry struct {
	media   models.Media
	expires time.Time
}

// NewMediaOutbox creates an outbox. A non-positive ttl uses DefaultOutboxTTL.
func NewMediaOutbox(ttl time.Duration) *MediaOutbox {
	if ttl <= 0 {
		ttl = DefaultOutboxTTL
	}
	return &MediaOutbox{ttl: ttl, entries: make(map[string]outboxEntry), now: time.Now}
}

// Put stores media and returns its token.
func (o *MediaOutbox) Put(m models.Media) string {
	token := uuid.NewString()
	now := o.now()
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, e := range o.entries {
		if now.After(e.expires) {
			delete(o.entries, k)
		}
	}
	o.entries[token] = outboxEntry{media: m, expires: now.Add(o.ttl)}
	return token
}

// Get returns unexpired media for a token.
func (o *MediaOutbox) Get(token string) (models.Media, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[token]
	if !ok || o.now().After(e.expires) {
		return models.Media{}, false
	}
	return e.media, true
}
