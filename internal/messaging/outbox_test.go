package messaging

import (
	"testing"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

func TestMediaOutboxExpires(t *testing.T) {
	now := time.Unix(1700000000, 0)
	o := NewMediaOutbox(time.Minute)
	o.now = func() time.Time { return now }

	token := o.Put(models.Media{Data: []byte("x")})
	if _, ok := o.Get(token); !ok {
		t.Fatal("fresh entry missing")
	}
	if _, ok := o.Get("unknown"); ok {
		t.Error("unknown token found")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := o.Get(token); ok {
		t.Error("expired entry still served")
	}
	o.Put(models.Media{})
	if len(o.entries) != 1 {
		t.Errorf("expired entries not pruned: %d", len(o.entries))
	}
}
