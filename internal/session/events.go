package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/models"
)

const subscriberBuffer = 64

// Bus fans progress events out to per-session subscribers. Delivery is
// best-effort: a subscriber that stops draining loses events rather than
// stalling the pipeline worker.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[int]chan models.ProgressEvent
	next int
	log  *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{subs: make(map[string]map[int]chan models.ProgressEvent), log: log}
}

// Subscribe registers a listener for one session's events. The returned
// cancel func must be called when the listener goes away; the channel is
// closed by either cancel or CloseSession, whichever comes first.
func (b *Bus) Subscribe(sessionID string) (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan models.ProgressEvent)
	}
	b.subs[sessionID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[sessionID]; ok {
			if c, ok := set[id]; ok {
				delete(set, id)
				close(c)
			}
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its session.
func (b *Bus) Publish(ev models.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			if b.log != nil {
				b.log.Debug("dropping progress event for slow subscriber",
					zap.String("session_id", ev.SessionID),
					zap.String("stage", ev.Stage))
			}
		}
	}
}

// CloseSession closes all subscriber channels for a finished session.
func (b *Bus) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[sessionID] {
		close(ch)
	}
	delete(b.subs, sessionID)
}
