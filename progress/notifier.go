// Package progress delivers workflow progress events to the observer of a
// session.
package progress

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// Publisher accepts progress events keyed by session id. Publishing never
// fails and never blocks the caller.
type Publisher interface {
	Publish(sessionID string, kind domain.ProgressKind, message string)
}

const defaultBuffer = 64

// Notifier keeps at most one subscriber per session. Registering again for a
// session replaces the previous subscriber and closes its channel.
type Notifier struct {
	buffer int
	now    func() time.Time
	log    *log.Logger

	mu   sync.Mutex
	subs map[string]chan domain.ProgressEvent
}

// NewNotifier creates a Notifier whose subscriber channels hold buffer
// events. A non-positive buffer uses the default.
func NewNotifier(buffer int, logger *log.Logger) *Notifier {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifier{
		buffer: buffer,
		now:    time.Now,
		log:    logger,
		subs:   make(map[string]chan domain.ProgressEvent),
	}
}

// Register subscribes to sessionID. The returned cancel func unsubscribes and
// is safe to call after the subscription was replaced.
func (n *Notifier) Register(sessionID string) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, n.buffer)
	n.mu.Lock()
	if old, ok := n.subs[sessionID]; ok {
		close(old)
		n.log.WithField("session", sessionID).Debug("progress subscriber replaced")
	}
	n.subs[sessionID] = ch
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if cur, ok := n.subs[sessionID]; ok && cur == ch {
				delete(n.subs, sessionID)
				close(ch)
			}
		})
	}
}

// Publish stamps and delivers an event.
func (n *Notifier) Publish(sessionID string, kind domain.ProgressKind, message string) {
	n.Deliver(domain.ProgressEvent{
		SessionID: sessionID,
		Kind:      kind,
		Message:   message,
		Timestamp: n.now(),
	})
}

// Deliver hands ev to the subscriber of its session. Events for sessions
// without a subscriber are dropped, as are events for a subscriber whose
// buffer is full.
func (n *Notifier) Deliver(ev domain.ProgressEvent) {
	if ev.SessionID == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.subs[ev.SessionID]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		n.log.WithField("session", ev.SessionID).Warn("progress subscriber is slow, event dropped")
	}
}

// Subscribers returns the number of registered sessions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
