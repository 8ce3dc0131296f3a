package session

import (
	"sync"

	"flowchat/internal/engine"
)

// Broadcaster fans per-node log entries out to live subscribers, keyed by
// session. Delivery is best-effort: a subscriber that falls behind loses
// entries rather than stalling the engine.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan engine.LogEntry]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan engine.LogEntry]struct{})}
}

// Subscribe registers for a session's log entries. The returned cancel
// function must be called to release the subscription; it closes the
// channel.
func (b *Broadcaster) Subscribe(sessionID string) (<-chan engine.LogEntry, func()) {
	ch := make(chan engine.LogEntry, 64)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan engine.LogEntry]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

func (b *Broadcaster) publish(sessionID string, entry engine.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- entry:
		default:
		}
	}
}
