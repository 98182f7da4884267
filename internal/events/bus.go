// Package events is the in-process stage event bus feeding the case
// progress stream.
package events

import (
	"sync"
	"time"
)

// Event is one pipeline progress notification.
type Event struct {
	CaseUUID   string    `json:"case_uuid"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"` // started | succeeded | failed
	DocumentID string    `json:"document_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// Bus fans events out to per-case subscribers. Slow subscribers drop
// events rather than block the pipeline.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for a case's events. The returned cancel func
// must be called to release the subscription.
func (b *Bus) Subscribe(caseUUID string) (<-chan Event, func()) {
	ch := make(chan Event, 32)

	b.mu.Lock()
	if b.subs[caseUUID] == nil {
		b.subs[caseUUID] = make(map[chan Event]struct{})
	}
	b.subs[caseUUID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[caseUUID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(b.subs, caseUUID)
				}
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to the case's subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.CaseUUID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
