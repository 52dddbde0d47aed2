package session

import (
	"strings"
	"sync"
	"time"
)

// Event kinds published by a Session.
const (
	EventConversationsUpdated = "conversations.updated"
	EventMessagesUpdated      = "messages.updated"
	EventMessageFailed        = "message.failed"
	EventScrollBottom         = "scroll.bottom"
	EventCallIncoming         = "call.incoming"
	EventCallState            = "call.state"
	EventUnreadUpdated        = "unread.updated"
	EventPollDegraded         = "poll.degraded"
	EventPollRecovered        = "poll.recovered"
)

// Event is a state change observed by the session.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Bus is an in-process publish/subscribe event bus with prefix filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends evt to every subscriber whose prefix matches evt.Kind.
// Subscribers with a full buffer miss the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with prefix,
// and a function that cancels the subscription.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
