package session

import (
	"reflect"
	"sort"

	"github.com/guardforce/messaging-platform/internal/model"
)

// ItemState is the local delivery state of a timeline item.
type ItemState string

const (
	ItemConfirmed ItemState = "confirmed"
	ItemPending   ItemState = "pending"
	ItemFailed    ItemState = "failed"
)

// Item is one message as shown to the user. Pending and failed items have no
// server id yet and are keyed by their client nonce.
type Item struct {
	model.Message
	State ItemState
}

type pendingEntry struct {
	req    model.SendMessageRequest
	msg    model.Message
	failed bool
}

// timeline merges confirmed server messages with optimistic local sends.
type timeline struct {
	conversationID string
	confirmed      map[string]model.Message
	pending        map[string]*pendingEntry
	order          []string // pending nonces in send order
}

func newTimeline(conversationID string) *timeline {
	return &timeline{
		conversationID: conversationID,
		confirmed:      make(map[string]model.Message),
		pending:        make(map[string]*pendingEntry),
	}
}

// merge applies server messages. A message carrying the nonce of a pending
// entry replaces it. Statuses never move backwards. It reports whether
// anything visible changed.
func (t *timeline) merge(msgs []model.Message) bool {
	changed := false
	for _, m := range msgs {
		if m.ClientNonce != "" {
			if _, ok := t.pending[m.ClientNonce]; ok {
				t.removePending(m.ClientNonce)
				changed = true
			}
		}
		if old, ok := t.confirmed[m.ID]; ok {
			// A send response can arrive after a poll already saw the message delivered.
			if old.Status.Rank() > m.Status.Rank() {
				m.Status = old.Status
			}
			if reflect.DeepEqual(old, m) {
				continue
			}
		}
		t.confirmed[m.ID] = m
		changed = true
	}
	return changed
}

func (t *timeline) addPending(nonce string, req model.SendMessageRequest, msg model.Message) {
	t.pending[nonce] = &pendingEntry{req: req, msg: msg}
	t.order = append(t.order, nonce)
}

func (t *timeline) setFailed(nonce string, failed bool) bool {
	entry, ok := t.pending[nonce]
	if !ok {
		return false
	}
	entry.failed = failed
	return true
}

func (t *timeline) removePending(nonce string) {
	delete(t.pending, nonce)
	for i, n := range t.order {
		if n == nonce {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// newest returns the id of the newest confirmed message.
func (t *timeline) newest() string {
	var newest *model.Message
	for id := range t.confirmed {
		m := t.confirmed[id]
		if newest == nil || less(*newest, m) {
			newest = &m
		}
	}
	if newest == nil {
		return ""
	}
	return newest.ID
}

// items returns confirmed messages ordered by server timestamp then id,
// followed by pending messages in send order.
func (t *timeline) items() []Item {
	out := make([]Item, 0, len(t.confirmed)+len(t.order))
	for _, m := range t.confirmed {
		out = append(out, Item{Message: m, State: ItemConfirmed})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Message, out[j].Message) })

	for _, nonce := range t.order {
		entry := t.pending[nonce]
		state := ItemPending
		if entry.failed {
			state = ItemFailed
		}
		out = append(out, Item{Message: entry.msg, State: state})
	}
	return out
}

func less(a, b model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
