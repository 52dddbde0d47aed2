package session

import (
	"time"

	"github.com/guardforce/messaging-platform/internal/model"
)

// CallState is the local view of one call. Caller and callee each keep their
// own; nothing on the server is authoritative.
type CallState string

const (
	CallIdle      CallState = "idle"
	CallOutgoing  CallState = "outgoing"
	CallIncoming  CallState = "incoming"
	CallActive    CallState = "active"
	CallEnded     CallState = "ended"
	CallRejected  CallState = "rejected"
	CallCancelled CallState = "cancelled"
)

// Ringing reports whether the call is waiting for an answer.
func (s CallState) Ringing() bool {
	return s == CallOutgoing || s == CallIncoming
}

// Busy reports whether a call occupies the session.
func (s CallState) Busy() bool {
	return s.Ringing() || s == CallActive
}

// Call is a snapshot of the session's current call.
type Call struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	PeerID         string         `json:"peer_id"`
	Type           model.CallType `json:"type"`
	RoomURL        string         `json:"room_url,omitempty"`
	Outgoing       bool           `json:"outgoing"`
	State          CallState      `json:"state"`
	PeerRinging    bool           `json:"peer_ringing"`
	TimedOut       bool           `json:"timed_out"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// signalOutcome tells the session what to do after a signal was observed.
type signalOutcome struct {
	changed  bool
	incoming bool
	arm      bool
	disarm   bool
	reply    *model.SendSignalRequest
}

// callTracker runs the per-call state machine. The first call-initiated seen
// for a call id wins; later ones for the same id are ignored.
type callTracker struct {
	current *Call
	seen    map[string]struct{}
}

func newCallTracker() *callTracker {
	return &callTracker{seen: make(map[string]struct{})}
}

// snapshot returns a copy of the current call, or an idle call.
func (t *callTracker) snapshot() Call {
	if t.current == nil {
		return Call{State: CallIdle}
	}
	return *t.current
}

func (t *callTracker) busy() bool {
	return t.current != nil && t.current.State.Busy()
}

// observe applies an inbound signal addressed to this user.
func (t *callTracker) observe(sig model.CallSignal, now time.Time) signalOutcome {
	if sig.Type == model.SignalInitiated {
		if _, dup := t.seen[sig.CallID]; dup {
			return signalOutcome{}
		}
		t.seen[sig.CallID] = struct{}{}
		if t.busy() {
			return signalOutcome{}
		}
		t.current = &Call{
			ID:             sig.CallID,
			ConversationID: sig.ConversationID,
			PeerID:         sig.FromUserID,
			Type:           sig.CallType,
			RoomURL:        sig.RoomURL,
			State:          CallIncoming,
			UpdatedAt:      now,
		}
		return signalOutcome{
			changed:  true,
			incoming: true,
			arm:      true,
			reply:    replyTo(t.current, model.SignalRinging),
		}
	}

	c := t.current
	if c == nil || c.ID != sig.CallID || sig.FromUserID != c.PeerID {
		return signalOutcome{}
	}

	switch sig.Type {
	case model.SignalRinging:
		if c.State != CallOutgoing || c.PeerRinging {
			return signalOutcome{}
		}
		c.PeerRinging = true
	case model.SignalAccepted:
		if c.State != CallOutgoing {
			return signalOutcome{}
		}
		c.State = CallActive
		if sig.RoomURL != "" {
			c.RoomURL = sig.RoomURL
		}
	case model.SignalRejected:
		if c.State != CallOutgoing {
			return signalOutcome{}
		}
		c.State = CallRejected
	case model.SignalCancelled:
		if !c.State.Busy() {
			return signalOutcome{}
		}
		c.State = CallCancelled
	case model.SignalEnded:
		if !c.State.Busy() {
			return signalOutcome{}
		}
		c.State = CallEnded
	default:
		return signalOutcome{}
	}
	c.UpdatedAt = now
	return signalOutcome{changed: true, disarm: sig.Type.Terminal() || c.State == CallActive}
}

// outgoing records a call this user initiated.
func (t *callTracker) outgoing(sig model.CallSignal, now time.Time) {
	t.seen[sig.CallID] = struct{}{}
	t.current = &Call{
		ID:             sig.CallID,
		ConversationID: sig.ConversationID,
		PeerID:         sig.ToUserID,
		Type:           sig.CallType,
		RoomURL:        sig.RoomURL,
		Outgoing:       true,
		State:          CallOutgoing,
		UpdatedAt:      now,
	}
}

// transition moves the current call to state if it is still callID.
func (t *callTracker) transition(callID string, state CallState, now time.Time) bool {
	if t.current == nil || t.current.ID != callID {
		return false
	}
	t.current.State = state
	t.current.UpdatedAt = now
	return true
}

// timeout clears a call that is still ringing. It returns the call as it was
// when it timed out and the best-effort signal to send, if any.
func (t *callTracker) timeout(callID string, now time.Time) (*Call, *model.SendSignalRequest) {
	c := t.current
	if c == nil || c.ID != callID || !c.State.Ringing() {
		return nil, nil
	}
	var reply *model.SendSignalRequest
	if c.Outgoing {
		reply = replyTo(c, model.SignalCancelled)
	}
	snapshot := *c
	snapshot.State = CallIdle
	snapshot.TimedOut = true
	snapshot.UpdatedAt = now
	t.current = nil
	return &snapshot, reply
}

func replyTo(c *Call, signalType model.SignalType) *model.SendSignalRequest {
	return &model.SendSignalRequest{
		Type:           signalType,
		CallID:         c.ID,
		ToUserID:       c.PeerID,
		ConversationID: c.ConversationID,
		CallType:       c.Type,
	}
}
