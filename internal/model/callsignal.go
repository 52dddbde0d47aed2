package model

// SignalType is the kind of call-control event.
type SignalType string

const (
	SignalInitiated SignalType = "call-initiated"
	SignalRinging   SignalType = "call-ringing"
	SignalAccepted  SignalType = "call-accepted"
	SignalRejected  SignalType = "call-rejected"
	SignalEnded     SignalType = "call-ended"
	SignalCancelled SignalType = "call-cancelled"
)

// Valid reports whether t is a known signal type.
func (t SignalType) Valid() bool {
	switch t {
	case SignalInitiated, SignalRinging, SignalAccepted, SignalRejected, SignalEnded, SignalCancelled:
		return true
	}
	return false
}

// Terminal reports whether the signal closes the call for its receiver.
func (t SignalType) Terminal() bool {
	switch t {
	case SignalRejected, SignalEnded, SignalCancelled:
		return true
	}
	return false
}

// CallType is the media kind of a call.
type CallType string

const (
	CallVoice CallType = "voice"
	CallVideo CallType = "video"
)

// Valid reports whether t is a known call type.
func (t CallType) Valid() bool {
	return t == CallVoice || t == CallVideo
}

// CallSignal is an ephemeral call-control event addressed to one user.
// Timestamp is in unix milliseconds and strictly increasing within one channel.
type CallSignal struct {
	ID             string     `json:"id"`
	Type           SignalType `json:"type"`
	CallID         string     `json:"call_id"`
	FromUserID     string     `json:"from_user_id"`
	ToUserID       string     `json:"to_user_id"`
	ConversationID string     `json:"conversation_id"`
	CallType       CallType   `json:"call_type"`
	RoomURL        string     `json:"room_url,omitempty"`
	Timestamp      int64      `json:"timestamp"`
}

// SendSignalRequest is the request to append a call signal. The sender is the caller.
type SendSignalRequest struct {
	Type           SignalType `json:"type"`
	CallID         string     `json:"call_id,omitempty"`
	ToUserID       string     `json:"to_user_id"`
	ConversationID string     `json:"conversation_id"`
	CallType       CallType   `json:"call_type"`
	RoomURL        string     `json:"room_url,omitempty"`
}

// PollSignalsResponse carries signals newer than the requested watermark.
type PollSignalsResponse struct {
	Signals   []CallSignal `json:"signals"`
	Watermark int64        `json:"watermark"`
}
