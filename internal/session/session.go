// Package session orchestrates a client's view of the messaging platform:
// polling cadence, optimistic sends and call-signal dispatch.
package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// Poller names used in poll status events.
const (
	PollerConversations = "conversations"
	PollerMessages      = "messages"
	PollerSignals       = "signals"
)

// MessagePageSize is the window refreshed by the message poller.
const MessagePageSize = 50

// API is the subset of the messaging API the session drives.
type API interface {
	ListConversations(ctx context.Context) (*model.ListConversationsResponse, error)
	ListMessages(ctx context.Context, conversationID string, opts model.ListMessagesOptions) (*model.ListMessagesResponse, error)
	SendMessage(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	SendSignal(ctx context.Context, req *model.SendSignalRequest) (*model.CallSignal, error)
	PollSignals(ctx context.Context, since int64) (*model.PollSignalsResponse, error)
	Unread(ctx context.Context) (*model.UnreadTotals, error)
}

// Options configures poll cadence and thresholds. Zero values take defaults.
type Options struct {
	ListInterval     time.Duration
	MessageInterval  time.Duration
	SignalInterval   time.Duration
	RingTimeout      time.Duration
	FailureThreshold int
	ScrollThreshold  int
}

func (o Options) withDefaults() Options {
	if o.ListInterval <= 0 {
		o.ListInterval = 10 * time.Second
	}
	if o.MessageInterval <= 0 {
		o.MessageInterval = 2 * time.Second
	}
	if o.SignalInterval <= 0 {
		o.SignalInterval = 2 * time.Second
	}
	if o.RingTimeout <= 0 {
		o.RingTimeout = 30 * time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.ScrollThreshold <= 0 {
		o.ScrollThreshold = DefaultScrollThreshold
	}
	return o
}

// MessagesUpdate is the payload of messages.updated.
type MessagesUpdate struct {
	ConversationID string
	Items          []Item
}

// MessageFailure is the payload of message.failed.
type MessageFailure struct {
	ConversationID string
	Nonce          string
	Err            error
}

// PollStatus is the payload of poll.degraded and poll.recovered.
type PollStatus struct {
	Poller   string
	Failures int
	Err      error
}

// ErrNotRunning is returned for actions on a session that is not started.
var ErrNotRunning = errors.New("session not running")

// Session is one user's live connection to the messaging platform. Three
// pollers run while it is started: the conversation list, the open
// conversation's messages, and inbound call signals.
type Session struct {
	api    API
	bus    *Bus
	base   *logger.Logger
	logger *logger.Logger
	opts   Options
	now    func() time.Time

	wg sync.WaitGroup

	mu            sync.Mutex
	running       bool
	ctx           context.Context
	cancel        context.CancelFunc
	userID        string
	conversations []model.ConversationView
	unread        model.UnreadTotals
	active        string
	timeline      *timeline
	msgCancel     context.CancelFunc
	scroll        *scrollTracker
	watermark     int64
	calls         *callTracker
	ringCancel    context.CancelFunc
	failures      map[string]int
	degraded      map[string]bool
}

// New creates a stopped session.
func New(api API, bus *Bus, log *logger.Logger, opts Options) *Session {
	if bus == nil {
		bus = NewBus()
	}
	if log == nil {
		log = logger.Global()
	}
	opts = opts.withDefaults()
	return &Session{
		api:    api,
		bus:    bus,
		base:   log,
		logger: log,
		opts:   opts,
		now:    time.Now,
		scroll: newScrollTracker(opts.ScrollThreshold),
		calls:  newCallTracker(),
	}
}

// Bus returns the bus the session publishes on.
func (s *Session) Bus() *Bus {
	return s.bus
}

// Start begins polling on behalf of userID.
func (s *Session) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id: %w", model.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("session already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.userID = userID
	s.conversations = nil
	s.unread = model.UnreadTotals{}
	s.active = ""
	s.timeline = nil
	s.msgCancel = nil
	s.watermark = 0
	s.calls = newCallTracker()
	s.ringCancel = nil
	s.failures = make(map[string]int)
	s.degraded = make(map[string]bool)
	s.logger = s.base.With(zap.String("user_id", userID))

	ctx = s.ctx
	s.spawn(func() { s.loop(ctx, s.opts.ListInterval, s.refreshConversations) })
	s.spawn(func() { s.loop(ctx, s.opts.SignalInterval, s.pollSignals) })

	s.logger.Info("Session started")
	return nil
}

// Stop cancels every poller and timer and waits for them to exit. It is safe
// to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Session stopped")
}

// spawn runs f on a tracked goroutine. Callers hold s.mu with the session running.
func (s *Session) spawn(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// loop runs fn immediately and then on every tick until ctx is done.
func (s *Session) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) publish(kind string, payload any) {
	s.bus.Publish(Event{Kind: kind, Timestamp: s.now(), Payload: payload})
}

// pollResult tracks consecutive failures per poller and publishes
// degradation and recovery once per transition.
func (s *Session) pollResult(ctx context.Context, poller string, err error) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.failures[poller] = 0
		if s.degraded[poller] {
			s.degraded[poller] = false
			s.logger.Info("Poll recovered", zap.String("poller", poller))
			s.publish(EventPollRecovered, PollStatus{Poller: poller})
		}
		return
	}

	s.failures[poller]++
	n := s.failures[poller]
	if n >= s.opts.FailureThreshold && !s.degraded[poller] {
		s.degraded[poller] = true
		s.logger.Error("Poll degraded",
			zap.String("poller", poller),
			zap.Int("failures", n),
			zap.Error(err),
		)
		s.publish(EventPollDegraded, PollStatus{Poller: poller, Failures: n, Err: err})
		return
	}
	s.logger.Warn("Poll failed",
		zap.String("poller", poller),
		zap.Int("failures", n),
		zap.Error(err),
	)
}

// Conversations returns the last fetched conversation list.
func (s *Session) Conversations() []model.ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ConversationView(nil), s.conversations...)
}

// Unread returns the last fetched unread totals.
func (s *Session) Unread() model.UnreadTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Session) refreshConversations(ctx context.Context) {
	resp, err := s.api.ListConversations(ctx)
	s.pollResult(ctx, PollerConversations, err)
	if err != nil {
		return
	}

	totals, err := s.api.Unread(ctx)
	if err != nil {
		s.logger.Warn("Failed to refresh unread totals", zap.Error(err))
	}

	s.mu.Lock()
	if s.conversations == nil || !reflect.DeepEqual(s.conversations, resp.Conversations) {
		s.conversations = resp.Conversations
		s.publish(EventConversationsUpdated, append([]model.ConversationView(nil), resp.Conversations...))
	}
	if totals != nil && *totals != s.unread {
		s.unread = *totals
		s.publish(EventUnreadUpdated, *totals)
	}
	s.mu.Unlock()
}

// ActiveConversation returns the id of the open conversation, if any.
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Open makes conversationID the active conversation and starts its message
// poller, stopping the poller of any previously open conversation.
func (s *Session) Open(conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id: %w", model.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}
	if s.active == conversationID {
		return nil
	}

	s.stopMessagePoller()
	s.active = conversationID
	s.timeline = newTimeline(conversationID)
	s.scroll.switched()

	ctx, cancel := context.WithCancel(s.ctx)
	s.msgCancel = cancel
	s.spawn(func() {
		s.loop(ctx, s.opts.MessageInterval, func(ctx context.Context) {
			s.refreshMessages(ctx, conversationID)
		})
	})
	return nil
}

// Close closes the active conversation and stops its message poller.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopMessagePoller()
	s.active = ""
	s.timeline = nil
}

func (s *Session) stopMessagePoller() {
	if s.msgCancel != nil {
		s.msgCancel()
		s.msgCancel = nil
	}
	delete(s.failures, PollerMessages)
	delete(s.degraded, PollerMessages)
}

// Messages returns the open conversation's timeline.
func (s *Session) Messages() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeline == nil {
		return nil
	}
	return s.timeline.items()
}

// SetScrollPosition records how far, in pixels, the viewer is from the bottom
// of the message list.
func (s *Session) SetScrollPosition(distanceFromBottom int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scroll.update(distanceFromBottom)
}

func (s *Session) refreshMessages(ctx context.Context, conversationID string) {
	resp, err := s.api.ListMessages(ctx, conversationID, model.ListMessagesOptions{Limit: MessagePageSize})
	s.pollResult(ctx, PollerMessages, err)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.active != conversationID || s.timeline == nil {
		s.mu.Unlock()
		return
	}
	before := s.timeline.newest()
	known := make(map[string]bool, len(s.timeline.confirmed))
	for id := range s.timeline.confirmed {
		known[id] = true
	}
	changed := s.timeline.merge(resp.Messages)
	incoming := false
	for _, m := range resp.Messages {
		if !known[m.ID] && m.SenderID != s.userID {
			incoming = true
		}
	}
	s.afterMerge(conversationID, changed, before)
	s.mu.Unlock()

	if incoming {
		if err := s.api.MarkRead(ctx, conversationID); err != nil && ctx.Err() == nil {
			s.logger.Warn("Failed to mark conversation read",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		}
	}
}

// afterMerge publishes timeline changes. Callers hold s.mu.
func (s *Session) afterMerge(conversationID string, changed bool, previousNewest string) {
	if !changed {
		return
	}
	s.publish(EventMessagesUpdated, MessagesUpdate{ConversationID: conversationID, Items: s.timeline.items()})
	if newest := s.timeline.newest(); newest != "" && newest != previousNewest && s.scroll.grew() {
		s.publish(EventScrollBottom, newest)
	}
}

// Send posts text to the open conversation. The message appears immediately
// as pending and is replaced by the server copy once confirmed. On failure it
// stays in the timeline marked failed until retried or discarded.
func (s *Session) Send(ctx context.Context, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty message: %w", model.ErrInvalidInput)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	if s.timeline == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("no conversation open: %w", model.ErrInvalidInput)
	}
	conversationID := s.active
	nonce := uuid.NewString()
	req := model.SendMessageRequest{Content: &text, MessageType: model.MessageText, ClientNonce: nonce}
	s.timeline.addPending(nonce, req, model.Message{
		ConversationID: conversationID,
		SenderID:       s.userID,
		ClientNonce:    nonce,
		Content:        &text,
		MessageType:    model.MessageText,
		CreatedAt:      s.now(),
	})
	s.publish(EventMessagesUpdated, MessagesUpdate{ConversationID: conversationID, Items: s.timeline.items()})
	s.mu.Unlock()

	return s.deliver(ctx, conversationID, nonce, req)
}

// Retry resends a failed message.
func (s *Session) Retry(ctx context.Context, nonce string) (*model.Message, error) {
	s.mu.Lock()
	if s.timeline == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("no conversation open: %w", model.ErrInvalidInput)
	}
	entry, ok := s.timeline.pending[nonce]
	if !ok || !entry.failed {
		s.mu.Unlock()
		return nil, fmt.Errorf("no failed message %q: %w", nonce, model.ErrNotFound)
	}
	conversationID := s.active
	req := entry.req
	s.timeline.setFailed(nonce, false)
	s.publish(EventMessagesUpdated, MessagesUpdate{ConversationID: conversationID, Items: s.timeline.items()})
	s.mu.Unlock()

	return s.deliver(ctx, conversationID, nonce, req)
}

// Discard drops a failed message from the timeline.
func (s *Session) Discard(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeline == nil {
		return fmt.Errorf("no conversation open: %w", model.ErrInvalidInput)
	}
	entry, ok := s.timeline.pending[nonce]
	if !ok || !entry.failed {
		return fmt.Errorf("no failed message %q: %w", nonce, model.ErrNotFound)
	}
	s.timeline.removePending(nonce)
	s.publish(EventMessagesUpdated, MessagesUpdate{ConversationID: s.active, Items: s.timeline.items()})
	return nil
}

func (s *Session) deliver(ctx context.Context, conversationID, nonce string, req model.SendMessageRequest) (*model.Message, error) {
	msg, err := s.api.SendMessage(ctx, conversationID, &req)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.active == conversationID && s.timeline != nil
	if err != nil {
		s.logger.Warn("Failed to send message",
			zap.String("conversation_id", conversationID),
			zap.String("nonce", nonce),
			zap.Error(err),
		)
		if current && s.timeline.setFailed(nonce, true) {
			s.publish(EventMessagesUpdated, MessagesUpdate{ConversationID: conversationID, Items: s.timeline.items()})
		}
		s.publish(EventMessageFailed, MessageFailure{ConversationID: conversationID, Nonce: nonce, Err: err})
		return nil, err
	}

	if current {
		before := s.timeline.newest()
		if msg.ClientNonce == "" {
			msg.ClientNonce = nonce
		}
		changed := s.timeline.merge([]model.Message{*msg})
		s.afterMerge(conversationID, changed, before)
	}
	return msg, nil
}

// Watermark returns the timestamp of the newest call signal processed.
func (s *Session) Watermark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// ActiveCall returns a snapshot of the current call.
func (s *Session) ActiveCall() Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls.snapshot()
}

func (s *Session) pollSignals(ctx context.Context) {
	s.mu.Lock()
	since := s.watermark
	s.mu.Unlock()

	resp, err := s.api.PollSignals(ctx, since)
	s.pollResult(ctx, PollerSignals, err)
	if err != nil {
		return
	}

	var replies []*model.SendSignalRequest

	s.mu.Lock()
	for _, sig := range resp.Signals {
		if sig.Timestamp <= s.watermark {
			continue
		}
		s.watermark = sig.Timestamp
		if sig.ToUserID != "" && sig.ToUserID != s.userID {
			continue
		}

		out := s.calls.observe(sig, s.now())
		if out.disarm {
			s.disarmRing()
		}
		if out.arm {
			s.armRing(sig.CallID)
		}
		if out.incoming {
			s.publish(EventCallIncoming, s.calls.snapshot())
		}
		if out.changed {
			s.publish(EventCallState, s.calls.snapshot())
		}
		if out.reply != nil {
			replies = append(replies, out.reply)
		}
	}
	if resp.Watermark > s.watermark {
		s.watermark = resp.Watermark
	}
	s.mu.Unlock()

	for _, reply := range replies {
		s.bestEffort(ctx, reply)
	}
}

// bestEffort sends a signal whose loss the protocol tolerates.
func (s *Session) bestEffort(ctx context.Context, req *model.SendSignalRequest) {
	if _, err := s.api.SendSignal(ctx, req); err != nil && ctx.Err() == nil {
		s.logger.ForCall(req.CallID, req.ConversationID).Warn("Failed to send call signal",
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
	}
}

// armRing starts the ringing timeout for callID. Callers hold s.mu.
func (s *Session) armRing(callID string) {
	s.disarmRing()
	if !s.running {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.ringCancel = cancel
	timeout := s.opts.RingTimeout
	s.spawn(func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.ringTimeout(ctx, callID)
		case <-ctx.Done():
		}
	})
}

// disarmRing stops a pending ringing timeout. Callers hold s.mu.
func (s *Session) disarmRing() {
	if s.ringCancel != nil {
		s.ringCancel()
		s.ringCancel = nil
	}
}

func (s *Session) ringTimeout(ctx context.Context, callID string) {
	s.mu.Lock()
	call, reply := s.calls.timeout(callID, s.now())
	var cancel context.CancelFunc
	if call != nil {
		cancel, s.ringCancel = s.ringCancel, nil
		s.logger.ForCall(callID, call.ConversationID).Info("Call timed out", zap.Bool("outgoing", call.Outgoing))
		s.publish(EventCallState, *call)
	}
	s.mu.Unlock()

	if reply != nil {
		s.bestEffort(ctx, reply)
	}
	if cancel != nil {
		cancel()
	}
}

// StartCall signals peerID to join a call in conversationID.
func (s *Session) StartCall(ctx context.Context, conversationID, peerID string, callType model.CallType) (Call, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return Call{}, ErrNotRunning
	}
	if s.calls.busy() {
		s.mu.Unlock()
		return Call{}, fmt.Errorf("call already in progress: %w", model.ErrInvalidInput)
	}
	s.mu.Unlock()

	sig, err := s.api.SendSignal(ctx, &model.SendSignalRequest{
		Type:           model.SignalInitiated,
		ToUserID:       peerID,
		ConversationID: conversationID,
		CallType:       callType,
	})
	if err != nil {
		return Call{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return Call{}, ErrNotRunning
	}
	s.calls.outgoing(*sig, s.now())
	s.armRing(sig.CallID)
	call := s.calls.snapshot()
	s.publish(EventCallState, call)
	return call, nil
}

// Accept answers the incoming call. The call becomes active only once the
// accept signal is stored.
func (s *Session) Accept(ctx context.Context) (Call, error) {
	s.mu.Lock()
	call := s.calls.snapshot()
	s.mu.Unlock()
	if call.State != CallIncoming {
		return call, fmt.Errorf("no incoming call: %w", model.ErrInvalidInput)
	}

	if _, err := s.api.SendSignal(ctx, replyTo(&call, model.SignalAccepted)); err != nil {
		return call, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls.transition(call.ID, CallActive, s.now()) {
		s.disarmRing()
		s.publish(EventCallState, s.calls.snapshot())
	}
	return s.calls.snapshot(), nil
}

// Hangup leaves the current call: an incoming call is rejected, an outgoing
// one cancelled and an active one ended. The local state changes even when
// the signal cannot be delivered; the error is still returned.
func (s *Session) Hangup(ctx context.Context) (Call, error) {
	s.mu.Lock()
	call := s.calls.snapshot()
	var (
		state      CallState
		signalType model.SignalType
	)
	switch {
	case call.State == CallIncoming:
		state, signalType = CallRejected, model.SignalRejected
	case call.State == CallOutgoing:
		state, signalType = CallCancelled, model.SignalCancelled
	case call.State == CallActive:
		state, signalType = CallEnded, model.SignalEnded
	default:
		s.mu.Unlock()
		return call, fmt.Errorf("no call in progress: %w", model.ErrInvalidInput)
	}
	s.calls.transition(call.ID, state, s.now())
	s.disarmRing()
	updated := s.calls.snapshot()
	s.publish(EventCallState, updated)
	s.mu.Unlock()

	if _, err := s.api.SendSignal(ctx, replyTo(&call, signalType)); err != nil {
		return updated, err
	}
	return updated, nil
}
