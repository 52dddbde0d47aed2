package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

var errOffline = fmt.Errorf("dial tcp: connection refused: %w", model.ErrTransient)

// fakeAPI is an in-memory messaging API for one user.
type fakeAPI struct {
	mu sync.Mutex

	conversations []model.ConversationView
	messages      map[string][]model.Message
	signals       []model.CallSignal
	sentSignals   []model.SendSignalRequest
	signalCtxs    []context.Context
	reads         []string
	clock         int64
	seq           int

	listCalls   int
	failList    error
	failSend    error
	failSignals error
	// ignoreSince makes PollSignals return every signal, as a lagging replica might.
	ignoreSince bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: make(map[string][]model.Message), clock: 1_700_000_000_000}
}

func (f *fakeAPI) tick() int64 {
	f.clock++
	return f.clock
}

func (f *fakeAPI) ListConversations(ctx context.Context) (*model.ListConversationsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList != nil {
		return nil, f.failList
	}
	return &model.ListConversationsResponse{Conversations: f.conversations, Total: len(f.conversations)}, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string, opts model.ListMessagesOptions) (*model.ListMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.ListMessagesResponse{Messages: append([]model.Message(nil), f.messages[conversationID]...)}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return nil, f.failSend
	}
	return f.insert(conversationID, "alice", *req.Content, req.ClientNonce), nil
}

// insert stores a message as the server would. Callers hold f.mu.
func (f *fakeAPI) insert(conversationID, senderID, text, nonce string) *model.Message {
	f.seq++
	msg := model.Message{
		ID:             fmt.Sprintf("m-%03d", f.seq),
		ConversationID: conversationID,
		SenderID:       senderID,
		ClientNonce:    nonce,
		Content:        &text,
		MessageType:    model.MessageText,
		Status:         model.StatusSent,
		CreatedAt:      time.UnixMilli(f.tick()).UTC(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return &msg
}

func (f *fakeAPI) receive(conversationID, senderID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insert(conversationID, senderID, text, "")
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, conversationID)
	return nil
}

func (f *fakeAPI) SendSignal(ctx context.Context, req *model.SendSignalRequest) (*model.CallSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentSignals = append(f.sentSignals, *req)
	f.signalCtxs = append(f.signalCtxs, ctx)
	callID := req.CallID
	if callID == "" {
		callID = fmt.Sprintf("call-%d", len(f.sentSignals))
	}
	return &model.CallSignal{
		ID:             fmt.Sprintf("sig-%d", len(f.sentSignals)),
		Type:           req.Type,
		CallID:         callID,
		FromUserID:     "alice",
		ToUserID:       req.ToUserID,
		ConversationID: req.ConversationID,
		CallType:       req.CallType,
		RoomURL:        "https://rooms.test/" + callID,
		Timestamp:      f.tick(),
	}, nil
}

func (f *fakeAPI) deliverSignal(sig model.CallSignal) model.CallSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	sig.ToUserID = "alice"
	sig.Timestamp = f.tick()
	f.signals = append(f.signals, sig)
	return sig
}

func (f *fakeAPI) PollSignals(ctx context.Context, since int64) (*model.PollSignalsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSignals != nil {
		return nil, f.failSignals
	}
	resp := &model.PollSignalsResponse{Watermark: since}
	for _, sig := range f.signals {
		if sig.Timestamp > since || f.ignoreSince {
			resp.Signals = append(resp.Signals, sig)
		}
		if sig.Timestamp > resp.Watermark {
			resp.Watermark = sig.Timestamp
		}
	}
	return resp, nil
}

func (f *fakeAPI) Unread(ctx context.Context) (*model.UnreadTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.conversations {
		n += c.UnreadCount
	}
	return &model.UnreadTotals{Conversations: n, Total: n}, nil
}

func (f *fakeAPI) signalsOfType(t model.SignalType) []model.SendSignalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SendSignalRequest
	for _, s := range f.sentSignals {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

var fastOptions = Options{
	ListInterval:     10 * time.Millisecond,
	MessageInterval:  10 * time.Millisecond,
	SignalInterval:   10 * time.Millisecond,
	RingTimeout:      time.Hour,
	FailureThreshold: 3,
}

func startSession(t *testing.T, api *fakeAPI, opts Options) *Session {
	t.Helper()
	s := New(api, nil, logger.NewNop(), opts)
	require.NoError(t, s.Start(context.Background(), "alice"))
	t.Cleanup(s.Stop)
	return s
}

// waitEvent returns the first event on ch of kind that satisfies match.
func waitEvent(t *testing.T, ch <-chan Event, kind string, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind && (match == nil || match(evt)) {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}

func TestBusPrefixFiltering(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe("call.", 10)
	defer unsub()

	b.Publish(Event{Kind: EventMessagesUpdated})
	b.Publish(Event{Kind: EventCallState})

	evt := <-ch
	assert.Equal(t, EventCallState, evt.Kind)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %s", extra.Kind)
	case <-time.After(20 * time.Millisecond):
	}

	unsub()
	b.Publish(Event{Kind: EventCallIncoming})
	select {
	case extra := <-ch:
		t.Fatalf("event after unsubscribe: %s", extra.Kind)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTimelineOrdersAndReconciles(t *testing.T) {
	tl := newTimeline("c1")
	at := time.UnixMilli(1000)
	text := "x"

	tl.addPending("n1", model.SendMessageRequest{}, model.Message{ClientNonce: "n1", Content: &text, CreatedAt: at.Add(time.Hour)})
	changed := tl.merge([]model.Message{
		{ID: "b", CreatedAt: at},
		{ID: "a", CreatedAt: at},
		{ID: "c", CreatedAt: at.Add(-time.Second)},
	})
	require.True(t, changed)

	items := tl.items()
	require.Len(t, items, 4)
	assert.Equal(t, []string{"c", "a", "b", ""}, []string{items[0].ID, items[1].ID, items[2].ID, items[3].ID})
	assert.Equal(t, ItemPending, items[3].State)

	// The server copy of the pending message replaces it.
	assert.True(t, tl.merge([]model.Message{{ID: "d", ClientNonce: "n1", CreatedAt: at.Add(time.Second)}}))
	items = tl.items()
	require.Len(t, items, 4)
	assert.Equal(t, "d", items[3].ID)
	assert.Equal(t, ItemConfirmed, items[3].State)

	// Re-merging the same page changes nothing and never duplicates.
	assert.False(t, tl.merge([]model.Message{{ID: "d", ClientNonce: "n1", CreatedAt: at.Add(time.Second)}}))
	assert.Len(t, tl.items(), 4)
	assert.Equal(t, "d", tl.newest())
}

func TestScrollTracker(t *testing.T) {
	st := newScrollTracker(0)
	assert.Equal(t, DefaultScrollThreshold, st.threshold)

	assert.True(t, st.grew())

	st.update(500)
	assert.False(t, st.grew())

	st.switched()
	assert.True(t, st.grew())

	st.update(500)
	assert.False(t, st.grew())
	st.update(80)
	assert.True(t, st.grew())
}

func TestCallTrackerFirstInitiatedWins(t *testing.T) {
	ct := newCallTracker()
	now := time.Now()
	first := model.CallSignal{Type: model.SignalInitiated, CallID: "k1", FromUserID: "bob", ConversationID: "c1", CallType: model.CallVoice}

	out := ct.observe(first, now)
	assert.True(t, out.incoming)
	assert.True(t, out.arm)
	require.NotNil(t, out.reply)
	assert.Equal(t, model.SignalRinging, out.reply.Type)
	assert.Equal(t, "bob", out.reply.ToUserID)

	dup := first
	dup.FromUserID = "carol"
	assert.Equal(t, signalOutcome{}, ct.observe(dup, now))
	assert.Equal(t, "bob", ct.snapshot().PeerID)

	// A second call while ringing is ignored.
	other := first
	other.CallID = "k2"
	assert.Equal(t, signalOutcome{}, ct.observe(other, now))

	out = ct.observe(model.CallSignal{Type: model.SignalCancelled, CallID: "k1", FromUserID: "bob"}, now)
	assert.True(t, out.changed)
	assert.True(t, out.disarm)
	assert.Equal(t, CallCancelled, ct.snapshot().State)

	// Signals for unknown calls and from strangers are ignored.
	assert.Equal(t, signalOutcome{}, ct.observe(model.CallSignal{Type: model.SignalEnded, CallID: "zz", FromUserID: "bob"}, now))
}

func TestCallTrackerOutgoingLifecycle(t *testing.T) {
	ct := newCallTracker()
	now := time.Now()
	ct.outgoing(model.CallSignal{CallID: "k1", ToUserID: "bob", ConversationID: "c1", CallType: model.CallVideo}, now)

	out := ct.observe(model.CallSignal{Type: model.SignalRinging, CallID: "k1", FromUserID: "bob"}, now)
	assert.True(t, out.changed)
	assert.False(t, out.disarm)
	assert.True(t, ct.snapshot().PeerRinging)

	out = ct.observe(model.CallSignal{Type: model.SignalAccepted, CallID: "k1", FromUserID: "bob"}, now)
	assert.True(t, out.disarm)
	assert.Equal(t, CallActive, ct.snapshot().State)

	// Late reject after accept is ignored.
	assert.False(t, ct.observe(model.CallSignal{Type: model.SignalRejected, CallID: "k1", FromUserID: "bob"}, now).changed)

	out = ct.observe(model.CallSignal{Type: model.SignalEnded, CallID: "k1", FromUserID: "bob"}, now)
	assert.True(t, out.changed)
	assert.Equal(t, CallEnded, ct.snapshot().State)

	call, reply := ct.timeout("k1", now)
	assert.Nil(t, call)
	assert.Nil(t, reply)
}

func TestStartStopLifecycle(t *testing.T) {
	api := newFakeAPI()
	s := New(api, nil, logger.NewNop(), fastOptions)

	require.ErrorIs(t, s.Start(context.Background(), ""), model.ErrInvalidInput)
	require.ErrorIs(t, s.Open("c1"), ErrNotRunning)

	require.NoError(t, s.Start(context.Background(), "alice"))
	require.Error(t, s.Start(context.Background(), "alice"))
	require.NoError(t, s.Open("c1"))

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.listCalls >= 2
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()

	api.mu.Lock()
	calls := api.listCalls
	api.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	api.mu.Lock()
	assert.Equal(t, calls, api.listCalls, "pollers kept running after Stop")
	api.mu.Unlock()

	// A stopped session can be started again.
	require.NoError(t, s.Start(context.Background(), "alice"))
	s.Stop()
}

func TestConversationListAndUnread(t *testing.T) {
	api := newFakeAPI()
	api.conversations = []model.ConversationView{{Conversation: model.Conversation{ID: "c1"}, UnreadCount: 2}}

	s := New(api, nil, logger.NewNop(), fastOptions)
	ch, unsub := s.Bus().Subscribe("unread.", 10)
	defer unsub()
	require.NoError(t, s.Start(context.Background(), "alice"))
	defer s.Stop()

	evt := waitEvent(t, ch, EventUnreadUpdated, nil)
	assert.Equal(t, 2, evt.Payload.(model.UnreadTotals).Total)
	require.Len(t, s.Conversations(), 1)
}

func TestOptimisticSendConfirms(t *testing.T) {
	api := newFakeAPI()
	s := startSession(t, api, fastOptions)
	ch, unsub := s.Bus().Subscribe("", 64)
	defer unsub()

	require.NoError(t, s.Open("c1"))
	api.receive("c1", "bob", "hello")
	waitEvent(t, ch, EventMessagesUpdated, func(e Event) bool { return len(e.Payload.(MessagesUpdate).Items) == 1 })
	waitEvent(t, ch, EventScrollBottom, nil)

	msg, err := s.Send(context.Background(), "  on my way  ")
	require.NoError(t, err)
	assert.Equal(t, "on my way", msg.Text())

	require.Eventually(t, func() bool {
		items := s.Messages()
		return len(items) == 2 && items[1].State == ItemConfirmed
	}, time.Second, 5*time.Millisecond)

	// Polls keep returning the confirmed message; it must not duplicate.
	time.Sleep(40 * time.Millisecond)
	items := s.Messages()
	require.Len(t, items, 2)
	assert.Equal(t, "hello", items[0].Text())
	assert.Equal(t, msg.ID, items[1].ID)

	api.mu.Lock()
	assert.Contains(t, api.reads, "c1")
	api.mu.Unlock()
}

func TestSendFailureMarksFailedAndRetries(t *testing.T) {
	api := newFakeAPI()
	api.failSend = errOffline
	s := startSession(t, api, fastOptions)
	ch, unsub := s.Bus().Subscribe("message.", 10)
	defer unsub()

	require.NoError(t, s.Open("c1"))
	_, err := s.Send(context.Background(), "status report")
	require.ErrorIs(t, err, model.ErrTransient)

	evt := waitEvent(t, ch, EventMessageFailed, nil)
	failure := evt.Payload.(MessageFailure)
	assert.Equal(t, "c1", failure.ConversationID)

	items := s.Messages()
	require.Len(t, items, 1)
	assert.Equal(t, ItemFailed, items[0].State)
	assert.Equal(t, failure.Nonce, items[0].ClientNonce)

	api.set(func(f *fakeAPI) { f.failSend = nil })
	msg, err := s.Retry(context.Background(), failure.Nonce)
	require.NoError(t, err)
	assert.Equal(t, failure.Nonce, msg.ClientNonce)

	items = s.Messages()
	require.Len(t, items, 1)
	assert.Equal(t, ItemConfirmed, items[0].State)

	_, err = s.Retry(context.Background(), failure.Nonce)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDiscardFailedMessage(t *testing.T) {
	api := newFakeAPI()
	api.failSend = errors.New("boom")
	s := startSession(t, api, fastOptions)

	require.NoError(t, s.Open("c1"))
	_, err := s.Send(context.Background(), "draft")
	require.Error(t, err)

	items := s.Messages()
	require.Len(t, items, 1)
	require.NoError(t, s.Discard(items[0].ClientNonce))
	assert.Empty(t, s.Messages())
	assert.ErrorIs(t, s.Discard("unknown"), model.ErrNotFound)
}

func TestSendRequiresOpenConversation(t *testing.T) {
	s := startSession(t, newFakeAPI(), fastOptions)
	_, err := s.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	require.NoError(t, s.Open("c1"))
	_, err = s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSwitchingConversationsStopsOldPoller(t *testing.T) {
	api := newFakeAPI()
	api.receive("c1", "bob", "in c1")
	api.receive("c2", "carol", "in c2")
	s := startSession(t, api, fastOptions)

	require.NoError(t, s.Open("c1"))
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Open("c2"))
	require.Eventually(t, func() bool {
		items := s.Messages()
		return len(items) == 1 && items[0].Text() == "in c2"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "c2", s.ActiveConversation())

	s.Close()
	assert.Empty(t, s.ActiveConversation())
	assert.Nil(t, s.Messages())
}

func TestPollDegradesAndRecovers(t *testing.T) {
	api := newFakeAPI()
	api.failSignals = errOffline
	s := New(api, nil, logger.NewNop(), fastOptions)
	ch, unsub := s.Bus().Subscribe("poll.", 10)
	defer unsub()
	require.NoError(t, s.Start(context.Background(), "alice"))
	defer s.Stop()

	evt := waitEvent(t, ch, EventPollDegraded, nil)
	status := evt.Payload.(PollStatus)
	assert.Equal(t, PollerSignals, status.Poller)
	assert.Equal(t, 3, status.Failures)

	// Degradation is reported once while failures continue.
	time.Sleep(50 * time.Millisecond)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected %s", extra.Kind)
	default:
	}

	api.set(func(f *fakeAPI) { f.failSignals = nil })
	evt = waitEvent(t, ch, EventPollRecovered, nil)
	assert.Equal(t, PollerSignals, evt.Payload.(PollStatus).Poller)
}

func TestWatermarkOnlyMovesForward(t *testing.T) {
	api := newFakeAPI()
	api.ignoreSince = true
	s := New(api, nil, logger.NewNop(), fastOptions)
	ch, unsub := s.Bus().Subscribe("call.", 10)
	defer unsub()
	require.NoError(t, s.Start(context.Background(), "alice"))
	defer s.Stop()

	sig := api.deliverSignal(model.CallSignal{Type: model.SignalInitiated, CallID: "k1", FromUserID: "bob", ConversationID: "c1", CallType: model.CallVoice})
	waitEvent(t, ch, EventCallIncoming, nil)

	// The stale replica keeps returning the same signal; it is processed once.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, sig.Timestamp, s.Watermark())
	assert.Len(t, api.signalsOfType(model.SignalRinging), 1)
	select {
	case evt := <-ch:
		if evt.Kind == EventCallIncoming {
			t.Fatal("call announced twice")
		}
	default:
	}
}

func TestIncomingCallAcceptAndHangup(t *testing.T) {
	api := newFakeAPI()
	s := startSession(t, api, fastOptions)

	api.deliverSignal(model.CallSignal{Type: model.SignalInitiated, CallID: "k1", FromUserID: "bob", ConversationID: "c1", CallType: model.CallVideo})
	require.Eventually(t, func() bool { return s.ActiveCall().State == CallIncoming }, time.Second, 5*time.Millisecond)

	call, err := s.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CallActive, call.State)
	require.Len(t, api.signalsOfType(model.SignalAccepted), 1)
	assert.Equal(t, "bob", api.signalsOfType(model.SignalAccepted)[0].ToUserID)

	call, err = s.Hangup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CallEnded, call.State)
	require.Len(t, api.signalsOfType(model.SignalEnded), 1)

	_, err = s.Hangup(context.Background())
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestIncomingCallTimesOutToIdle(t *testing.T) {
	api := newFakeAPI()
	opts := fastOptions
	opts.RingTimeout = 40 * time.Millisecond
	s := New(api, nil, logger.NewNop(), opts)
	ch, unsub := s.Bus().Subscribe("call.state", 10)
	defer unsub()
	require.NoError(t, s.Start(context.Background(), "alice"))
	defer s.Stop()

	api.deliverSignal(model.CallSignal{Type: model.SignalInitiated, CallID: "k1", FromUserID: "bob", ConversationID: "c1", CallType: model.CallVoice})

	evt := waitEvent(t, ch, EventCallState, func(e Event) bool { return e.Payload.(Call).State == CallIdle })
	assert.True(t, evt.Payload.(Call).TimedOut)
	assert.Equal(t, CallIdle, s.ActiveCall().State)
	// The callee does not signal on timeout.
	assert.Empty(t, api.signalsOfType(model.SignalCancelled))
}

func TestOutgoingCallTimeoutCancels(t *testing.T) {
	api := newFakeAPI()
	opts := fastOptions
	opts.RingTimeout = 40 * time.Millisecond
	s := startSession(t, api, opts)

	call, err := s.StartCall(context.Background(), "c1", "bob", model.CallVoice)
	require.NoError(t, err)
	assert.Equal(t, CallOutgoing, call.State)
	assert.Equal(t, "https://rooms.test/"+call.ID, call.RoomURL)

	_, err = s.StartCall(context.Background(), "c1", "bob", model.CallVoice)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	require.Eventually(t, func() bool { return len(api.signalsOfType(model.SignalCancelled)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, CallIdle, s.ActiveCall().State)
	assert.Equal(t, call.ID, api.signalsOfType(model.SignalCancelled)[0].CallID)
}

func TestRingTimeoutReleasesTimerContext(t *testing.T) {
	api := newFakeAPI()
	opts := fastOptions
	opts.RingTimeout = 20 * time.Millisecond
	s := startSession(t, api, opts)

	_, err := s.StartCall(context.Background(), "c1", "bob", model.CallVoice)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(api.signalsOfType(model.SignalCancelled)) == 1 }, time.Second, 5*time.Millisecond)

	var timerCtx context.Context
	api.set(func(f *fakeAPI) { timerCtx = f.signalCtxs[len(f.signalCtxs)-1] })
	require.Eventually(t, func() bool { return timerCtx.Err() != nil }, time.Second, 5*time.Millisecond)

	s.mu.Lock()
	assert.Nil(t, s.ringCancel)
	assert.True(t, s.running)
	s.mu.Unlock()
}

func TestOutgoingCallAnswered(t *testing.T) {
	api := newFakeAPI()
	opts := fastOptions
	opts.RingTimeout = 100 * time.Millisecond
	s := startSession(t, api, opts)

	call, err := s.StartCall(context.Background(), "c1", "bob", model.CallVideo)
	require.NoError(t, err)

	api.deliverSignal(model.CallSignal{Type: model.SignalAccepted, CallID: call.ID, FromUserID: "bob", ConversationID: "c1", CallType: model.CallVideo})
	require.Eventually(t, func() bool { return s.ActiveCall().State == CallActive }, time.Second, 5*time.Millisecond)

	// The ring timer was disarmed: the call survives past the timeout.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, CallActive, s.ActiveCall().State)
	assert.Empty(t, api.signalsOfType(model.SignalCancelled))
}

func TestTimelineStatusNeverRegresses(t *testing.T) {
	tl := newTimeline("c1")
	at := time.UnixMilli(1000)

	tl.merge([]model.Message{{ID: "m1", Status: model.StatusDelivered, CreatedAt: at}})
	assert.False(t, tl.merge([]model.Message{{ID: "m1", Status: model.StatusSent, CreatedAt: at}}))
	assert.Equal(t, model.StatusDelivered, tl.items()[0].Status)

	assert.True(t, tl.merge([]model.Message{{ID: "m1", Status: model.StatusRead, CreatedAt: at}}))
	assert.Equal(t, model.StatusRead, tl.items()[0].Status)
}
