package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/guardforce/messaging-platform/internal/model"
)

const (
	// StreamName is the name of the call signal stream.
	StreamName = "CALLSIGNALS"

	// SubjectPrefix is the prefix for all call signal subjects.
	SubjectPrefix = "call"

	// startSlack widens the consumer start time. A signal's timestamp may be bumped
	// ahead of the instant the server stored it.
	startSlack = time.Second

	fetchBatch = 256
)

// SignalStream is the JetStream-backed call signal channel. Signals expire from
// the stream after the configured retention.
type SignalStream struct {
	client    *Client
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	last int64
}

// NewSignalStream creates a signal stream over an established client.
func NewSignalStream(client *Client, retention time.Duration) *SignalStream {
	return &SignalStream{client: client, retention: retention, now: time.Now}
}

// SignalSubject returns the subject a signal is published on.
func SignalSubject(toUserID string, signalType model.SignalType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, toUserID, signalType)
}

// RecipientFilter returns the filter subject for all signals addressed to a user.
func RecipientFilter(toUserID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, toUserID)
}

// EnsureStream ensures the call signal stream exists and primes the timestamp
// watermark from the newest stored signal.
func (s *SignalStream) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	stream, err := js.Stream(ctx, StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      s.retention,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Description: "Ephemeral call control signals",
		})
	}
	if err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	raw, err := stream.GetLastMsgForSubject(ctx, fmt.Sprintf("%s.>", SubjectPrefix))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read last signal: %w", err)
	}
	var last model.CallSignal
	if err := json.Unmarshal(raw.Data, &last); err != nil {
		return fmt.Errorf("failed to decode last signal: %w", err)
	}

	s.mu.Lock()
	if last.Timestamp > s.last {
		s.last = last.Timestamp
	}
	s.mu.Unlock()
	return nil
}

// Append assigns the signal a timestamp strictly greater than any signal this
// instance has published and publishes it.
func (s *SignalStream) Append(ctx context.Context, sig *model.CallSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	sig.Timestamp = ts

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if _, err := s.client.JetStream().Publish(ctx, SignalSubject(sig.ToUserID, sig.Type), data,
		jetstream.WithMsgID(sig.ID)); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}

	s.last = ts
	return nil
}

// Since returns signals addressed to userID with a timestamp strictly greater
// than since, oldest first, at most limit of them.
func (s *SignalStream) Since(ctx context.Context, userID string, since int64, limit int) ([]model.CallSignal, error) {
	if limit <= 0 {
		limit = 100
	}

	cfg := jetstream.ConsumerConfig{
		FilterSubject:     RecipientFilter(userID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	}
	if since > 0 {
		start := time.UnixMilli(since).Add(-startSlack)
		cfg.DeliverPolicy = jetstream.DeliverByStartTimePolicy
		cfg.OptStartTime = &start
	}

	consumer, err := s.client.JetStream().CreateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	defer func() {
		_ = s.client.JetStream().DeleteConsumer(context.WithoutCancel(ctx), StreamName, consumer.CachedInfo().Name)
	}()

	remaining := int(consumer.CachedInfo().NumPending)
	var out []model.CallSignal
	for remaining > 0 && len(out) < limit {
		batch, err := consumer.Fetch(min(remaining, fetchBatch), jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch signals: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++
			var sig model.CallSignal
			if err := json.Unmarshal(msg.Data(), &sig); err != nil {
				continue
			}
			if sig.Timestamp > since && len(out) < limit {
				out = append(out, sig)
			}
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if received == 0 {
			break
		}
		remaining -= received
	}

	return out, nil
}

// Ready reports whether the NATS connection is up.
func (s *SignalStream) Ready(ctx context.Context) bool {
	return s.client.IsConnected()
}
