package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/store"
	"github.com/guardforce/messaging-platform/pkg/logger"
	"github.com/guardforce/messaging-platform/pkg/metrics"
)

// SignalPollLimit bounds the signals returned by one poll.
const SignalPollLimit = 100

// SignalLog is an append-only, short-retention log of call signals.
type SignalLog interface {
	Append(ctx context.Context, sig *model.CallSignal) error
	Since(ctx context.Context, userID string, since int64, limit int) ([]model.CallSignal, error)
}

// CallService relays call-control signals between participants. Signals are
// advisory: the service validates addressing, not call legality.
type CallService struct {
	db          *store.DB
	signals     SignalLog
	roomBaseURL string
	logger      *logger.Logger
}

// NewCallService creates a call service over a signal log.
func NewCallService(db *store.DB, signals SignalLog, roomBaseURL string, log *logger.Logger) *CallService {
	return &CallService{
		db:          db,
		signals:     signals,
		roomBaseURL: strings.TrimRight(roomBaseURL, "/"),
		logger:      log,
	}
}

// Send appends a signal from fromUserID to req.ToUserID.
func (s *CallService) Send(ctx context.Context, fromUserID string, req *model.SendSignalRequest) (sig *model.CallSignal, err error) {
	ctx, span := tracer.Start(ctx, "CallService.Send")
	defer func() { endSpan(span, err) }()

	if !req.Type.Valid() {
		return nil, invalid("unknown signal type %q", req.Type)
	}
	if !req.CallType.Valid() {
		return nil, invalid("unknown call type %q", req.CallType)
	}
	if req.ToUserID == "" || req.ToUserID == fromUserID {
		return nil, invalid("signal needs a recipient other than the sender")
	}
	if req.ConversationID == "" {
		return nil, invalid("signal needs a conversation")
	}

	conv, err := s.db.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if _, err := activeParticipant(conv, fromUserID); err != nil {
		return nil, err
	}
	if _, err := activeParticipant(conv, req.ToUserID); err != nil {
		return nil, err
	}

	callID := req.CallID
	if callID == "" {
		if req.Type != model.SignalInitiated {
			return nil, invalid("signal %q requires a call id", req.Type)
		}
		callID = newID()
	}
	roomURL := req.RoomURL
	if roomURL == "" && req.Type == model.SignalInitiated && s.roomBaseURL != "" {
		roomURL = s.roomBaseURL + "/" + callID
	}

	sig = &model.CallSignal{
		ID:             newID(),
		Type:           req.Type,
		CallID:         callID,
		FromUserID:     fromUserID,
		ToUserID:       req.ToUserID,
		ConversationID: req.ConversationID,
		CallType:       req.CallType,
		RoomURL:        roomURL,
	}
	if err := s.signals.Append(ctx, sig); err != nil {
		return nil, fmt.Errorf("failed to append signal: %w", err)
	}

	span.SetAttributes(
		attribute.String("call.id", callID),
		attribute.String("call.signal", string(req.Type)),
	)
	metrics.CallSignalsTotal.WithLabelValues(string(req.Type)).Inc()
	s.logger.ForCall(callID, req.ConversationID).Debug("Call signal appended",
		zap.String("type", string(req.Type)),
		zap.String("from", fromUserID),
		zap.String("to", req.ToUserID),
	)
	return sig, nil
}

// Poll returns signals addressed to userID newer than since. The watermark is
// the newest returned timestamp, or since when nothing is returned.
func (s *CallService) Poll(ctx context.Context, userID string, since int64) (*model.PollSignalsResponse, error) {
	if since < 0 {
		since = 0
	}
	signals, err := s.signals.Since(ctx, userID, since, SignalPollLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read signals: %w", err)
	}
	metrics.RecordSignalPoll(len(signals))

	resp := &model.PollSignalsResponse{Signals: signals, Watermark: since}
	if resp.Signals == nil {
		resp.Signals = []model.CallSignal{}
	}
	if n := len(signals); n > 0 {
		resp.Watermark = signals[n-1].Timestamp
	}
	return resp, nil
}
