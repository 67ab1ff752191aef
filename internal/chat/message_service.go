package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/metrics"
)

// DefaultChannelID receives messages that name no channel.
const DefaultChannelID = "general"

// MessageService accepts inbound payloads from authenticated connections,
// persists chat messages, and fans them out. Persistence is the commit
// point: a message that made it into the repository is accepted even when
// the subsequent broadcast goes badly.
type MessageService struct {
	messages    domain.MessageRepository
	broadcaster domain.Broadcaster
	clock       clockwork.Clock
}

func NewMessageService(messages domain.MessageRepository, broadcaster domain.Broadcaster, clock clockwork.Clock) *MessageService {
	return &MessageService{
		messages:    messages,
		broadcaster: broadcaster,
		clock:       clock,
	}
}

// Receive handles one raw payload sent by the given authenticated user.
// Malformed payloads yield domain.ErrMalformedPayload; payloads of a kind
// clients have no business sending are dropped without error.
func (s *MessageService) Receive(ctx context.Context, sender string, raw []byte) error {
	payload, err := domain.ParsePayload(raw)
	if err != nil {
		metrics.MessagesReceivedTotal.WithLabelValues("malformed").Inc()
		return err
	}

	msg, ok := payload.(*domain.Message)
	if !ok {
		metrics.MessagesReceivedTotal.WithLabelValues("ignored").Inc()
		slog.DebugContext(ctx, "ignoring non-message payload",
			"payload_type", string(payload.PayloadKind()),
			"sender", sender,
		)
		return nil
	}

	// The server owns identity and message IDs. Whatever the client sent in
	// those fields is discarded.
	msg.MessageID = uuid.NewString()
	msg.Sender = sender
	if msg.SentAt.IsZero() {
		msg.SentAt = s.clock.Now().UTC()
	}
	if msg.ChannelID == "" {
		msg.ChannelID = DefaultChannelID
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		metrics.MessagesReceivedTotal.WithLabelValues("persist_error").Inc()
		return fmt.Errorf("failed to persist message: %w", err)
	}
	metrics.MessagesReceivedTotal.WithLabelValues("accepted").Inc()

	report, err := s.broadcaster.Broadcast(ctx, msg)
	if err != nil {
		// Message is already durable; delivery is best effort.
		slog.ErrorContext(ctx, "message broadcast failed",
			"message_id", msg.MessageID,
			"channel_id", msg.ChannelID,
			"error", err,
		)
		return nil
	}

	metrics.MessagesDeliveredTotal.Inc()
	slog.InfoContext(ctx, "message broadcast",
		"message_id", msg.MessageID,
		"channel_id", msg.ChannelID,
		"delivered", report.Delivered,
		"stale_removed", report.StaleRemoved,
		"failed", report.Failed,
	)
	return nil
}
