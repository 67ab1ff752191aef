package domain

import (
	"context"
	"time"
)

// --- Model types ---

// User is a directory entry with derived presence.
type User struct {
	Username string `json:"username"`
	Status   Status `json:"status"`
}

// Channel is a named conversation. Participants are advisory: membership is
// not enforced at message-send time.
type Channel struct {
	ID           string `json:"id"`
	Participants []User `json:"participants,omitempty"`
}

// --- Interfaces ---

// MessageRepository abstracts chat message persistence. Messages are
// immutable once inserted and retained indefinitely.
type MessageRepository interface {
	Insert(ctx context.Context, msg *Message) error
	ListByChannel(ctx context.Context, channelID string) ([]Message, error)
}

// ChannelRepository abstracts channel persistence. Channels are never
// mutated after creation and never deleted.
type ChannelRepository interface {
	Create(ctx context.Context, ch Channel) error
	List(ctx context.Context) ([]Channel, error)
}

// UserDirectory abstracts the known-users listing (the identity pool
// stand-in). Users are recorded on first authenticated connect.
type UserDirectory interface {
	EnsureUser(ctx context.Context, username string) error
	ListUsernames(ctx context.Context) ([]string, error)
}

// QueuedEvent is one queue entry handed to the consumer. Payload is the raw
// JSON; the consumer decides how to treat entries that fail to parse.
type QueuedEvent struct {
	ID      string
	Payload []byte
}

// PresenceQueue carries status change events from connection bookkeeping to
// the broadcast path. Delivery is at least once: entries stay pending until
// acked, so consumers must tolerate redelivery.
type PresenceQueue interface {
	Enqueue(ctx context.Context, event *StatusChangeEvent) error
	ReadBatch(ctx context.Context, count int64, block time.Duration) ([]QueuedEvent, error)
	Ack(ctx context.Context, ids ...string) error
	Reclaim(ctx context.Context, minIdle time.Duration) ([]QueuedEvent, error)
}

// Principal is an authenticated identity resolved from a bearer credential.
// Handlers never see raw tokens past the verifier boundary.
type Principal struct {
	Username string
}
