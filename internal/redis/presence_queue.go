package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/metrics"
)

const (
	presenceStream = "presence:events"
	presenceGroup  = "presence-broadcast"

	fieldPayload = "payload"
)

// PresenceQueue is the decoupling point between connection bookkeeping and
// presence fan-out, built on a Redis Stream with one consumer group.
// Delivery is at least once: entries stay pending until acked, so a consumer
// crash leads to redelivery rather than loss.
type PresenceQueue struct {
	rdb      *goredis.Client
	consumer string
}

var _ domain.PresenceQueue = (*PresenceQueue)(nil)

func NewPresenceQueue(rdb *goredis.Client, consumer string) *PresenceQueue {
	return &PresenceQueue{rdb: rdb, consumer: consumer}
}

// EnsureGroup creates the stream and consumer group if they do not exist yet.
// Safe to call on every startup.
func (q *PresenceQueue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, presenceStream, presenceGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create presence consumer group: %w", err)
	}
	return nil
}

// Enqueue appends a status change event to the stream. Once this returns nil
// the event is durable; the caller never waits for the broadcast itself.
func (q *PresenceQueue) Enqueue(ctx context.Context, event *domain.StatusChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status change event: %w", err)
	}

	err = q.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: presenceStream,
		Values: map[string]any{fieldPayload: string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue status change event: %w", err)
	}

	metrics.PresenceEventsEnqueuedTotal.WithLabelValues(string(event.CurrentStatus)).Inc()
	return nil
}

// ReadBatch blocks up to the given duration for new entries and returns at
// most count of them. An empty slice means the block timed out.
func (q *PresenceQueue) ReadBatch(ctx context.Context, count int64, block time.Duration) ([]domain.QueuedEvent, error) {
	streams, err := q.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    presenceGroup,
		Consumer: q.consumer,
		Streams:  []string{presenceStream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presence events: %w", err)
	}

	var events []domain.QueuedEvent
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			payload, _ := msg.Values[fieldPayload].(string)
			events = append(events, domain.QueuedEvent{ID: msg.ID, Payload: []byte(payload)})
		}
	}

	q.observeDepth(ctx)
	return events, nil
}

// Reclaim takes over entries another consumer read but never acked, after
// they have been idle for minIdle. Called on startup so a crashed instance's
// pending events get redelivered.
func (q *PresenceQueue) Reclaim(ctx context.Context, minIdle time.Duration) ([]domain.QueuedEvent, error) {
	msgs, _, err := q.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   presenceStream,
		Group:    presenceGroup,
		Consumer: q.consumer,
		MinIdle:  minIdle,
		Start:    "0",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim presence events: %w", err)
	}

	events := make([]domain.QueuedEvent, 0, len(msgs))
	for _, msg := range msgs {
		payload, _ := msg.Values[fieldPayload].(string)
		events = append(events, domain.QueuedEvent{ID: msg.ID, Payload: []byte(payload)})
	}
	return events, nil
}

// Ack marks entries as processed, removing them from the pending list.
func (q *PresenceQueue) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.rdb.XAck(ctx, presenceStream, presenceGroup, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack presence events: %w", err)
	}
	return nil
}

func (q *PresenceQueue) observeDepth(ctx context.Context) {
	pending, err := q.rdb.XPending(ctx, presenceStream, presenceGroup).Result()
	if err != nil {
		return
	}
	metrics.PresenceQueueDepth.Set(float64(pending.Count))
}
