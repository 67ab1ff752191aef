package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/metrics"
	"github.com/pscheid92/chatwire/internal/retry"
)

const (
	// reclaimMinIdle is how long a pending entry must sit unacked before a
	// starting consumer takes it over from a crashed sibling.
	reclaimMinIdle = time.Minute

	readMaxAttempts    = 5
	readInitialBackoff = 100 * time.Millisecond
)

// PresenceConsumer drains the presence queue and broadcasts each event.
// Event failures are isolated: a failed broadcast leaves only that entry
// unacked for redelivery, never the rest of its batch.
type PresenceConsumer struct {
	queue       domain.PresenceQueue
	broadcaster domain.Broadcaster
	batchSize   int64
	block       time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	doneCh      chan struct{}
}

func NewPresenceConsumer(queue domain.PresenceQueue, broadcaster domain.Broadcaster, batchSize int64, block time.Duration) *PresenceConsumer {
	return &PresenceConsumer{
		queue:       queue,
		broadcaster: broadcaster,
		batchSize:   batchSize,
		block:       block,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the consume loop until Stop is called or the context ends.
// Entries another consumer read but never acked are reclaimed first, so a
// crashed instance's events are redelivered instead of lost.
func (c *PresenceConsumer) Start(ctx context.Context) {
	defer close(c.doneCh)

	reclaimed, err := c.queue.Reclaim(ctx, reclaimMinIdle)
	if err != nil {
		slog.WarnContext(ctx, "failed to reclaim pending presence events", "error", err)
	} else if len(reclaimed) > 0 {
		slog.InfoContext(ctx, "reclaimed pending presence events", "count", len(reclaimed))
		c.ProcessBatch(ctx, reclaimed)
	}

	readPolicy := retry.Policy{
		MaxAttempts:    readMaxAttempts,
		InitialBackoff: readInitialBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("presence queue read failed, retrying",
				"attempt", attempt,
				"backoff", backoff,
				"error", err,
			)
		},
	}

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		batch, err := retry.Do(ctx, readPolicy, retry.AlwaysRetry, func() ([]domain.QueuedEvent, error) {
			return c.queue.ReadBatch(ctx, c.batchSize, c.block)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "presence queue unreadable, backing off", "error", err)
			select {
			case <-time.After(c.block):
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}

		c.ProcessBatch(ctx, batch)
	}
}

// ProcessBatch broadcasts every event in the batch and acks the ones that
// went out. Malformed entries are acked too: redelivering them can never
// succeed. Returns the IDs left unacked.
func (c *PresenceConsumer) ProcessBatch(ctx context.Context, batch []domain.QueuedEvent) []string {
	metrics.PresenceBatchSize.Observe(float64(len(batch)))

	ackIDs := make([]string, 0, len(batch))
	var failedIDs []string

	for _, entry := range batch {
		payload, err := domain.ParsePayload(entry.Payload)
		if err != nil {
			metrics.PresenceEventsProcessedTotal.WithLabelValues("malformed").Inc()
			slog.WarnContext(ctx, "dropping malformed presence event",
				"entry_id", entry.ID,
				"error", err,
			)
			ackIDs = append(ackIDs, entry.ID)
			continue
		}

		report, err := c.broadcaster.Broadcast(ctx, payload)
		if err != nil {
			metrics.PresenceEventsProcessedTotal.WithLabelValues("failed").Inc()
			slog.ErrorContext(ctx, "presence broadcast failed",
				"entry_id", entry.ID,
				"error", err,
			)
			failedIDs = append(failedIDs, entry.ID)
			continue
		}

		metrics.PresenceEventsProcessedTotal.WithLabelValues("broadcast").Inc()
		slog.DebugContext(ctx, "presence event broadcast",
			"entry_id", entry.ID,
			"delivered", report.Delivered,
			"stale_removed", report.StaleRemoved,
			"failed", report.Failed,
		)
		ackIDs = append(ackIDs, entry.ID)
	}

	if err := c.queue.Ack(ctx, ackIDs...); err != nil {
		// Unacked entries get redelivered; broadcast consumers tolerate the
		// resulting duplicates.
		slog.WarnContext(ctx, "failed to ack presence events",
			"count", len(ackIDs),
			"error", err,
		)
	}

	return failedIDs
}

// Stop signals the loop to exit and waits for it to finish.
func (c *PresenceConsumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	<-c.doneCh
}
