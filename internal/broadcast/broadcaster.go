package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/metrics"
)

// DefaultMaxInFlight caps concurrent deliveries when no explicit limit is
// configured.
const DefaultMaxInFlight = 5

// Broadcaster delivers payloads to every connection in a registry snapshot.
// Per-connection outcomes are isolated: a failed or stale target never
// aborts delivery to its siblings, and the call itself only errors when the
// snapshot cannot be read.
type Broadcaster struct {
	registry    domain.ConnectionRegistry
	pusher      domain.ConnectionPusher
	maxInFlight int
	clock       clockwork.Clock
}

var _ domain.Broadcaster = (*Broadcaster)(nil)

func New(registry domain.ConnectionRegistry, pusher domain.ConnectionPusher, maxInFlight int, clock clockwork.Clock) *Broadcaster {
	if maxInFlight < 1 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Broadcaster{
		registry:    registry,
		pusher:      pusher,
		maxInFlight: maxInFlight,
		clock:       clock,
	}
}

// Broadcast serializes the payload once, snapshots the registry, and posts
// to every connection with at most maxInFlight deliveries running at a time.
// Connections that joined after the snapshot are not targeted.
func (b *Broadcaster) Broadcast(ctx context.Context, payload domain.Payload) (domain.BroadcastReport, error) {
	start := b.clock.Now()

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.BroadcastReport{}, fmt.Errorf("failed to serialize payload: %w", err)
	}

	snapshot, err := b.registry.ScanAll(ctx)
	if err != nil {
		return domain.BroadcastReport{}, fmt.Errorf("failed to snapshot connection registry: %w", err)
	}

	metrics.BroadcastsTotal.WithLabelValues(string(payload.PayloadKind())).Inc()
	metrics.BroadcastSnapshotSize.Observe(float64(len(snapshot)))

	var delivered, staleRemoved, failed atomic.Int64
	sem := make(chan struct{}, b.maxInFlight)
	var wg sync.WaitGroup

	for _, conn := range snapshot {
		wg.Add(1)
		sem <- struct{}{}
		go func(conn domain.Connection) {
			defer wg.Done()
			defer func() { <-sem }()

			metrics.BroadcastInFlight.Inc()
			defer metrics.BroadcastInFlight.Dec()

			switch err := b.pusher.Post(ctx, conn.ConnectionID, data); {
			case err == nil:
				delivered.Add(1)
				metrics.BroadcastDeliveriesTotal.WithLabelValues("delivered").Inc()

			case errors.Is(err, domain.ErrConnectionGone):
				b.removeStale(ctx, conn)
				staleRemoved.Add(1)
				metrics.BroadcastDeliveriesTotal.WithLabelValues("stale_removed").Inc()

			default:
				failed.Add(1)
				metrics.BroadcastDeliveriesTotal.WithLabelValues("failed").Inc()
				slog.WarnContext(ctx, "broadcast delivery failed",
					"connection_id", conn.ConnectionID,
					"user_id", conn.UserID,
					"error", err,
				)
			}
		}(conn)
	}

	wg.Wait()
	metrics.BroadcastDuration.Observe(b.clock.Since(start).Seconds())

	return domain.BroadcastReport{
		Delivered:    int(delivered.Load()),
		StaleRemoved: int(staleRemoved.Load()),
		Failed:       int(failed.Load()),
	}, nil
}

// removeStale prunes the registry record of a gone connection. A failed
// delete is logged but the connection still counts as stale: the record
// gets retried by whichever broadcast hits it next.
func (b *Broadcaster) removeStale(ctx context.Context, conn domain.Connection) {
	if err := b.registry.Delete(ctx, conn.ConnectionID); err != nil {
		slog.WarnContext(ctx, "failed to remove stale connection",
			"connection_id", conn.ConnectionID,
			"user_id", conn.UserID,
			"error", err,
		)
		return
	}
	slog.InfoContext(ctx, "removed stale connection",
		"connection_id", conn.ConnectionID,
		"user_id", conn.UserID,
	)
}
