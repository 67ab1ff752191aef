package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/metrics"
)

// PresenceService does connection lifecycle bookkeeping: registry writes
// first, presence events second, so an enqueued ONLINE always refers to a
// registered connection.
type PresenceService struct {
	registry domain.ConnectionRegistry
	queue    domain.PresenceQueue
	users    domain.UserDirectory
	clock    clockwork.Clock
}

func NewPresenceService(registry domain.ConnectionRegistry, queue domain.PresenceQueue, users domain.UserDirectory, clock clockwork.Clock) *PresenceService {
	return &PresenceService{
		registry: registry,
		queue:    queue,
		users:    users,
		clock:    clock,
	}
}

// OnConnect registers the connection and enqueues an ONLINE event. The
// registry write happens first; a failed write means no event. Repeated
// calls for the same connection are harmless upserts.
func (s *PresenceService) OnConnect(ctx context.Context, conn domain.Connection) error {
	if err := s.registry.Put(ctx, conn); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}

	// Directory entry is best effort: a miss only affects the users listing.
	if err := s.users.EnsureUser(ctx, conn.UserID); err != nil {
		slog.WarnContext(ctx, "failed to record user in directory",
			"user_id", conn.UserID,
			"error", err,
		)
	}

	event := domain.NewStatusChangeEvent(conn.UserID, domain.StatusOnline, s.clock.Now().UTC())
	if err := s.queue.Enqueue(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue online event: %w", err)
	}

	metrics.ConnectionsOpenedTotal.Inc()
	slog.InfoContext(ctx, "connection opened",
		"connection_id", conn.ConnectionID,
		"user_id", conn.UserID,
	)
	return nil
}

// OnDisconnect enqueues an OFFLINE event and removes the registry record.
// An unknown connection is a no-op: stale-connection cleanup during a
// broadcast may have removed the record first, and both paths must converge
// on the same end state.
func (s *PresenceService) OnDisconnect(ctx context.Context, connectionID string) error {
	conn, err := s.registry.FindByConnectionID(ctx, connectionID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.DebugContext(ctx, "disconnect for unknown connection", "connection_id", connectionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up connection: %w", err)
	}

	event := domain.NewStatusChangeEvent(conn.UserID, domain.StatusOffline, s.clock.Now().UTC())
	if err := s.queue.Enqueue(ctx, event); err != nil {
		return fmt.Errorf("failed to enqueue offline event: %w", err)
	}

	if err := s.registry.Delete(ctx, connectionID); err != nil {
		return fmt.Errorf("failed to deregister connection: %w", err)
	}

	metrics.ConnectionsClosedTotal.Inc()
	slog.InfoContext(ctx, "connection closed",
		"connection_id", connectionID,
		"user_id", conn.UserID,
	)
	return nil
}

// OnlineUsers merges the directory with live registry state: every known
// user appears, flagged ONLINE iff at least one connection exists.
func (s *PresenceService) OnlineUsers(ctx context.Context) ([]domain.User, error) {
	usernames, err := s.users.ListUsernames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	online, err := s.registry.ListDistinctUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}

	onlineSet := make(map[string]bool, len(online))
	for _, user := range online {
		onlineSet[user] = true
	}

	users := make([]domain.User, 0, len(usernames))
	for _, username := range usernames {
		status := domain.StatusOffline
		if onlineSet[username] {
			status = domain.StatusOnline
		}
		users = append(users, domain.User{Username: username, Status: status})
	}
	return users, nil
}
