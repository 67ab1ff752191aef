package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/chatwire/internal/domain"
)

const (
	connectionKeyPrefix = "connection:"
	fieldUserID         = "user_id"

	scanBatchSize = 100
)

// ConnectionRegistry stores one hash per open connection under
// "connection:<id>". It is the durable record the broadcaster snapshots;
// deletes are idempotent so stale-connection cleanup and normal disconnect
// can race safely.
type ConnectionRegistry struct {
	rdb *goredis.Client
}

var _ domain.ConnectionRegistry = (*ConnectionRegistry)(nil)

func NewConnectionRegistry(rdb *goredis.Client) *ConnectionRegistry {
	return &ConnectionRegistry{rdb: rdb}
}

// Put upserts the connection record. Re-putting the same connection ID is a
// no-op overwrite.
func (r *ConnectionRegistry) Put(ctx context.Context, conn domain.Connection) error {
	if conn.ConnectionID == "" {
		return fmt.Errorf("connection id must not be empty")
	}

	key := connectionKey(conn.ConnectionID)
	if err := r.rdb.HSet(ctx, key, fieldUserID, conn.UserID).Err(); err != nil {
		return fmt.Errorf("failed to store connection %s: %w", conn.ConnectionID, err)
	}
	return nil
}

// Delete removes the connection record. Deleting an absent key succeeds.
func (r *ConnectionRegistry) Delete(ctx context.Context, connectionID string) error {
	key := connectionKey(connectionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete connection %s: %w", connectionID, err)
	}
	return nil
}

// FindByConnectionID returns domain.ErrNotFound for unknown connection IDs.
func (r *ConnectionRegistry) FindByConnectionID(ctx context.Context, connectionID string) (domain.Connection, error) {
	key := connectionKey(connectionID)

	userID, err := r.rdb.HGet(ctx, key, fieldUserID).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.Connection{}, fmt.Errorf("connection %s: %w", connectionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Connection{}, fmt.Errorf("failed to load connection %s: %w", connectionID, err)
	}

	return domain.Connection{ConnectionID: connectionID, UserID: userID}, nil
}

// ScanAll walks the keyspace with cursor-based SCAN and resolves each key's
// user field in a pipeline per batch. The result is a point-in-time snapshot:
// connections opened or closed mid-scan may or may not appear.
func (r *ConnectionRegistry) ScanAll(ctx context.Context) ([]domain.Connection, error) {
	var connections []domain.Connection
	var cursor uint64

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scan cancelled after %d connections: %w", len(connections), ctx.Err())
		default:
		}

		keys, nextCursor, err := r.rdb.Scan(ctx, cursor, connectionKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("connection scan failed: %w", err)
		}

		if len(keys) > 0 {
			batch, err := r.resolveBatch(ctx, keys)
			if err != nil {
				return nil, err
			}
			connections = append(connections, batch...)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return connections, nil
}

func (r *ConnectionRegistry) resolveBatch(ctx context.Context, keys []string) ([]domain.Connection, error) {
	pipe := r.rdb.Pipeline()
	cmds := make([]*goredis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGet(ctx, key, fieldUserID)
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("connection batch resolve failed: %w", err)
	}

	connections := make([]domain.Connection, 0, len(keys))
	for i, cmd := range cmds {
		userID, err := cmd.Result()
		if errors.Is(err, goredis.Nil) {
			// Key vanished between SCAN and HGET, a concurrent
			// disconnect. Skip it.
			continue
		}
		if err != nil {
			slog.Error("failed to resolve connection key", "key", keys[i], "error", err)
			continue
		}
		connections = append(connections, domain.Connection{
			ConnectionID: strings.TrimPrefix(keys[i], connectionKeyPrefix),
			UserID:       userID,
		})
	}
	return connections, nil
}

// ListDistinctUsers returns the sorted set of user IDs with at least one
// open connection.
func (r *ConnectionRegistry) ListDistinctUsers(ctx context.Context) ([]string, error) {
	connections, err := r.ScanAll(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(connections))
	users := make([]string, 0, len(connections))
	for _, conn := range connections {
		if _, ok := seen[conn.UserID]; ok {
			continue
		}
		seen[conn.UserID] = struct{}{}
		users = append(users, conn.UserID)
	}
	sort.Strings(users)
	return users, nil
}

func connectionKey(connectionID string) string {
	return connectionKeyPrefix + connectionID
}
