package domain

import "context"

// Connection is one open duplex channel between a client and the server.
// Multiple connections may map to the same user (multi-tab).
type Connection struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

// ConnectionRegistry is the durable record of currently-open connections.
// It exclusively owns Connection rows; the broadcaster only reads snapshots
// and requests deletions through Delete.
type ConnectionRegistry interface {
	// Put is an idempotent upsert keyed by ConnectionID.
	Put(ctx context.Context, conn Connection) error
	// Delete is idempotent; deleting an absent key is not an error.
	Delete(ctx context.Context, connectionID string) error
	// FindByConnectionID returns ErrNotFound for absent keys.
	FindByConnectionID(ctx context.Context, connectionID string) (Connection, error)
	// ScanAll produces a point-in-time, possibly stale snapshot with no
	// ordering guarantee. A connection closed microseconds ago may still
	// appear; delivery failure is the authoritative liveness signal.
	ScanAll(ctx context.Context) ([]Connection, error)
	// ListDistinctUsers returns the set of user IDs derived from ScanAll.
	ListDistinctUsers(ctx context.Context) ([]string, error)
}

// ConnectionPusher delivers bytes to one open connection. Implementations
// must return ErrConnectionGone (possibly wrapped) when the remote end is
// gone; every other error is treated as transient by callers.
type ConnectionPusher interface {
	Post(ctx context.Context, connectionID string, data []byte) error
}

// BroadcastReport aggregates per-connection outcomes of one broadcast call.
type BroadcastReport struct {
	Delivered    int
	StaleRemoved int
	Failed       int
}

// Attempted returns the number of deliveries attempted in this broadcast.
func (r BroadcastReport) Attempted() int {
	return r.Delivered + r.StaleRemoved + r.Failed
}

// Broadcaster delivers one payload to every known connection, best effort.
// The call only errors if the registry snapshot itself cannot be read.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload Payload) (BroadcastReport, error)
}
