package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/chatwire/internal/domain"
)

type fakeRegistry struct {
	mu          sync.Mutex
	connections []domain.Connection
	deleted     []string
	scanErr     error
	deleteErr   error
}

func (f *fakeRegistry) Put(ctx context.Context, conn domain.Connection) error { return nil }

func (f *fakeRegistry) Delete(ctx context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, connectionID)
	return nil
}

func (f *fakeRegistry) FindByConnectionID(ctx context.Context, connectionID string) (domain.Connection, error) {
	return domain.Connection{}, domain.ErrNotFound
}

func (f *fakeRegistry) ScanAll(ctx context.Context) ([]domain.Connection, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.connections, nil
}

func (f *fakeRegistry) ListDistinctUsers(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeRegistry) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// fakePusher fails or reports gone per connection ID and records every post.
type fakePusher struct {
	mu      sync.Mutex
	gone    map[string]bool
	failing map[string]bool
	posts   map[string][]byte
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		gone:    make(map[string]bool),
		failing: make(map[string]bool),
		posts:   make(map[string][]byte),
	}
}

func (f *fakePusher) Post(ctx context.Context, connectionID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[connectionID] {
		return domain.ErrConnectionGone
	}
	if f.failing[connectionID] {
		return errors.New("write timeout")
	}
	f.posts[connectionID] = data
	return nil
}

func (f *fakePusher) received(connectionID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.posts[connectionID]
	return data, ok
}

func connections(ids ...string) []domain.Connection {
	conns := make([]domain.Connection, 0, len(ids))
	for _, id := range ids {
		conns = append(conns, domain.Connection{ConnectionID: id, UserID: "user-" + id})
	}
	return conns
}

func newTestBroadcaster(registry domain.ConnectionRegistry, pusher domain.ConnectionPusher, maxInFlight int) *Broadcaster {
	return New(registry, pusher, maxInFlight, clockwork.NewRealClock())
}

func TestBroadcast_DeliversToAllConnections(t *testing.T) {
	registry := &fakeRegistry{connections: connections("a", "b", "c")}
	pusher := newFakePusher()
	broadcaster := newTestBroadcaster(registry, pusher, 0)

	message := &domain.Message{Type: domain.KindMessage, MessageID: "m1", ChannelID: "general", Sender: "ana", Text: "hi"}
	report, err := broadcaster.Broadcast(context.Background(), message)
	require.NoError(t, err)

	assert.Equal(t, domain.BroadcastReport{Delivered: 3}, report)
	assert.Equal(t, 3, report.Attempted())

	for _, id := range []string{"a", "b", "c"} {
		data, ok := pusher.received(id)
		require.True(t, ok, "connection %s should have received the payload", id)

		var got domain.Message
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "m1", got.MessageID)
	}
}

func TestBroadcast_EmptySnapshot(t *testing.T) {
	registry := &fakeRegistry{}
	broadcaster := newTestBroadcaster(registry, newFakePusher(), 0)

	report, err := broadcaster.Broadcast(context.Background(), domain.NewStatusChangeEvent("ana", domain.StatusOnline, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastReport{}, report)
}

func TestBroadcast_SnapshotFailureIsTheOnlyError(t *testing.T) {
	registry := &fakeRegistry{scanErr: errors.New("redis unavailable")}
	pusher := newFakePusher()
	broadcaster := newTestBroadcaster(registry, pusher, 0)

	_, err := broadcaster.Broadcast(context.Background(), domain.NewStatusChangeEvent("ana", domain.StatusOnline, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot")
	assert.Empty(t, pusher.posts, "no deliveries should be attempted without a snapshot")
}

func TestBroadcast_StaleConnectionsRemovedFromRegistry(t *testing.T) {
	registry := &fakeRegistry{connections: connections("live-1", "stale", "live-2")}
	pusher := newFakePusher()
	pusher.gone["stale"] = true
	broadcaster := newTestBroadcaster(registry, pusher, 0)

	report, err := broadcaster.Broadcast(context.Background(), domain.NewStatusChangeEvent("ana", domain.StatusOffline, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, domain.BroadcastReport{Delivered: 2, StaleRemoved: 1}, report)
	assert.Equal(t, []string{"stale"}, registry.deletedIDs())
}

func TestBroadcast_FailuresAreIsolated(t *testing.T) {
	registry := &fakeRegistry{connections: connections("ok-1", "broken", "ok-2", "stale")}
	pusher := newFakePusher()
	pusher.failing["broken"] = true
	pusher.gone["stale"] = true
	broadcaster := newTestBroadcaster(registry, pusher, 0)

	report, err := broadcaster.Broadcast(context.Background(), domain.NewStatusChangeEvent("ana", domain.StatusOnline, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, domain.BroadcastReport{Delivered: 2, StaleRemoved: 1, Failed: 1}, report)
	assert.Equal(t, 4, report.Attempted())

	_, ok := pusher.received("ok-1")
	assert.True(t, ok)
	_, ok = pusher.received("ok-2")
	assert.True(t, ok)
}

func TestBroadcast_FailedDeleteStillCountsStale(t *testing.T) {
	registry := &fakeRegistry{
		connections: connections("stale"),
		deleteErr:   errors.New("redis unavailable"),
	}
	pusher := newFakePusher()
	pusher.gone["stale"] = true
	broadcaster := newTestBroadcaster(registry, pusher, 0)

	report, err := broadcaster.Broadcast(context.Background(), domain.NewStatusChangeEvent("ana", domain.StatusOnline, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastReport{StaleRemoved: 1}, report)
}

// blockingPusher tracks peak concurrency by holding every post until
// released.
type blockingPusher struct {
	current atomic.Int64
	peak    atomic.Int64
	release chan struct{}
}

func (p *blockingPusher) Post(ctx context.Context, connectionID string, data []byte) error {
	current := p.current.Add(1)
	defer p.current.Add(-1)

	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	<-p.release
	return nil
}

func TestBroadcast_BoundsInFlightDeliveries(t *testing.T) {
	const maxInFlight = 2
	registry := &fakeRegistry{connections: connections("a", "b", "c", "d", "e", "f")}
	pusher := &blockingPusher{release: make(chan struct{})}
	broadcaster := newTestBroadcaster(registry, pusher, maxInFlight)

	done := make(chan domain.BroadcastReport, 1)
	go func() {
		report, err := broadcaster.Broadcast(context.Background(), domain.NewStatusChangeEvent("ana", domain.StatusOnline, time.Now()))
		require.NoError(t, err)
		done <- report
	}()

	// Let deliveries saturate the limit before releasing them.
	require.Eventually(t, func() bool {
		return pusher.current.Load() == maxInFlight
	}, time.Second, time.Millisecond)

	close(pusher.release)
	report := <-done

	assert.Equal(t, 6, report.Delivered)
	assert.LessOrEqual(t, pusher.peak.Load(), int64(maxInFlight))
}

func TestNew_DefaultsMaxInFlight(t *testing.T) {
	broadcaster := New(&fakeRegistry{}, newFakePusher(), -3, clockwork.NewRealClock())
	assert.Equal(t, DefaultMaxInFlight, broadcaster.maxInFlight)
}
