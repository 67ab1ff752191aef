package chat

import (
	"context"
	"sync"
	"time"

	"github.com/pscheid92/chatwire/internal/domain"
)

// callLog records the order of cross-fake calls for ordering assertions.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	inserted  []*domain.Message
	insertErr error
}

func (f *fakeMessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, msg)
	return nil
}

func (f *fakeMessageRepo) ListByChannel(ctx context.Context, channelID string) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) insertedMessages() []*domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Message(nil), f.inserted...)
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	payloads []domain.Payload
	report   domain.BroadcastReport
	err      error
	errFor   func(domain.Payload) error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, payload domain.Payload) (domain.BroadcastReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.BroadcastReport{}, f.err
	}
	if f.errFor != nil {
		if err := f.errFor(payload); err != nil {
			return domain.BroadcastReport{}, err
		}
	}
	f.payloads = append(f.payloads, payload)
	return f.report, nil
}

func (f *fakeBroadcaster) broadcasts() []domain.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Payload(nil), f.payloads...)
}

type fakeQueue struct {
	mu         sync.Mutex
	log        *callLog
	enqueued   []*domain.StatusChangeEvent
	enqueueErr error
	batches    [][]domain.QueuedEvent
	reclaimed  []domain.QueuedEvent
	reclaimErr error
	acked      []string
	ackErr     error
}

func (f *fakeQueue) Enqueue(ctx context.Context, event *domain.StatusChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.log.add("queue.Enqueue")
	f.enqueued = append(f.enqueued, event)
	return nil
}

func (f *fakeQueue) ReadBatch(ctx context.Context, count int64, block time.Duration) ([]domain.QueuedEvent, error) {
	f.mu.Lock()
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()

	// Nothing queued: behave like a blocking read that times out.
	select {
	case <-time.After(block):
	case <-ctx.Done():
	}
	return nil, nil
}

func (f *fakeQueue) Ack(ctx context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeQueue) Reclaim(ctx context.Context, minIdle time.Duration) ([]domain.QueuedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reclaimErr != nil {
		return nil, f.reclaimErr
	}
	reclaimed := f.reclaimed
	f.reclaimed = nil
	return reclaimed, nil
}

func (f *fakeQueue) enqueuedEvents() []*domain.StatusChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.StatusChangeEvent(nil), f.enqueued...)
}

func (f *fakeQueue) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

type fakeConnRegistry struct {
	mu          sync.Mutex
	log         *callLog
	connections map[string]domain.Connection
	putErr      error
	findErr     error
	deleteErr   error
	deleted     []string
	distinct    []string
}

func newFakeConnRegistry(log *callLog) *fakeConnRegistry {
	return &fakeConnRegistry{log: log, connections: make(map[string]domain.Connection)}
}

func (f *fakeConnRegistry) Put(ctx context.Context, conn domain.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.log.add("registry.Put")
	f.connections[conn.ConnectionID] = conn
	return nil
}

func (f *fakeConnRegistry) Delete(ctx context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.log.add("registry.Delete")
	delete(f.connections, connectionID)
	f.deleted = append(f.deleted, connectionID)
	return nil
}

func (f *fakeConnRegistry) FindByConnectionID(ctx context.Context, connectionID string) (domain.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return domain.Connection{}, f.findErr
	}
	conn, ok := f.connections[connectionID]
	if !ok {
		return domain.Connection{}, domain.ErrNotFound
	}
	return conn, nil
}

func (f *fakeConnRegistry) ScanAll(ctx context.Context) ([]domain.Connection, error) {
	return nil, nil
}

func (f *fakeConnRegistry) ListDistinctUsers(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.distinct, nil
}

type fakeDirectory struct {
	mu        sync.Mutex
	usernames []string
	ensureErr error
	listErr   error
	ensured   []string
}

func (f *fakeDirectory) EnsureUser(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured = append(f.ensured, username)
	return nil
}

func (f *fakeDirectory) ListUsernames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.usernames, nil
}
