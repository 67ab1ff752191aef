package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/chatwire/internal/auth"
	"github.com/pscheid92/chatwire/internal/broadcast"
	"github.com/pscheid92/chatwire/internal/chat"
	"github.com/pscheid92/chatwire/internal/config"
	"github.com/pscheid92/chatwire/internal/domain"
	chatws "github.com/pscheid92/chatwire/internal/websocket"
)

// --- In-memory fakes ---
//
// The handlers run real services on top of these, so tests exercise the full
// path from HTTP request to repository call without Redis or Postgres.

type fakeRegistry struct {
	mu          sync.Mutex
	connections map[string]domain.Connection
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{connections: make(map[string]domain.Connection)}
}

func (f *fakeRegistry) Put(_ context.Context, conn domain.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connections[conn.ConnectionID] = conn
	return nil
}

func (f *fakeRegistry) Delete(_ context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connections, connectionID)
	return nil
}

func (f *fakeRegistry) FindByConnectionID(_ context.Context, connectionID string) (domain.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[connectionID]
	if !ok {
		return domain.Connection{}, domain.ErrNotFound
	}
	return conn, nil
}

func (f *fakeRegistry) ScanAll(_ context.Context) ([]domain.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns := make([]domain.Connection, 0, len(f.connections))
	for _, conn := range f.connections {
		conns = append(conns, conn)
	}
	return conns, nil
}

func (f *fakeRegistry) ListDistinctUsers(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var users []string
	for _, conn := range f.connections {
		if !seen[conn.UserID] {
			seen[conn.UserID] = true
			users = append(users, conn.UserID)
		}
	}
	return users, nil
}

func (f *fakeRegistry) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connections)
}

type fakeQueue struct {
	mu     sync.Mutex
	events []*domain.StatusChangeEvent
}

func (f *fakeQueue) Enqueue(_ context.Context, event *domain.StatusChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeQueue) ReadBatch(context.Context, int64, time.Duration) ([]domain.QueuedEvent, error) {
	return nil, nil
}

func (f *fakeQueue) Ack(context.Context, ...string) error { return nil }

func (f *fakeQueue) Reclaim(context.Context, time.Duration) ([]domain.QueuedEvent, error) {
	return nil, nil
}

func (f *fakeQueue) enqueued() []*domain.StatusChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.StatusChangeEvent(nil), f.events...)
}

type fakeDirectory struct {
	mu        sync.Mutex
	usernames []string
}

func (f *fakeDirectory) EnsureUser(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.usernames {
		if existing == username {
			return nil
		}
	}
	f.usernames = append(f.usernames, username)
	return nil
}

func (f *fakeDirectory) ListUsernames(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.usernames...), nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (f *fakeMessageRepo) Insert(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeMessageRepo) ListByChannel(_ context.Context, channelID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for _, msg := range f.messages {
		if msg.ChannelID == channelID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeChannelRepo struct {
	mu       sync.Mutex
	channels []domain.Channel
}

func (f *fakeChannelRepo) Create(_ context.Context, ch domain.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.channels {
		if existing.ID == ch.ID {
			return nil
		}
	}
	f.channels = append(f.channels, ch)
	return nil
}

func (f *fakeChannelRepo) List(context.Context) ([]domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Channel(nil), f.channels...), nil
}

// --- Fixture ---

type serverFakes struct {
	registry *fakeRegistry
	queue    *fakeQueue
	users    *fakeDirectory
	messages *fakeMessageRepo
	channels *fakeChannelRepo
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) (*Server, *serverFakes) {
	t.Helper()

	cfg := &config.Config{
		Port:                    "0",
		TokenSigningKey:         strings.Repeat("0123456789abcdef", 2),
		TokenTTL:                time.Hour,
		BroadcastMaxInFlight:    5,
		MaxWebSocketConnections: 16,
		MaxConnectionsPerIP:     8,
		ConnectionRatePerIP:     1000,
		ConnectionBurstPerIP:    1000,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fakes := &serverFakes{
		registry: newFakeRegistry(),
		queue:    &fakeQueue{},
		users:    &fakeDirectory{},
		messages: &fakeMessageRepo{},
		channels: &fakeChannelRepo{},
	}

	clock := clockwork.NewRealClock()
	hub := chatws.NewHub(clock)
	t.Cleanup(hub.Stop)

	broadcaster := broadcast.New(fakes.registry, hub, cfg.BroadcastMaxInFlight, clock)

	srv := New(cfg, Deps{
		Hub:      hub,
		Messages: chat.NewMessageService(fakes.messages, broadcaster, clock),
		Presence: chat.NewPresenceService(fakes.registry, fakes.queue, fakes.users, clock),
		Channels: fakes.channels,
		History:  fakes.messages,
		Verifier: auth.NewVerifier([]byte(cfg.TokenSigningKey), cfg.TokenTTL, clock),
	})
	return srv, fakes
}

func doRequest(srv *Server, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func withBearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
}

func issueToken(t *testing.T, srv *Server, username string) string {
	t.Helper()
	token, err := srv.verifier.Issue(username)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}
