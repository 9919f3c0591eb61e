package session

import (
	"context"
	"sync"
	"time"

	"github.com/wagate/backend/internal/config"
	"github.com/wagate/backend/internal/engine"
)

// mockEngine counts creations and delegates to a per-test create function.
type mockEngine struct {
	mu       sync.Mutex
	calls    int
	createFn func(cfg engine.CreateConfig) (engine.Client, error)
}

func (m *mockEngine) CreateSession(_ context.Context, cfg engine.CreateConfig) (engine.Client, error) {
	m.mu.Lock()
	m.calls++
	fn := m.createFn
	m.mu.Unlock()
	return fn(cfg)
}

func (m *mockEngine) createCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockClient is a scriptable engine.Client.
type mockClient struct {
	mu            sync.Mutex
	connected     bool
	authenticated bool
	probeErr      error
	logoutErr     error
	sendErr       error
	chats         []engine.Chat
	chatsErr      error
	wid           string
	probeCalls    int
	logoutCalls   int
	closeCalls    int
	sendCalls     int
	interfaceFns  []func(engine.InterfaceEvent)
}

func (c *mockClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *mockClient) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

func (c *mockClient) ConnectionState(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeCalls++
	if c.probeErr != nil {
		return "", c.probeErr
	}
	return "CONNECTED", nil
}

func (c *mockClient) WID(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		return "", engine.ErrNotAuthenticated
	}
	return c.wid, nil
}

func (c *mockClient) SendText(context.Context, string, string) (engine.SendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCalls++
	if c.sendErr != nil {
		return engine.SendReceipt{}, c.sendErr
	}
	return engine.SendReceipt{MessageID: "MSG1", Timestamp: time.Now()}, nil
}

func (c *mockClient) ListChats(context.Context, engine.ChatFilter) ([]engine.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatsErr != nil {
		return nil, c.chatsErr
	}
	return c.chats, nil
}

func (c *mockClient) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutCalls++
	return c.logoutErr
}

func (c *mockClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	return nil
}

func (c *mockClient) OnInterfaceChange(fn func(engine.InterfaceEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interfaceFns = append(c.interfaceFns, fn)
}

func (c *mockClient) counts() (probe, logout, closed, send int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeCalls, c.logoutCalls, c.closeCalls, c.sendCalls
}

// fakeNotifier records everything the relay publishes.
type fakeNotifier struct {
	mu          sync.Mutex
	qr          []engine.QREvent
	statuses    []StatusEvent
	completes   []CompleteEvent
	disconnects []string
}

func (n *fakeNotifier) PublishQR(_ string, evt engine.QREvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.qr = append(n.qr, evt)
}

func (n *fakeNotifier) PublishStatus(_ string, evt StatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, evt)
}

func (n *fakeNotifier) PublishComplete(_ string, evt CompleteEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completes = append(n.completes, evt)
}

func (n *fakeNotifier) DisconnectSession(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnects = append(n.disconnects, name)
}

func (n *fakeNotifier) completeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completes)
}

func (n *fakeNotifier) disconnectCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.disconnects)
}

func (n *fakeNotifier) statusKinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]string, len(n.statuses))
	for i, s := range n.statuses {
		kinds[i] = s.Kind
	}
	return kinds
}

// testConfig returns a config with timings short enough for tests.
func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.Sessions.RootDir = root
	cfg.Timing.ProbeTimeout = 100 * time.Millisecond
	cfg.Timing.LockRetryDelay = 10 * time.Millisecond
	cfg.Timing.CompletionGrace = 10 * time.Millisecond
	cfg.Timing.FailureCleanupGrace = 20 * time.Millisecond
	cfg.Timing.DeleteReleaseDelay = 5 * time.Millisecond
	cfg.Timing.ReconnectTimeout = 100 * time.Millisecond
	return cfg
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
