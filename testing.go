package tigerclient

import (
	"sync"

	"github.com/tigerclient/tigerclient/internal/packet"
	"github.com/tigerclient/tigerclient/internal/protocol"
)

var _ protocol.Client = (*MockProtocolClient)(nil)

// MockProtocolClient is a test double implementing the protocol.Client
// contract for callers that want to exercise Client without a real
// socket. If a handler is installed via SetHandler, Tick computes and delivers the reply
// synchronously; otherwise call Complete to drive completion manually.
//
// Mirrors the teacher's MockBackend: a hand-rolled double for dependency
// injection, tracking call counts for test assertions.
type MockProtocolClient struct {
	mu           sync.Mutex
	handler      func(op packet.Operation, body []byte) (reply []byte, err error)
	clusterID    [16]byte
	clientID     [16]byte
	registered   bool
	inflight     bool
	lastOp       packet.Operation
	lastBody     []byte
	onReply      func(reply []byte, err error)
	onRegistered func(error)

	dialCalls     int
	requestCalls  int
	registerCalls int

	// Requests records every body handed to Request, in order.
	Requests [][]byte
}

// NewMockProtocolClient constructs a ready-to-use mock client.
func NewMockProtocolClient() *MockProtocolClient {
	return &MockProtocolClient{}
}

// SetHandler installs the function Tick uses to compute a reply for the
// currently inflight request. Safe to call concurrently with Tick.
func (m *MockProtocolClient) SetHandler(h func(op packet.Operation, body []byte) (reply []byte, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *MockProtocolClient) Dial(addrs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialCalls++
	return nil
}

func (m *MockProtocolClient) Register(clusterID, clientID [16]byte, onRegistered func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerCalls++
	m.clusterID = clusterID
	m.clientID = clientID
	m.onRegistered = onRegistered
}

// CompleteRegistration lets a test finish the handshake on demand.
func (m *MockProtocolClient) CompleteRegistration(err error) {
	m.mu.Lock()
	cb := m.onRegistered
	m.onRegistered = nil
	m.registered = err == nil
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (m *MockProtocolClient) RequestInflight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight
}

func (m *MockProtocolClient) Request(op packet.Operation, body []byte, onReply func(reply []byte, err error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight {
		panic("tigerclient: MockProtocolClient.Request called while a request is already inflight")
	}
	cp := append([]byte(nil), body...)
	m.Requests = append(m.Requests, cp)
	m.requestCalls++
	m.inflight = true
	m.lastOp = op
	m.lastBody = cp
	m.onReply = onReply
	return nil
}

// Complete finishes the current request with the given reply/error.
func (m *MockProtocolClient) Complete(reply []byte, err error) {
	m.mu.Lock()
	if !m.inflight {
		m.mu.Unlock()
		return
	}
	m.inflight = false
	cb := m.onReply
	m.onReply = nil
	m.mu.Unlock()
	if cb != nil {
		cb(reply, err)
	}
}

func (m *MockProtocolClient) Tick() {
	m.mu.Lock()
	handler := m.handler
	inflight := m.inflight
	op := m.lastOp
	body := m.lastBody
	m.mu.Unlock()
	if handler == nil || !inflight {
		return
	}
	reply, err := handler(op, body)
	m.Complete(reply, err)
}

func (m *MockProtocolClient) Close() error { return nil }

// CallCounts returns how many times each entry point was invoked, for
// test assertions.
func (m *MockProtocolClient) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"dial":     m.dialCalls,
		"register": m.registerCalls,
		"request":  m.requestCalls,
	}
}
