package protocol

import "github.com/tigerclient/tigerclient/internal/packet"

// FakeClient is an in-memory Client for unit tests that need precise
// control over when a request completes, without a real socket. If
// Handler is set, Tick computes and delivers the reply synchronously;
// otherwise the test drives completion explicitly via Complete.
type FakeClient struct {
	Handler func(op packet.Operation, body []byte) (reply []byte, err error)

	// ClusterID and ClientID record what Register was called with, for
	// tests that assert on the registration frame's addressing.
	ClusterID [16]byte
	ClientID  [16]byte

	registered   bool
	inflight     bool
	lastOp       packet.Operation
	lastBody     []byte
	onReply      func(reply []byte, err error)
	onRegistered func(error)

	// Requests records every body handed to Request, in order, for
	// assertions about what was actually dispatched.
	Requests [][]byte
}

func (f *FakeClient) Dial(addrs []string) error { return nil }

func (f *FakeClient) Register(clusterID, clientID [16]byte, onRegistered func(error)) {
	f.ClusterID = clusterID
	f.ClientID = clientID
	f.onRegistered = onRegistered
}

// CompleteRegistration lets a test finish the handshake on demand.
func (f *FakeClient) CompleteRegistration(err error) {
	if f.onRegistered == nil {
		return
	}
	cb := f.onRegistered
	f.onRegistered = nil
	f.registered = err == nil
	cb(err)
}

func (f *FakeClient) RequestInflight() bool { return f.inflight }

func (f *FakeClient) Request(op packet.Operation, body []byte, onReply func(reply []byte, err error)) error {
	if f.inflight {
		panic("protocol: FakeClient.Request called while a request is already inflight")
	}
	cp := append([]byte(nil), body...)
	f.Requests = append(f.Requests, cp)
	f.inflight = true
	f.lastOp = op
	f.lastBody = cp
	f.onReply = onReply
	return nil
}

// Complete finishes the current request with the given reply/error.
func (f *FakeClient) Complete(reply []byte, err error) {
	if !f.inflight {
		return
	}
	f.inflight = false
	cb := f.onReply
	f.onReply = nil
	if cb != nil {
		cb(reply, err)
	}
}

func (f *FakeClient) Tick() {
	if f.Handler == nil || !f.inflight {
		return
	}
	reply, err := f.Handler(f.lastOp, f.lastBody)
	f.Complete(reply, err)
}

func (f *FakeClient) Close() error { return nil }
