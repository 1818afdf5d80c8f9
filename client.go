// Package tigerclient implements the client-side request multiplexer
// that sits between an application and a replicated transaction
// processing cluster: it coalesces independently submitted packets into
// cluster-sized batches under a strict single-inflight discipline,
// dispatches them over the cluster protocol, and demultiplexes the
// batched reply back to the individual submitters.
package tigerclient

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tigerclient/tigerclient/internal/dispatch"
	"github.com/tigerclient/tigerclient/internal/logging"
	"github.com/tigerclient/tigerclient/internal/msgpool"
	"github.com/tigerclient/tigerclient/internal/packet"
	"github.com/tigerclient/tigerclient/internal/pending"
	"github.com/tigerclient/tigerclient/internal/protocol"
	"github.com/tigerclient/tigerclient/internal/reactor"
	"github.com/tigerclient/tigerclient/internal/submitq"
)

// CompletionFunc is invoked once per completed packet, on the reactor
// thread, with the caller-supplied completionCtx, the Client, the packet
// (status already set), and its reply slice (nil on failure). The slice
// is only valid for the duration of the call.
type CompletionFunc func(completionCtx any, client *Client, p *packet.Packet, reply []byte)

// ClientConfig holds the parameters for NewClient, mirroring the
// teacher's DeviceParams/Options split: ClusterID/Addresses/ConcurrencyMax
// are required configuration, Logger/Observer/ProtocolClient are optional
// dependency injection points.
type ClientConfig struct {
	ClusterID      [16]byte
	Addresses      string // comma- or space-separated host:port list
	ConcurrencyMax int    // packet pool size, valid range [1, 8192]
	TickInterval   time.Duration

	Logger   *logging.Logger
	Observer Observer

	// ProtocolClient overrides the production TCP client, for tests that
	// want to inject a MockProtocolClient or protocol.FakeClient.
	ProtocolClient protocol.Client
}

// DefaultClientConfig returns a ClientConfig with sensible defaults;
// ClusterID and Addresses must still be set by the caller.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConcurrencyMax: 32,
		TickInterval:   time.Millisecond,
	}
}

// Client is the long-lived multiplexer instance the spec calls the
// Context: one per client id, one dedicated reactor goroutine, torn down
// by Close in the reverse order it was built.
type Client struct {
	clientID [16]byte
	cfg      ClientConfig

	pool       *packet.Pool
	submitStk  *submitq.Stack
	pendingQ   *pending.Queue
	dispatcher *dispatch.Dispatcher
	proto      protocol.Client
	reactor    *reactor.Reactor
	messages   *msgpool.Pool

	logger   *logging.Logger
	metrics  *Metrics
	observer Observer

	completionCtx any
	completion    CompletionFunc

	shutdown   atomic.Bool
	registered atomic.Bool
	done       chan struct{}
}

// NewClient builds a Client following spec §4.7's init sequence,
// rewinding whatever it already acquired if any step fails.
func NewClient(ctx context.Context, cfg ClientConfig, completionCtx any, completion CompletionFunc) (*Client, error) {
	if completion == nil {
		return nil, NewError("NewClient", CodeUnexpected, "completion callback is required")
	}

	c := &Client{cfg: cfg, completionCtx: completionCtx, completion: completion, done: make(chan struct{})}

	clientID, err := randomNonzeroClientID()
	if err != nil {
		return nil, WrapError("NewClient", err)
	}
	c.clientID = clientID

	pool, err := packet.NewPool(cfg.ConcurrencyMax)
	if err != nil {
		return nil, NewError("NewClient", CodeConcurrencyMaxInvalid, err.Error())
	}
	c.pool = pool

	addrs, err := protocol.ParseAddresses(cfg.Addresses)
	if err != nil {
		c.pool.Shutdown()
		switch err {
		case protocol.ErrAddressLimitExceeded:
			return nil, NewError("NewClient", CodeAddressLimitExceeded, err.Error())
		default:
			return nil, NewError("NewClient", CodeAddressInvalid, err.Error())
		}
	}

	c.reactor = reactor.New()

	c.logger = cfg.Logger
	if c.logger == nil {
		c.logger = logging.NewLogger(nil)
	}
	c.metrics = NewMetrics()
	c.observer = cfg.Observer
	if c.observer == nil {
		c.observer = NewMetricsObserver(c.metrics)
	}

	c.messages = msgpool.New()
	c.submitStk = &submitq.Stack{}
	c.pendingQ = &pending.Queue{}

	if cfg.ProtocolClient != nil {
		c.proto = cfg.ProtocolClient
	} else {
		c.proto = protocol.NewTCPClient(c.logger)
	}
	c.dispatcher = dispatch.New(c.proto, c.messages, c.pendingQ, c.completeOne, c.logger, func() { c.metrics.Dispatches.Add(1) })

	if err := c.proto.Dial(addrs); err != nil {
		c.pool.Shutdown()
		return nil, NewError("NewClient", CodeSystemResources, err.Error())
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Millisecond
	}
	c.cfg.TickInterval = tick

	go c.reactorLoop()

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-c.done:
			}
		}()
	}

	c.proto.Register(cfg.ClusterID, c.clientID, func(err error) {
		if err != nil {
			c.logger.WithClient(clientIDUint64(c.clientID)).WithError(err).Warn("registration failed")
			return
		}
		c.registered.Store(true)
		c.reactor.Signal().Notify()
		c.logger.WithClient(clientIDUint64(c.clientID)).Info("registered")
	})

	return c, nil
}

func randomNonzeroClientID() ([16]byte, error) {
	var id [16]byte
	for {
		if _, err := rand.Read(id[:]); err != nil {
			return id, fmt.Errorf("tigerclient: failed to draw client id: %w", err)
		}
		if id != ([16]byte{}) {
			return id, nil
		}
	}
}

func clientIDUint64(id [16]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(id[i])
	}
	return v
}

// Acquire removes one packet from the free stack. Safe from any thread.
func (c *Client) Acquire() (*packet.Packet, error) {
	p, err := c.pool.Acquire()
	if err != nil {
		switch err {
		case packet.ErrShutdown:
			return nil, NewError("Acquire", CodeShutdown, err.Error())
		default:
			return nil, NewError("Acquire", CodeConcurrencyMaxExceeded, err.Error())
		}
	}
	c.metrics.Acquires.Add(1)
	return p, nil
}

// Release returns a packet to the free stack. Safe from any thread,
// including after the packet's completion has already fired.
func (c *Client) Release(p *packet.Packet) {
	c.pool.Release(p)
	c.metrics.Releases.Add(1)
}

// Submit pushes p onto the MPSC submission stack and wakes the reactor.
// Fire-and-forget: completion arrives later via the CompletionFunc given
// to NewClient, on the reactor thread.
func (c *Client) Submit(p *packet.Packet) {
	c.submitStk.Push(p)
	c.metrics.Submits.Add(1)
	c.reactor.Signal().Notify()
}

// completeOne is the dispatcher's Complete callback: records the
// completion through the observer and invokes the application
// completion. Does not release p — the application must call Release
// explicitly once it is done reading any copied data.
func (c *Client) completeOne(p *packet.Packet, reply []byte, latencyNs uint64) {
	c.observer.ObserveCompletion(p.Status.String(), latencyNs)
	c.completion(c.completionCtx, c, p, reply)
}

// reactorLoop is the Client's single dedicated goroutine: batching,
// dispatch, and completion all happen here (spec §4.7 Reactor loop).
func (c *Client) reactorLoop() {
	maxBody := uint32(packet.MaxBodyBytes)
	for {
		if c.shutdown.Load() {
			drained := 0
			for drained < c.pool.Size() {
				if c.pool.TryPopForDrain() {
					drained++
					continue
				}
				c.proto.Tick()
				time.Sleep(time.Microsecond)
			}
			close(c.done)
			return
		}

		if c.registered.Load() {
			c.drainSubmissions(maxBody)
		}

		c.proto.Tick()
		c.reactor.RunFor(c.cfg.TickInterval)
	}
}

// drainSubmissions implements the batcher's admission algorithm
// (spec §4.4): drain the submission stack, validate each packet, then
// either dispatch it immediately (fast path), merge it into a compatible
// pending root, or enqueue it as a new root.
func (c *Client) drainSubmissions(maxBody uint32) {
	for p := c.submitStk.DrainAll(); p != nil; {
		next := p.SubNext
		p.SubNext = nil
		c.admit(p, maxBody)
		p = next
	}
	c.observer.ObservePendingDepth(uint32(c.pendingQ.Len()))
}

func (c *Client) admit(p *packet.Packet, maxBody uint32) {
	info, ok := packet.Lookup(p.Operation)
	if !ok {
		p.Status = packet.StatusInvalidOperation
		c.completeOne(p, nil, 0)
		return
	}
	if p.DataSize == 0 || p.DataSize%info.EventSize != 0 {
		p.Status = packet.StatusInvalidDataSize
		c.completeOne(p, nil, 0)
		return
	}
	if p.DataSize > maxBody {
		p.Status = packet.StatusTooMuchData
		c.completeOne(p, nil, 0)
		return
	}

	p.BatchNext = nil
	p.BatchTail = p
	p.BatchSize = p.DataSize

	if !c.dispatcher.Inflight() {
		c.metrics.FastPath.Add(1)
		c.dispatcher.Submit(p)
		return
	}

	if info.BatchingAllowed {
		if root := c.pendingQ.FindMergeable(p.Operation, p.DataSize, maxBody); root != nil {
			root.BatchTail.BatchNext = p
			root.BatchTail = p
			root.BatchSize += p.DataSize
			c.metrics.Merges.Add(1)
			return
		}
	}

	c.pendingQ.PushBack(p)
	c.metrics.NewRoots.Add(1)
}

// Close atomically swaps the shutdown flag. The first caller to do so
// joins the reactor thread and tears down owned resources in reverse
// initialization order; subsequent calls are no-ops.
func (c *Client) Close() error {
	if !c.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	c.pool.Shutdown()
	c.reactor.Signal().Notify()
	<-c.done

	c.metrics.Stop()
	err := c.proto.Close()
	c.reactor.Close()
	return err
}

// Info reports diagnostic, non-load-bearing state about the client: it
// is not part of the FFI completion contract.
type Info struct {
	ClientID   [16]byte
	Registered bool
	Pending    int
	Inflight   bool
}

// Info returns a snapshot of the client's current lifecycle state.
func (c *Client) Info() Info {
	return Info{
		ClientID:   c.clientID,
		Registered: c.registered.Load(),
		Pending:    c.pendingQ.Len(),
		Inflight:   c.dispatcher.Inflight(),
	}
}

// Metrics returns the client's metrics instance.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// ClientID returns the client's randomly assigned 128-bit identity.
func (c *Client) ClientID() [16]byte {
	return c.clientID
}
