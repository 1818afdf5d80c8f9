package protocol

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tigerclient/tigerclient/internal/logging"
	"github.com/tigerclient/tigerclient/internal/packet"
)

// Client is the contract the dispatcher consumes: get a message buffer
// (via the caller's own msgpool — Client only sees assembled bytes),
// issue at most one request at a time, tick to make progress, and run a
// one-shot registration handshake before any application request may be
// sent (spec §4.7 Registration gate).
type Client interface {
	// Dial connects to the first reachable address in addrs, retrying
	// the remainder on failure.
	Dial(addrs []string) error
	// Register sends the one-shot registration frame, carrying both the
	// cluster id and the client id. onRegistered is invoked from a future
	// Tick() call once the reply arrives.
	Register(clusterID, clientID [16]byte, onRegistered func(error))
	// RequestInflight reports whether a request is currently outstanding.
	RequestInflight() bool
	// Request sends a batch body for op. Precondition: !RequestInflight().
	// onReply is invoked from a future Tick() call.
	Request(op packet.Operation, body []byte, onReply func(reply []byte, err error)) error
	// Tick delivers any replies that have arrived since the last call.
	Tick()
	Close() error
}

// pendingReply is queued by the reader goroutine and drained by Tick.
type pendingReply struct {
	status byte
	body   []byte
	err    error
}

// TCPClient is the production Client: a single TCP connection to one
// replica, a background goroutine performing blocking reads (the only
// concurrency internal to this package — all writes and all callback
// invocation happen from Tick/Request/Register, i.e. the reactor thread).
type TCPClient struct {
	logger *logging.Logger

	conn net.Conn
	w    *bufio.Writer

	mu           sync.Mutex // guards replyCh send vs Close
	replyCh      chan pendingReply
	closed       bool
	inflight     bool
	onReply      func(reply []byte, err error)
	onRegistered func(error)
	registering  bool

	clusterID [16]byte
	clientID  [16]byte
}

// NewTCPClient constructs an unconnected client.
func NewTCPClient(logger *logging.Logger) *TCPClient {
	return &TCPClient{
		logger:  logger,
		replyCh: make(chan pendingReply, 1),
	}
}

// Dial tries each address in turn until one accepts a connection.
func (c *TCPClient) Dial(addrs []string) error {
	var lastErr error
	for _, addr := range addrs {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			lastErr = err
			if c.logger != nil {
				c.logger.Warnf("dial %s failed: %v", addr, err)
			}
			continue
		}
		setTCPNoDelay(conn, c.logger)
		c.conn = conn
		c.w = bufio.NewWriter(conn)
		go c.readLoop(conn)
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("protocol: no addresses to dial")
	}
	return lastErr
}

// setTCPNoDelay disables Nagle's algorithm so small request/reply frames
// are not held back waiting to coalesce — every batch is already an
// intentional coalescing decision made by the reactor, so the kernel's
// own nagling only adds latency on top. Best-effort: a failure here
// degrades latency, not correctness, so it is logged and swallowed.
func setTCPNoDelay(conn net.Conn, logger *logging.Logger) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}); err != nil {
		sockErr = err
	}
	if sockErr != nil && logger != nil {
		logger.Warnf("set TCP_NODELAY failed: %v", sockErr)
	}
}

func (c *TCPClient) readLoop(conn net.Conn) {
	r := bufio.NewReaderSize(conn, 64*1024)
	hdr := make([]byte, replyHeaderSize)
	for {
		if _, err := readFull(r, hdr); err != nil {
			c.pushReply(pendingReply{err: err})
			return
		}
		status, bodyLen, err := decodeReplyHeader(hdr)
		if err != nil {
			c.pushReply(pendingReply{err: err})
			return
		}
		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := readFull(r, body); err != nil {
				c.pushReply(pendingReply{err: err})
				return
			}
		}
		c.pushReply(pendingReply{status: status, body: body})
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *TCPClient) pushReply(pr pendingReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.replyCh <- pr
}

// Register writes the registration frame, carrying both ids. The reply
// is delivered to onRegistered on a later Tick. clusterID and clientID
// are retained and stamped into every subsequent Request frame.
func (c *TCPClient) Register(clusterID, clientID [16]byte, onRegistered func(error)) {
	c.clusterID = clusterID
	c.clientID = clientID
	c.onRegistered = onRegistered
	c.registering = true
	buf := make([]byte, requestHeaderSize)
	frame := encodeRequest(buf, clusterID, clientID, opRegister, nil)
	_, _ = c.w.Write(frame)
	_ = c.w.Flush()
}

func (c *TCPClient) RequestInflight() bool {
	return c.inflight
}

// Request writes one batch body as a request frame, stamped with the
// cluster id and client id Register established.
func (c *TCPClient) Request(op packet.Operation, body []byte, onReply func(reply []byte, err error)) error {
	if c.inflight {
		return fmt.Errorf("protocol: request already inflight")
	}
	buf := make([]byte, requestHeaderSize+len(body))
	frame := encodeRequest(buf, c.clusterID, c.clientID, operationToWire(op), body)
	c.onReply = onReply
	c.inflight = true
	if _, err := c.w.Write(frame); err != nil {
		c.inflight = false
		return err
	}
	return c.w.Flush()
}

// Tick delivers at most one buffered reply (registration or request) per
// call, non-blocking.
func (c *TCPClient) Tick() {
	select {
	case pr := <-c.replyCh:
		c.deliver(pr)
	default:
	}
}

func (c *TCPClient) deliver(pr pendingReply) {
	if c.registering {
		c.registering = false
		cb := c.onRegistered
		c.onRegistered = nil
		if cb != nil {
			cb(pr.err)
		}
		return
	}
	c.inflight = false
	cb := c.onReply
	c.onReply = nil
	if cb == nil {
		return
	}
	if pr.err != nil {
		cb(nil, pr.err)
		return
	}
	if pr.status != 0 {
		cb(nil, &ReplyError{Status: pr.status})
		return
	}
	cb(pr.body, nil)
}

// ReplyError wraps a non-zero transport status byte returned by the
// cluster, opaque to the multiplexer core beyond "not ok" (spec §7:
// protocol-level failures are conveyed through packet status as
// transport may define).
type ReplyError struct {
	Status byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("protocol: transport status %d", e.Status)
}

// Close shuts down the connection and stops delivering replies.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
