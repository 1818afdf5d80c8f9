// Package dispatch implements the single-inflight bridge between the
// reactor's pending FIFO and the protocol client: it assembles one batch
// chain into a wire message, hands it off, and on reply advances the
// pipeline before demultiplexing (spec §4.5).
package dispatch

import (
	"fmt"
	"time"

	"github.com/tigerclient/tigerclient/internal/demux"
	"github.com/tigerclient/tigerclient/internal/interfaces"
	"github.com/tigerclient/tigerclient/internal/msgpool"
	"github.com/tigerclient/tigerclient/internal/packet"
	"github.com/tigerclient/tigerclient/internal/pending"
	"github.com/tigerclient/tigerclient/internal/protocol"
)

// Complete is invoked once per packet with its final status, reply slice
// (nil on failure), and the round-trip latency of the batch it belonged
// to. Reply is only valid for the duration of the call.
type Complete func(p *packet.Packet, reply []byte, latencyNs uint64)

// Dispatcher owns the single-inflight invariant for one protocol client.
// It is touched exclusively by the reactor thread.
type Dispatcher struct {
	client     protocol.Client
	messages   *msgpool.Pool
	pending    *pending.Queue
	complete   Complete
	logger     interfaces.Logger // optional; nil means silent
	onDispatch func()            // optional; called once per batch handed to client.Request

	inflightMsg []byte    // retained so it can be returned to the pool after reply
	submittedAt time.Time // start of the current request, for round-trip latency
}

// New constructs a Dispatcher wired to client, messages, and pending, with
// complete invoked for every packet of a dispatched batch once its reply
// or transport failure arrives. logger and onDispatch may both be nil.
func New(client protocol.Client, messages *msgpool.Pool, pendingQ *pending.Queue, complete Complete, logger interfaces.Logger, onDispatch func()) *Dispatcher {
	return &Dispatcher{client: client, messages: messages, pending: pendingQ, complete: complete, logger: logger, onDispatch: onDispatch}
}

// Inflight reports whether a request is currently outstanding.
func (d *Dispatcher) Inflight() bool {
	return d.client.RequestInflight()
}

// Submit assembles root's batch chain into one wire message and hands it
// to the protocol client. Precondition: !Inflight().
func (d *Dispatcher) Submit(root *packet.Packet) {
	if d.client.RequestInflight() {
		panic("dispatch: Submit called while a request is already inflight")
	}
	if d.onDispatch != nil {
		d.onDispatch()
	}

	msg := d.messages.Get(root.BatchSize)
	var written uint32
	for p := root; p != nil; p = p.BatchNext {
		n := copy(msg[written:written+p.DataSize], p.Data)
		if uint32(n) != p.DataSize {
			panic("dispatch: short copy assembling batch body")
		}
		written += p.DataSize
	}
	if written != root.BatchSize {
		panic(fmt.Sprintf("dispatch: assembled %d bytes, want batch_size %d", written, root.BatchSize))
	}

	d.inflightMsg = msg
	d.submittedAt = time.Now()
	if err := d.client.Request(root.Operation, msg, func(reply []byte, err error) {
		d.handleReply(root, reply, err)
	}); err != nil {
		d.messages.Put(msg)
		d.inflightMsg = nil
		d.failChain(root, err, 0)
	}
}

// handleReply pops and resubmits the next pending root *before*
// demultiplexing, so the wire stays busy while user completions run
// (spec §4.5 rationale for "pop-then-demultiplex").
func (d *Dispatcher) handleReply(root *packet.Packet, reply []byte, err error) {
	latencyNs := uint64(time.Since(d.submittedAt).Nanoseconds())
	if d.inflightMsg != nil {
		d.messages.Put(d.inflightMsg)
		d.inflightMsg = nil
	}

	if next := d.pending.PopFront(); next != nil {
		d.Submit(next)
	}

	if err != nil {
		d.failChain(root, err, latencyNs)
		return
	}

	if dErr := demux.Run(root, reply, func(p *packet.Packet, slice []byte) {
		d.complete(p, slice, latencyNs)
	}); dErr != nil {
		d.failChain(root, dErr, latencyNs)
	}
}

// failChain completes every member of root's chain with no reply slice
// and packet.StatusReserved. Every packet was validated before the chain
// was ever enqueued, so a transport-level (or reply-demultiplexing)
// failure is the only remaining cause; the error itself is only logged.
func (d *Dispatcher) failChain(root *packet.Packet, err error, latencyNs uint64) {
	if d.logger != nil && err != nil {
		d.logger.Warn("batch dispatch failed", "operation", root.Operation.String(), "error", err)
	}
	for p := root; p != nil; p = p.BatchNext {
		p.Status = packet.StatusReserved
		d.complete(p, nil, latencyNs)
	}
}
