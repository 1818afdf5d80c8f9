// Package submitq implements the multi-producer, single-consumer
// submission stack: any application thread may push a packet; only the
// reactor thread drains it, atomically detaching the whole list in one
// step.
//
// Unlike the packet pool's free stack (internal/packet.Pool), this stack
// never pops a single node under contention — the sole consumer always
// swaps the entire head to nil and walks the detached list sequentially.
// That discipline makes a plain atomic pointer CAS ABA-safe: the classic
// Treiber-stack ABA bug only bites a consumer that pops one node at a
// time while producers can re-push a node with the same address in
// between that consumer's load and its CAS. A consumer that only ever
// swaps the whole list out is not exposed to that race, so the
// generation-counter trick internal/packet.Pool needs is unnecessary
// here.
package submitq

import (
	"sync/atomic"

	"code.hybscloud.com/spin"

	"github.com/tigerclient/tigerclient/internal/packet"
)

// Stack is the MPSC submission stack.
type Stack struct {
	head atomic.Pointer[packet.Packet]
}

// Push adds p to the stack. Safe from any goroutine.
func (s *Stack) Push(p *packet.Packet) {
	sw := spin.Wait{}
	for {
		old := s.head.Load()
		p.SubNext = old
		if s.head.CompareAndSwap(old, p) {
			return
		}
		sw.Once()
	}
}

// DrainAll atomically detaches and returns the entire stack as a
// singly-linked list via Packet.SubNext, in LIFO push order. Only the
// reactor thread may call this.
func (s *Stack) DrainAll() *packet.Packet {
	return s.head.Swap(nil)
}
