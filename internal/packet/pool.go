package packet

import (
	"errors"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// ErrConcurrencyMaxInvalid is returned by NewPool when concurrencyMax is
// outside the valid [1, 8192] range.
var ErrConcurrencyMaxInvalid = errors.New("packet: concurrency_max outside [1, 8192]")

// ErrConcurrencyMaxExceeded is returned by Acquire when every packet in
// the pool is currently in use.
var ErrConcurrencyMaxExceeded = errors.New("packet: concurrency_max_exceeded")

// ErrShutdown is returned by Acquire once the pool has observed shutdown.
var ErrShutdown = errors.New("packet: shutdown")

const maxConcurrency = 8192

// noneIndex marks the end of the free list (no next slot).
const noneIndex = ^uint32(0)

// Pool is a fixed-size array of packets with a lock-free, ABA-safe free
// stack. Acquire/Release are safe from any goroutine (§5 of the design:
// the free stack is multi-writer, multi-reader; the other cross-thread
// structure is internal/submitq's submission stack).
//
// The free stack's head packs a monotonically increasing generation
// counter into the high 32 bits alongside the head slot index in the low
// 32 bits. Every successful pop or push bumps the generation, so a
// concurrent CAS that observed a stale (generation, index) pair can never
// succeed against a head that cycled back through the same index — this
// is the standard tagged-pointer fix for the Treiber stack's ABA problem,
// applied to pool indices instead of raw pointers per the "stable handle"
// guidance in the design notes.
type Pool struct {
	slots    []Packet
	freeHead atomix.Uint64
	shutdown atomix.Bool
}

func pack(generation, index uint32) uint64 {
	return uint64(generation)<<32 | uint64(index)
}

func unpack(v uint64) (generation, index uint32) {
	return uint32(v >> 32), uint32(v)
}

// NewPool allocates concurrencyMax packets and fills the free stack.
func NewPool(concurrencyMax int) (*Pool, error) {
	if concurrencyMax < 1 || concurrencyMax > maxConcurrency {
		return nil, ErrConcurrencyMaxInvalid
	}

	p := &Pool{slots: make([]Packet, concurrencyMax)}
	for i := range p.slots {
		p.slots[i].index = int32(i)
		if i == len(p.slots)-1 {
			p.slots[i].PoolNext = int32(noneIndex)
		} else {
			p.slots[i].PoolNext = int32(i + 1)
		}
	}
	p.freeHead.StoreRelaxed(pack(0, 0))
	return p, nil
}

// Size returns the total number of packets owned by the pool.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Acquire removes one packet from the free stack. Safe from any thread.
func (p *Pool) Acquire() (*Packet, error) {
	sw := spin.Wait{}
	for {
		if p.shutdown.LoadAcquire() {
			return nil, ErrShutdown
		}

		cur := p.freeHead.LoadAcquire()
		generation, index := unpack(cur)
		if index == noneIndex {
			if p.shutdown.LoadAcquire() {
				return nil, ErrShutdown
			}
			return nil, ErrConcurrencyMaxExceeded
		}

		slot := &p.slots[index]
		next := uint32(slot.PoolNext)
		newHead := pack(generation+1, next)
		if p.freeHead.CompareAndSwapAcqRel(cur, newHead) {
			slot.Status = StatusOK
			return slot, nil
		}
		sw.Once()
	}
}

// Release returns a packet to the free stack. Safe from any thread,
// including after shutdown has begun (a reply arriving during shutdown
// must still release its packet — see design notes on reply-during-shutdown).
func (p *Pool) Release(pkt *Packet) {
	pkt.reset()
	idx := uint32(pkt.index)
	sw := spin.Wait{}
	for {
		cur := p.freeHead.LoadAcquire()
		generation, headIndex := unpack(cur)
		pkt.PoolNext = int32(headIndex)
		newHead := pack(generation+1, idx)
		if p.freeHead.CompareAndSwapAcqRel(cur, newHead) {
			return
		}
		sw.Once()
	}
}

// Shutdown marks the pool terminal: subsequent Acquire calls return
// ErrShutdown once they observe it instead of ErrConcurrencyMaxExceeded.
func (p *Pool) Shutdown() {
	p.shutdown.StoreRelease(true)
}

// TryPopForDrain destructively removes one packet from the free stack
// without checking the shutdown flag, for use only by the reactor's
// shutdown drain loop (§4.7): once shutdown begins, the loop counts
// packets back on the free stack one at a time until the count equals
// the pool size, then exits. It is safe to call concurrently with
// Release (packets arriving back from in-flight replies) but must not be
// called concurrently with Acquire from application threads — by the
// time shutdown is observed, Acquire already refuses new callers.
func (p *Pool) TryPopForDrain() bool {
	sw := spin.Wait{}
	for {
		cur := p.freeHead.LoadAcquire()
		generation, index := unpack(cur)
		if index == noneIndex {
			return false
		}
		slot := &p.slots[index]
		next := uint32(slot.PoolNext)
		newHead := pack(generation+1, next)
		if p.freeHead.CompareAndSwapAcqRel(cur, newHead) {
			return true
		}
		sw.Once()
	}
}
