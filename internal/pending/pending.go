// Package pending implements the FIFO of batch roots awaiting the
// dispatcher's single inflight slot. It is touched exclusively by the
// reactor thread, so no synchronization is needed.
package pending

import "github.com/tigerclient/tigerclient/internal/packet"

// Queue is a FIFO of batch roots, linked via Packet.PendingNext.
type Queue struct {
	head *packet.Packet
	tail *packet.Packet
	n    int
}

// Len returns the number of batch roots currently queued.
func (q *Queue) Len() int { return q.n }

// PushBack enqueues root as a new, as-yet-unmerged batch.
func (q *Queue) PushBack(root *packet.Packet) {
	root.PendingNext = nil
	if q.tail == nil {
		q.head = root
		q.tail = root
	} else {
		q.tail.PendingNext = root
		q.tail = root
	}
	q.n++
}

// PopFront removes and returns the oldest batch root, or nil if empty.
func (q *Queue) PopFront() *packet.Packet {
	if q.head == nil {
		return nil
	}
	root := q.head
	q.head = root.PendingNext
	if q.head == nil {
		q.tail = nil
	}
	root.PendingNext = nil
	q.n--
	return root
}

// FindMergeable scans head-to-tail (mandatory for FIFO fairness: older
// roots fill first) for the first root matching op whose batch would not
// exceed maxBody after absorbing dataSize more bytes, and returns it.
// Returns nil if no root qualifies.
func (q *Queue) FindMergeable(op packet.Operation, dataSize uint32, maxBody uint32) *packet.Packet {
	for root := q.head; root != nil; root = root.PendingNext {
		if root.Operation == op && root.BatchSize+dataSize <= maxBody {
			return root
		}
	}
	return nil
}
