// Package demux carves a batched reply back into the per-packet slices
// each original submitter is owed (spec §4.6).
package demux

import (
	"encoding/binary"
	"fmt"

	"github.com/tigerclient/tigerclient/internal/packet"
)

// Complete is invoked once per packet in the chain with its slice of the
// reply. The reply buffer's lifetime ends when Run returns — Complete
// implementations that wish to retain the slice must copy it.
type Complete func(p *packet.Packet, slice []byte)

// Run walks root's batch chain and invokes complete once per member with
// its subrange of reply, per the operation's demux strategy.
func Run(root *packet.Packet, reply []byte, complete Complete) error {
	info, ok := packet.Lookup(root.Operation)
	if !ok {
		return fmt.Errorf("demux: unknown operation %v", root.Operation)
	}

	// Bug-catching invariant (spec design notes, open question on
	// non-batchable reply demux): a non-batchable operation must never
	// have been merged into a multi-member chain. This is defended by
	// an assertion, not a supported code path.
	if !info.BatchingAllowed && root.BatchNext != nil {
		panic("demux: non-batchable operation has a multi-member batch chain")
	}

	switch info.Demux {
	case packet.DemuxOffset:
		return runOffset(root, info, reply, complete)
	case packet.DemuxSparseIndex:
		return runSparseIndex(root, info, reply, complete)
	default:
		return fmt.Errorf("demux: unknown demux kind %v", info.Demux)
	}
}

func runOffset(root *packet.Packet, info packet.OperationInfo, reply []byte, complete Complete) error {
	if !info.BatchingAllowed {
		// Invariant: the single result slice equals the entire reply.
		root.Status = packet.StatusOK
		complete(root, reply)
		return nil
	}

	// Check the whole chain fits before completing any member, so a short
	// reply never leaves some members completed and others not.
	var totalEvents uint32
	for p := root; p != nil; p = p.BatchNext {
		totalEvents += p.DataSize / info.EventSize
	}
	if int(totalEvents*info.ReplyEventSize) > len(reply) {
		return fmt.Errorf("demux: reply too short for %d events: %d bytes", totalEvents, len(reply))
	}

	var eventOffset uint32
	for p := root; p != nil; p = p.BatchNext {
		count := p.DataSize / info.EventSize
		start := eventOffset * info.ReplyEventSize
		end := (eventOffset + count) * info.ReplyEventSize
		if int(end) > len(reply) {
			return fmt.Errorf("demux: reply too short for offset slice [%d:%d) of %d", start, end, len(reply))
		}
		p.Status = packet.StatusOK
		complete(p, reply[start:end])
		eventOffset += count
	}
	return nil
}

// runSparseIndex handles operations whose reply is a stream of (index
// uint32, result byte) records referring only to events that need
// reporting. It partitions the records by which packet's event range
// they fall in and rebases each index to that packet's local range.
func runSparseIndex(root *packet.Packet, info packet.OperationInfo, reply []byte, complete Complete) error {
	recSize := int(info.ReplyRecordSize)
	if recSize == 0 || len(reply)%recSize != 0 {
		return fmt.Errorf("demux: reply length %d not a multiple of record size %d", len(reply), recSize)
	}
	numRecords := len(reply) / recSize

	type bucket struct {
		p     *packet.Packet
		start uint32 // first global event index belonging to p
		count uint32
	}
	var buckets []bucket
	var eventOffset uint32
	for p := root; p != nil; p = p.BatchNext {
		count := p.DataSize / info.EventSize
		buckets = append(buckets, bucket{p: p, start: eventOffset, count: count})
		eventOffset += count
	}

	out := make([][]byte, len(buckets))
	for i := 0; i < numRecords; i++ {
		rec := reply[i*recSize : (i+1)*recSize]
		globalIndex := binary.BigEndian.Uint32(rec[0:4])
		for bi := range buckets {
			b := &buckets[bi]
			if globalIndex >= b.start && globalIndex < b.start+b.count {
				rebased := make([]byte, recSize)
				copy(rebased, rec)
				binary.BigEndian.PutUint32(rebased[0:4], globalIndex-b.start)
				out[bi] = append(out[bi], rebased...)
				break
			}
		}
	}

	for i, b := range buckets {
		b.p.Status = packet.StatusOK
		complete(b.p, out[i])
	}
	return nil
}
