// Package packet defines the Packet data model, the operation table, and
// the lock-free packet pool shared across producer threads and the
// reactor thread.
package packet

// Status is set on a packet before its completion callback fires.
type Status uint8

const (
	// StatusOK indicates the completion carries a valid reply slice.
	StatusOK Status = iota
	// StatusTooMuchData indicates DataSize exceeded the max protocol body.
	StatusTooMuchData
	// StatusInvalidOperation indicates an unknown operation code.
	StatusInvalidOperation
	// StatusInvalidDataSize indicates DataSize was zero or not a multiple
	// of the operation's event size.
	StatusInvalidDataSize
	// StatusReserved is the first status code reserved for the protocol
	// client to report transport-level failures (values >= StatusReserved
	// are transport-defined and opaque to this package).
	StatusReserved
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTooMuchData:
		return "too_much_data"
	case StatusInvalidOperation:
		return "invalid_operation"
	case StatusInvalidDataSize:
		return "invalid_data_size"
	default:
		return "transport_error"
	}
}

// Operation identifies which request variant a packet carries.
type Operation uint8

const (
	OperationCreateAccounts Operation = iota + 1
	OperationCreateTransfers
	OperationLookupAccounts
	OperationLookupTransfers
	OperationQueryAccounts
	OperationQueryTransfers
)

func (op Operation) String() string {
	switch op {
	case OperationCreateAccounts:
		return "create_accounts"
	case OperationCreateTransfers:
		return "create_transfers"
	case OperationLookupAccounts:
		return "lookup_accounts"
	case OperationLookupTransfers:
		return "lookup_transfers"
	case OperationQueryAccounts:
		return "query_accounts"
	case OperationQueryTransfers:
		return "query_transfers"
	default:
		return "unknown"
	}
}

// DemuxKind selects the strategy used to carve a batched reply into
// per-packet slices. See internal/demux.
type DemuxKind uint8

const (
	// DemuxOffset: the reply is index-aligned with the request — each
	// member's slice is a contiguous run of fixed-size reply records.
	DemuxOffset DemuxKind = iota
	// DemuxSparseIndex: the reply is a sparse stream of (index, result)
	// records referring only to the events that need reporting (e.g.
	// failed indices on a create operation) — the demuxer partitions by
	// index range and rebases indices to each packet's local range.
	DemuxSparseIndex
)

// OperationInfo describes the per-operation constants the batcher and
// demultiplexer need: how large one request event is, whether instances
// of this operation may be coalesced into a shared batch, and how a
// batched reply must be carved back apart.
type OperationInfo struct {
	EventSize       uint32 // bytes per request event
	ReplyEventSize  uint32 // bytes per reply event (DemuxOffset only)
	ReplyRecordSize uint32 // bytes per sparse (index, result) record (DemuxSparseIndex only)
	BatchingAllowed bool
	Demux           DemuxKind
}

// MaxBodyBytes is the maximum protocol request/reply body size this
// client will ever assemble or accept.
const MaxBodyBytes = 1 << 20 // 1MiB

// table is the closed, compile-time-known set of permitted operation
// codes. An operation absent from this table is invalid.
var table = map[Operation]OperationInfo{
	OperationCreateAccounts: {
		EventSize:       128,
		ReplyRecordSize: 8,
		BatchingAllowed: true,
		Demux:           DemuxSparseIndex,
	},
	OperationCreateTransfers: {
		EventSize:       128,
		ReplyRecordSize: 8,
		BatchingAllowed: true,
		Demux:           DemuxSparseIndex,
	},
	OperationLookupAccounts: {
		EventSize:      16,
		ReplyEventSize: 128,
		BatchingAllowed: true,
		Demux:          DemuxOffset,
	},
	OperationLookupTransfers: {
		EventSize:      16,
		ReplyEventSize: 128,
		BatchingAllowed: true,
		Demux:          DemuxOffset,
	},
	OperationQueryAccounts: {
		EventSize:      64,
		ReplyEventSize: 128,
		BatchingAllowed: false,
		Demux:          DemuxOffset,
	},
	OperationQueryTransfers: {
		EventSize:      64,
		ReplyEventSize: 128,
		BatchingAllowed: false,
		Demux:          DemuxOffset,
	},
}

// Lookup returns the OperationInfo for op, and false if op is not a
// recognized operation code.
func Lookup(op Operation) (OperationInfo, bool) {
	info, ok := table[op]
	return info, ok
}

// Packet is the unit of submission: a pool-allocated descriptor
// representing one application request. Besides the request fields it
// embeds intrusive linkage fields (PoolNext, SubNext, PendingNext and the
// batch-root fields), each documented below with who may touch it.
type Packet struct {
	index int32 // stable slot handle, assigned once at pool creation

	Operation Operation
	Data      []byte
	DataSize  uint32
	UserTag   any
	Status    Status

	// PoolNext links free packets in the lock-free free stack. It is
	// only ever touched while the packet is off the free stack's visible
	// head (i.e. by the CAS loop that owns it at that instant).
	PoolNext int32

	// SubNext links packets pushed onto the MPSC submission stack.
	// Owned by whichever producer last pushed this packet, until the
	// reactor thread drains the stack.
	SubNext *Packet

	// PendingNext links batch roots in the single-threaded pending FIFO.
	PendingNext *Packet

	// BatchNext, BatchTail and BatchSize are meaningful only on a batch
	// root. BatchNext chains to the next member; BatchTail points at the
	// chain's last packet for O(1) append; BatchSize is the sum of every
	// member's DataSize.
	BatchNext *Packet
	BatchTail *Packet
	BatchSize uint32
}

// Index returns the packet's stable pool slot handle.
func (p *Packet) Index() int32 { return p.index }

// reset clears transient state before a packet re-enters the free stack.
// PoolNext is intentionally left for the free stack to overwrite.
func (p *Packet) reset() {
	p.Operation = 0
	p.Data = nil
	p.DataSize = 0
	p.UserTag = nil
	p.Status = StatusOK
	p.SubNext = nil
	p.PendingNext = nil
	p.BatchNext = nil
	p.BatchTail = nil
	p.BatchSize = 0
}
