package protocol

import (
	"bufio"
	"encoding/binary"
	"net"

	"github.com/tigerclient/tigerclient/internal/packet"
)

// Server is a minimal in-memory stand-in for the replicated cluster,
// used by integration tests and the demo command. It serves every
// accepted connection on its own goroutine and replies to each request
// frame on that connection in turn,
// repurposing the teacher's in-memory backend pattern (a deterministic,
// allocation-light fake standing in for the real storage/consensus
// layer) for the wire protocol instead of a block device.
type Server struct {
	ln       net.Listener
	FailEach int // when > 0, mark every FailEach-th create event as failed
}

// NewServer starts listening on addr ("127.0.0.1:0" for an ephemeral port).
func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close stops accepting connections.
func (s *Server) Close() error { return s.ln.Close() }

// Serve accepts and handles connections until Close is called. Intended
// to be run in its own goroutine.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	hdr := make([]byte, requestHeaderSize)
	for {
		if _, err := readFull(r, hdr); err != nil {
			return
		}
		_, _, op, bodyLen, err := decodeRequestHeader(hdr)
		if err != nil {
			return
		}
		body := make([]byte, bodyLen)
		if bodyLen > 0 {
			if _, err := readFull(r, body); err != nil {
				return
			}
		}

		var reply []byte
		if op == opRegister {
			reply = nil
		} else {
			reply = s.reply(wireToOperation(op), body)
		}

		replyBuf := make([]byte, replyHeaderSize+len(reply))
		frame := encodeReply(replyBuf, 0, reply)
		if _, err := w.Write(frame); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) reply(op packet.Operation, body []byte) []byte {
	info, ok := packet.Lookup(op)
	if !ok || info.EventSize == 0 {
		return nil
	}
	count := len(body) / int(info.EventSize)

	switch info.Demux {
	case packet.DemuxSparseIndex:
		var out []byte
		for i := 0; i < count; i++ {
			if s.FailEach > 0 && (i+1)%s.FailEach == 0 {
				rec := make([]byte, info.ReplyRecordSize)
				binary.BigEndian.PutUint32(rec[0:4], uint32(i))
				rec[4] = 1 // nonzero result = failed
				out = append(out, rec...)
			}
		}
		return out
	default: // DemuxOffset
		out := make([]byte, count*int(info.ReplyEventSize))
		for i := 0; i < count; i++ {
			rec := out[i*int(info.ReplyEventSize) : (i+1)*int(info.ReplyEventSize)]
			src := body[i*int(info.EventSize) : (i+1)*int(info.EventSize)]
			n := copy(rec, src)
			for j := n; j < len(rec); j++ {
				rec[j] = byte(i)
			}
		}
		return out
	}
}
