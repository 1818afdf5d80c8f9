// Package protocol implements the client side of the cluster wire
// protocol: a length-prefixed binary framing carried over TCP, plus the
// one-shot registration handshake and the single-request-inflight
// discipline the dispatcher depends on.
//
// The consensus/replication protocol itself is out of scope (spec §1);
// this package treats the wire as opaque request/reply frames addressed
// to whichever replica accepted the connection.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tigerclient/tigerclient/internal/packet"
)

// magic identifies the start of a request frame, guarding against
// connecting to the wrong service entirely.
const magic uint32 = 0x54474d31 // "TGM1"

const (
	requestHeaderSize = 4 + 16 + 16 + 1 + 3 + 4 // magic, cluster id, client id, op, reserved, body len
	replyHeaderSize   = 4 + 1 + 3               // body len, status, reserved
)

// opRegister is the reserved operation code for the registration
// handshake frame; it is never exposed to packet.Operation.
const opRegister byte = 0

var errShortFrame = errors.New("protocol: short frame")

// encodeRequest serializes a request frame: header plus body. body must
// already contain the assembled batch payload. Every frame, including
// the registration frame, carries both the cluster id and the client id
// so a replica can reject traffic addressed to the wrong cluster.
func encodeRequest(buf []byte, clusterID, clientID [16]byte, op byte, body []byte) []byte {
	binary.BigEndian.PutUint32(buf[0:4], magic)
	copy(buf[4:20], clusterID[:])
	copy(buf[20:36], clientID[:])
	buf[36] = op
	buf[37], buf[38], buf[39] = 0, 0, 0
	binary.BigEndian.PutUint32(buf[40:44], uint32(len(body)))
	copy(buf[44:], body)
	return buf[:requestHeaderSize+len(body)]
}

// decodeRequestHeader parses a request header previously written by
// encodeRequest, returning the cluster id, client id, op, and body length.
func decodeRequestHeader(hdr []byte) (clusterID, clientID [16]byte, op byte, bodyLen uint32, err error) {
	if len(hdr) < requestHeaderSize {
		return clusterID, clientID, 0, 0, errShortFrame
	}
	if got := binary.BigEndian.Uint32(hdr[0:4]); got != magic {
		return clusterID, clientID, 0, 0, fmt.Errorf("protocol: bad magic %08x", got)
	}
	copy(clusterID[:], hdr[4:20])
	copy(clientID[:], hdr[20:36])
	op = hdr[36]
	bodyLen = binary.BigEndian.Uint32(hdr[40:44])
	return clusterID, clientID, op, bodyLen, nil
}

// encodeReply serializes a reply frame.
func encodeReply(buf []byte, status byte, body []byte) []byte {
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(body)))
	buf[4] = status
	buf[5], buf[6], buf[7] = 0, 0, 0
	copy(buf[8:], body)
	return buf[:replyHeaderSize+len(body)]
}

// decodeReplyHeader parses a reply header, returning status and body length.
func decodeReplyHeader(hdr []byte) (status byte, bodyLen uint32, err error) {
	if len(hdr) < replyHeaderSize {
		return 0, 0, errShortFrame
	}
	bodyLen = binary.BigEndian.Uint32(hdr[0:4])
	status = hdr[4]
	return status, bodyLen, nil
}

func operationToWire(op packet.Operation) byte {
	return byte(op)
}

func wireToOperation(b byte) packet.Operation {
	return packet.Operation(b)
}
