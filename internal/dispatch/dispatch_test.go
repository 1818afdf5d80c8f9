package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerclient/tigerclient/internal/msgpool"
	"github.com/tigerclient/tigerclient/internal/packet"
	"github.com/tigerclient/tigerclient/internal/pending"
	"github.com/tigerclient/tigerclient/internal/protocol"
)

type completionRecord struct {
	p         *packet.Packet
	reply     []byte
	latencyNs uint64
}

func TestSubmitAssemblesChainIntoOneMessage(t *testing.T) {
	client := &protocol.FakeClient{}
	messages := msgpool.New()
	pendingQ := &pending.Queue{}
	var records []completionRecord
	d := New(client, messages, pendingQ, func(p *packet.Packet, reply []byte, latencyNs uint64) {
		records = append(records, completionRecord{p, reply, latencyNs})
	}, nil, nil)

	a := &packet.Packet{Operation: packet.OperationCreateTransfers, Data: []byte{1, 2, 3, 4}, DataSize: 4}
	b := &packet.Packet{Operation: packet.OperationCreateTransfers, Data: []byte{5, 6}, DataSize: 2}
	a.BatchNext = b
	a.BatchTail = b
	a.BatchSize = 6

	d.Submit(a)
	require.Len(t, client.Requests, 1)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, client.Requests[0])
	assert.True(t, d.Inflight())
}

func TestSubmitPanicsWhenAlreadyInflight(t *testing.T) {
	client := &protocol.FakeClient{}
	messages := msgpool.New()
	pendingQ := &pending.Queue{}
	d := New(client, messages, pendingQ, func(*packet.Packet, []byte, uint64) {}, nil, nil)

	root := &packet.Packet{Operation: packet.OperationCreateTransfers, Data: []byte{1}, DataSize: 1, BatchSize: 1}
	root.BatchTail = root
	d.Submit(root)

	other := &packet.Packet{Operation: packet.OperationCreateTransfers, Data: []byte{2}, DataSize: 1, BatchSize: 1}
	other.BatchTail = other
	assert.Panics(t, func() { d.Submit(other) })
}

func TestHandleReplyDemuxesAndCompletesEachMember(t *testing.T) {
	client := &protocol.FakeClient{}
	messages := msgpool.New()
	pendingQ := &pending.Queue{}
	var records []completionRecord
	d := New(client, messages, pendingQ, func(p *packet.Packet, reply []byte, latencyNs uint64) {
		records = append(records, completionRecord{p, reply, latencyNs})
	}, nil, nil)

	root := &packet.Packet{Operation: packet.OperationQueryAccounts, Data: []byte{1, 2, 3, 4}, DataSize: 4, BatchSize: 4}
	root.BatchTail = root
	d.Submit(root)

	client.Complete([]byte("reply-body"), nil)

	require.Len(t, records, 1)
	assert.Equal(t, []byte("reply-body"), records[0].reply)
	assert.Equal(t, packet.StatusOK, root.Status)
	assert.False(t, d.Inflight())
}

func TestHandleReplySubmitsNextPendingRootBeforeCompleting(t *testing.T) {
	client := &protocol.FakeClient{}
	messages := msgpool.New()
	pendingQ := &pending.Queue{}
	var order []string
	d := New(client, messages, pendingQ, func(p *packet.Packet, reply []byte, latencyNs uint64) {
		order = append(order, "complete")
	}, nil, nil)

	first := &packet.Packet{Operation: packet.OperationQueryAccounts, Data: []byte{1}, DataSize: 1, BatchSize: 1}
	first.BatchTail = first
	d.Submit(first)

	second := &packet.Packet{Operation: packet.OperationQueryAccounts, Data: []byte{2}, DataSize: 1, BatchSize: 1}
	second.BatchTail = second
	pendingQ.PushBack(second)

	client.Complete(nil, nil)

	assert.True(t, d.Inflight(), "the next pending root should already be submitted")
	assert.Equal(t, []string{"complete"}, order)
	assert.Equal(t, 2, len(client.Requests))
}

func TestHandleReplyTransportErrorFailsChainWithNilReply(t *testing.T) {
	client := &protocol.FakeClient{}
	messages := msgpool.New()
	pendingQ := &pending.Queue{}
	var replies [][]byte
	d := New(client, messages, pendingQ, func(p *packet.Packet, reply []byte, latencyNs uint64) {
		replies = append(replies, reply)
	}, nil, nil)

	a := &packet.Packet{Operation: packet.OperationCreateTransfers, Data: []byte{1}, DataSize: 1, BatchSize: 2}
	b := &packet.Packet{Operation: packet.OperationCreateTransfers, Data: []byte{2}, DataSize: 1}
	a.BatchNext = b
	a.BatchTail = b
	d.Submit(a)

	client.Complete(nil, errors.New("boom"))

	require.Len(t, replies, 2)
	assert.Nil(t, replies[0])
	assert.Nil(t, replies[1])
}
