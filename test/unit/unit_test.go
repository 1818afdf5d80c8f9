// +build !integration

// Package unit holds smoke tests against the public Client API that
// need no real socket (see test/integration for the TCP-backed
// scenarios).
package unit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tigerclient/tigerclient"
	"github.com/tigerclient/tigerclient/internal/packet"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newClient(t *testing.T, completion tigerclient.CompletionFunc) (*tigerclient.Client, *tigerclient.MockProtocolClient) {
	t.Helper()
	mock := tigerclient.NewMockProtocolClient()
	cfg := tigerclient.DefaultClientConfig()
	cfg.Addresses = "127.0.0.1:3000"
	cfg.TickInterval = time.Millisecond
	cfg.ProtocolClient = mock

	c, err := tigerclient.NewClient(context.Background(), cfg, nil, completion)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	waitFor(t, func() bool { return mock.CallCounts()["register"] > 0 })
	mock.CompleteRegistration(nil)
	waitFor(t, func() bool { return c.Info().Registered })
	return c, mock
}

func TestClientIDIsStableAcrossCalls(t *testing.T) {
	completion := func(any, *tigerclient.Client, *packet.Packet, []byte) {}
	c, _ := newClient(t, completion)
	defer c.Close()

	id1 := c.ClientID()
	id2 := c.ClientID()
	if id1 != id2 {
		t.Fatalf("ClientID changed across calls: %v != %v", id1, id2)
	}
	if id1 == ([16]byte{}) {
		t.Fatal("ClientID must not be the zero value")
	}
}

func TestAcquireExhaustsConfiguredConcurrency(t *testing.T) {
	mock := tigerclient.NewMockProtocolClient()
	cfg := tigerclient.DefaultClientConfig()
	cfg.Addresses = "127.0.0.1:3000"
	cfg.ConcurrencyMax = 2
	cfg.ProtocolClient = mock
	completion := func(any, *tigerclient.Client, *packet.Packet, []byte) {}

	c, err := tigerclient.NewClient(context.Background(), cfg, nil, completion)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	_, err = c.Acquire()
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}
	_, err = c.Acquire()
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	_, err = c.Acquire()
	if !tigerclient.IsCode(err, tigerclient.CodeConcurrencyMaxExceeded) {
		t.Fatalf("Acquire 3 err = %v, want CodeConcurrencyMaxExceeded", err)
	}
}

func TestMetricsTrackAcquireAndRelease(t *testing.T) {
	completion := func(any, *tigerclient.Client, *packet.Packet, []byte) {}
	c, _ := newClient(t, completion)
	defer c.Close()

	p, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	c.Release(p)

	snap := c.Metrics().Snapshot()
	if snap.Acquires != 1 {
		t.Errorf("Acquires = %d, want 1", snap.Acquires)
	}
	if snap.Releases != 1 {
		t.Errorf("Releases = %d, want 1", snap.Releases)
	}
}

func TestMetricsCountsEachCompletionOnce(t *testing.T) {
	completion := func(any, *tigerclient.Client, *packet.Packet, []byte) {}
	c, mock := newClient(t, completion)
	defer c.Close()

	p, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Operation = packet.OperationCreateTransfers
	p.Data = make([]byte, 128)
	p.DataSize = 128
	c.Submit(p)

	mock.SetHandler(func(op packet.Operation, body []byte) ([]byte, error) {
		return make([]byte, 8), nil
	})
	waitFor(t, func() bool { return c.Metrics().Snapshot().Completions == 1 })

	snap := c.Metrics().Snapshot()
	if snap.Completions != 1 {
		t.Fatalf("Completions = %d, want exactly 1 (default Observer must not double-count alongside Metrics)", snap.Completions)
	}
	c.Release(p)
}

func TestInfoReflectsPendingDepth(t *testing.T) {
	var mu sync.Mutex
	completed := 0
	completion := func(any, *tigerclient.Client, *packet.Packet, []byte) {
		mu.Lock()
		completed++
		mu.Unlock()
	}
	c, mock := newClient(t, completion)
	defer c.Close()

	first, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first.Operation = packet.OperationCreateTransfers
	first.Data = make([]byte, 128)
	first.DataSize = 128
	c.Submit(first)
	waitFor(t, func() bool { return c.Info().Inflight })

	second, err := c.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second.Operation = packet.OperationCreateTransfers
	second.Data = make([]byte, 128)
	second.DataSize = 128
	c.Submit(second)
	waitFor(t, func() bool { return c.Info().Pending == 1 })

	mock.SetHandler(func(op packet.Operation, body []byte) ([]byte, error) {
		return make([]byte, 8), nil
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return completed == 2
	})
	c.Release(first)
	c.Release(second)
}
