// Command tigerclient-demo starts an in-memory fake cluster, connects a
// Client to it, submits a configurable number of create_transfers
// packets, and logs every completion. It exists to exercise the full submit -> batch ->
// dispatch -> demux -> complete path end to end without a real cluster.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tigerclient/tigerclient"
	"github.com/tigerclient/tigerclient/internal/logging"
	"github.com/tigerclient/tigerclient/internal/packet"
	"github.com/tigerclient/tigerclient/internal/protocol"
)

func main() {
	var (
		count   = flag.Int("count", 16, "number of create_transfers packets to submit")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	srv, err := protocol.NewServer("127.0.0.1:0")
	if err != nil {
		logger.Error("failed to start fake cluster", "error", err)
		os.Exit(1)
	}
	go srv.Serve()
	defer srv.Close()
	logger.Info("fake cluster listening", "addr", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var completed int

	cfg := tigerclient.DefaultClientConfig()
	cfg.Addresses = srv.Addr()
	cfg.Logger = logger
	cfg.TickInterval = time.Millisecond

	completion := func(_ any, c *tigerclient.Client, p *packet.Packet, reply []byte) {
		defer wg.Done()
		logger.Info("packet completed", "operation", p.Operation.String(), "status", p.Status.String(), "reply_bytes", len(reply))
		completed++
		c.Release(p)
	}

	client, err := tigerclient.NewClient(ctx, cfg, nil, completion)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	for !client.Info().Registered {
		time.Sleep(time.Millisecond)
	}
	logger.Info("registered", "client_id", client.ClientID())

	wg.Add(*count)
	for i := 0; i < *count; i++ {
		p, err := client.Acquire()
		if err != nil {
			logger.Warn("acquire failed", "error", err)
			wg.Done()
			continue
		}
		p.Operation = packet.OperationCreateTransfers
		p.Data = make([]byte, 128)
		p.DataSize = 128
		client.Submit(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
		logger.Info("all packets completed", "count", completed)
	case <-sigCh:
		logger.Info("interrupted, shutting down")
	}

	snap := client.Metrics().Snapshot()
	logger.Info("final metrics", "submits", snap.Submits, "dispatches", snap.Dispatches, "merges", snap.Merges)
}
