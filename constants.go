package tigerclient

import (
	"github.com/tigerclient/tigerclient/internal/packet"
	"github.com/tigerclient/tigerclient/internal/protocol"
)

// Re-exported limits so callers configuring a Client never need to
// import the internal packages directly.
const (
	// MaxConcurrency is the upper bound on ClientConfig.ConcurrencyMax.
	MaxConcurrency = 8192
	// MaxBodyBytes is the largest request/reply body the protocol will
	// ever assemble or accept.
	MaxBodyBytes = packet.MaxBodyBytes
	// MaxReplicas bounds the number of addresses in ClientConfig.Addresses.
	MaxReplicas = protocol.MaxReplicas
)
