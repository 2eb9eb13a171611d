package transport

import (
	"context"

	"github.com/ValentinKolb/tpcKV/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// A nil response tells the transport to answer without payload, which
// clients treat as a dropped connection
type ServerHandleFunc func(req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler is called for every received request
	RegisterHandler(handler ServerHandleFunc)
	// Bind creates the listener and returns the address it is bound to
	Bind(config common.ServerTransportConfig) (addr string, err error)
	// Serve accepts requests until Close is called
	Serve() error
	// Close stops accepting requests and closes the listener
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	// Connections to the configured endpoints are opened eagerly, others on first use
	Connect(config common.ClientConfig) error
	// Send sends a request to endpoint and returns the response
	// Failures are reported as store.RetCNetwork or store.RetCTimeout errors
	Send(ctx context.Context, endpoint string, req []byte) (resp []byte, err error)
	// Close closes all connections
	Close() error
}
