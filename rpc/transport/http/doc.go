// Package http implements an HTTP-based transport layer for RPC communication
// in the replicated key-value store system. It provides concrete implementations
// of the transport interfaces defined in the parent package, enabling communication
// between clients and servers over HTTP.
//
// The package focuses on:
//   - Client-side HTTP transport for sending RPC requests to servers
//   - Server-side HTTP transport for receiving and handling RPC requests
//   - A single POST /rpc route carrying the serialized message as body
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport interface. The endpoint of
//     each request is either host:port or a full base URL. Network errors are
//     retried, a 204 response (dropped request) is reported as a network error.
//
//   - httpServerTransport: Implements IRPCServerTransport interface, setting up
//     an HTTP server that passes every request body to the registered handler.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently.
package http
