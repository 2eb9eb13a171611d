// Package base provides a foundation for transport layers in the replicated key-value store,
// implementing core functionality for RPC communication independent of the specific
// network protocol (TCP, Unix sockets). It serves as a base layer that can be
// extended with protocol-specific connectors.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation. It keeps a small pool of
//     connections per endpoint, opened on first use and replaced when they fail.
//     Requests are correlated with responses by a request id, so many requests
//     share one connection.
//
//   - serverTransport: Core server implementation that accepts connections and
//     passes every request to the registered handler. The number of served
//     connections and of concurrent requests per connection are bounded.
//
// Frame Format:
//
//	[8 bytes requestID][4 bytes payload length][payload]
//
//	A frame without payload is the answer to a request the handler dropped.
//	Clients report it as a network error, the same way as a closed connection.
//
// Error Mapping:
//
//	Failures to connect, write or read are store.RetCNetwork errors and are
//	retried according to ClientTransportConfig.RetryCount. A request whose
//	context expires fails with a store.RetCTimeout error.
//
// Thread Safety:
//
//	All public methods are thread-safe. The server creates a dedicated goroutine
//	for each connection and each request.
package base
