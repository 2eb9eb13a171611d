// Package tcp implements TCP socket-based transport for the replicated key-value store's
// RPC system. It provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting its
// connection pooling, buffer reuse and request correlation. See the base package
// documentation for details on the underlying transport mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both connectors apply the socket options of common.SocketConf (no delay, keep
// alive, linger and buffer sizes) to every connection.
package tcp
