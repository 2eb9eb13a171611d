// Package transport defines the interfaces and abstractions for RPC communication
// in the replicated key-value store. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication between
// clients, the master and the slaves.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending. Requests are addressed to an
//     endpoint per call, since the master talks to every registered slave.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and passes them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
