// Package rpc provides the communication layer of the cluster. Clients talk to
// the master, the master talks to the slaves and slaves register at the master,
// all through the same message protocol.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol with its factory functions, the node
//     configurations and the logger setup.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The key-value client, the replica client used by the coordinator
//     and the registration client of the slaves.
//
//   - server: The adapters handling incoming requests and the master and slave nodes.
package rpc
