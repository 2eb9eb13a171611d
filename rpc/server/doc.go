// Package server implements the nodes of the cluster on top of the RPC layer.
//
// An RPCServer connects a server transport with a serializer and an
// IRPCServerAdapter. The adapter turns decoded messages into calls on the
// node's logic, a nil response tells the transport to drop the request.
//
// Adapters:
//
//   - NewClientServerAdapter: the master's client endpoint. Reads, writes and
//     the key exchange are served by a tpc.Coordinator and a secret.IKeySource.
//
//   - NewRegistrationServerAdapter: the master's registration endpoint. Slaves
//     announce themselves as "<id>@<host>:<port>" and are added to the ring.
//
//   - NewSlaveServerAdapter: the slave endpoint. Writes with an operation id are
//     prepare requests, commit and abort are decisions of the master.
//
// Master and Slave wire the adapters, the storage stack and the transports into
// runnable nodes:
//
//	master, err := server.NewMaster(config, server.Transports{
//		NewServer: tcp.NewTCPServerTransport,
//		NewClient: tcp.NewTCPClientTransport,
//	}, serializer.NewBinarySerializer())
//	if err != nil {
//		return err
//	}
//	return master.Run(ctx)
//
// A slave additionally takes the filesystem its log is written to, which makes
// it possible to run it on an in-memory filesystem in tests.
package server
