// Package tpc implements two-phase commit replication over a ring of slaves.
//
// Every key is stored on two slaves: the primary, the slave with the smallest id
// not below the key's ring hash (wrapping around), and the secondary, the
// primary's successor on the ring. The Ring keeps the registered slaves ordered
// by id.
//
// The Coordinator runs on the master. A write is executed as:
//
//  1. validate the request and assign the next operation id
//  2. ask both replicas in parallel to prepare, waiting a bounded time
//  3. commit only if both voted ready, otherwise abort
//  4. deliver the decision to both replicas, retrying until they acknowledge
//
// Writes are executed one at a time. Reads go to the master cache, then the
// primary, then the secondary.
//
// The Participant runs on every slave. It logs each step to its write-ahead log
// (lib/wal) before answering, so a restarted slave can replay committed
// operations with Recover and still finish operations it had prepared.
//
// The network is hidden behind ReplicaClient, see rpc/client for the
// implementation used by the master.
package tpc
