// Package common provides core data structures and utilities shared across
// the replicated key-value store. It defines the wire message, the configuration
// structures of master, slave and client, and the logging setup.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Clients, master and
//     slaves exchange the same envelope; which fields are used depends on the
//     MessageType. Factory methods create every request, response, vote and decision.
//
//   - MessageType: Enumeration of the wire types (getreq, putreq, delreq, resp,
//     ready, abort, commit, ack, register, getEnKey). Put and delete requests that
//     carry an operation id are the first phase of the commit protocol.
//
//   - MasterConfig / SlaveConfig / ClientConfig: Configuration of the three
//     processes, each with a String method for startup logging.
//
//   - Logger: Custom formatting for the dragonboat logger facade, which all
//     packages use through logger.GetLogger.
package common
