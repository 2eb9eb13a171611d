// Package cmd implements the command-line interface of tpcKV. It provides
// commands for running the nodes of a cluster and for talking to a master
// as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (put, get, del, key)
//   - serve: Commands for starting a master or a slave
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See tpckv -help for a list of all commands.
package cmd
