// Package secret provides the shared key the master hands out to clients
// through the key exchange request.
package secret
