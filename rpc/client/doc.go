// Package client implements the RPC clients of the replicated key-value store.
//
// Key Components:
//
//   - KVClient: Client of the master's client endpoint (get, put, del and the
//     getEnKey key exchange). Requests are spread round robin over the configured
//     endpoints and bounded by the configured timeout.
//
//   - NewReplicaClient: Implementation of tpc.ReplicaClient used by the master to
//     send prepare requests, decisions and reads to its slaves.
//
//   - RegistrationClient: Announces a slave at the master's registration endpoint,
//     optionally retrying until the master acknowledges.
//
// Error responses are turned back into *store.Error values, so callers can use
// errors.Is with the store sentinels. Composite errors of failed replicated
// operations keep their "@<id>=><error>" lines.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints: []string{"localhost:8080"},
//	  TimeoutMs: 10000,
//	}
//
//	kv, err := client.NewKVClient(config, tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
//	if err != nil {
//	  return err
//	}
//	defer kv.Close()
//
//	existed, err := kv.Put(ctx, "mykey", []byte("myvalue"))
//	value, err := kv.Get(ctx, "mykey")
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
