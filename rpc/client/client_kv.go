package client

import (
	"context"
	"sync/atomic"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
)

// KVClient talks to the client endpoint of a master
type KVClient struct {
	rpcClientAdapter
	config  common.ClientConfig
	counter atomic.Uint64
}

// NewKVClient creates a new client for the masters in config.Endpoints
// The transport is connected before the client is returned
func NewKVClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*KVClient, error) {
	if len(config.Endpoints) == 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "no endpoints provided")
	}

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &KVClient{
		rpcClientAdapter: rpcClientAdapter{
			transport:  transport,
			serializer: serializer,
		},
		config: config,
	}, nil
}

// Put stores value under key. existed reports whether the key was overwritten.
func (c *KVClient) Put(ctx context.Context, key string, value []byte) (existed bool, err error) {
	resp, err := c.invoke(ctx, common.NewPutRequest(key, value))
	if err != nil {
		return false, err
	}
	return resp.Status == common.StatusTrue, nil
}

// Get returns the value of key
func (c *KVClient) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.invoke(ctx, common.NewGetRequest(key))
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Delete removes key
func (c *KVClient) Delete(ctx context.Context, key string) error {
	_, err := c.invoke(ctx, common.NewDeleteRequest(key))
	return err
}

// SharedKey performs the key exchange and returns the master's shared secret
func (c *KVClient) SharedKey(ctx context.Context) (string, error) {
	resp, err := c.invoke(ctx, common.NewKeyRequest())
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Close closes the underlying transport
func (c *KVClient) Close() error {
	return c.transport.Close()
}

// invoke sends req to the next endpoint (round robin) within the configured timeout
func (c *KVClient) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	if timeout := c.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	idx := c.counter.Add(1) % uint64(len(c.config.Endpoints))
	return c.invokeRPCRequest(ctx, c.config.Endpoints[idx], req, common.MsgTResp)
}
