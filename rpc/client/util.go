package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the KV, replica and registration clients with composition pattern
type rpcClientAdapter struct {
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes an endpoint, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is one of the expected types
func (a *rpcClientAdapter) invokeRPCRequest(ctx context.Context, endpoint string, req *common.Message, expected ...common.MessageType) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, store.NewError(store.RetCProtocol, fmt.Sprintf("failed to serialize request: %v", err))
	}

	// Send the request
	respBytes, err := a.transport.Send(ctx, endpoint, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, err
	}

	// Check if the response is an error response
	if err := resp.Err(); err != nil {
		return nil, err
	}

	// Check if the type of the response is an expected type
	for _, t := range expected {
		if resp.MsgType == t {
			return resp, nil
		}
	}
	return nil, store.NewError(store.RetCProtocol,
		fmt.Sprintf("Unexpected message type %s in response to %s", resp.MsgType, req.MsgType))
}
