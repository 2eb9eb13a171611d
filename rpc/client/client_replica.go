package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/tpc"
	"github.com/ValentinKolb/tpcKV/lib/wal"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
)

// NewReplicaClient creates the client the coordinator uses to reach its slaves
// The transport must already be connected
func NewReplicaClient(
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) tpc.ReplicaClient {
	return &replicaClient{
		rpcClientAdapter{
			transport:  transport,
			serializer: serializer,
		},
	}
}

type replicaClient struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see tpc.ReplicaClient)
// --------------------------------------------------------------------------

func (c *replicaClient) Prepare(ctx context.Context, slave tpc.SlaveInfo, op tpc.Operation) (tpc.Vote, error) {
	req := common.NewPrepareRequest(op.OpID, op.Request == wal.RequestTDelete, op.Key, op.Value)
	resp, err := c.invokeRPCRequest(ctx, slave.Address(), req, common.MsgTReady, common.MsgTAbort)
	if err != nil {
		return tpc.Vote{}, err
	}
	if resp.OpID != op.OpID {
		return tpc.Vote{}, unexpectedOpID(resp, op.OpID)
	}

	if resp.MsgType == common.MsgTAbort {
		return tpc.Vote{Err: store.ParseError(resp.Message)}, nil
	}
	return tpc.Vote{Ready: true, Existed: resp.Status == common.StatusTrue}, nil
}

func (c *replicaClient) Decide(ctx context.Context, slave tpc.SlaveInfo, opID uint64, commit bool) error {
	resp, err := c.invokeRPCRequest(ctx, slave.Address(), common.NewDecision(opID, commit), common.MsgTAck)
	if err != nil {
		return err
	}
	if resp.OpID != opID {
		return unexpectedOpID(resp, opID)
	}
	return nil
}

func (c *replicaClient) Get(ctx context.Context, slave tpc.SlaveInfo, key string) ([]byte, error) {
	resp, err := c.invokeRPCRequest(ctx, slave.Address(), common.NewGetRequest(key), common.MsgTResp)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func unexpectedOpID(resp *common.Message, expected uint64) error {
	return store.NewError(store.RetCProtocol,
		fmt.Sprintf("Received %s for operation %d, expected operation %d", resp.MsgType, resp.OpID, expected))
}
