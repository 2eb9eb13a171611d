package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/tpcKV/lib/secret"
	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/tpc"
	"github.com/ValentinKolb/tpcKV/rpc/common"
)

// --------------------------------------------------------------------------
// Client Endpoint
// --------------------------------------------------------------------------

// NewClientServerAdapter creates the adapter of the master's client endpoint.
// Writes are run through the coordinator, the key exchange hands out the secret of keys.
func NewClientServerAdapter(coordinator *tpc.Coordinator, keys secret.IKeySource) IRPCServerAdapter {
	return &clientServerAdapterImpl{
		coordinator: coordinator,
		keys:        keys,
	}
}

type clientServerAdapterImpl struct {
	coordinator *tpc.Coordinator
	keys        secret.IKeySource
}

func (adapter *clientServerAdapterImpl) Handle(ctx context.Context, req *common.Message) *common.Message {
	key := string(req.Key)

	switch req.MsgType {
	case common.MsgTGetReq:
		value, err := adapter.coordinator.Get(ctx, key)
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewGetResponse(key, value)
	case common.MsgTPutReq:
		existed, err := adapter.coordinator.Put(ctx, key, req.Value)
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewPutResponse(existed)
	case common.MsgTDelReq:
		if err := adapter.coordinator.Delete(ctx, key); err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewDeleteResponse()
	case common.MsgTKeyReq:
		return common.NewKeyResponse(adapter.keys.SharedKey())
	default:
		return unsupported("client", req.MsgType)
	}
}

// --------------------------------------------------------------------------
// Registration Endpoint
// --------------------------------------------------------------------------

// NewRegistrationServerAdapter creates the adapter of the master's registration endpoint
func NewRegistrationServerAdapter(ring *tpc.Ring) IRPCServerAdapter {
	return &registrationServerAdapterImpl{ring: ring}
}

type registrationServerAdapterImpl struct {
	ring *tpc.Ring
}

func (adapter *registrationServerAdapterImpl) Handle(_ context.Context, req *common.Message) *common.Message {
	if req.MsgType != common.MsgTRegister {
		return unsupported("registration", req.MsgType)
	}

	slave, err := adapter.ring.Register(req.Message)
	if err != nil {
		Logger.Warningf("Rejected registration %q: %v", req.Message, err)
		return common.NewErrorResponse(err)
	}

	Logger.Infof("Registered slave %s (%d slaves on the ring)", slave, adapter.ring.Len())
	return common.NewRegisterResponse(slave.String())
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func unsupported(endpoint string, t common.MessageType) *common.Message {
	return common.NewErrorResponse(store.NewError(store.RetCInvalidOperation,
		fmt.Sprintf("Unsupported message type for the %s endpoint: %s", endpoint, t)))
}
