package server

import (
	"context"
	"errors"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/tpc"
	"github.com/ValentinKolb/tpcKV/lib/wal"
	"github.com/ValentinKolb/tpcKV/rpc/common"
)

// NewSlaveServerAdapter creates the adapter of a slave endpoint.
// Put and delete requests carrying an operation id are prepare requests of the
// commit protocol, commit and abort are the decisions.
func NewSlaveServerAdapter(participant *tpc.Participant) IRPCServerAdapter {
	return &slaveServerAdapterImpl{participant: participant}
}

type slaveServerAdapterImpl struct {
	participant *tpc.Participant
}

func (adapter *slaveServerAdapterImpl) Handle(_ context.Context, req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTPutReq:
		return adapter.prepare(req, wal.RequestTPut)
	case common.MsgTDelReq:
		return adapter.prepare(req, wal.RequestTDelete)
	case common.MsgTCommit:
		err := adapter.participant.Commit(req.OpID)
		if errors.Is(err, tpc.ErrUnknownOperation) {
			return nil
		}
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewAck(req.OpID)
	case common.MsgTAbort:
		if err := adapter.participant.Abort(req.OpID); err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewAck(req.OpID)
	case common.MsgTGetReq:
		key := string(req.Key)
		value, err := adapter.participant.Get(key)
		if err != nil {
			return common.NewErrorResponse(err)
		}
		return common.NewGetResponse(key, value)
	default:
		return unsupported("slave", req.MsgType)
	}
}

func (adapter *slaveServerAdapterImpl) prepare(req *common.Message, request wal.RequestType) *common.Message {
	if req.OpID == 0 {
		return common.NewErrorResponse(store.NewError(store.RetCInvalidOperation,
			"Slaves only accept writes from the master (missing operation id)"))
	}

	vote := adapter.participant.Prepare(tpc.Operation{
		OpID:    req.OpID,
		Request: request,
		Key:     string(req.Key),
		Value:   req.Value,
	})
	if vote.Ready {
		return common.NewReadyVote(req.OpID, vote.Existed)
	}

	reason := vote.Err
	if reason == nil {
		reason = store.NewError(store.RetCInvalidOperation, "voted abort")
	}
	return common.NewAbortVote(req.OpID, reason)
}
