package server

import (
	"context"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// Transports creates the transports of a node. A master needs two server
// transports (client and registration endpoint) and one client transport.
type Transports struct {
	NewServer func() transport.IRPCServerTransport
	NewClient func() transport.IRPCClientTransport
}

// RPCServer connects a server transport with a serializer and an adapter
type RPCServer struct {
	name       string
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRPCServer creates a new RPC server
// It takes a name (used for logging), transport, serializer and adapter as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		"slave 1",
//		tcp.NewTCPServerTransport(),
//		serializer.NewJSONSerializer(),
//		server.NewSlaveServerAdapter(participant),
//	)
//
//	addr, err := s.Bind(config)
//	go s.Serve()
func NewRPCServer(
	name string,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	adapter IRPCServerAdapter,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &RPCServer{
		name:       name,
		transport:  transport,
		serializer: serializer,
		adapter:    adapter,
		ctx:        ctx,
		cancel:     cancel,
	}
	transport.RegisterHandler(s.handle)
	return s
}

// Bind creates the listener and returns its address
func (s *RPCServer) Bind(config common.ServerTransportConfig) (string, error) {
	return s.transport.Bind(config)
}

// Serve handles requests until Close is called
func (s *RPCServer) Serve() error {
	return s.transport.Serve()
}

// Close stops the server, requests still in progress see their context cancelled
func (s *RPCServer) Close() error {
	s.cancel()
	return s.transport.Close()
}

// handle decodes a request, passes it to the adapter and encodes the response
func (s *RPCServer) handle(req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		Logger.Warningf("%s: %v", s.name, err)
		resp = common.NewErrorResponse(err)
	} else {
		// Let the adapter handle the request
		resp = s.adapter.Handle(s.ctx, &msg)
		if resp == nil {
			Logger.Debugf("%s: dropped %s request for op %d", s.name, msg.MsgType, msg.OpID)
			return nil
		}
	}

	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("%s: failed to serialize response: %v", s.name, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(
			store.NewError(store.RetCInternalError, "failed to serialize response")))
	}
	return val
}
