package server

import (
	"context"

	"github.com/ValentinKolb/tpcKV/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// ctx ends when the server is closed
	// If an error occurs, it should be set in the response
	// A nil response drops the request without an answer
	Handle(ctx context.Context, req *common.Message) (resp *common.Message)
}
