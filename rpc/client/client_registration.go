package client

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
)

// RegistrationClient announces a slave at the registration endpoint of the master
type RegistrationClient struct {
	rpcClientAdapter
	endpoint string
}

// NewRegistrationClient creates a client for the registration endpoint
// The transport must already be connected
func NewRegistrationClient(
	endpoint string,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) *RegistrationClient {
	return &RegistrationClient{
		rpcClientAdapter: rpcClientAdapter{
			transport:  transport,
			serializer: serializer,
		},
		endpoint: endpoint,
	}
}

// Register sends info ("<id>@<host>:<port>") once and returns the master's confirmation
func (c *RegistrationClient) Register(ctx context.Context, info string) (string, error) {
	resp, err := c.invokeRPCRequest(ctx, c.endpoint, common.NewRegisterRequest(info), common.MsgTResp)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// RegisterWithRetry repeats Register every interval until the master acknowledges or ctx ends
func (c *RegistrationClient) RegisterWithRetry(ctx context.Context, info string, interval, attemptTimeout time.Duration) (string, error) {
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		confirmation, err := c.Register(attemptCtx, info)
		cancel()
		if err == nil {
			return confirmation, nil
		}

		if errors.Is(err, store.ErrRegistration) {
			return "", err
		}
		Logger.Warningf("Registration at %s failed (attempt %d): %v", c.endpoint, attempt, err)

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", err
		}
	}
}
