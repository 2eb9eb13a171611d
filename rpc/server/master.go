package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ValentinKolb/tpcKV/lib/cache"
	"github.com/ValentinKolb/tpcKV/lib/secret"
	"github.com/ValentinKolb/tpcKV/lib/store/kvnode"
	"github.com/ValentinKolb/tpcKV/lib/tpc"
	"github.com/ValentinKolb/tpcKV/rpc/client"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/hashicorp/go-multierror"
)

// Master is the coordinator process. It serves clients on the client endpoint
// and accepts slaves on the registration endpoint.
type Master struct {
	config      common.MasterConfig
	ring        *tpc.Ring
	cache       *cache.LRU
	coordinator *tpc.Coordinator

	replicaTransport   transport.IRPCClientTransport
	clientServer       *RPCServer
	registrationServer *RPCServer
	metricsServer      *http.Server

	clientAddr       string
	registrationAddr string
	errCh            chan error
}

// NewMaster creates a master from config. Pre-declared slaves are put on the
// ring right away, nothing is bound before Start.
func NewMaster(config common.MasterConfig, transports Transports, serializer serializer.IRPCSerializer) (*Master, error) {
	c, err := cache.New(config.CacheSize, nil)
	if err != nil {
		return nil, err
	}

	ring := tpc.NewRing()
	for _, info := range config.Slaves {
		slave, err := ring.Register(info)
		if err != nil {
			return nil, fmt.Errorf("invalid pre-declared slave: %w", err)
		}
		Logger.Infof("Pre-declared slave %s", slave)
	}

	keys, err := secret.NewRandomKeySource()
	if err != nil {
		return nil, err
	}

	replicaTransport := transports.NewClient()
	if err := replicaTransport.Connect(common.ClientConfig{TimeoutMs: config.TimeoutMs, Transport: config.Client}); err != nil {
		return nil, err
	}

	coordinator := tpc.NewCoordinator(
		ring,
		client.NewReplicaClient(replicaTransport, serializer),
		kvnode.NewCacheOnlyNode(c),
		tpc.CoordinatorConfig{Timeout: config.Timeout()},
	)

	return &Master{
		config:             config,
		ring:               ring,
		cache:              c,
		coordinator:        coordinator,
		replicaTransport:   replicaTransport,
		clientServer:       NewRPCServer("client endpoint", transports.NewServer(), serializer, NewClientServerAdapter(coordinator, keys)),
		registrationServer: NewRPCServer("registration endpoint", transports.NewServer(), serializer, NewRegistrationServerAdapter(ring)),
		errCh:              make(chan error, 2),
	}, nil
}

// Start binds both endpoints and serves them in the background
func (m *Master) Start() error {
	Logger.Infof("Starting master")
	Logger.Infof(m.config.String())

	var err error
	if m.clientAddr, err = m.clientServer.Bind(withEndpoint(m.config.Server, m.config.ClientEndpoint)); err != nil {
		return fmt.Errorf("client endpoint: %w", err)
	}
	if m.registrationAddr, err = m.registrationServer.Bind(withEndpoint(m.config.Server, m.config.RegistrationEndpoint)); err != nil {
		_ = m.clientServer.Close()
		return fmt.Errorf("registration endpoint: %w", err)
	}

	if m.config.MetricsEndpoint != "" {
		if m.metricsServer, _, err = startMetricsServer(m.config.MetricsEndpoint); err != nil {
			_ = m.clientServer.Close()
			_ = m.registrationServer.Close()
			return err
		}
	}
	startCacheLog(m.cache, m.config.MetricsLogIntervalSecond)

	go func() { m.errCh <- m.clientServer.Serve() }()
	go func() { m.errCh <- m.registrationServer.Serve() }()

	Logger.Infof("Master is serving clients on %s and registrations on %s", m.clientAddr, m.registrationAddr)
	return nil
}

// Run starts the master and blocks until ctx ends or an endpoint fails
func (m *Master) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		_ = m.Close()
		return err
	}
	return wait(ctx, m.errCh, m.Close)
}

// Close stops both endpoints. Operations still in progress are cancelled.
func (m *Master) Close() error {
	var result *multierror.Error
	if err := m.clientServer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.registrationServer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.replicaTransport.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	Logger.Infof("Master stopped")
	return result.ErrorOrNil()
}

// ClientAddr returns the bound address of the client endpoint
func (m *Master) ClientAddr() string {
	return m.clientAddr
}

// RegistrationAddr returns the bound address of the registration endpoint
func (m *Master) RegistrationAddr() string {
	return m.registrationAddr
}

// Ring returns the replica ring
func (m *Master) Ring() *tpc.Ring {
	return m.ring
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func withEndpoint(config common.ServerTransportConfig, endpoint string) common.ServerTransportConfig {
	config.Endpoint = endpoint
	return config
}

// wait blocks until ctx ends or a server fails and then calls closeFn
func wait(ctx context.Context, errCh <-chan error, closeFn func() error) error {
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	if err := closeFn(); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
