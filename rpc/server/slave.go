package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/cache"
	"github.com/ValentinKolb/tpcKV/lib/db"
	"github.com/ValentinKolb/tpcKV/lib/db/engines/memory"
	"github.com/ValentinKolb/tpcKV/lib/db/engines/pebbledb"
	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/lib/store/kvnode"
	"github.com/ValentinKolb/tpcKV/lib/tpc"
	"github.com/ValentinKolb/tpcKV/lib/wal"
	"github.com/ValentinKolb/tpcKV/rpc/client"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

const (
	defaultRegisterRetry   = time.Second
	registerAttemptTimeout = 5 * time.Second
)

// Slave is a participant process. It owns a storage engine, a cache and the
// write-ahead log, replays the log on start and registers at the master.
type Slave struct {
	config      common.SlaveConfig
	id          uint64
	cache       *cache.LRU
	node        store.IStore
	log         *wal.Log
	participant *tpc.Participant

	server                *RPCServer
	registrationTransport transport.IRPCClientTransport
	registration          *client.RegistrationClient
	metricsServer         *http.Server

	addr  string
	errCh chan error
}

// NewSlave opens the storage of config and replays the write-ahead log.
// The log is stored on fs, nothing is bound before Start.
func NewSlave(config common.SlaveConfig, transports Transports, serializer serializer.IRPCSerializer, fs afero.Fs) (*Slave, error) {
	id := config.ID()

	database, err := openEngine(config)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(config.CacheSize, nil)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	node := kvnode.NewKeyValueNode(database, c)

	l, err := wal.Open(fs, config.WALPath)
	if err != nil {
		_ = node.Close()
		return nil, err
	}

	participant := tpc.NewParticipant(id, node, l)
	stats := participant.Recover()
	Logger.Infof("Slave %d replayed %d log entries: %d committed, %d skipped, %d failed",
		id, stats.Entries, stats.Committed, stats.Skipped, stats.Failed)

	registrationTransport := transports.NewClient()
	if err := registrationTransport.Connect(common.ClientConfig{Transport: config.Client}); err != nil {
		_ = node.Close()
		_ = l.Close()
		return nil, err
	}

	return &Slave{
		config:                config,
		id:                    id,
		cache:                 c,
		node:                  node,
		log:                   l,
		participant:           participant,
		server:                NewRPCServer(fmt.Sprintf("slave %d", id), transports.NewServer(), serializer, NewSlaveServerAdapter(participant)),
		registrationTransport: registrationTransport,
		registration:          client.NewRegistrationClient(config.MasterEndpoint, registrationTransport, serializer),
		errCh:                 make(chan error, 1),
	}, nil
}

// Start binds the slave endpoint, serves it in the background and registers at
// the master. Registration is retried until the master acknowledges or ctx ends.
func (s *Slave) Start(ctx context.Context) error {
	Logger.Infof("Starting slave %d", s.id)
	Logger.Infof(s.config.String())

	addr, err := s.server.Bind(withEndpoint(s.config.Server, s.config.Endpoint))
	if err != nil {
		return err
	}
	s.addr = addr

	if s.config.MetricsEndpoint != "" {
		if s.metricsServer, _, err = startMetricsServer(s.config.MetricsEndpoint); err != nil {
			_ = s.server.Close()
			return err
		}
	}
	startCacheLog(s.cache, s.config.MetricsLogIntervalSecond)

	go func() { s.errCh <- s.server.Serve() }()

	if s.config.MasterEndpoint == "" {
		Logger.Warningf("Slave %d has no master endpoint, it must be pre-declared at the master", s.id)
		return nil
	}

	info, err := s.Info()
	if err != nil {
		return err
	}

	retry := time.Duration(s.config.RegisterRetryMs) * time.Millisecond
	if retry <= 0 {
		retry = defaultRegisterRetry
	}
	confirmation, err := s.registration.RegisterWithRetry(ctx, info.String(), retry, registerAttemptTimeout)
	if err != nil {
		return fmt.Errorf("registration at %s failed: %w", s.config.MasterEndpoint, err)
	}
	Logger.Infof("Slave %d: %s", s.id, confirmation)
	return nil
}

// Run starts the slave and blocks until ctx ends or the endpoint fails
func (s *Slave) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	return wait(ctx, s.errCh, s.Close)
}

// Close stops the endpoint and closes the log and the storage engine
func (s *Slave) Close() error {
	var result *multierror.Error
	if err := s.server.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.registrationTransport.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.log.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.node.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	Logger.Infof("Slave %d stopped", s.id)
	return result.ErrorOrNil()
}

// ID returns the numeric slave id
func (s *Slave) ID() uint64 {
	return s.id
}

// Addr returns the bound address of the slave endpoint
func (s *Slave) Addr() string {
	return s.addr
}

// Participant returns the protocol participant of the slave
func (s *Slave) Participant() *tpc.Participant {
	return s.participant
}

// Info returns the slave information sent to the master. The host is the
// advertised host, or the bound host unless it is a wildcard address.
func (s *Slave) Info() (tpc.SlaveInfo, error) {
	host, portStr, err := net.SplitHostPort(s.addr)
	if err != nil {
		return tpc.SlaveInfo{}, fmt.Errorf("invalid slave address %q: %w", s.addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return tpc.SlaveInfo{}, fmt.Errorf("invalid slave port %q: %w", portStr, err)
	}

	advertise := s.config.AdvertiseHost
	if advertise == "" {
		advertise = host
		if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
			if advertise, err = os.Hostname(); err != nil {
				return tpc.SlaveInfo{}, fmt.Errorf("failed to determine host name: %w", err)
			}
		}
	}

	return tpc.SlaveInfo{SlaveID: s.id, HostName: advertise, Port: port}, nil
}

// openEngine creates the storage engine selected by config
func openEngine(config common.SlaveConfig) (db.KVDB, error) {
	switch config.Engine {
	case common.EnginePebble, "":
		return pebbledb.NewPebbleDB(&pebbledb.DBOptions{Dir: config.DataDir})
	case common.EngineMemory:
		return memory.NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q, must be %s or %s", config.Engine, common.EnginePebble, common.EngineMemory)
	}
}
