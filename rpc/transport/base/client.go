package base

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// defaultConnectTimeout bounds the eager connects of Connect
const defaultConnectTimeout = 5 * time.Second

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientTransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn         net.Conn
	endpoint     string
	requestChans *xsync.MapOf[uint64, chan responseResult]
	writeMu      sync.Mutex // Protects writes to the connection

	failOnce sync.Once
	done     chan struct{} // Closed when the connection is unusable
	err      error         // Set before done is closed
}

// endpointPool holds the connections to one endpoint
type endpointPool struct {
	mu    sync.Mutex
	conns []*clientConnection
	next  uint64 // Round Robin counter
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	pools         *xsync.MapOf[string, *endpointPool]
	nextRequestID atomic.Uint64
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		pools:     xsync.NewMapOf[string, *endpointPool](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	// Close all existing connections
	t.closeConnections()

	t.config = config
	t.stopping.Store(false)

	connected := 0
	for _, endpoint := range config.Endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
		_, err := t.getConnection(ctx, endpoint)
		cancel()
		if err != nil {
			Logger.Warningf("Failed to connect to %s: %v", endpoint, err)
			continue
		}
		connected++
	}

	// Check if we have at least one connection
	if len(config.Endpoints) > 0 && connected == 0 {
		return store.NewError(store.RetCNetwork, "Network Error: failed to connect to any endpoint")
	}

	Logger.Infof("Connected to %d out of %d endpoints using %s transport",
		connected, len(config.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(ctx context.Context, endpoint string, req []byte) ([]byte, error) {
	// We always try at least once, network errors are retried up to RetryCount times
	maxRetries := max(1, t.config.Transport.RetryCount)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		data, err := t.send(ctx, endpoint, req)
		if err == nil {
			return data, nil
		}
		lastErr = err

		// Only failures before a response arrived are worth a retry
		if !errors.Is(err, store.ErrNetwork) || ctx.Err() != nil {
			return nil, err
		}
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", i+1, maxRetries, endpoint, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			timer := time.NewTimer(time.Duration(jitter) * time.Millisecond)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, timeoutError(endpoint, ctx.Err())
			}
			backoffMs *= 2
		}
	}

	return nil, lastErr
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// send performs a single request response exchange
func (t *clientTransport) send(ctx context.Context, endpoint string, req []byte) ([]byte, error) {
	if t.stopping.Load() {
		return nil, networkError("Could not create socket", errors.New("transport is closed"))
	}

	conn, err := t.getConnection(ctx, endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(endpoint, ctx.Err())
		}
		return nil, networkError("Could not create socket", err)
	}

	// Generate a unique request ID and register the response channel
	requestID := t.nextRequestID.Add(1)
	respCh := make(chan responseResult, 1)
	conn.requestChans.Store(requestID, respCh)
	defer conn.requestChans.Delete(requestID)

	// Lock the connection only for writing
	conn.writeMu.Lock()
	deadline, _ := ctx.Deadline()
	err = conn.conn.SetWriteDeadline(deadline)
	if err == nil {
		err = writeFrame(conn.conn, requestID, req)
	}
	conn.writeMu.Unlock()

	if err != nil {
		conn.fail(err)
		return nil, networkError("Could not send data", err)
	}

	// Wait for response, connection failure or timeout
	select {
	case result := <-respCh:
		return result.response()
	case <-conn.done:
		// The response may have arrived right before the connection failed
		select {
		case result := <-respCh:
			return result.response()
		default:
		}
		return nil, networkError("Could not receive data", conn.err)
	case <-ctx.Done():
		return nil, timeoutError(endpoint, ctx.Err())
	}
}

// response returns the payload, an empty frame means the server dropped the request
func (r responseResult) response() ([]byte, error) {
	if len(r.data) == 0 {
		return nil, networkError("Could not receive data", errors.New("connection closed without response"))
	}
	return r.data, nil
}

// getConnection returns a usable connection to endpoint, dialing if the pool is not full yet
func (t *clientTransport) getConnection(ctx context.Context, endpoint string) (*clientConnection, error) {
	pool, _ := t.pools.LoadOrCompute(endpoint, func() *endpointPool {
		return &endpointPool{}
	})

	pool.mu.Lock()
	defer pool.mu.Unlock()

	// Drop failed connections
	alive := pool.conns[:0]
	for _, c := range pool.conns {
		if !c.failed() {
			alive = append(alive, c)
		}
	}
	clear(pool.conns[len(alive):])
	pool.conns = alive

	// Set default value for ConnectionsPerEndpoint
	size := max(1, t.config.Transport.ConnectionsPerEndpoint)

	if len(pool.conns) < size {
		c, err := t.dial(ctx, endpoint)
		if err != nil {
			// Fall back to an existing connection
			if len(pool.conns) > 0 {
				return pool.conns[0], nil
			}
			return nil, err
		}
		pool.conns = append(pool.conns, c)
		Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, len(pool.conns), size)
		return c, nil
	}

	// Simple Round Robin algorithm
	pool.next++
	return pool.conns[pool.next%uint64(len(pool.conns))], nil
}

// dial establishes a new connection and starts its response reader
func (t *clientTransport) dial(ctx context.Context, endpoint string) (*clientConnection, error) {
	conn, err := t.connector.Connect(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, t.config.Transport); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
	}

	c := &clientConnection{
		conn:         conn,
		endpoint:     endpoint,
		requestChans: xsync.NewMapOf[uint64, chan responseResult](),
		done:         make(chan struct{}),
	}
	go c.readResponses()
	return c, nil
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.pools.Range(func(endpoint string, pool *endpointPool) bool {
		pool.mu.Lock()
		for _, c := range pool.conns {
			c.fail(errors.New("transport is closed"))
		}
		pool.conns = nil
		pool.mu.Unlock()
		return true
	})
	t.pools.Clear()
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	for {
		requestID, data, err := readFrame(c.conn, nil)
		if err != nil {
			c.fail(err)
			return
		}

		// Find the corresponding request channel
		respCh, found := c.requestChans.Load(requestID)
		if !found {
			// The request gave up waiting
			Logger.Debugf("Received response for unknown request ID %d from %s", requestID, c.endpoint)
			continue
		}

		select {
		case respCh <- responseResult{data: data}:
		default:
			Logger.Warningf("Dropped duplicate response for request ID %d from %s", requestID, c.endpoint)
		}
	}
}

// fail marks the connection as unusable and closes it
func (c *clientConnection) fail(err error) {
	c.failOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.conn.Close()
	})
}

// failed reports whether the connection is unusable
func (c *clientConnection) failed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
