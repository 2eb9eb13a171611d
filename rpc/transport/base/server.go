package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	defaultBufferSize     = 64 * 1024 // 64 KB
	defaultWorkers        = 128
	defaultWorkersPerConn = 16
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerTransportConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerTransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector  IServerConnector
	handler    transport.ServerHandleFunc
	config     common.ServerTransportConfig
	listener   net.Listener
	bufferPool *sync.Pool
	workers    chan struct{} // Counting semaphore bounding the served connections
	conns      *xsync.MapOf[net.Conn, struct{}]
	closing    atomic.Bool
	wg         sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with a bounded worker pool
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[net.Conn, struct{}](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Bind(config common.ServerTransportConfig) (string, error) {
	if t.handler == nil {
		return "", fmt.Errorf("no handler registered")
	}

	// Apply defaults
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}
	// minimum one worker per connection
	if config.WorkersPerConn <= 0 {
		config.WorkersPerConn = defaultWorkersPerConn
	}
	t.config = config

	bufferSize := config.BufferSize
	t.bufferPool = &sync.Pool{
		New: func() interface{} {
			return make([]byte, bufferSize)
		},
	}
	t.workers = make(chan struct{}, config.Workers)

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return "", fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener

	Logger.Infof("Bound %s server to %s with %d workers (%d per connection)",
		t.connector.GetName(), listener.Addr().String(), config.Workers, config.WorkersPerConn)

	return listener.Addr().String(), nil
}

func (t *serverTransport) Serve() error {
	if t.listener == nil {
		return fmt.Errorf("server is not bound")
	}

	for {
		// Acquire a worker slot before accepting (blocks if all workers are busy)
		t.workers <- struct{}{}

		conn, err := t.listener.Accept()
		if err != nil {
			<-t.workers
			if t.closing.Load() {
				// Wait for open connections to be drained
				t.wg.Wait()
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				Logger.Warningf("Accept error: %v", err)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		// Handle the connection in a goroutine
		t.wg.Add(1)
		t.conns.Store(conn, struct{}{})
		go func() {
			defer func() {
				t.conns.Delete(conn)
				<-t.workers
				t.wg.Done()
			}()
			t.handleConnection(conn)
		}()
	}
}

func (t *serverTransport) Close() error {
	if !t.closing.CompareAndSwap(false, true) {
		return nil
	}
	if t.listener == nil {
		return nil
	}

	err := t.listener.Close()

	// Unblock connections waiting for requests
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.SetReadDeadline(time.Now())
		return true
	})

	Logger.Infof("Closed %s server on %s", t.connector.GetName(), t.listener.Addr().String())
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer conn.Close()

	timeout := time.Duration(t.config.IdleTimeoutSecond) * time.Second

	// Create a semaphore to limit concurrent workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.config.WorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Create a mutex to protect writes to the connection
	var connMutex sync.Mutex

	// Handler function that processes requests in worker goroutines
	handleResponse := func(requestID uint64, data []byte) {
		// When done, release the semaphore and mark worker as done
		defer func() {
			<-workerSemaphore
			wg.Done()
		}()

		// Process the request
		start := time.Now()
		resp := t.handler(data)
		Logger.Debugf("Processed request %d from %s took %s", requestID, conn.RemoteAddr(), time.Since(start))

		// Protect writes to the connection with a mutex
		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		// Write the response with the same requestID, a nil response is sent as empty frame
		if err := writeFrame(conn, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	// Function to handle incoming requests
	handleRequest := func() error {
		if t.closing.Load() {
			return io.EOF
		}

		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		// Read the frame with requestID
		requestID, data, err := readFrame(conn, buf)
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Acquire a slot in the semaphore (blocks if WorkersPerConn is reached)
		workerSemaphore <- struct{}{}
		wg.Add(1)

		// Process in a goroutine
		go func() {
			defer t.bufferPool.Put(buf)
			handleResponse(requestID, data)
		}()

		return nil
	}

	// Handle requests in a loop
	for {
		err := handleRequest()

		// Case EOF: Connection closed by client
		if errors.Is(err, io.EOF) {
			Logger.Debugf("Connection closed by %s", conn.RemoteAddr())
			break
		}

		// Case error: log and close connection
		if err != nil {
			if t.closing.Load() {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				Logger.Debugf("Closing idle connection from %s", conn.RemoteAddr())
			} else {
				Logger.Warningf("Error handling request from %s: %v", conn.RemoteAddr(), err)
			}
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
