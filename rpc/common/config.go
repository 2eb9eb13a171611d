package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/db/util"
)

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds the socket options shared by client and server transports.
// Zero values keep the operating system defaults.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig configures a single listener
type ServerTransportConfig struct {
	// Endpoint is the address to listen on (host:port, or a socket path for unix)
	Endpoint string
	// WorkersPerConn bounds the number of requests handled concurrently per connection
	WorkersPerConn int
	// Workers bounds the number of connections served concurrently
	Workers int
	// IdleTimeoutSecond closes connections without traffic, 0 disables the timeout
	IdleTimeoutSecond int
	// BufferSize is the size of the pooled read buffers
	BufferSize int

	SocketConf
}

// ClientTransportConfig holds the client side transport options
type ClientTransportConfig struct {
	// RetryCount is the number of attempts for requests failing with a network error
	RetryCount int
	// ConnectionsPerEndpoint is the number of pooled connections per endpoint
	ConnectionsPerEndpoint int

	SocketConf
}

// --------------------------------------------------------------------------
// Master configuration struct
// --------------------------------------------------------------------------

// MasterConfig holds all configuration parameters of the coordinator node
type MasterConfig struct {
	// ClientEndpoint serves get, put, del and key exchange requests
	ClientEndpoint string
	// RegistrationEndpoint accepts slave registrations
	RegistrationEndpoint string
	// Slaves are pre-declared slaves in the registration format "<id>@<host>:<port>"
	Slaves []string

	// TimeoutMs bounds every protocol round
	TimeoutMs int
	// CacheSize is the capacity of the master cache
	CacheSize int

	// Observability
	LogLevel                 string
	MetricsEndpoint          string
	MetricsLogIntervalSecond int

	Server ServerTransportConfig
	Client ClientTransportConfig
}

// Timeout returns the protocol round timeout
func (c *MasterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// String returns a formatted string representation of the configuration
func (c *MasterConfig) String() string {
	p := newPrinter()

	p.addSection("Master")
	p.addField("Client Endpoint", c.ClientEndpoint)
	p.addField("Registration Endpoint", c.RegistrationEndpoint)
	p.addField("Timeout", fmt.Sprintf("%d ms", c.TimeoutMs))
	p.addField("Cache Size", strconv.Itoa(c.CacheSize))

	p.addSection("Pre-declared Slaves")
	if len(c.Slaves) == 0 {
		p.addField("-", "none")
	}
	for i, slave := range c.Slaves {
		p.addField(strconv.Itoa(i), slave)
	}

	p.addObservability(c.LogLevel, c.MetricsEndpoint, c.MetricsLogIntervalSecond)
	p.addServer(c.Server)
	p.addClient(c.Client)
	return p.String()
}

// --------------------------------------------------------------------------
// Slave configuration struct
// --------------------------------------------------------------------------

// Storage engines of a slave
const (
	EnginePebble = "pebble"
	EngineMemory = "memory"
)

// SlaveConfig holds all configuration parameters of a participant node
type SlaveConfig struct {
	// SlaveID is a numeric id or a name which is hashed into one
	SlaveID string
	// Endpoint is the address the slave listens on
	Endpoint string
	// AdvertiseHost is the host the master uses to reach this slave, defaults to the endpoint host
	AdvertiseHost string
	// MasterEndpoint is the registration endpoint of the master
	MasterEndpoint string
	// RegisterRetryMs is the pause between registration attempts
	RegisterRetryMs int

	// Storage
	Engine    string
	DataDir   string
	WALPath   string
	CacheSize int

	// Observability
	LogLevel                 string
	MetricsEndpoint          string
	MetricsLogIntervalSecond int

	Server ServerTransportConfig
	Client ClientTransportConfig
}

// ID returns the numeric slave id. Names that are not numeric are hashed.
func (c *SlaveConfig) ID() uint64 {
	if id, err := strconv.ParseUint(c.SlaveID, 10, 64); err == nil {
		return id
	}
	return util.HashString(c.SlaveID, 0)
}

// String returns a formatted string representation of the configuration
func (c *SlaveConfig) String() string {
	p := newPrinter()

	p.addSection("Slave")
	p.addField("Slave ID", fmt.Sprintf("%d (%s)", c.ID(), c.SlaveID))
	p.addField("Endpoint", c.Endpoint)
	p.addField("Advertised Host", c.AdvertiseHost)
	p.addField("Master", c.MasterEndpoint)
	p.addField("Register Retry", fmt.Sprintf("%d ms", c.RegisterRetryMs))

	p.addSection("Storage")
	p.addField("Engine", c.Engine)
	if c.Engine == EnginePebble {
		p.addField("Data Directory", c.DataDir)
	}
	p.addField("Write-Ahead Log", c.WALPath)
	p.addField("Cache Size", strconv.Itoa(c.CacheSize))

	p.addObservability(c.LogLevel, c.MetricsEndpoint, c.MetricsLogIntervalSecond)
	p.addServer(c.Server)
	return p.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures a client of the master
type ClientConfig struct {
	Endpoints []string
	TimeoutMs int
	Transport ClientTransportConfig
}

// Timeout returns the request timeout
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	p := newPrinter()

	p.addSection("Client Configuration")
	p.addField("Timeout", fmt.Sprintf("%d ms", c.TimeoutMs))

	p.addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		p.addField(strconv.Itoa(i), endpoint)
	}

	p.addClient(c.Transport)
	return p.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printer formats configuration structs in aligned sections
type printer struct {
	sb strings.Builder
}

func newPrinter() *printer {
	return &printer{}
}

func (p *printer) String() string {
	return p.sb.String()
}

func (p *printer) addSection(title string) {
	p.sb.WriteString("\n")
	p.sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func (p *printer) addField(name, value string) {
	p.sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}

func (p *printer) addObservability(level, metricsEndpoint string, logInterval int) {
	p.addSection("Observability")
	p.addField("Log Level", level)
	if metricsEndpoint == "" {
		metricsEndpoint = "disabled"
	}
	p.addField("Metrics Endpoint", metricsEndpoint)
	if logInterval > 0 {
		p.addField("Metrics Log Interval", fmt.Sprintf("%d sec", logInterval))
	}
}

func (p *printer) addServer(c ServerTransportConfig) {
	p.addSection("Server Transport")
	p.addField("Workers", strconv.Itoa(c.Workers))
	p.addField("Workers Per Connection", strconv.Itoa(c.WorkersPerConn))
	p.addField("Idle Timeout", fmt.Sprintf("%d sec", c.IdleTimeoutSecond))
	p.addField("Buffer Size", fmt.Sprintf("%d bytes", c.BufferSize))
	p.addSocket(c.SocketConf)
}

func (p *printer) addClient(c ClientTransportConfig) {
	p.addSection("Client Transport")
	p.addField("Retry Count", strconv.Itoa(c.RetryCount))
	p.addField("Connections Per Endpoint", strconv.Itoa(max(1, c.ConnectionsPerEndpoint)))
	p.addSocket(c.SocketConf)
}

func (p *printer) addSocket(c SocketConf) {
	p.addField("TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
	if c.TCPKeepAliveSec > 0 {
		p.addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	}
	if c.TCPLingerSec > 0 {
		p.addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPLingerSec))
	}
	if c.WriteBufferSize > 0 {
		p.addField("Write Buffer Size", fmt.Sprintf("%d bytes", c.WriteBufferSize))
	}
	if c.ReadBufferSize > 0 {
		p.addField("Read Buffer Size", fmt.Sprintf("%d bytes", c.ReadBufferSize))
	}
}
