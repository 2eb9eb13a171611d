package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/serializer"
	"github.com/ValentinKolb/tpcKV/rpc/server"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
	"github.com/ValentinKolb/tpcKV/rpc/transport/http"
	"github.com/ValentinKolb/tpcKV/rpc/transport/tcp"
	"github.com/ValentinKolb/tpcKV/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads the env files and makes viper read TPCKV_<FLAG> variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("tpckv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Flags
// --------------------------------------------------------------------------

// SetupClientTransportFlags adds the flags of an outgoing transport to a command
func SetupClientTransportFlags(cmd *cobra.Command) {
	key := "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint (ignored for http)"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 1, WrapString("How many times to retry a request after a network error"))

	setupSocketFlags(cmd)
}

// SetupServerTransportFlags adds the flags of a listening transport to a command
func SetupServerTransportFlags(cmd *cobra.Command) {
	key := "server-workers"
	cmd.PersistentFlags().Int(key, 128, WrapString("Maximum number of connections handled at the same time (ignored for http)"))

	key = "server-workers-per-conn"
	cmd.PersistentFlags().Int(key, 16, WrapString("Maximum number of requests in progress per connection (ignored for http)"))

	key = "server-idle-timeout"
	cmd.PersistentFlags().Int(key, 0, WrapString("Seconds after which an idle connection is closed, 0 disables the timeout"))

	key = "server-buffer"
	cmd.PersistentFlags().Int(key, 64, WrapString("Size of the receive buffer of a connection (in KB, ignored for http)"))
}

func setupSocketFlags(cmd *cobra.Command) {
	key := "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time, 0 keeps the system default (in seconds, only for tcp)"))
}

// SetupObservabilityFlags adds the logging and metrics flags to a command
func SetupObservabilityFlags(cmd *cobra.Command) {
	key := "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "metrics-endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("Address of the Prometheus metrics endpoint (e.g. localhost:9100), empty disables it"))

	key = "metrics-log-interval"
	cmd.PersistentFlags().Int(key, 0, WrapString("Interval in seconds in which the cache statistics are logged, 0 disables the log"))
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// GetSocketConf reads the socket options from viper
func GetSocketConf() common.SocketConf {
	return common.SocketConf{
		WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
	}
}

// GetClientTransportConfig reads the outgoing transport options from viper
func GetClientTransportConfig() common.ClientTransportConfig {
	return common.ClientTransportConfig{
		RetryCount:             viper.GetInt("transport-retries"),
		ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
		SocketConf:             GetSocketConf(),
	}
}

// GetServerTransportConfig reads the listening transport options from viper
func GetServerTransportConfig(endpoint string) common.ServerTransportConfig {
	return common.ServerTransportConfig{
		Endpoint:          endpoint,
		Workers:           viper.GetInt("server-workers"),
		WorkersPerConn:    viper.GetInt("server-workers-per-conn"),
		IdleTimeoutSecond: viper.GetInt("server-idle-timeout"),
		BufferSize:        viper.GetInt("server-buffer") * 1024,
		SocketConf:        GetSocketConf(),
	}
}

// SplitList splits a comma-separated flag value, empty entries are dropped
func SplitList(value string) []string {
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetTransports returns the transport factories based on configuration
func GetTransports() (server.Transports, error) {
	switch viper.GetString("transport") {
	case "http":
		return server.Transports{NewServer: http.NewHttpServerTransport, NewClient: http.NewHttpClientTransport}, nil
	case "tcp":
		return server.Transports{NewServer: tcp.NewTCPServerTransport, NewClient: tcp.NewTCPClientTransport}, nil
	case "unix":
		return server.Transports{NewServer: unix.NewUnixServerTransport, NewClient: unix.NewUnixClientTransport}, nil
	default:
		return server.Transports{}, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetClientTransport creates the client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	transports, err := GetTransports()
	if err != nil {
		return nil, err
	}
	return transports.NewClient(), nil
}
