package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cmdUtil "github.com/ValentinKolb/tpcKV/cmd/util"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	masterConfig = &common.MasterConfig{}
	slaveConfig  = &common.SlaveConfig{}

	// ServeCmd groups the commands starting a node
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start a node of the cluster",
		Long:  `Start a master or a slave. The configuration can be set via command line flags or environment variables. The format of the environment variables is TPCKV_<flag> (e.g. TPCKV_TIMEOUT=2000)`,
	}
	masterCmd = &cobra.Command{
		Use:     "master",
		Short:   "Start the master, it coordinates the writes of the clients",
		PreRunE: processMasterConfig,
		RunE:    runMaster,
	}
	slaveCmd = &cobra.Command{
		Use:     "slave",
		Short:   "Start a slave, it stores the replicas of its keys",
		PreRunE: processSlaveConfig,
		RunE:    runSlave,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	ServeCmd.AddCommand(masterCmd)
	ServeCmd.AddCommand(slaveCmd)

	for _, cmd := range []*cobra.Command{masterCmd, slaveCmd} {
		cmdUtil.SetupServerTransportFlags(cmd)
		cmdUtil.SetupClientTransportFlags(cmd)
		cmdUtil.SetupObservabilityFlags(cmd)

		key := "cache-size"
		cmd.Flags().Int(key, 1024, cmdUtil.WrapString("Number of entries held by the LRU cache"))
	}

	// master flags
	key := "endpoint"
	masterCmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the clients connect (e.g. localhost:8080, /tmp/tpckv.sock, ...)"))

	key = "registration-endpoint"
	masterCmd.Flags().String(key, "0.0.0.0:8081", cmdUtil.WrapString("The address on which slaves register"))

	key = "slaves"
	masterCmd.Flags().String(key, "", cmdUtil.WrapString("Comma-separated list of slaves known at startup. Format: <id>@<host>:<port>"))

	key = "timeout"
	masterCmd.Flags().Int(key, 5000, cmdUtil.WrapString("Timeout in milliseconds the master waits for the votes of the slaves"))

	// slave flags
	key = "id"
	slaveCmd.Flags().String(key, "", cmdUtil.WrapString("The id of the slave, an unsigned number or a name that is hashed to one"))

	key = "endpoint"
	slaveCmd.Flags().String(key, "0.0.0.0:9000", cmdUtil.WrapString("The address on which the master connects"))

	key = "advertise-host"
	slaveCmd.Flags().String(key, "", cmdUtil.WrapString("The host reported to the master, defaults to the host of the endpoint or the hostname"))

	key = "master"
	slaveCmd.Flags().String(key, "localhost:8081", cmdUtil.WrapString("The registration endpoint of the master, empty disables the registration"))

	key = "register-retry"
	slaveCmd.Flags().Int(key, 1000, cmdUtil.WrapString("Milliseconds between registration attempts"))

	key = "engine"
	slaveCmd.Flags().String(key, common.EnginePebble, cmdUtil.WrapString("The storage engine of the slave (pebble, memory)"))

	key = "data-dir"
	slaveCmd.Flags().String(key, "data", cmdUtil.WrapString("The directory used by the storage engine"))

	key = "wal"
	slaveCmd.Flags().String(key, "", cmdUtil.WrapString("Path of the write-ahead log, defaults to <data-dir>/slave.wal"))
}

// processMasterConfig reads the flags and environment variables into the master configuration
func processMasterConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	masterConfig.ClientEndpoint = viper.GetString("endpoint")
	masterConfig.RegistrationEndpoint = viper.GetString("registration-endpoint")
	masterConfig.Slaves = cmdUtil.SplitList(viper.GetString("slaves"))
	masterConfig.TimeoutMs = viper.GetInt("timeout")
	masterConfig.CacheSize = viper.GetInt("cache-size")
	masterConfig.LogLevel = viper.GetString("log-level")
	masterConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	masterConfig.MetricsLogIntervalSecond = viper.GetInt("metrics-log-interval")
	masterConfig.Server = cmdUtil.GetServerTransportConfig(masterConfig.ClientEndpoint)
	masterConfig.Client = cmdUtil.GetClientTransportConfig()

	return common.InitLoggers(masterConfig.LogLevel, "master")
}

// processSlaveConfig reads the flags and environment variables into the slave configuration
func processSlaveConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	slaveConfig.SlaveID = viper.GetString("id")
	if slaveConfig.SlaveID == "" {
		return fmt.Errorf("the slave id is required (--id)")
	}
	slaveConfig.Endpoint = viper.GetString("endpoint")
	slaveConfig.AdvertiseHost = viper.GetString("advertise-host")
	slaveConfig.MasterEndpoint = viper.GetString("master")
	slaveConfig.RegisterRetryMs = viper.GetInt("register-retry")
	slaveConfig.Engine = viper.GetString("engine")
	slaveConfig.DataDir = viper.GetString("data-dir")
	slaveConfig.WALPath = viper.GetString("wal")
	if slaveConfig.WALPath == "" {
		slaveConfig.WALPath = filepath.Join(slaveConfig.DataDir, "slave.wal")
	}
	slaveConfig.CacheSize = viper.GetInt("cache-size")
	slaveConfig.LogLevel = viper.GetString("log-level")
	slaveConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	slaveConfig.MetricsLogIntervalSecond = viper.GetInt("metrics-log-interval")
	slaveConfig.Server = cmdUtil.GetServerTransportConfig(slaveConfig.Endpoint)
	slaveConfig.Client = cmdUtil.GetClientTransportConfig()

	return common.InitLoggers(slaveConfig.LogLevel, fmt.Sprintf("slave-%d", slaveConfig.ID()))
}

func runMaster(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	transports, err := cmdUtil.GetTransports()
	if err != nil {
		return err
	}

	log.Infof("Starting master\n%s", masterConfig)
	master, err := server.NewMaster(*masterConfig, transports, s)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return master.Run(ctx)
}

func runSlave(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	transports, err := cmdUtil.GetTransports()
	if err != nil {
		return err
	}

	log.Infof("Starting slave\n%s", slaveConfig)
	slave, err := server.NewSlave(*slaveConfig, transports, s, afero.NewOsFs())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return slave.Run(ctx)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
