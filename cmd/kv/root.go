package kv

import (
	"github.com/ValentinKolb/tpcKV/cmd/util"
	"github.com/ValentinKolb/tpcKV/rpc/client"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	kvClient *client.KVClient

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	key := "timeout"
	KeyValueCommands.PersistentFlags().Int(key, 10000, util.WrapString("The timeout in milliseconds of a request"))

	key = "endpoints"
	KeyValueCommands.PersistentFlags().String(key, "localhost:8080", util.WrapString("The client endpoint of the master. Multiple endpoints can be specified as a comma-separated list, requests are distributed round robin"))

	util.SetupClientTransportFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(keyCmd)
}

// setupKVClient initializes the client of the master
func setupKVClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := common.ClientConfig{
		Endpoints: util.SplitList(viper.GetString("endpoints")),
		TimeoutMs: viper.GetInt("timeout"),
		Transport: util.GetClientTransportConfig(),
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	kvClient, err = client.NewKVClient(config, t, s)
	return err
}

func closeKVClient(*cobra.Command, []string) error {
	return kvClient.Close()
}
