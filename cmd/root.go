package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ValentinKolb/tpcKV/cmd/kv"
	"github.com/ValentinKolb/tpcKV/cmd/serve"
	"github.com/ValentinKolb/tpcKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "tpckv",
		Short: "replicated key-value store",
		Long: fmt.Sprintf(`tpcKV (v%s)

A replicated key-value store written in Go. A master places every key on
two slaves of a consistent hash ring and keeps the replicas in sync with
the two-phase commit protocol.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tpcKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tpcKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, http)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
