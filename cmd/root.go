package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/docdb/cmd/doc"
	"github.com/ValentinKolb/docdb/cmd/local"
	"github.com/ValentinKolb/docdb/cmd/serve"
	"github.com/ValentinKolb/docdb/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "docdb",
		Short: "cached, lock-protected document database",
		Long: fmt.Sprintf(`docdb (v%s)

A document database storing JSON objects under hierarchical keys, with
pluggable storage backends (flat files, bolt), an LRU document cache and
per-object locking. Databases can be served over http, tcp or unix sockets.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of docdb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docdb v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper (env files, environment and config file)
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(doc.DocCommands)
	RootCmd.AddCommand(local.LocalCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("optional config file (yaml, toml or json), keys are the flag names"))
	_ = viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(key))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(util.ExitCode(err))
	}
}
