package doc

import (
	"github.com/ValentinKolb/docdb/cmd/util"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/ValentinKolb/docdb/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore *client.RPCStore

	// DocCommands represents the document command group
	DocCommands = &cobra.Command{
		Use:                "doc",
		Short:              "Perform document operations on a docdb server",
		PersistentPreRunE:  setupDocClient,
		PersistentPostRunE: closeDocClient,
	}
)

func init() {
	// Add common RPC flags to the doc command
	util.SetupRPCClientFlags(DocCommands)

	// Add subcommands
	for _, cmd := range util.NewStoreCommands(func() store.IStore { return rpcStore }) {
		DocCommands.AddCommand(cmd)
	}
	DocCommands.AddCommand(perfTestCmd)
}

// setupDocClient initializes the RPC store client
func setupDocClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the document store client
	rpcStore, err = client.NewRPCStore(
		util.GetDatabaseName(),
		*config,
		t,
		s,
	)

	return err
}

func closeDocClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Close()
}
