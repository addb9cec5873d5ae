package local

import (
	"fmt"

	"github.com/ValentinKolb/docdb/cmd/util"
	"github.com/ValentinKolb/docdb/lib/database"
	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/ValentinKolb/docdb/lib/store/lstore"
	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	localDB    *database.Database
	localStore *lstore.LocalStore

	// LocalCommands represents the command group working directly on a
	// database directory, without a server
	LocalCommands = &cobra.Command{
		Use:                "local",
		Short:              "Perform document operations directly on a database directory",
		Long:               `Perform document operations directly on a database directory. The flat file backend can be shared with running servers, the bolt backend is locked by the process that opened it.`,
		PersistentPreRunE:  openLocalStore,
		PersistentPostRunE: closeLocalStore,
	}

	setCmd = &cobra.Command{
		Use:   "set [key] [field] [json-value]",
		Short: "Sets a single top level field of an existing document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := db.Decode([]byte(fmt.Sprintf(`{"v":%s}`, args[2])))
			if err != nil {
				return fmt.Errorf("invalid value %s: %w", args[2], err)
			}
			err = localStore.Update(util.ParseKey(args[0]), func(doc db.Document) error {
				doc.Set(args[1], value["v"])
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "set successfully")
			return nil
		},
	}
)

func init() {
	key := "dir"
	LocalCommands.PersistentFlags().String(key, "data", util.WrapString("Directory of the database"))

	key = "engine"
	LocalCommands.PersistentFlags().String(key, string(db.ImplFlat), util.WrapString("Storage backend of the database (flat, bolt)"))

	key = "cache-bytes"
	LocalCommands.PersistentFlags().Int64(key, 0, util.WrapString("Size of the document cache in bytes (0 disables the cache)"))

	key = "max-bytes"
	LocalCommands.PersistentFlags().Int64(key, 0, util.WrapString("Upper bound of the database file in bytes (bolt only, 0 means unlimited)"))

	key = "log-level"
	LocalCommands.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// Add subcommands
	for _, cmd := range util.NewStoreCommands(func() store.IStore { return localStore }) {
		LocalCommands.AddCommand(cmd)
	}
	LocalCommands.AddCommand(setCmd)
}

// openLocalStore opens the database configured by the flags
func openLocalStore(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	dir := viper.GetString("dir")
	var err error
	switch db.Implementation(viper.GetString("engine")) {
	case db.ImplFlat:
		localDB, err = database.Open(dir, viper.GetInt64("cache-bytes"))
	case db.ImplBolt:
		localDB, err = database.OpenEmbedded(dir, viper.GetInt64("max-bytes"))
		if err == nil && viper.GetInt64("cache-bytes") > 0 {
			if err = localDB.SetMaxCache(viper.GetInt64("cache-bytes")); err != nil {
				_ = localDB.Close()
				localDB = nil
			}
		}
	default:
		return fmt.Errorf("invalid engine %s (expected flat or bolt)", viper.GetString("engine"))
	}
	if err != nil {
		return err
	}

	localStore = lstore.NewLocalStore(localDB)
	return nil
}

func closeLocalStore(_ *cobra.Command, _ []string) error {
	if localDB == nil {
		return nil
	}
	return localDB.Close()
}
