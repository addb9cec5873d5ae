package serve

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/docdb/cmd/util"
	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/codec"
	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/ValentinKolb/docdb/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the docdb server",
		Long:    `Start the docdb server with the specified configuration. The configuration can be set via command line flags, environment variables or a config file (--config). The format of the environment variables is DOCDB_<flag> (e.g. DOCDB_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "default=flat:data/default", cmdUtil.WrapString("Comma-separated list of databases to serve. Format: NAME=ENGINE:DIR where ENGINE is one of: flat, bolt"))

	key = "cache-bytes"
	ServeCmd.PersistentFlags().Int64(key, 64<<20, cmdUtil.WrapString("Size of the document cache of each database in bytes (0 disables the cache)"))

	key = "max-bytes"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Upper bound of the database file in bytes (bolt only, 0 means unlimited)"))

	key = "codec"
	ServeCmd.PersistentFlags().String(key, codec.None, cmdUtil.WrapString(fmt.Sprintf("Compression of stored documents for new databases (bolt only, one of: %s)", strings.Join(codec.Names(), ", "))))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for reading and writing a request"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/docdb.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Max concurrently handled requests per connection (ignored for http)"))

	key = "frame-buffer"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Initial size of the request buffers (in KB, ignored for http)"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB, ignored for http)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time (in seconds, only for tcp, negative values keep the OS default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "metrics-interval"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Interval in seconds in which request timings are logged (0 disables the log)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse shards
	shards, err := ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	for i := range shards {
		shards[i].CacheBytes = viper.GetInt64("cache-bytes")
		shards[i].MaxBytes = viper.GetInt64("max-bytes")
		shards[i].Codec = viper.GetString("codec")
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.MetricsIntervalSecond = viper.GetInt("metrics-interval")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		FrameBuffer:    viper.GetInt("frame-buffer") * 1024,
		WorkersPerConn: viper.GetInt("workers-per-conn"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}

	if _, err := common.ParseLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	if !isValidCodec(viper.GetString("codec")) {
		return fmt.Errorf("invalid codec %s (expected one of: %s)", viper.GetString("codec"), strings.Join(codec.Names(), ", "))
	}

	return nil
}

// ParseShards parses a shard list of the form NAME=ENGINE:DIR[,NAME=ENGINE:DIR...]
func ParseShards(list string) ([]common.ServerShard, error) {
	entries := cmdUtil.SplitList(list)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no databases to serve")
	}

	shards := make([]common.ServerShard, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		name, spec, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid shard format: %s (expected NAME=ENGINE:DIR)", entry)
		}
		engine, dir, ok := strings.Cut(spec, ":")
		if !ok || strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("invalid shard format: %s (expected NAME=ENGINE:DIR)", entry)
		}

		impl := db.Implementation(strings.TrimSpace(engine))
		if impl != db.ImplFlat && impl != db.ImplBolt {
			return nil, fmt.Errorf("invalid engine %s for database %s (expected one of: flat, bolt)", engine, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("database %s is listed twice", name)
		}
		seen[name] = true

		shards = append(shards, common.ServerShard{
			ShardID: common.ShardID(name),
			Name:    name,
			Engine:  impl,
			Dir:     strings.TrimSpace(dir),
		})
	}
	return shards, nil
}

func isValidCodec(name string) bool {
	for _, known := range codec.Names() {
		if name == known {
			return true
		}
	}
	return false
}

// run starts the docdb server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// Parse the transport
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	select {
	case err = <-errCh:
		// the transport failed, the databases still need to be closed
		return errors.Join(err, serv.Close())
	case <-ctx.Done():
		server.Logger.Infof("received signal, shutting down")
		closeErr := serv.Close()
		return errors.Join(<-errCh, closeErr)
	}
}
