package server

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/docdb/lib/database"
	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/engines/bolt"
	"github.com/ValentinKolb/docdb/lib/db/engines/flat"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/ValentinKolb/docdb/lib/store/lstore"
	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/ValentinKolb/docdb/rpc/serializer"
	"github.com/ValentinKolb/docdb/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a database served by the RPC server together with the
// store working on it and the adapter that handles requests for the store
type serverShard struct {
	Name    string
	DB      *database.Database
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// RPCServer serves the databases of its configuration over one transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, *serverShard]

	// registry holds the request timers, one per database and message type
	registry metrics.Registry

	mu      sync.Mutex
	started bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, *serverShard](),
		registry:   metrics.NewRegistry(),
		stopCh:     make(chan struct{}),
	}
}

// Serve opens all databases and starts the transport layer. It blocks until
// the server is closed or the transport fails.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and closes all databases. Requests in flight are
// answered before the databases are closed.
func (s *RPCServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.transport.Close()
	close(s.stopCh)
	s.wg.Wait()

	s.shards.Range(func(id uint64, shard *serverShard) bool {
		if closeErr := shard.DB.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close database %s: %w", shard.Name, closeErr))
		}
		s.shards.Delete(id)
		return true
	})

	Logger.Infof("docdb server stopped")
	return err
}

// Registry returns the registry holding the request timers
func (s *RPCServer) Registry() metrics.Registry {
	return s.registry
}

// WriteMetrics writes the metrics of all served databases in Prometheus
// text format
func (s *RPCServer) WriteMetrics(w io.Writer) {
	s.shards.Range(func(_ uint64, shard *serverShard) bool {
		shard.DB.WriteMetrics(w)
		return true
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("server is closed")
	}
	if s.started {
		return fmt.Errorf("server is already running")
	}

	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	// CREATE SHARDS

	/*
		Note: A single RPC Server can serve any number of databases. Each
		database is addressed by the shard id derived from its name.
	*/

	for _, shardConfig := range s.config.Shards {
		shard, err := openShard(shardConfig)
		if err != nil {
			s.closeShards()
			return err
		}
		// the id defaults to the one clients derive from the name
		shardID := shardConfig.ShardID
		if shardID == 0 {
			shardID = common.ShardID(shardConfig.Name)
		}
		if _, loaded := s.shards.LoadOrStore(shardID, shard); loaded {
			_ = shard.DB.Close()
			s.closeShards()
			return fmt.Errorf("duplicate shard id %d (database %s)", shardID, shardConfig.Name)
		}
		Logger.Infof("opened %s database %s for shard %d", shardConfig.Engine, shardConfig.Name, shardID)
	}

	Logger.Infof("docdb setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()
	if exporter, ok := s.transport.(transport.IMetricsExporter); ok {
		exporter.RegisterMetrics(s.WriteMetrics)
	}

	if s.config.MetricsIntervalSecond > 0 {
		s.wg.Add(1)
		go s.logMetrics(time.Duration(s.config.MetricsIntervalSecond) * time.Second)
	}

	s.started = true
	return nil
}

// openShard opens the database described by config
func openShard(config common.ServerShard) (*serverShard, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("database for shard %d has no name", config.ShardID)
	}

	var backend db.Backend
	var err error
	switch config.Engine {
	case db.ImplFlat, "":
		backend, err = flat.NewFlatDB(config.Dir, nil)
	case db.ImplBolt:
		opts := bolt.DefaultOptions()
		opts.MaxBytes = config.MaxBytes
		if config.Codec != "" {
			opts.Codec = config.Codec
		}
		backend, err = bolt.NewBoltDB(config.Dir, opts)
	default:
		return nil, fmt.Errorf("invalid engine %q for database %s", config.Engine, config.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", config.Name, err)
	}

	d, err := database.New(config.Name, backend, config.CacheBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", config.Name, err)
	}

	return &serverShard{
		Name:    config.Name,
		DB:      d,
		Store:   lstore.NewLocalStore(d),
		Adapter: NewIStoreServerAdapter(),
	}, nil
}

// closeShards closes all opened databases, used if the setup fails
func (s *RPCServer) closeShards() {
	s.shards.Range(func(id uint64, shard *serverShard) bool {
		_ = shard.DB.Close()
		s.shards.Delete(id)
		return true
	})
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)

		if !ok {
			// Case shard does not exist -> error
			respMsg = common.NewErrorResponse(uint64(store.RetCInvalidOperation), fmt.Sprintf("no database with shard id %d", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			// Case request can not be decoded -> error
			respMsg = common.NewErrorResponse(uint64(store.RetCInvalidArgument), fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			// Let the adapter handle the request
			start := time.Now()
			respMsg = shard.Adapter.Handle(&msg, shard.Store)
			metrics.GetOrRegisterTimer(fmt.Sprintf("rpc.%s.%s", shard.Name, msg.MsgType), s.registry).UpdateSince(start)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(
				uint64(store.RetCInternalError),
				fmt.Sprintf("failed to serialize response: %s", err),
			))
		}
		return val
	})
}

// logMetrics logs the request timers every interval until the server is
// closed
func (s *RPCServer) logMetrics(interval time.Duration) {
	defer s.wg.Done()

	cue := make(chan interface{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		metrics.LogScaledOnCue(s.registry, cue, time.Millisecond, metricsLogger{})
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cue <- struct{}{}
		case <-s.stopCh:
			close(cue)
			<-done
			return
		}
	}
}

// metricsLogger writes the lines of the metrics log to the rpc logger
type metricsLogger struct{}

func (metricsLogger) Printf(format string, v ...interface{}) {
	Logger.Infof(strings.TrimSuffix(format, "\n"), v...)
}
