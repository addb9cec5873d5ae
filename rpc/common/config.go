package common

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/ValentinKolb/docdb/lib/db"
)

// ShardID derives the id under which a database named name is served.
// Clients address databases by name, the wire protocol uses the id.
// The id is the 64 bit FNV-1a hash of the name and stable across processes.
func ShardID(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShard describes one database served by the RPC server
type ServerShard struct {
	// ShardID is the ID of the shard (see ShardID)
	ShardID uint64
	// Name is the name of the database
	Name string
	// Engine selects the storage backend of the database
	Engine db.Implementation
	// Dir is the directory holding the database
	Dir string
	// CacheBytes bounds the document cache of the database, 0 disables it
	CacheBytes int64
	// MaxBytes bounds the size of the database file (bolt only), 0 means unlimited
	MaxBytes int64
	// Codec compresses the stored documents of new databases (bolt only)
	Codec string
}

// SocketConf holds socket settings shared by the tcp and unix transports
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds tcp specific socket settings
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig holds the settings of the server transport layer
type ServerTransportConfig struct {
	Endpoint       string
	FrameBuffer    int // initial size of the per request read buffers
	WorkersPerConn int // max concurrently handled requests per connection
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters of the RPC server.
type ServerConfig struct {
	// Shards are the databases served
	Shards []ServerShard

	// Timeout for reading and writing a request
	TimeoutSecond int64

	// Transport settings
	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string

	// MetricsIntervalSecond is the interval in which request timings are
	// logged, 0 disables the log
	MetricsIntervalSecond int
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Frame Buffer", fmt.Sprintf("%d bytes", c.Transport.FrameBuffer))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.MetricsIntervalSecond > 0 {
		addField("Metrics Interval", fmt.Sprintf("%d sec", c.MetricsIntervalSecond))
	} else {
		addField("Metrics Interval", "disabled")
	}

	// Shards
	addSection("Databases")
	for _, shard := range c.Shards {
		desc := fmt.Sprintf("%s:%s (id %d, cache %d bytes", shard.Engine, shard.Dir, shard.ShardID, shard.CacheBytes)
		if shard.MaxBytes > 0 {
			desc += fmt.Sprintf(", max %d bytes", shard.MaxBytes)
		}
		if shard.Codec != "" {
			desc += ", codec " + shard.Codec
		}
		addField(shard.Name, desc+")")
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the settings of the client transport layer
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
