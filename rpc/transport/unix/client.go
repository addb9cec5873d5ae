package unix

import (
	"net"
	"time"

	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/ValentinKolb/docdb/rpc/transport"
	"github.com/ValentinKolb/docdb/rpc/transport/base"
)

// NewUnixClientTransport creates a client transport for docdb servers on the
// same host. Endpoints are socket paths.
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(unixConnector{})
}

type unixConnector struct{}

func (unixConnector) GetName() string { return "unix" }

func (unixConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}

func (unixConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgradeUnixConn(conn, config.Transport.SocketConf)
}
