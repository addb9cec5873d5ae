package tcp

import (
	"net"
	"time"

	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/ValentinKolb/docdb/rpc/transport"
	"github.com/ValentinKolb/docdb/rpc/transport/base"
)

// NewTCPClientTransport creates a client transport dialing docdb servers
// over TCP. Endpoints are host:port pairs.
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(tcpConnector{})
}

type tcpConnector struct{}

func (tcpConnector) GetName() string { return "tcp" }

func (tcpConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

// UpgradeConnection applies the socket buffers and the TCP options of config
func (tcpConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return upgradeTCPConn(conn, config.Transport.SocketConf, config.Transport.TCPConf)
}
