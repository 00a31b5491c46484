package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
	"github.com/xiaonanln/sectorworld/engine/consts"
)

// Connection is a net.Conn whose writes are buffered until Flush
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn turns a net.Conn into an unbuffered Connection
type NetConn struct {
	net.Conn
}

// Flush does nothing since writes are not buffered
func (n NetConn) Flush() error {
	return nil
}

// NewBufferedConnection wraps a transport connection for the client pipeline
//
// Temporary errors are retried by the wrapper, and writes are buffered until Flush.
func NewBufferedConnection(conn net.Conn) Connection {
	conn = netconnutil.NewNoTempErrorConn(conn)
	return netconnutil.NewBufferedConn(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)
}
