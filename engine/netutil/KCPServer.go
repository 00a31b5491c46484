package netutil

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xtaci/kcp-go"
)

const (
	_KCP_DATA_SHARDS   = 10
	_KCP_PARITY_SHARDS = 3
)

// ListenKCP listens on addr in KCP
func ListenKCP(addr string) (*kcp.Listener, error) {
	ln, err := kcp.ListenWithOptions(addr, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
	if err != nil {
		return nil, errors.Wrapf(err, "listen kcp %s", addr)
	}
	gwlog.Infof("Listening on KCP: %s ...", ln.Addr())
	return ln, nil
}

// ServeKCP accepts KCP sessions until ctx is done and hands them to delegate as stream connections
func ServeKCP(ctx context.Context, ln *kcp.Listener, delegate TCPServerDelegate) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.AcceptKCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept kcp")
		}

		if consts.DEBUG_CLIENTS {
			gwlog.Debugf("KCP connection from %s", conn.RemoteAddr())
		}
		setupKCPSession(conn)
		go delegate.ServeTCPConnection(conn)
	}
}

// ConnectKCP connects to addr in KCP
func ConnectKCP(addr string) (net.Conn, error) {
	conn, err := kcp.DialWithOptions(addr, nil, _KCP_DATA_SHARDS, _KCP_PARITY_SHARDS)
	if err != nil {
		return nil, errors.Wrapf(err, "connect kcp %s", addr)
	}
	setupKCPSession(conn)
	return conn, nil
}

func setupKCPSession(conn *kcp.UDPSession) {
	conn.SetReadBuffer(consts.CLIENT_CONN_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.CLIENT_CONN_WRITE_BUFFER_SIZE)
	// turbo mode, see https://github.com/skywind3000/kcp/blob/master/README.en.md#protocol-configuration
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	conn.SetNoDelay(1, 10, 2, 1)
}
