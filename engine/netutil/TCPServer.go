package netutil

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwioutil"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
)

// TCPServerDelegate is the implementations that a TCP server should provide
type TCPServerDelegate interface {
	ServeTCPConnection(net.Conn)
}

// ListenTCP listens on every address, closing the ones already opened if any fails
func ListenTCP(addrs []string) ([]net.Listener, error) {
	var lns []net.Listener
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range lns {
				l.Close()
			}
			return nil, errors.Wrapf(err, "listen %s", addr)
		}
		gwlog.Infof("Listening on TCP: %s ...", ln.Addr())
		lns = append(lns, ln)
	}
	return lns, nil
}

// ServeTCP accepts connections on every listener until ctx is done
//
// Listeners are closed when ServeTCP returns.
func ServeTCP(ctx context.Context, lns []net.Listener, delegate TCPServerDelegate) error {
	var wait sync.WaitGroup
	errs := make(chan error, len(lns))
	for _, ln := range lns {
		ln := ln
		wait.Add(1)
		go func() {
			defer wait.Done()
			errs <- serveListener(ctx, ln, delegate)
		}()
	}

	go func() {
		<-ctx.Done()
		for _, ln := range lns {
			ln.Close()
		}
	}()

	wait.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func serveListener(ctx context.Context, ln net.Listener, delegate TCPServerDelegate) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if gwioutil.IsTimeoutError(err) {
				continue
			}
			return errors.Wrapf(err, "accept on %s", ln.Addr())
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetWriteBuffer(consts.CLIENT_CONN_WRITE_BUFFER_SIZE)
			tcpConn.SetReadBuffer(consts.CLIENT_CONN_READ_BUFFER_SIZE)
			tcpConn.SetNoDelay(consts.CLIENT_CONN_SET_TCP_NO_DELAY)
		}
		if consts.DEBUG_CLIENTS {
			gwlog.Debugf("Connection from: %s", conn.RemoteAddr())
		}
		go delegate.ServeTCPConnection(conn)
	}
}
