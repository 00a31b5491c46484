// Package netutil holds the listeners, connection wrappers and envelope packets shared by the
// server and the bot client.
package netutil

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IsTemporaryNetError checks if the error is a timeout that can be retried
func IsTemporaryNetError(err error) bool {
	if err == nil {
		return false
	}

	netErr, ok := errors.Cause(err).(net.Error)
	if !ok {
		return false
	}
	return netErr.Timeout()
}

// ConnectTCP connects to host:port in TCP
func ConnectTCP(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", addr)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

// ListenAddrs builds host:port listen addresses from a comma separated list of IP literals
//
// An empty list listens on all interfaces.
func ListenAddrs(bind string, port int) ([]string, error) {
	var addrs []string
	for _, host := range strings.Split(bind, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if net.ParseIP(host) == nil {
			return nil, errors.Errorf("bind address %q is not an IP literal", host)
		}
		addrs = append(addrs, net.JoinHostPort(host, strconv.Itoa(port)))
	}
	if len(addrs) == 0 {
		addrs = append(addrs, net.JoinHostPort("", strconv.Itoa(port)))
	}
	return addrs, nil
}
