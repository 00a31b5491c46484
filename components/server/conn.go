package server

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/opmon"
	"github.com/xiaonanln/sectorworld/engine/proto"
	"golang.org/x/net/websocket"
)

var errHeartbeatTimeout = errors.New("heartbeat timeout")

// ServeTCPConnection handshakes and serves one client until it disconnects
//
// It is used for TCP, KCP and websocket connections alike.
func (s *Server) ServeTCPConnection(conn net.Conn) {
	s.lock.Lock()
	if s.terminating {
		s.lock.Unlock()
		conn.Close()
		return
	}
	s.connWait.Add(1)
	s.lock.Unlock()
	defer s.connWait.Done()

	cc := proto.NewClientConnection(conn, true)
	s.conns.Add(cc)
	defer s.conns.Remove(cc.ConnID)

	if err := cc.Handshake(consts.HANDSHAKE_TIMEOUT); err != nil {
		opmon.HandshakeFailures.Inc()
		gwlog.Warnf("%s: %s from %s", s, err, conn.RemoteAddr())
		return
	}

	s.lock.Lock()
	s.lobby[cc.ConnID] = cc
	s.lock.Unlock()
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: %s entered the lobby", s, cc)
	}

	if err := cc.Serve(s.codec); err != nil {
		gwlog.Warnf("%s: %s closed: %v", s, cc, err)
	}
	// queued error replies go out before the connection is torn down
	cc.WaitSendDone(consts.HANDSHAKE_TIMEOUT)
	cc.Close()
	s.onDisconnect(cc)
}

func (s *Server) serveWebSocket(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	s.ServeTCPConnection(ws)
}

func (s *Server) onDisconnect(cc *proto.ClientConnection) {
	s.lock.Lock()
	delete(s.lobby, cc.ConnID)
	delete(s.logins, cc.ConnID)
	s.lock.Unlock()

	if sess := s.sessions.RemoveByConn(cc.ConnID); sess != nil {
		s.leaveSector(sess.PlayerID)
		gwlog.Infof("%s: %s disconnected", s, sess)
	}
}

// checkHeartbeats closes connections that sent nothing for longer than the heartbeat timeout
func (s *Server) checkHeartbeats() {
	deadline := time.Now().Add(-s.cfg.HeartbeatTimeout)
	s.conns.ForEach(func(cc *proto.ClientConnection) {
		if cc.State() == proto.Handshaking || cc.IsClosed() {
			return
		}
		if cc.LastRecvTime().Before(deadline) {
			gwlog.Infof("%s: %s timed out", s, cc)
			cc.CloseAfterFlush(errHeartbeatTimeout)
		}
	})
}
