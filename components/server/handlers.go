package server

import (
	"crypto/subtle"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/kvdb/records"
	"github.com/xiaonanln/sectorworld/engine/proto"
	"github.com/xiaonanln/sectorworld/engine/sector"
	"github.com/xiaonanln/sectorworld/engine/session"
)

var (
	errBadPassword = errors.New("bad password")
)

func (s *Server) newCodec() *proto.Codec {
	codec := proto.NewCodec()
	lobby := proto.States(proto.Lobby)
	authed := proto.States(proto.Authenticated)
	codec.Register(proto.MT_LOGIN, lobby, s.handleLogin)
	codec.Register(proto.MT_LOGOUT, authed, s.handleLogout)
	codec.Register(proto.MT_REQUEST_SPAWN, authed, s.handleRequestSpawn)
	codec.Register(proto.MT_CONTROL, authed, s.handleControl)
	codec.Register(proto.MT_PING, proto.States(proto.Lobby, proto.Authenticated), s.handlePing)
	return codec
}

func (s *Server) homeSector() common.SectorID {
	return common.SectorID(s.cfg.HomeSector)
}

func replyError(cc *proto.ClientConnection, code string, err error) {
	cc.Send(proto.MT_ERROR, &proto.ErrorMsg{Code: code, Message: err.Error()})
}

func (s *Server) handleLogin(cc *proto.ClientConnection, body []byte) error {
	var msg proto.LoginMsg
	if err := proto.Decode(proto.MT_LOGIN, body, &msg); err != nil {
		return err
	}
	if msg.Name == "" {
		return proto.Violation(proto.MT_LOGIN, "empty name")
	}

	if s.cfg.Password != "" && subtle.ConstantTimeCompare([]byte(msg.Password), []byte(s.cfg.Password)) != 1 {
		replyError(cc, proto.ERR_BAD_PASSWORD, errBadPassword)
		cc.CloseAfterFlush(errBadPassword)
		return nil
	}

	s.lock.Lock()
	if s.logins[cc.ConnID] {
		s.lock.Unlock()
		return proto.Violation(proto.MT_LOGIN, "login already in progress")
	}
	s.logins[cc.ConnID] = true
	s.lock.Unlock()

	home := s.homeSector()
	err := s.pool.AppendJob("player", func() (interface{}, error) {
		rec, created, err := records.ResolvePlayer(s.db, msg.Name, msg.Secret, home)
		if created {
			gwlog.Infof("%s: created player %s (%s)", s, rec.Name, rec.PlayerID)
		}
		return rec, err
	}, func(res interface{}, err error) {
		s.onPlayerResolved(cc, res, err)
	})
	if err != nil {
		s.lock.Lock()
		delete(s.logins, cc.ConnID)
		s.lock.Unlock()
		return err
	}
	return nil
}

// onPlayerResolved finishes a login on the main goroutine
func (s *Server) onPlayerResolved(cc *proto.ClientConnection, res interface{}, err error) {
	s.lock.Lock()
	delete(s.logins, cc.ConnID)
	s.lock.Unlock()

	if err != nil {
		if errors.Cause(err) == records.ErrBadSecret {
			replyError(cc, proto.ERR_BAD_SECRET, err)
		} else {
			gwlog.Errorf("%s: login on %s failed: %+v", s, cc, err)
			replyError(cc, proto.ERR_PROTOCOL, errors.New("login failed"))
		}
		cc.CloseAfterFlush(err)
		return
	}
	if cc.IsClosed() {
		return
	}

	rec := res.(*records.PlayerRecord)
	sess, err := s.sessions.Create(rec.PlayerID, rec.Name, cc.ConnID)
	if err != nil {
		if session.IsDuplicateLogin(err) {
			gwlog.Warnf("%s: %s rejected: %s", s, cc, err)
			replyError(cc, proto.ERR_DUPLICATE_LOGIN, err)
		} else {
			gwlog.Errorf("%s: create session on %s failed: %+v", s, cc, err)
			replyError(cc, proto.ERR_PROTOCOL, err)
		}
		cc.CloseAfterFlush(err)
		return
	}
	// the connection may have closed while the session was created
	if cc.IsClosed() {
		s.sessions.RemoveByConn(cc.ConnID)
		return
	}

	s.lock.Lock()
	delete(s.lobby, cc.ConnID)
	s.lock.Unlock()
	cc.SetState(proto.Authenticated)
	cc.Send(proto.MT_LOGIN_RESULT, &proto.LoginResultMsg{PlayerID: rec.PlayerID, Name: rec.Name})
	gwlog.Infof("%s: %s logged in", s, sess)
}

func (s *Server) handleLogout(cc *proto.ClientConnection, body []byte) error {
	sess := s.sessions.RemoveByConn(cc.ConnID)
	if sess == nil {
		return proto.Violation(proto.MT_LOGOUT, "no session")
	}
	s.leaveSector(sess.PlayerID)

	s.lock.Lock()
	s.lobby[cc.ConnID] = cc
	s.lock.Unlock()
	cc.SetState(proto.Lobby)
	gwlog.Infof("%s: %s logged out", s, sess)
	return nil
}

func (s *Server) handleRequestSpawn(cc *proto.ClientConnection, body []byte) error {
	sess := s.sessions.GetByConn(cc.ConnID)
	if sess == nil {
		return proto.Violation(proto.MT_REQUEST_SPAWN, "no session")
	}

	s.lock.Lock()
	if _, ok := s.players[sess.PlayerID]; ok {
		s.lock.Unlock()
		return proto.Violation(proto.MT_REQUEST_SPAWN, "already spawned")
	}
	ps := &playerState{spawning: true}
	s.players[sess.PlayerID] = ps
	s.lock.Unlock()

	err := s.pool.AppendJob("player", func() (interface{}, error) {
		return records.LoadPlayer(s.db, sess.Name)
	}, func(res interface{}, err error) {
		s.onSpawnResolved(sess, ps, res, err)
	})
	if err != nil {
		s.lock.Lock()
		delete(s.players, sess.PlayerID)
		s.lock.Unlock()
		return err
	}
	return nil
}

// onSpawnResolved places the player in its last sector, or the home sector
func (s *Server) onSpawnResolved(sess *session.Session, ps *playerState, res interface{}, err error) {
	sectorID := s.homeSector()
	var pos common.Vector3
	if err != nil {
		gwlog.Errorf("%s: load %s failed, spawning at home: %+v", s, sess, err)
	} else if rec, _ := res.(*records.PlayerRecord); rec != nil && !rec.SectorID.IsNil() {
		sectorID, pos = rec.SectorID, rec.Position
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.players[sess.PlayerID] != ps {
		// left before the record was loaded
		return
	}
	if _, err := s.sectors.AddPlayer(sectorID, sess, pos); err != nil {
		delete(s.players, sess.PlayerID)
		gwlog.Errorf("%s: spawn %s in %s failed: %s", s, sess, sectorID, err)
		return
	}
	ps.sectorID = sectorID
	ps.spawning = false
}

// leaveSector removes the player from its sector; the sector persists the last location
func (s *Server) leaveSector(playerID common.PlayerID) {
	s.lock.Lock()
	defer s.lock.Unlock()
	ps := s.players[playerID]
	delete(s.players, playerID)
	if ps == nil || ps.spawning {
		return
	}
	if err := s.sectors.RemovePlayer(ps.sectorID, playerID); err != nil {
		gwlog.Warnf("%s: remove %s from %s: %s", s, playerID, ps.sectorID, err)
	}
}

func (s *Server) handleControl(cc *proto.ClientConnection, body []byte) error {
	var msg proto.ControlMsg
	if err := proto.Decode(proto.MT_CONTROL, body, &msg); err != nil {
		return err
	}
	sess := s.sessions.GetByConn(cc.ConnID)
	if sess == nil {
		return proto.Violation(proto.MT_CONTROL, "no session")
	}

	s.lock.Lock()
	ps := s.players[sess.PlayerID]
	spawned := ps != nil && !ps.spawning
	var sectorID common.SectorID
	if spawned {
		sectorID = ps.sectorID
	}
	s.lock.Unlock()

	if !spawned {
		replyError(cc, proto.ERR_NOT_SPAWNED, errors.Errorf("%s is not spawned", sess.Name))
		return nil
	}
	if err := s.sectors.Control(sectorID, sess.PlayerID, &msg); err != nil {
		if errors.Cause(err) == sector.ErrSectorNotRunning || errors.Cause(err) == sector.ErrActorStopped {
			replyError(cc, proto.ERR_NOT_SPAWNED, err)
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) handlePing(cc *proto.ClientConnection, body []byte) error {
	var msg proto.PingMsg
	if err := proto.Decode(proto.MT_PING, body, &msg); err != nil {
		return err
	}
	return cc.Send(proto.MT_PONG, &msg)
}
