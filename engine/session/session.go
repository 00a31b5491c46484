// Package session tracks live connections and the players logged in on them.
package session

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/opmon"
	"github.com/xiaonanln/sectorworld/engine/proto"
)

// ErrDuplicateLogin is returned when the player already has a live session
var ErrDuplicateLogin = errors.New("player is already logged in")

// ConnectionRegistry owns every live client connection, keyed by ConnID
type ConnectionRegistry struct {
	lock  sync.RWMutex
	conns map[common.ConnID]*proto.ClientConnection
}

// NewConnectionRegistry creates an empty ConnectionRegistry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: map[common.ConnID]*proto.ClientConnection{}}
}

// Add registers cc
func (r *ConnectionRegistry) Add(cc *proto.ClientConnection) {
	r.lock.Lock()
	r.conns[cc.ConnID] = cc
	n := len(r.conns)
	r.lock.Unlock()
	opmon.Connections.Set(float64(n))
}

// Remove unregisters the connection
func (r *ConnectionRegistry) Remove(id common.ConnID) {
	r.lock.Lock()
	delete(r.conns, id)
	n := len(r.conns)
	r.lock.Unlock()
	opmon.Connections.Set(float64(n))
}

// Get returns the live connection, or nil if it is gone
func (r *ConnectionRegistry) Get(id common.ConnID) *proto.ClientConnection {
	r.lock.RLock()
	cc := r.conns[id]
	r.lock.RUnlock()
	if cc == nil || cc.IsClosed() {
		return nil
	}
	return cc
}

// Count returns the number of registered connections
func (r *ConnectionRegistry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.conns)
}

// ForEach calls f on a snapshot of the registered connections
func (r *ConnectionRegistry) ForEach(f func(cc *proto.ClientConnection)) {
	r.lock.RLock()
	conns := make([]*proto.ClientConnection, 0, len(r.conns))
	for _, cc := range r.conns {
		conns = append(conns, cc)
	}
	r.lock.RUnlock()

	for _, cc := range conns {
		f(cc)
	}
}

// Session binds a logged in player to the connection it logged in on
//
// A Session only holds the ConnID; the connection is looked up at use time, so a closed
// connection is never kept alive by its session.
type Session struct {
	PlayerID common.PlayerID
	Name     string
	ConnID   common.ConnID

	conns *ConnectionRegistry
}

// Conn returns the live connection of the session, or nil if it is gone
func (s *Session) Conn() *proto.ClientConnection {
	return s.conns.Get(s.ConnID)
}

// Send sends a message to the session's connection; it is a no-op if the connection is gone
func (s *Session) Send(msgtype proto.MsgType, msg interface{}) error {
	cc := s.Conn()
	if cc == nil {
		return proto.ErrConnectionClosed
	}
	return cc.Send(msgtype, msg)
}

func (s *Session) String() string {
	return "Session<" + string(s.PlayerID) + "@" + string(s.ConnID) + ">"
}

// Registry enforces at most one session per player
type Registry struct {
	lock     sync.RWMutex
	byPlayer map[common.PlayerID]*Session
	byConn   map[common.ConnID]*Session
	conns    *ConnectionRegistry
}

// NewRegistry creates an empty session Registry resolving connections through conns
func NewRegistry(conns *ConnectionRegistry) *Registry {
	return &Registry{
		byPlayer: map[common.PlayerID]*Session{},
		byConn:   map[common.ConnID]*Session{},
		conns:    conns,
	}
}

// Create creates the session of playerID on connID
//
// If the player already has a session, ErrDuplicateLogin is returned and nothing changes.
func (r *Registry) Create(playerID common.PlayerID, name string, connID common.ConnID) (*Session, error) {
	r.lock.Lock()
	if _, ok := r.byPlayer[playerID]; ok {
		r.lock.Unlock()
		return nil, errors.Wrapf(ErrDuplicateLogin, "player %s", playerID)
	}
	if _, ok := r.byConn[connID]; ok {
		r.lock.Unlock()
		return nil, errors.Errorf("connection %s already has a session", connID)
	}
	s := &Session{PlayerID: playerID, Name: name, ConnID: connID, conns: r.conns}
	r.byPlayer[playerID] = s
	r.byConn[connID] = s
	n := len(r.byPlayer)
	r.lock.Unlock()

	opmon.Sessions.Set(float64(n))
	return s, nil
}

// Get returns the session of the player
func (r *Registry) Get(playerID common.PlayerID) *Session {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.byPlayer[playerID]
}

// GetByConn returns the session logged in on the connection
func (r *Registry) GetByConn(connID common.ConnID) *Session {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.byConn[connID]
}

// RemoveByConn removes the session logged in on connID and returns it, or nil
func (r *Registry) RemoveByConn(connID common.ConnID) *Session {
	r.lock.Lock()
	s := r.byConn[connID]
	if s != nil {
		delete(r.byConn, connID)
		delete(r.byPlayer, s.PlayerID)
	}
	n := len(r.byPlayer)
	r.lock.Unlock()

	opmon.Sessions.Set(float64(n))
	return s
}

// Count returns the number of sessions
func (r *Registry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.byPlayer)
}

// IsDuplicateLogin checks if err is ErrDuplicateLogin
func IsDuplicateLogin(err error) bool {
	return errors.Cause(err) == ErrDuplicateLogin
}
