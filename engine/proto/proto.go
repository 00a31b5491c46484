// Package proto defines the client protocol: message types, the envelope codec and the
// encrypted, compressed client connection.
package proto

import (
	"strconv"

	"github.com/xiaonanln/sectorworld/engine/common"
)

// MsgType is the type of message types
type MsgType uint64

const (
	// MT_INVALID is the invalid message type
	MT_INVALID MsgType = iota
	// MT_LOGIN is sent by clients to log in
	MT_LOGIN
	// MT_LOGIN_RESULT is the reply of a successful login
	MT_LOGIN_RESULT
	// MT_ERROR reports a failure to the client
	MT_ERROR
	// MT_LOGOUT is sent by clients to return to the lobby
	MT_LOGOUT
	// MT_REQUEST_SPAWN asks the server to place the player in its sector
	MT_REQUEST_SPAWN
	// MT_LOCATION_CHANGED tells the client which sector it is in
	MT_LOCATION_CHANGED
	// MT_WORLD_SNAPSHOT carries every entity of a sector
	MT_WORLD_SNAPSHOT
	// MT_PLAYER_CONTROL tells the client which entity it controls
	MT_PLAYER_CONTROL
	// MT_ENTITY_DELTAS carries the entities changed by one tick
	MT_ENTITY_DELTAS
	// MT_CONTROL is a ship command from the client
	MT_CONTROL
	// MT_PING is a client heartbeat
	MT_PING
	// MT_PONG answers MT_PING
	MT_PONG
)

var msgTypeNames = map[MsgType]string{
	MT_LOGIN:            "Login",
	MT_LOGIN_RESULT:     "LoginResult",
	MT_ERROR:            "Error",
	MT_LOGOUT:           "Logout",
	MT_REQUEST_SPAWN:    "RequestSpawn",
	MT_LOCATION_CHANGED: "LocationChanged",
	MT_WORLD_SNAPSHOT:   "WorldSnapshot",
	MT_PLAYER_CONTROL:   "PlayerControl",
	MT_ENTITY_DELTAS:    "EntityDeltas",
	MT_CONTROL:          "Control",
	MT_PING:             "Ping",
	MT_PONG:             "Pong",
}

func (mt MsgType) String() string {
	if name, ok := msgTypeNames[mt]; ok {
		return name
	}
	return "MsgType(" + strconv.FormatUint(uint64(mt), 10) + ")"
}

// Error codes carried by ErrorMsg
const (
	ERR_DUPLICATE_LOGIN = "duplicate_login"
	ERR_BAD_PASSWORD    = "bad_password"
	ERR_BAD_SECRET      = "bad_secret"
	ERR_PROTOCOL        = "protocol"
	ERR_NOT_SPAWNED     = "not_spawned"
)

// Ship commands carried by ControlMsg
const (
	CMD_APPROACH      = "approach"
	CMD_ORBIT         = "orbit"
	CMD_KEEP_DISTANCE = "keep_distance"
	CMD_STOP          = "stop"
	CMD_WARP          = "warp"
	CMD_TARGET        = "target"
)

// LoginMsg is the body of MT_LOGIN
type LoginMsg struct {
	Name     string
	Secret   string
	Password string
}

// LoginResultMsg is the body of MT_LOGIN_RESULT
type LoginResultMsg struct {
	PlayerID common.PlayerID
	Name     string
}

// ErrorMsg is the body of MT_ERROR
type ErrorMsg struct {
	Code    string
	Message string
}

// EmptyMsg is the body of messages without fields
type EmptyMsg struct{}

// LocationChangedMsg is the body of MT_LOCATION_CHANGED
type LocationChangedMsg struct {
	SectorID common.SectorID
	Position common.Vector3
}

// EntityState is the synchronized state of one entity
type EntityState struct {
	ID       common.EntityID
	Kind     string
	Name     string
	Owner    common.PlayerID
	Position common.Vector3
	Velocity common.Vector3
	Radius   float64
	Target   common.EntityID
}

// WorldSnapshotMsg is the body of MT_WORLD_SNAPSHOT
type WorldSnapshotMsg struct {
	SectorID common.SectorID
	Tick     uint64
	Entities []EntityState
}

// PlayerControlMsg is the body of MT_PLAYER_CONTROL
type PlayerControlMsg struct {
	EntityID common.EntityID
}

// EntityDeltasMsg is the body of MT_ENTITY_DELTAS
type EntityDeltasMsg struct {
	SectorID common.SectorID
	Tick     uint64
	Updated  []EntityState
	Removed  []common.EntityID
}

// ControlMsg is the body of MT_CONTROL
type ControlMsg struct {
	Command  string
	Target   common.EntityID
	Distance float64
	Position common.Vector3
}

// PingMsg is the body of MT_PING and MT_PONG
type PingMsg struct {
	Nonce uint64
}
