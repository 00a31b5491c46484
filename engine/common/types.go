// Package common defines the identifiers and vector type shared across the server.
package common

import (
	"github.com/google/uuid"
)

// EntityID identifies an entity inside one sector scene
type EntityID uint64

// IsNil returns if EntityID is nil
func (id EntityID) IsNil() bool {
	return id == 0
}

// PlayerID is the persistent identity of a player
type PlayerID string

// IsNil returns if PlayerID is nil
func (id PlayerID) IsNil() bool {
	return id == ""
}

// GenPlayerID generates a new PlayerID
func GenPlayerID() PlayerID {
	return PlayerID(uuid.NewString())
}

// ConnID identifies one client connection for its whole lifetime
type ConnID string

// GenConnID generates a new ConnID
func GenConnID() ConnID {
	return ConnID(uuid.NewString())
}

// IsNil returns if ConnID is nil
func (id ConnID) IsNil() bool {
	return id == ""
}

// SectorID identifies a sector partition
type SectorID string

// IsNil returns if SectorID is nil
func (id SectorID) IsNil() bool {
	return id == ""
}
