package sector

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/proto"
)

const (
	// KIND_SHIP is the kind of player controlled ships
	KIND_SHIP = "ship"
)

// Body is a static object of a sector as produced by the galaxy generator
type Body struct {
	Name     string
	Kind     string
	Position common.Vector3
	Radius   float64
}

// Data is the read-only description a scene is built from
type Data struct {
	ID     common.SectorID
	Name   string
	Bodies []Body
}

// Entity is one object simulated by a scene
type Entity struct {
	ID       common.EntityID
	Kind     string
	Name     string
	Owner    common.PlayerID
	Position common.Vector3
	Velocity common.Vector3
	Radius   float64
	Target   common.EntityID

	behavior Behavior
	dirty    bool
}

// State returns the synchronized state of the entity
func (e *Entity) State() proto.EntityState {
	return proto.EntityState{
		ID:       e.ID,
		Kind:     e.Kind,
		Name:     e.Name,
		Owner:    e.Owner,
		Position: e.Position,
		Velocity: e.Velocity,
		Radius:   e.Radius,
		Target:   e.Target,
	}
}

// SetBehavior replaces the movement behavior; nil stops the entity
func (e *Entity) SetBehavior(b Behavior) {
	e.behavior = b
	if b == nil && e.Velocity != (common.Vector3{}) {
		e.Velocity = common.Vector3{}
		e.dirty = true
	}
}

// MarkDirty queues the entity for the next delta broadcast
func (e *Entity) MarkDirty() {
	e.dirty = true
}

// Scene is the simulation state of one sector
//
// A Scene has no lock. Only the goroutine of the owning actor may touch it.
type Scene struct {
	ID       common.SectorID
	Name     string
	MaxSpeed float64

	entities     map[common.EntityID]*Entity
	nextEntityID common.EntityID
	removed      common.EntityIDSet
}

// NewScene builds a scene from sector data
func NewScene(data *Data, maxSpeed float64) *Scene {
	s := &Scene{
		ID:       data.ID,
		Name:     data.Name,
		MaxSpeed: maxSpeed,
		entities: map[common.EntityID]*Entity{},
		removed:  common.EntityIDSet{},
	}
	for _, body := range data.Bodies {
		e := s.Spawn(body.Kind, body.Name, "", body.Position)
		e.Radius = body.Radius
		e.dirty = false
	}
	return s
}

// Spawn creates a new entity at pos
func (s *Scene) Spawn(kind string, name string, owner common.PlayerID, pos common.Vector3) *Entity {
	s.nextEntityID++
	e := &Entity{
		ID:       s.nextEntityID,
		Kind:     kind,
		Name:     name,
		Owner:    owner,
		Position: pos,
		dirty:    true,
	}
	s.entities[e.ID] = e
	return e
}

// Entity returns the entity, or nil if there is none
func (s *Scene) Entity(id common.EntityID) *Entity {
	return s.entities[id]
}

// MustEntity returns the entity or an error naming the stale id
func (s *Scene) MustEntity(id common.EntityID) (*Entity, error) {
	e := s.entities[id]
	if e == nil {
		return nil, errors.Errorf("sector %s: entity %d does not exist", s.ID, id)
	}
	return e, nil
}

// Remove deletes the entity and queues its removal for the next delta broadcast
func (s *Scene) Remove(id common.EntityID) bool {
	if _, ok := s.entities[id]; !ok {
		return false
	}
	delete(s.entities, id)
	s.removed.Add(id)
	return true
}

// Len returns the number of entities
func (s *Scene) Len() int {
	return len(s.entities)
}

// Advance moves every entity with a behavior by dt seconds
func (s *Scene) Advance(dt float64) {
	for _, id := range s.sortedIDs() {
		e := s.entities[id]
		if e == nil || e.behavior == nil {
			continue
		}
		oldVel := e.Velocity
		if done := e.behavior.Step(s, e, dt); done {
			e.behavior = nil
		}
		e.Velocity = e.Velocity.ClampLength(s.MaxSpeed)
		if e.Velocity != (common.Vector3{}) {
			e.Position = e.Position.Add(e.Velocity.Mul(dt))
			e.dirty = true
		} else if oldVel != e.Velocity {
			e.dirty = true
		}
	}
}

// Snapshot returns the state of every entity, ordered by id
func (s *Scene) Snapshot() []proto.EntityState {
	states := make([]proto.EntityState, 0, len(s.entities))
	for _, id := range s.sortedIDs() {
		states = append(states, s.entities[id].State())
	}
	return states
}

// Deltas returns the dirty entities and the removed entity ids since the last ClearDirty
func (s *Scene) Deltas() (updated []proto.EntityState, removed []common.EntityID) {
	for _, id := range s.sortedIDs() {
		if e := s.entities[id]; e.dirty {
			updated = append(updated, e.State())
		}
	}
	if len(s.removed) > 0 {
		removed = s.removed.ToList()
	}
	return
}

// ClearDirty resets the dirty flags and the removed set
func (s *Scene) ClearDirty() {
	for _, e := range s.entities {
		e.dirty = false
	}
	if len(s.removed) > 0 {
		s.removed = common.EntityIDSet{}
	}
}

func (s *Scene) sortedIDs() []common.EntityID {
	ids := make([]common.EntityID, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
