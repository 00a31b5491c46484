package sector

import (
	"math"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/proto"
)

// Behavior sets the velocity of an entity for one step
//
// Step returns true when the behavior is finished and should be dropped.
type Behavior interface {
	Step(s *Scene, e *Entity, dt float64) (done bool)
}

// goal is either a fixed point or another entity
type goal struct {
	target common.EntityID
	point  common.Vector3
}

func (g goal) position(s *Scene) (common.Vector3, bool) {
	if g.target.IsNil() {
		return g.point, true
	}
	t := s.Entity(g.target)
	if t == nil {
		return common.Vector3{}, false
	}
	return t.Position, true
}

// speedFor returns the speed that covers dist in one step without overshooting
func speedFor(s *Scene, dist float64, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	return math.Min(s.MaxSpeed, dist/dt)
}

type approachBehavior struct {
	goal
}

func (b *approachBehavior) Step(s *Scene, e *Entity, dt float64) bool {
	pos, ok := b.position(s)
	if !ok {
		e.Velocity = common.Vector3{}
		return true
	}
	delta := pos.Sub(e.Position)
	dist := delta.Length()
	if dist <= consts.SECTOR_ARRIVE_DISTANCE {
		e.Velocity = common.Vector3{}
		return true
	}
	e.Velocity = delta.Normalized().Mul(speedFor(s, dist-consts.SECTOR_ARRIVE_DISTANCE/2, dt))
	return false
}

type orbitBehavior struct {
	goal
	radius float64
}

func (b *orbitBehavior) Step(s *Scene, e *Entity, dt float64) bool {
	center, ok := b.position(s)
	if !ok {
		e.Velocity = common.Vector3{}
		return true
	}
	radial := e.Position.Sub(center)
	r := radial.Length()
	if r == 0 {
		radial = common.Vector3{X: 1}
	}
	radialDir := radial.Normalized()

	up := common.Vector3{Y: 1}
	tangent := up.Cross(radialDir)
	if tangent.Length() < 1e-9 {
		tangent = common.Vector3{Z: 1}.Cross(radialDir)
	}
	tangent = tangent.Normalized()

	correction := radialDir.Mul(b.radius - r)
	if dt > 0 {
		correction = correction.Mul(1 / dt)
	}
	e.Velocity = correction.ClampLength(s.MaxSpeed)
	rest := s.MaxSpeed - e.Velocity.Length()
	if rest > 0 {
		e.Velocity = e.Velocity.Add(tangent.Mul(rest))
	}
	return false
}

type keepDistanceBehavior struct {
	goal
	distance float64
}

func (b *keepDistanceBehavior) Step(s *Scene, e *Entity, dt float64) bool {
	pos, ok := b.position(s)
	if !ok {
		e.Velocity = common.Vector3{}
		return true
	}
	away := e.Position.Sub(pos)
	d := away.Length()
	if d == 0 {
		away = common.Vector3{X: 1}
	}
	diff := d - b.distance
	if math.Abs(diff) <= consts.SECTOR_ARRIVE_DISTANCE {
		e.Velocity = common.Vector3{}
		return false
	}
	// diff > 0 means too far: move against the away direction
	dir := away.Normalized().Mul(-math.Copysign(1, diff))
	e.Velocity = dir.Mul(speedFor(s, math.Abs(diff), dt))
	return false
}

// ApplyControl changes the behavior of the entity according to a client command
func (s *Scene) ApplyControl(e *Entity, ctrl *proto.ControlMsg) error {
	target := ctrl.Target
	if !target.IsNil() {
		if target == e.ID {
			return errors.Errorf("sector %s: entity %d cannot target itself", s.ID, e.ID)
		}
		if _, err := s.MustEntity(target); err != nil {
			return err
		}
	}
	g := goal{target: target, point: ctrl.Position}

	switch ctrl.Command {
	case proto.CMD_APPROACH:
		e.SetBehavior(&approachBehavior{goal: g})
	case proto.CMD_ORBIT:
		radius := ctrl.Distance
		if radius <= 0 {
			radius = consts.SECTOR_DEFAULT_ORBIT_RADIUS
		}
		e.SetBehavior(&orbitBehavior{goal: g, radius: radius})
	case proto.CMD_KEEP_DISTANCE:
		distance := ctrl.Distance
		if distance <= 0 {
			distance = consts.SECTOR_DEFAULT_KEEP_DISTANCE
		}
		e.SetBehavior(&keepDistanceBehavior{goal: g, distance: distance})
	case proto.CMD_STOP:
		e.SetBehavior(nil)
	case proto.CMD_WARP:
		dest, ok := g.position(s)
		if !ok {
			return errors.Errorf("sector %s: warp target %d is gone", s.ID, target)
		}
		e.SetBehavior(nil)
		e.Position = dest
		e.Velocity = common.Vector3{}
		e.MarkDirty()
	case proto.CMD_TARGET:
		e.Target = target
		e.MarkDirty()
	default:
		return errors.Errorf("sector %s: unknown command %q", s.ID, ctrl.Command)
	}
	return nil
}
