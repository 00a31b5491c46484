// Package sector runs sector partitions as single-writer actors.
//
// Every mutation of a sector scene, whether a join, a leave, a control command or a simulation
// step, runs as a task on the sector's own goroutine, one at a time in submission order.
package sector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/gwutils"
	"github.com/xiaonanln/sectorworld/engine/netutil"
	"github.com/xiaonanln/sectorworld/engine/opmon"
	"github.com/xiaonanln/sectorworld/engine/post"
	"github.com/xiaonanln/sectorworld/engine/proto"
	"github.com/xiaonanln/sectorworld/engine/session"
)

// ErrActorStopped is returned when posting to a stopped actor
var ErrActorStopped = errors.New("sector actor stopped")

// Task is a unit of work run on the actor goroutine
type Task func(a *Actor) error

// PlayerLeftCallback is called on the actor goroutine when a player leaves, with its last position
//
// It must not block.
type PlayerLeftCallback func(sess *session.Session, sectorID common.SectorID, pos common.Vector3)

type member struct {
	session  *session.Session
	entityID common.EntityID
	ready    bool
}

// Actor owns one sector scene and the sessions subscribed to it
type Actor struct {
	ID common.SectorID

	mailbox      *post.Queue
	tickInterval time.Duration
	maxSpeed     float64
	onPlayerLeft PlayerLeftCallback

	// only touched on the actor goroutine
	scene  *Scene
	roster map[common.PlayerID]*member
	tick   uint64

	rosterSize int32
	pending    int64
	lastActive int64

	dataCh   chan *Data
	stopCh   chan struct{}
	stopOnce sync.Once
	postLock sync.Mutex // orders Post against stop
	stopped  int32
	done     chan struct{}
}

func newActor(id common.SectorID, cfg *Config) *Actor {
	a := &Actor{
		ID:           id,
		mailbox:      post.NewQueue(),
		tickInterval: cfg.TickInterval,
		maxSpeed:     cfg.MaxSpeed,
		onPlayerLeft: cfg.OnPlayerLeft,
		roster:       map[common.PlayerID]*member{},
		lastActive:   time.Now().UnixNano(),
		dataCh:       make(chan *Data, 1),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	if a.tickInterval <= 0 {
		a.tickInterval = time.Millisecond * 100
	}
	if a.maxSpeed <= 0 {
		a.maxSpeed = consts.SECTOR_MAX_SPEED
	}
	go a.run()
	return a
}

func (a *Actor) String() string {
	return "Sector<" + string(a.ID) + ">"
}

// Post queues a task; tasks run in the order they are posted
//
// A nil return means the task will run, even if the actor is stopped right after.
func (a *Actor) Post(name string, task Task) error {
	a.postLock.Lock()
	defer a.postLock.Unlock()
	if atomic.LoadInt32(&a.stopped) != 0 {
		return ErrActorStopped
	}
	atomic.AddInt64(&a.pending, 1)
	atomic.StoreInt64(&a.lastActive, time.Now().UnixNano())
	a.mailbox.Post(func() {
		defer atomic.AddInt64(&a.pending, -1)
		a.runTask(name, task)
	})
	return nil
}

func (a *Actor) runTask(name string, task Task) {
	err := gwutils.CatchPanic(func() error {
		return task(a)
	})
	if err != nil {
		fault := &Fault{SectorID: a.ID, Task: name, Err: err}
		opmon.SectorFaults.WithLabelValues(string(a.ID)).Inc()
		gwlog.Errorf("%+v", fault)
	}
}

// setData hands the loaded sector data to the actor; only the first call counts
func (a *Actor) setData(data *Data) {
	select {
	case a.dataCh <- data:
	default:
	}
}

func (a *Actor) run() {
	defer close(a.done)

	select {
	case data := <-a.dataCh:
		a.scene = NewScene(data, a.maxSpeed)
	case <-a.stopCh:
		// stopped while loading: run what was queued on an empty scene
		a.scene = NewScene(&Data{ID: a.ID}, a.maxSpeed)
		a.mailbox.Tick()
		return
	}
	if consts.DEBUG_SECTORS {
		gwlog.Debugf("%s: started with %d entities", a, a.scene.Len())
	}

	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.mailbox.Notify():
			a.mailbox.Tick()
		case <-ticker.C:
			a.step()
		case <-a.stopCh:
			a.mailbox.Tick()
			return
		}
	}
}

// step drains the mailbox, advances the scene by one tick and broadcasts the deltas
func (a *Actor) step() {
	op := opmon.StartOperation("sector.tick")
	a.mailbox.Tick()

	gwutils.RunPanicless(func() {
		a.scene.Advance(a.tickInterval.Seconds())
	})
	a.broadcastDeltas()
	a.scene.ClearDirty()
	a.tick++
	op.Finish(a.tickInterval)
}

func (a *Actor) broadcastDeltas() {
	updated, removed := a.scene.Deltas()
	if len(updated) == 0 && len(removed) == 0 {
		return
	}

	packet := netutil.NewPacket()
	defer packet.Release()
	msg := &proto.EntityDeltasMsg{SectorID: a.ID, Tick: a.tick, Updated: updated, Removed: removed}
	if err := packet.AppendEnvelope(uint64(proto.MT_ENTITY_DELTAS), msg); err != nil {
		gwlog.Errorf("%s: pack deltas failed: %+v", a, err)
		return
	}
	for _, m := range a.roster {
		if !m.ready {
			continue
		}
		cc := m.session.Conn()
		if cc == nil {
			continue
		}
		packet.AddRefCount(1)
		cc.SendPacket(packet)
	}
}

// Scene returns the scene; only valid inside a task
func (a *Actor) Scene() *Scene {
	return a.scene
}

// Tick returns the number of completed ticks; only valid inside a task
func (a *Actor) Tick() uint64 {
	return a.tick
}

// PlayerEntity returns the entity controlled by the player; only valid inside a task
func (a *Actor) PlayerEntity(playerID common.PlayerID) (*Entity, error) {
	m := a.roster[playerID]
	if m == nil {
		return nil, errors.Errorf("player %s is not in sector %s", playerID, a.ID)
	}
	return a.scene.MustEntity(m.entityID)
}

// AddPlayer queues the join of a session at pos
//
// The player first receives LocationChanged; a follow-up task then sends the WorldSnapshot and
// PlayerControl for its new ship.
func (a *Actor) AddPlayer(sess *session.Session, pos common.Vector3) error {
	return a.Post("join", func(a *Actor) error {
		return a.addPlayer(sess, pos)
	})
}

func (a *Actor) addPlayer(sess *session.Session, pos common.Vector3) error {
	if _, ok := a.roster[sess.PlayerID]; ok {
		gwlog.Warnf("%s: %s already joined", a, sess)
		return nil
	}

	ship := a.scene.Spawn(KIND_SHIP, sess.Name, sess.PlayerID, pos)
	m := &member{session: sess, entityID: ship.ID}
	a.roster[sess.PlayerID] = m
	atomic.StoreInt32(&a.rosterSize, int32(len(a.roster)))
	if consts.DEBUG_SECTORS {
		gwlog.Debugf("%s: %s joined as entity %d", a, sess, ship.ID)
	}

	sess.Send(proto.MT_LOCATION_CHANGED, &proto.LocationChangedMsg{SectorID: a.ID, Position: pos})
	return a.Post("join.snapshot", func(a *Actor) error {
		if a.roster[sess.PlayerID] != m {
			return nil // left before the snapshot
		}
		if err := sess.Send(proto.MT_WORLD_SNAPSHOT, &proto.WorldSnapshotMsg{
			SectorID: a.ID,
			Tick:     a.tick,
			Entities: a.scene.Snapshot(),
		}); err != nil && err != proto.ErrConnectionClosed {
			return err
		}
		m.ready = true
		if err := sess.Send(proto.MT_PLAYER_CONTROL, &proto.PlayerControlMsg{EntityID: m.entityID}); err != nil && err != proto.ErrConnectionClosed {
			return err
		}
		return nil
	})
}

// RemovePlayer queues the leave of a player; removing an absent player does nothing
func (a *Actor) RemovePlayer(playerID common.PlayerID) error {
	return a.Post("leave", func(a *Actor) error {
		m := a.roster[playerID]
		if m == nil {
			return nil
		}
		delete(a.roster, playerID)
		atomic.StoreInt32(&a.rosterSize, int32(len(a.roster)))
		atomic.StoreInt64(&a.lastActive, time.Now().UnixNano())

		var pos common.Vector3
		if e := a.scene.Entity(m.entityID); e != nil {
			pos = e.Position
		}
		a.scene.Remove(m.entityID)
		if a.onPlayerLeft != nil {
			a.onPlayerLeft(m.session, a.ID, pos)
		}
		return nil
	})
}

// Control queues a ship command of a player
func (a *Actor) Control(playerID common.PlayerID, ctrl *proto.ControlMsg) error {
	return a.Post("control."+ctrl.Command, func(a *Actor) error {
		e, err := a.PlayerEntity(playerID)
		if err != nil {
			return err
		}
		return a.scene.ApplyControl(e, ctrl)
	})
}

// NumPlayers returns the roster size
func (a *Actor) NumPlayers() int {
	return int(atomic.LoadInt32(&a.rosterSize))
}

// Pending returns the number of queued tasks that have not finished
func (a *Actor) Pending() int {
	return int(atomic.LoadInt64(&a.pending))
}

// IdleFor returns how long the actor has had no players and no tasks, or 0 if it is busy
func (a *Actor) IdleFor(now time.Time) time.Duration {
	if a.NumPlayers() > 0 || a.Pending() > 0 {
		return 0
	}
	return now.Sub(time.Unix(0, atomic.LoadInt64(&a.lastActive)))
}

// stop asks the actor to run the queued tasks and quit
func (a *Actor) stop() {
	a.stopOnce.Do(func() {
		a.postLock.Lock()
		atomic.StoreInt32(&a.stopped, 1)
		a.postLock.Unlock()
		close(a.stopCh)
	})
}

// Wait blocks until the actor goroutine exits
func (a *Actor) Wait() {
	<-a.done
}
