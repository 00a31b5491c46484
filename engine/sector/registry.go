package sector

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/async"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/opmon"
	"github.com/xiaonanln/sectorworld/engine/proto"
	"github.com/xiaonanln/sectorworld/engine/session"
)

var (
	// ErrRegistryStopped is returned when submitting after StopAll
	ErrRegistryStopped = errors.New("sector registry stopped")
	// ErrSectorNotRunning is returned when a command targets a sector without an actor
	ErrSectorNotRunning = errors.New("sector not running")
)

// Loader reads the data of a sector; it may block
type Loader func(id common.SectorID) (*Data, error)

// Config configures the actors of a Registry
type Config struct {
	TickInterval time.Duration
	MaxSpeed     float64
	// Loader is run on Pool when a sector is created; nil means every sector starts empty
	Loader Loader
	// Pool runs the loader; nil runs it on a new goroutine
	Pool         *async.Pool
	OnPlayerLeft PlayerLeftCallback
}

// Registry creates sector actors lazily, exactly one per sector id
type Registry struct {
	lock    sync.RWMutex
	actors  map[common.SectorID]*Actor
	cfg     Config
	stopped bool
}

// NewRegistry creates an empty Registry
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		actors: map[common.SectorID]*Actor{},
		cfg:    cfg,
	}
}

// Get returns the running actor of the sector, or nil
func (r *Registry) Get(id common.SectorID) *Actor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.actors[id]
}

// Count returns the number of running actors
func (r *Registry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.actors)
}

// Submit posts a task to the actor of the sector, creating the actor first if needed
//
// Lookup, creation and posting happen under the registry lock, so concurrent callers share one
// actor and the idle reaper never removes an actor that has just been given work.
func (r *Registry) Submit(id common.SectorID, name string, task Task) (*Actor, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	a, err := r.getOrCreateLocked(id)
	if err != nil {
		return nil, err
	}
	if err := a.Post(name, task); err != nil {
		return nil, err
	}
	return a, nil
}

// Start creates the actor of the sector if it is not running yet
func (r *Registry) Start(id common.SectorID) (*Actor, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.getOrCreateLocked(id)
}

// AddPlayer starts the sector if needed and queues the join of sess at pos
func (r *Registry) AddPlayer(id common.SectorID, sess *session.Session, pos common.Vector3) (*Actor, error) {
	return r.Submit(id, "join", func(a *Actor) error {
		return a.addPlayer(sess, pos)
	})
}

// RemovePlayer queues the leave of a player; a sector that is not running has no players to remove
func (r *Registry) RemovePlayer(id common.SectorID, playerID common.PlayerID) error {
	a := r.Get(id)
	if a == nil {
		return nil
	}
	return a.RemovePlayer(playerID)
}

// Control queues a ship command in the sector of the player
func (r *Registry) Control(id common.SectorID, playerID common.PlayerID, ctrl *proto.ControlMsg) error {
	a := r.Get(id)
	if a == nil {
		return ErrSectorNotRunning
	}
	return a.Control(playerID, ctrl)
}

func (r *Registry) getOrCreateLocked(id common.SectorID) (*Actor, error) {
	if r.stopped {
		return nil, ErrRegistryStopped
	}
	if id.IsNil() {
		return nil, errors.New("empty sector id")
	}
	if a := r.actors[id]; a != nil {
		return a, nil
	}

	a := newActor(id, &r.cfg)
	r.actors[id] = a
	opmon.Sectors.Set(float64(len(r.actors)))
	r.load(a)
	gwlog.Infof("%s created", a)
	return a, nil
}

func (r *Registry) load(a *Actor) {
	loader := r.cfg.Loader
	if loader == nil {
		a.setData(&Data{ID: a.ID})
		return
	}

	id := a.ID
	routine := func() (interface{}, error) {
		op := opmon.StartOperation("sector.load")
		defer op.Finish(time.Second)
		return loader(id)
	}
	callback := func(res interface{}, err error) {
		data, _ := res.(*Data)
		if err != nil || data == nil {
			if err != nil {
				gwlog.Errorf("%s: load failed, starting empty: %+v", a, err)
			}
			data = &Data{ID: id}
		}
		a.setData(data)
	}

	if r.cfg.Pool != nil {
		if err := r.cfg.Pool.AppendJob("sector/"+string(id), routine, callback); err == nil {
			return
		}
	}
	go func() {
		res, err := routine()
		callback(res, err)
	}()
}

// ReapIdle stops the actors that had no players and no tasks for longer than timeout
func (r *Registry) ReapIdle(timeout time.Duration) []common.SectorID {
	if timeout <= 0 {
		return nil
	}

	now := time.Now()
	var reaped []*Actor
	r.lock.Lock()
	for id, a := range r.actors {
		if idle := a.IdleFor(now); idle > timeout {
			delete(r.actors, id)
			a.stop()
			reaped = append(reaped, a)
		}
	}
	opmon.Sectors.Set(float64(len(r.actors)))
	r.lock.Unlock()

	ids := make([]common.SectorID, 0, len(reaped))
	for _, a := range reaped {
		a.Wait()
		gwlog.Infof("%s reaped after being idle", a)
		ids = append(ids, a.ID)
	}
	return ids
}

// StopAll stops every actor after it runs its queued tasks, and refuses new work
func (r *Registry) StopAll() {
	r.lock.Lock()
	r.stopped = true
	actors := r.actors
	r.actors = map[common.SectorID]*Actor{}
	r.lock.Unlock()
	opmon.Sectors.Set(0)

	for _, a := range actors {
		a.stop()
	}
	for _, a := range actors {
		a.Wait()
	}
}
