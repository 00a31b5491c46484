package sector

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/xiaonanln/sectorworld/engine/async"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/netutil"
	"github.com/xiaonanln/sectorworld/engine/opmon"
	"github.com/xiaonanln/sectorworld/engine/proto"
	"github.com/xiaonanln/sectorworld/engine/session"
)

// call runs f on the actor and waits for it
func call(t *testing.T, r *Registry, id common.SectorID, f func(a *Actor)) {
	done := make(chan struct{})
	_, err := r.Submit(id, "test.call", func(a *Actor) error {
		defer close(done)
		f(a)
		return nil
	})
	assert.Equal(t, nil, err)
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatalf("task on %s did not run", id)
	}
}

func newTestRegistry(cfg Config) *Registry {
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Millisecond * 10
	}
	return NewRegistry(cfg)
}

func TestFaultIsolation(t *testing.T) {
	r := newTestRegistry(Config{})
	defer r.StopAll()

	const id = common.SectorID("s-fault")
	var ship common.EntityID
	call(t, r, id, func(a *Actor) {
		ship = a.Scene().Spawn(KIND_SHIP, "alice", "p-1", common.Vector3{X: 1}).ID
	})

	before := testutil.ToFloat64(opmon.SectorFaults.WithLabelValues(string(id)))
	_, err := r.Submit(id, "boom", func(a *Actor) error {
		panic("boom")
	})
	assert.Equal(t, nil, err)
	_, err = r.Submit(id, "fail", func(a *Actor) error {
		return errors.New("failed")
	})
	assert.Equal(t, nil, err)

	call(t, r, id, func(a *Actor) {
		e := a.Scene().Entity(ship)
		assert.NotEqual(t, (*Entity)(nil), e)
		assert.Equal(t, common.Vector3{X: 1}, e.Position)
	})
	after := testutil.ToFloat64(opmon.SectorFaults.WithLabelValues(string(id)))
	assert.Equal(t, before+2, after)
}

// waitTick waits until the sector has completed more than n ticks
func waitTick(t *testing.T, r *Registry, id common.SectorID, n uint64) uint64 {
	deadline := time.Now().Add(time.Second * 5)
	for {
		var tick uint64
		call(t, r, id, func(a *Actor) { tick = a.Tick() })
		if tick > n {
			return tick
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s stuck at tick %d", id, tick)
		}
		time.Sleep(time.Millisecond * 5)
	}
}

func TestFaultDoesNotStopOtherSectors(t *testing.T) {
	r := newTestRegistry(Config{})
	defer r.StopAll()

	const faulty, healthy = common.SectorID("s-faulty"), common.SectorID("s-healthy")
	var healthyStart, faultyStart uint64
	call(t, r, healthy, func(a *Actor) { healthyStart = a.Tick() })
	call(t, r, faulty, func(a *Actor) { faultyStart = a.Tick() })

	ran := 0
	for i := 0; i < 20; i++ {
		_, err := r.Submit(faulty, "boom", func(a *Actor) error {
			panic("boom")
		})
		assert.Equal(t, nil, err)
		_, err = r.Submit(healthy, "work", func(a *Actor) error {
			ran++
			return nil
		})
		assert.Equal(t, nil, err)
	}

	waitTick(t, r, healthy, healthyStart+3)
	waitTick(t, r, faulty, faultyStart+3)
	var got int
	call(t, r, healthy, func(a *Actor) { got = ran })
	assert.Equal(t, 20, got)
}

func TestPostRacingStop(t *testing.T) {
	const id = common.SectorID("s-post")
	a := newActor(id, &Config{TickInterval: time.Millisecond * 10})
	a.setData(&Data{ID: id})

	var accepted, ran int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				err := a.Post("count", func(a *Actor) error {
					atomic.AddInt64(&ran, 1)
					return nil
				})
				if err == nil {
					atomic.AddInt64(&accepted, 1)
				} else {
					assert.Equal(t, ErrActorStopped, err)
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	a.stop()
	a.Wait()
	wg.Wait()

	assert.Equal(t, atomic.LoadInt64(&accepted), atomic.LoadInt64(&ran))
	assert.Equal(t, 0, a.Pending())
	assert.Equal(t, ErrActorStopped, a.Post("late", func(a *Actor) error { return nil }))
}

func TestSubmitCreatesOneActor(t *testing.T) {
	r := newTestRegistry(Config{})
	defer r.StopAll()

	const id = common.SectorID("s-race")
	const N = 32
	actors := make([]*Actor, N)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Submit(id, "inc", func(a *Actor) error {
				counter++
				return nil
			})
			assert.Equal(t, nil, err)
			actors[i] = a
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Count())
	for _, a := range actors {
		assert.Equal(t, actors[0], a)
	}
	var got int
	call(t, r, id, func(a *Actor) { got = counter })
	assert.Equal(t, N, got)
}

func TestTasksRunInOrder(t *testing.T) {
	r := newTestRegistry(Config{})
	defer r.StopAll()

	var seq []int
	for i := 0; i < 100; i++ {
		i := i
		_, err := r.Submit("s-order", "append", func(a *Actor) error {
			seq = append(seq, i)
			return nil
		})
		assert.Equal(t, nil, err)
	}
	call(t, r, "s-order", func(a *Actor) {
		for i, v := range seq {
			assert.Equal(t, i, v)
		}
		assert.Equal(t, 100, len(seq))
	})
}

func TestLoaderOnPool(t *testing.T) {
	pool := async.NewPool(2, nil)
	defer pool.Shutdown()

	loads := 0
	var lock sync.Mutex
	r := newTestRegistry(Config{
		Pool: pool,
		Loader: func(id common.SectorID) (*Data, error) {
			lock.Lock()
			loads++
			lock.Unlock()
			if id == "s-broken" {
				return nil, errors.New("no such sector")
			}
			return &Data{ID: id, Name: "Loaded", Bodies: []Body{{Name: "Sun", Kind: "star"}}}, nil
		},
	})
	defer r.StopAll()

	call(t, r, "s-loaded", func(a *Actor) {
		assert.Equal(t, "Loaded", a.Scene().Name)
		assert.Equal(t, 1, a.Scene().Len())
	})
	call(t, r, "s-broken", func(a *Actor) {
		assert.Equal(t, common.SectorID("s-broken"), a.Scene().ID)
		assert.Equal(t, 0, a.Scene().Len())
	})
	call(t, r, "s-loaded", func(a *Actor) {})

	lock.Lock()
	assert.Equal(t, 2, loads)
	lock.Unlock()
}

func TestLeaveReportsLastPosition(t *testing.T) {
	left := make(chan common.Vector3, 4)
	r := newTestRegistry(Config{
		OnPlayerLeft: func(sess *session.Session, sectorID common.SectorID, pos common.Vector3) {
			assert.Equal(t, common.PlayerID("p-1"), sess.PlayerID)
			assert.Equal(t, "alice", sess.Name)
			assert.Equal(t, common.SectorID("s-leave"), sectorID)
			left <- pos
		},
	})
	defer r.StopAll()

	sessions := session.NewRegistry(session.NewConnectionRegistry())
	sess, err := sessions.Create("p-1", "alice", "c-1")
	assert.Equal(t, nil, err)

	a, err := r.AddPlayer("s-leave", sess, common.Vector3{X: 5})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, r.Control("s-leave", "p-1", &proto.ControlMsg{Command: proto.CMD_WARP, Position: common.Vector3{Y: 7}}))
	assert.Equal(t, ErrSectorNotRunning, r.Control("s-nowhere", "p-1", &proto.ControlMsg{Command: proto.CMD_STOP}))
	call(t, r, "s-leave", func(a *Actor) {
		assert.Equal(t, 1, a.NumPlayers())
		e, err := a.PlayerEntity("p-1")
		assert.Equal(t, nil, err)
		assert.Equal(t, common.Vector3{Y: 7}, e.Position)
	})

	assert.Equal(t, nil, r.RemovePlayer("s-leave", "p-1"))
	assert.Equal(t, nil, a.RemovePlayer("p-1"))
	assert.Equal(t, nil, r.RemovePlayer("s-nowhere", "p-1"))
	call(t, r, "s-leave", func(a *Actor) {
		assert.Equal(t, 0, a.NumPlayers())
		assert.Equal(t, 0, a.Scene().Len())
	})
	assert.Equal(t, common.Vector3{Y: 7}, <-left)
	assert.Equal(t, 0, len(left))
}

func TestReapIdle(t *testing.T) {
	r := newTestRegistry(Config{})
	defer r.StopAll()

	sessions := session.NewRegistry(session.NewConnectionRegistry())
	sess, _ := sessions.Create("p-1", "alice", "c-1")

	busy, err := r.Start("s-busy")
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, busy.AddPlayer(sess, common.Vector3{}))
	call(t, r, "s-busy", func(a *Actor) {})
	call(t, r, "s-idle", func(a *Actor) {})

	assert.Equal(t, 0, len(r.ReapIdle(0)))
	time.Sleep(time.Millisecond * 100)
	reaped := r.ReapIdle(time.Millisecond * 50)
	assert.Equal(t, []common.SectorID{"s-idle"}, reaped)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, (*Actor)(nil), r.Get("s-idle"))
	assert.Equal(t, busy, r.Get("s-busy"))

	// a reaped sector is recreated on demand
	call(t, r, "s-idle", func(a *Actor) {})
	assert.Equal(t, 2, r.Count())
}

func TestStopAllRunsQueuedTasks(t *testing.T) {
	r := newTestRegistry(Config{})
	ran := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		_, err := r.Submit("s-stop", "queued", func(a *Actor) error {
			ran <- struct{}{}
			return nil
		})
		assert.Equal(t, nil, err)
	}
	r.StopAll()
	assert.Equal(t, 10, len(ran))

	_, err := r.Submit("s-stop", "late", func(a *Actor) error { return nil })
	assert.Equal(t, ErrRegistryStopped, err)
}

type recvMsg struct {
	msgtype proto.MsgType
	body    []byte
}

// connectTestClient returns the client end of a loopback connection whose server end is added to conns
func connectTestClient(t *testing.T, conns *session.ConnectionRegistry) (client *proto.ClientConnection, server *proto.ClientConnection, recv chan recvMsg) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.Equal(t, nil, err)
	defer ln.Close()

	serverSide := make(chan *proto.ClientConnection, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverSide <- nil
			return
		}
		cc := proto.NewClientConnection(conn, true)
		if err := cc.Handshake(time.Second * 5); err != nil {
			serverSide <- nil
			return
		}
		serverSide <- cc
	}()

	conn, err := netutil.ConnectTCP(ln.Addr().String())
	assert.Equal(t, nil, err)
	client = proto.NewClientConnection(conn, false)
	assert.Equal(t, nil, client.Handshake(time.Second*5))
	server = <-serverSide
	if server == nil {
		t.Fatalf("server handshake failed")
	}
	conns.Add(server)

	recv = make(chan recvMsg, 1000)
	codec := proto.NewCodec()
	for _, mt := range []proto.MsgType{proto.MT_LOCATION_CHANGED, proto.MT_WORLD_SNAPSHOT, proto.MT_PLAYER_CONTROL, proto.MT_ENTITY_DELTAS} {
		mt := mt
		codec.Register(mt, proto.States(proto.Lobby), func(cc *proto.ClientConnection, body []byte) error {
			b := make([]byte, len(body))
			copy(b, body)
			recv <- recvMsg{mt, b}
			return nil
		})
	}
	go client.Serve(codec)
	return
}

func expectMsg(t *testing.T, recv chan recvMsg, msgtype proto.MsgType, msg interface{}) {
	select {
	case m := <-recv:
		assert.Equal(t, msgtype, m.msgtype)
		assert.Equal(t, nil, proto.Decode(m.msgtype, m.body, msg))
	case <-time.After(time.Second * 5):
		t.Fatalf("timeout waiting for %s", msgtype)
	}
}

func TestJoinSequence(t *testing.T) {
	r := newTestRegistry(Config{
		Loader: func(id common.SectorID) (*Data, error) {
			return &Data{ID: id, Bodies: []Body{{Name: "Sun", Kind: "star", Radius: 100}}}, nil
		},
	})
	defer r.StopAll()

	conns := session.NewConnectionRegistry()
	sessions := session.NewRegistry(conns)
	client, server, recv := connectTestClient(t, conns)
	defer client.Close()

	sess, err := sessions.Create("p-1", "alice", server.ConnID)
	assert.Equal(t, nil, err)
	a, err := r.Start("s-join")
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, a.AddPlayer(sess, common.Vector3{X: 1000}))

	var loc proto.LocationChangedMsg
	expectMsg(t, recv, proto.MT_LOCATION_CHANGED, &loc)
	assert.Equal(t, common.SectorID("s-join"), loc.SectorID)
	assert.Equal(t, common.Vector3{X: 1000}, loc.Position)

	var snap proto.WorldSnapshotMsg
	expectMsg(t, recv, proto.MT_WORLD_SNAPSHOT, &snap)
	assert.Equal(t, 2, len(snap.Entities))
	assert.Equal(t, "Sun", snap.Entities[0].Name)
	ship := snap.Entities[1]
	assert.Equal(t, KIND_SHIP, ship.Kind)
	assert.Equal(t, common.PlayerID("p-1"), ship.Owner)

	var ctl proto.PlayerControlMsg
	expectMsg(t, recv, proto.MT_PLAYER_CONTROL, &ctl)
	assert.Equal(t, ship.ID, ctl.EntityID)

	// moving ships show up in the deltas
	assert.Equal(t, nil, a.Control("p-1", &proto.ControlMsg{Command: proto.CMD_APPROACH, Position: common.Vector3{}}))
	deadline := time.After(time.Second * 5)
	for {
		select {
		case m := <-recv:
			if m.msgtype != proto.MT_ENTITY_DELTAS {
				t.Fatalf("unexpected %s", m.msgtype)
			}
			var deltas proto.EntityDeltasMsg
			assert.Equal(t, nil, proto.Decode(m.msgtype, m.body, &deltas))
			if len(deltas.Updated) == 1 && deltas.Updated[0].ID == ship.ID && deltas.Updated[0].Position.X < 1000 {
				return
			}
		case <-deadline:
			t.Fatalf("no deltas for the moving ship")
		}
	}
}
