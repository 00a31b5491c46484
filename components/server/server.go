// Package server runs the sector world front end: listeners, the lobby, logins and spawns.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/sectorworld/engine/async"
	"github.com/xiaonanln/sectorworld/engine/binutil"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/config"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/gwutils"
	"github.com/xiaonanln/sectorworld/engine/kvdb/records"
	"github.com/xiaonanln/sectorworld/engine/netutil"
	"github.com/xiaonanln/sectorworld/engine/opmon"
	"github.com/xiaonanln/sectorworld/engine/post"
	"github.com/xiaonanln/sectorworld/engine/proto"
	"github.com/xiaonanln/sectorworld/engine/sector"
	"github.com/xiaonanln/sectorworld/engine/session"
	"github.com/xtaci/kcp-go"
)

// playerState tracks where a logged in player is
type playerState struct {
	sectorID common.SectorID
	spawning bool
}

// Server owns every registry of one sector world process
type Server struct {
	cfg   config.ServerConfig
	db    records.Store
	pool  *async.Pool
	queue *post.Queue
	codec *proto.Codec

	conns    *session.ConnectionRegistry
	sessions *session.Registry
	sectors  *sector.Registry

	lock        sync.Mutex
	lobby       map[common.ConnID]*proto.ClientConnection
	logins      map[common.ConnID]bool
	players     map[common.PlayerID]*playerState
	terminating bool
	connWait    sync.WaitGroup

	tcpListeners []net.Listener
	kcpListener  *kcp.Listener
	httpServer   *http.Server
	timers       []*timer.Timer
	procStats    *binutil.ProcessStats
}

// New creates a Server storing players and reading sectors through db
func New(cfg *config.ServerConfig, db records.Store) *Server {
	s := &Server{
		cfg:      *cfg,
		db:       db,
		queue:    post.NewQueue(),
		conns:    session.NewConnectionRegistry(),
		lobby:    map[common.ConnID]*proto.ClientConnection{},
		logins:   map[common.ConnID]bool{},
		players:  map[common.PlayerID]*playerState{},
	}
	s.sessions = session.NewRegistry(s.conns)
	s.pool = async.NewPool(cfg.Workers, s.queue)
	s.sectors = sector.NewRegistry(sector.Config{
		TickInterval: cfg.Tick,
		Loader:       records.SectorLoader(db),
		Pool:         s.pool,
		OnPlayerLeft: s.onPlayerLeft,
	})
	s.codec = s.newCodec()
	return s
}

func (s *Server) String() string {
	return "Server<" + strconv.Itoa(s.cfg.Port) + ">"
}

// Listen opens the TCP, KCP and HTTP listeners
func (s *Server) Listen() (err error) {
	addrs, err := netutil.ListenAddrs(s.cfg.Bind, s.cfg.Port)
	if err != nil {
		return err
	}
	s.tcpListeners, err = netutil.ListenTCP(addrs)
	if err != nil {
		return err
	}

	if s.cfg.KCPPort > 0 {
		s.kcpListener, err = netutil.ListenKCP(fmt.Sprintf(":%d", s.cfg.KCPPort))
		if err != nil {
			s.closeListeners()
			return err
		}
	}

	s.httpServer, err = binutil.SetupHTTPServer(s.cfg.HTTPIp, s.cfg.HTTPPort, s.serveWebSocket)
	if err != nil {
		s.closeListeners()
		return err
	}
	return nil
}

func (s *Server) closeListeners() {
	for _, ln := range s.tcpListeners {
		ln.Close()
	}
	if s.kcpListener != nil {
		s.kcpListener.Close()
	}
}

// TCPAddrs returns the addresses of the TCP listeners
func (s *Server) TCPAddrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.tcpListeners))
	for _, ln := range s.tcpListeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// Run serves clients until ctx is done, then shuts down; Listen must be called first
func (s *Server) Run(ctx context.Context) error {
	if len(s.tcpListeners) == 0 {
		return errors.New("server is not listening")
	}
	gwlog.Infof("%s started, tick %s, %d workers", s, s.cfg.Tick, s.cfg.Workers)

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	go func() {
		if err := netutil.ServeTCP(serveCtx, s.tcpListeners, s); err != nil {
			gwlog.Errorf("%s: tcp server stopped: %+v", s, err)
		}
	}()
	if s.kcpListener != nil {
		go func() {
			if err := netutil.ServeKCP(serveCtx, s.kcpListener, s); err != nil {
				gwlog.Errorf("%s: kcp server stopped: %+v", s, err)
			}
		}()
	}

	s.preloadSectors()
	s.setupTimers()
	s.mainLoop(ctx)

	stopServing()
	s.shutdown()
	return nil
}

// mainLoop runs the timers and the callbacks posted by the worker pool
func (s *Server) mainLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.Notify():
		case <-ticker.C:
			gwutils.RunPanicless(timer.Tick)
		}
		s.queue.Tick()
	}
}

func (s *Server) preloadSectors() {
	for _, id := range s.cfg.PreloadSectors {
		if _, err := s.sectors.Start(common.SectorID(id)); err != nil {
			gwlog.Errorf("%s: preload sector %s failed: %s", s, id, err)
		}
	}
}

func (s *Server) setupTimers() {
	if ps, err := binutil.NewProcessStats(); err == nil {
		s.procStats = ps
	} else {
		gwlog.Warnf("%s: process stats not available: %s", s, err)
	}

	s.timers = append(s.timers, timer.AddTimer(consts.SERVER_STATUS_INTERVAL, s.logStatus))
	if s.cfg.HeartbeatTimeout > 0 {
		s.timers = append(s.timers, timer.AddTimer(consts.HEARTBEAT_CHECK_INTERVAL, s.checkHeartbeats))
	}
	if s.cfg.SectorIdleTimeout > 0 {
		s.timers = append(s.timers, timer.AddTimer(consts.SECTOR_REAP_INTERVAL, s.reapSectors))
	}
}

func (s *Server) logStatus() {
	var cpu float64
	var rss uint64
	if s.procStats != nil {
		cpu, _ = s.procStats.CPUPercent(context.Background())
		rss, _ = s.procStats.MemoryRSS(context.Background())
	}
	gwlog.Infof("%s: %d connections, %d sessions, %d sectors, cpu %.1f%%, rss %dMB",
		s, s.conns.Count(), s.sessions.Count(), s.sectors.Count(), cpu, rss>>20)
	opmon.Dump(gwlog.GetOutput())
}

func (s *Server) reapSectors() {
	go func() {
		if ids := s.sectors.ReapIdle(s.cfg.SectorIdleTimeout); len(ids) > 0 {
			gwlog.Infof("%s: stopped %d idle sectors: %v", s, len(ids), ids)
		}
	}()
}

// shutdown closes every connection, stops the sectors after they drain, then the workers
func (s *Server) shutdown() {
	gwlog.Infof("%s: shutting down ...", s)
	s.lock.Lock()
	s.terminating = true
	lobby := make([]*proto.ClientConnection, 0, len(s.lobby))
	for _, cc := range s.lobby {
		lobby = append(lobby, cc)
	}
	s.lock.Unlock()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		s.httpServer.Shutdown(ctx)
		cancel()
	}
	for _, cc := range lobby {
		cc.Close()
	}
	s.conns.ForEach(func(cc *proto.ClientConnection) {
		cc.Close()
	})
	s.connWait.Wait()

	s.sectors.StopAll()
	s.queue.Tick() // queues the saves of the players that just left
	s.pool.Shutdown()
	s.queue.Tick()
	for _, t := range s.timers {
		t.Cancel()
	}
	s.timers = nil
	gwlog.Infof("%s: terminated gracefully", s)
}

// onPlayerLeft runs on the sector goroutine; the save is handed to the main loop
func (s *Server) onPlayerLeft(sess *session.Session, sectorID common.SectorID, pos common.Vector3) {
	s.queue.Post(func() {
		s.saveLocation(sess, sectorID, pos)
	})
}

// saveLocation persists the last location of a player on the worker pool
func (s *Server) saveLocation(sess *session.Session, sectorID common.SectorID, pos common.Vector3) {
	err := s.pool.AppendJob("player", func() (interface{}, error) {
		return nil, records.SaveLocation(s.db, sess.Name, sectorID, pos)
	}, func(_ interface{}, err error) {
		if err != nil {
			gwlog.Errorf("%s: save location of %s failed: %+v", s, sess, err)
		}
	})
	if err != nil {
		gwlog.Errorf("%s: save location of %s failed: %s", s, sess, err)
	}
}
