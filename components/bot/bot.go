package bot

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/proto"
)

const (
	replyTimeout    = 10 * time.Second
	controlInterval = 3 * time.Second
	pingInterval    = 5 * time.Second
	maxConnectRetry = 10
)

// Config tells bots where and how to connect
type Config struct {
	Network  string
	Addr     string
	Password string
	// NamePrefix is followed by the bot number to build the player name
	NamePrefix string
	Quiet      bool
}

// ClientBot plays one ship with random commands
type ClientBot struct {
	sync.Mutex

	id       int
	cfg      *Config
	client   *Client
	sectorID common.SectorID
	ship     common.EntityID
	entities map[common.EntityID]proto.EntityState
	rng      *rand.Rand
}

func newClientBot(id int, cfg *Config) *ClientBot {
	return &ClientBot{
		id:       id,
		cfg:      cfg,
		entities: map[common.EntityID]proto.EntityState{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}
}

func (bot *ClientBot) String() string {
	return fmt.Sprintf("ClientBot<%d>", bot.id)
}

// Run starts n bots and blocks until ctx is done or every bot has failed
func Run(ctx context.Context, cfg Config, n int) {
	var wait sync.WaitGroup
	wait.Add(n)
	for i := 0; i < n; i++ {
		bot := newClientBot(i+1, &cfg)
		go func() {
			defer wait.Done()
			if err := bot.run(ctx); err != nil {
				gwlog.Errorf("%s stopped: %+v", bot, err)
			}
		}()
	}
	wait.Wait()
}

func (bot *ClientBot) connect(ctx context.Context) (*Client, error) {
	var err error
	for i := 0; i < maxConnectRetry; i++ {
		var c *Client
		if c, err = Dial(bot.cfg.Network, bot.cfg.Addr); err == nil {
			return c, nil
		}
		gwlog.Errorf("%s: connect failed: %s", bot, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second * time.Duration(1+bot.rng.Intn(5))):
		}
	}
	return nil, err
}

func (bot *ClientBot) run(ctx context.Context) error {
	c, err := bot.connect(ctx)
	if err != nil {
		return err
	}
	bot.client = c
	defer c.Close()

	name := fmt.Sprintf("%s%d", bot.cfg.NamePrefix, bot.id)
	res, err := c.Login(name, name, bot.cfg.Password, replyTimeout)
	if err != nil {
		return err
	}
	gwlog.Infof("%s logged in as %s", bot, res.PlayerID)

	sp, err := c.Spawn(replyTimeout)
	if err != nil {
		return err
	}
	bot.onSnapshot(&sp.Snapshot)
	bot.ship = sp.Ship.EntityID
	gwlog.Infof("%s spawned in %s at %s, ship %d", bot, sp.Location.SectorID, sp.Location.Position, bot.ship)

	controlTicker := time.NewTicker(controlInterval)
	defer controlTicker.Stop()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Send(proto.MT_LOGOUT, &proto.EmptyMsg{})
			return nil
		case m, ok := <-c.Messages():
			if !ok {
				return c.Err()
			}
			if err := bot.handleMessage(m); err != nil {
				return err
			}
		case <-controlTicker.C:
			if err := c.Send(proto.MT_CONTROL, bot.randomControl()); err != nil {
				return err
			}
		case <-pingTicker.C:
			if err := c.Send(proto.MT_PING, &proto.PingMsg{Nonce: uint64(time.Now().UnixNano())}); err != nil {
				return err
			}
		}
	}
}

func (bot *ClientBot) handleMessage(m Message) error {
	switch m.Type {
	case proto.MT_ENTITY_DELTAS:
		var msg proto.EntityDeltasMsg
		if err := proto.Decode(m.Type, m.Body, &msg); err != nil {
			return err
		}
		bot.onDeltas(&msg)
	case proto.MT_WORLD_SNAPSHOT:
		var msg proto.WorldSnapshotMsg
		if err := proto.Decode(m.Type, m.Body, &msg); err != nil {
			return err
		}
		bot.onSnapshot(&msg)
	case proto.MT_LOCATION_CHANGED:
		var msg proto.LocationChangedMsg
		if err := proto.Decode(m.Type, m.Body, &msg); err != nil {
			return err
		}
		bot.sectorID = msg.SectorID
	case proto.MT_PLAYER_CONTROL:
		var msg proto.PlayerControlMsg
		if err := proto.Decode(m.Type, m.Body, &msg); err != nil {
			return err
		}
		bot.ship = msg.EntityID
	case proto.MT_PONG:
		var msg proto.PingMsg
		if err := proto.Decode(m.Type, m.Body, &msg); err != nil {
			return err
		}
		if !bot.cfg.Quiet {
			gwlog.Debugf("%s: rtt %s", bot, time.Since(time.Unix(0, int64(msg.Nonce))))
		}
	case proto.MT_ERROR:
		var msg proto.ErrorMsg
		if err := proto.Decode(m.Type, m.Body, &msg); err != nil {
			return err
		}
		gwlog.Warnf("%s: server error %s: %s", bot, msg.Code, msg.Message)
	}
	return nil
}

func (bot *ClientBot) onSnapshot(msg *proto.WorldSnapshotMsg) {
	bot.Lock()
	defer bot.Unlock()
	bot.sectorID = msg.SectorID
	bot.entities = make(map[common.EntityID]proto.EntityState, len(msg.Entities))
	for _, es := range msg.Entities {
		bot.entities[es.ID] = es
	}
}

func (bot *ClientBot) onDeltas(msg *proto.EntityDeltasMsg) {
	bot.Lock()
	defer bot.Unlock()
	for _, es := range msg.Updated {
		bot.entities[es.ID] = es
	}
	for _, id := range msg.Removed {
		delete(bot.entities, id)
	}
}

// randomControl picks a command against a random entity other than the bot's own ship
func (bot *ClientBot) randomControl() *proto.ControlMsg {
	bot.Lock()
	var others []common.EntityID
	for id := range bot.entities {
		if id != bot.ship {
			others = append(others, id)
		}
	}
	bot.Unlock()

	point := common.Vector3{
		X: float64(bot.rng.Intn(20000) - 10000),
		Y: float64(bot.rng.Intn(2000) - 1000),
		Z: float64(bot.rng.Intn(20000) - 10000),
	}
	if len(others) == 0 {
		return &proto.ControlMsg{Command: proto.CMD_APPROACH, Position: point}
	}

	target := others[bot.rng.Intn(len(others))]
	switch bot.rng.Intn(6) {
	case 0:
		return &proto.ControlMsg{Command: proto.CMD_APPROACH, Position: point}
	case 1:
		return &proto.ControlMsg{Command: proto.CMD_APPROACH, Target: target}
	case 2:
		return &proto.ControlMsg{Command: proto.CMD_ORBIT, Target: target, Distance: float64(200 + bot.rng.Intn(800))}
	case 3:
		return &proto.ControlMsg{Command: proto.CMD_KEEP_DISTANCE, Target: target, Distance: float64(500 + bot.rng.Intn(1500))}
	case 4:
		return &proto.ControlMsg{Command: proto.CMD_WARP, Position: point}
	default:
		return &proto.ControlMsg{Command: proto.CMD_STOP}
	}
}
