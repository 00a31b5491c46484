// Package bot is a scripted client of the sector world server, used for load tests and by the
// server tests.
package bot

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/netutil"
	"github.com/xiaonanln/sectorworld/engine/proto"
	"golang.org/x/net/websocket"
)

const messageQueueLen = 1024

// ErrTimeout is returned when an expected message does not arrive in time
var ErrTimeout = errors.New("timeout waiting for message")

// Message is one envelope received from the server
type Message struct {
	Type proto.MsgType
	Body []byte
}

// ServerError is an Error message received while waiting for something else
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Client is an encrypted connection to the server
type Client struct {
	cc       *proto.ClientConnection
	messages chan Message
	serveErr error
}

// Dial connects and handshakes over network, which is one of tcp, kcp or ws
func Dial(network string, addr string) (*Client, error) {
	var conn net.Conn
	var err error
	switch network {
	case "tcp":
		conn, err = netutil.ConnectTCP(addr)
	case "kcp":
		conn, err = netutil.ConnectKCP(addr)
	case "ws":
		var ws *websocket.Conn
		ws, err = websocket.Dial("ws://"+addr+"/ws", "", "http://"+addr+"/")
		if err == nil {
			ws.PayloadType = websocket.BinaryFrame
			conn = ws
		}
	default:
		err = errors.Errorf("unknown network %q", network)
	}
	if err != nil {
		return nil, err
	}

	cc := proto.NewClientConnection(conn, false)
	if err := cc.Handshake(consts.HANDSHAKE_TIMEOUT); err != nil {
		return nil, err
	}

	c := &Client{
		cc:       cc,
		messages: make(chan Message, messageQueueLen),
	}
	go c.serve()
	return c, nil
}

func (c *Client) serve() {
	codec := proto.NewCodec()
	states := proto.States(proto.Lobby, proto.Authenticated)
	for _, mt := range []proto.MsgType{
		proto.MT_LOGIN_RESULT, proto.MT_ERROR, proto.MT_LOCATION_CHANGED, proto.MT_WORLD_SNAPSHOT,
		proto.MT_PLAYER_CONTROL, proto.MT_ENTITY_DELTAS, proto.MT_PONG,
	} {
		codec.Register(mt, states, c.forwarder(mt))
	}
	c.serveErr = c.cc.Serve(codec)
	close(c.messages)
}

func (c *Client) forwarder(msgtype proto.MsgType) proto.Handler {
	return func(cc *proto.ClientConnection, body []byte) error {
		// body is only valid until the next frame is read
		b := make([]byte, len(body))
		copy(b, body)
		if msgtype == proto.MT_LOGIN_RESULT {
			cc.SetState(proto.Authenticated)
		}
		c.messages <- Message{Type: msgtype, Body: b}
		return nil
	}
}

// Messages returns the channel of received messages; it is closed when the connection ends
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Err returns why the connection ended, once Messages is closed
func (c *Client) Err() error {
	return c.serveErr
}

// Send sends one message
func (c *Client) Send(msgtype proto.MsgType, msg interface{}) error {
	return c.cc.Send(msgtype, msg)
}

// Close closes the connection
func (c *Client) Close() error {
	return c.cc.Close()
}

// Next returns the next message of any type
func (c *Client) Next(timeout time.Duration) (Message, error) {
	select {
	case m, ok := <-c.messages:
		if !ok {
			if c.serveErr != nil {
				return Message{}, c.serveErr
			}
			return Message{}, proto.ErrConnectionClosed
		}
		return m, nil
	case <-time.After(timeout):
		return Message{}, ErrTimeout
	}
}

// Expect skips messages until one of msgtype arrives and decodes it into msg
//
// An Error message is returned as a *ServerError unless msgtype is MT_ERROR.
func (c *Client) Expect(msgtype proto.MsgType, msg interface{}, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		m, err := c.Next(time.Until(deadline))
		if err != nil {
			return errors.Wrapf(err, "expect %s", msgtype)
		}
		if m.Type == msgtype {
			return proto.Decode(m.Type, m.Body, msg)
		}
		if m.Type == proto.MT_ERROR {
			var em proto.ErrorMsg
			if err := proto.Decode(m.Type, m.Body, &em); err != nil {
				return err
			}
			return &ServerError{Code: em.Code, Message: em.Message}
		}
	}
}

// Login logs in and waits for the result
func (c *Client) Login(name string, secret string, password string, timeout time.Duration) (*proto.LoginResultMsg, error) {
	if err := c.Send(proto.MT_LOGIN, &proto.LoginMsg{Name: name, Secret: secret, Password: password}); err != nil {
		return nil, err
	}
	res := &proto.LoginResultMsg{}
	if err := c.Expect(proto.MT_LOGIN_RESULT, res, timeout); err != nil {
		return nil, err
	}
	return res, nil
}

// Spawn is what the server sends when a player enters a sector
type Spawn struct {
	Location proto.LocationChangedMsg
	Snapshot proto.WorldSnapshotMsg
	Ship     proto.PlayerControlMsg
}

// Spawn requests a spawn and waits for the location, the snapshot and the controlled ship
func (c *Client) Spawn(timeout time.Duration) (*Spawn, error) {
	if err := c.Send(proto.MT_REQUEST_SPAWN, &proto.EmptyMsg{}); err != nil {
		return nil, err
	}
	sp := &Spawn{}
	if err := c.Expect(proto.MT_LOCATION_CHANGED, &sp.Location, timeout); err != nil {
		return nil, err
	}
	if err := c.Expect(proto.MT_WORLD_SNAPSHOT, &sp.Snapshot, timeout); err != nil {
		return nil, err
	}
	if err := c.Expect(proto.MT_PLAYER_CONTROL, &sp.Ship, timeout); err != nil {
		return nil, err
	}
	return sp, nil
}
