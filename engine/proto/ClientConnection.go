package proto

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/sectorworld/engine/common"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwcrypto"
	"github.com/xiaonanln/sectorworld/engine/gwioutil"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/netutil"
	"github.com/xiaonanln/sectorworld/engine/netutil/compress"
	"github.com/xiaonanln/sectorworld/engine/opmon"
)

// ErrConnectionClosed is returned when sending on a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// max size of one encrypted frame: compressed block, CBC padding and MAC
const maxCipherFrameSize = consts.MAX_FRAME_SIZE + 16 + gwcrypto.MAC_SIZE

// closeAfterFlush is queued behind the last message of a connection being closed gracefully
type closeAfterFlush struct {
	reason error
}

// ClientConnection is one authenticated peer
//
// After the handshake, outgoing envelopes go through the send queue to one send goroutine that
// owns the compressor and the send cipher. Incoming frames are read, verified and decompressed
// on the goroutine running Serve. Neither side shares its state.
type ClientConnection struct {
	ConnID   common.ConnID
	isServer bool

	conn  netutil.Connection
	state xnsyncutil.AtomicInt

	keys         *gwcrypto.KeyMaterial
	sendCipher   *gwcrypto.Cipher
	recvCipher   *gwcrypto.Cipher
	compressor   *compress.Writer
	decompressor *compress.Reader
	frames       FrameReader

	sendQueue *xnsyncutil.SyncQueue
	sendDone  chan struct{}
	closing   xnsyncutil.AtomicBool
	closeOnce sync.Once
	errLock   sync.Mutex
	closeErr  error

	lastRecvTime int64
	remoteAddr   net.Addr
}

// NewClientConnection wraps a transport connection; call Handshake before anything else
func NewClientConnection(conn net.Conn, isServer bool) *ClientConnection {
	cc := &ClientConnection{
		ConnID:       common.GenConnID(),
		isServer:     isServer,
		conn:         netutil.NewBufferedConnection(conn),
		sendQueue:    xnsyncutil.NewSyncQueue(),
		sendDone:     make(chan struct{}),
		lastRecvTime: time.Now().UnixNano(),
		remoteAddr:   conn.RemoteAddr(),
	}
	cc.state.Store(int(Handshaking))
	return cc
}

func (cc *ClientConnection) String() string {
	return fmt.Sprintf("ClientConnection<%s@%s>", cc.ConnID, cc.remoteAddr)
}

// State returns the lifecycle state
func (cc *ClientConnection) State() ConnState {
	return ConnState(cc.state.Load())
}

// SetState moves the connection to another state; Closed is final
func (cc *ClientConnection) SetState(s ConnState) {
	if cc.State() == Closed {
		return
	}
	cc.state.Store(int(s))
}

// RemoteAddr returns the remote address
func (cc *ClientConnection) RemoteAddr() net.Addr {
	return cc.remoteAddr
}

// LastRecvTime returns when the last frame arrived
func (cc *ClientConnection) LastRecvTime() time.Time {
	return time.Unix(0, atomic.LoadInt64(&cc.lastRecvTime))
}

// Handshake exchanges public keys, derives the session keys and starts the send goroutine
//
// On success the connection is in Lobby. On failure it is closed and no frame is trusted.
func (cc *ClientConnection) Handshake(timeout time.Duration) error {
	if cc.State() != Handshaking {
		return errors.Errorf("%s: handshake in state %s", cc, cc.State())
	}

	op := opmon.StartOperation("Handshake")
	km, err := exchangeKeys(cc.conn, cc.isServer, timeout)
	op.Finish(time.Second)
	if err != nil {
		cc.closeWith(err)
		close(cc.sendDone)
		return err
	}

	send, recv, err := gwcrypto.NewCipherPair(km)
	if err != nil {
		km.Destroy()
		cc.closeWith(err)
		close(cc.sendDone)
		return err
	}
	cc.keys = km
	cc.sendCipher, cc.recvCipher = send, recv
	cc.compressor = compress.NewWriter(compress.BlockSinkFunc(cc.writeBlock))
	cc.decompressor = compress.NewReader()

	cc.SetState(Lobby)
	go cc.sendRoutine()
	return nil
}

func (cc *ClientConnection) writeBlock(block []byte) error {
	frame := cc.sendCipher.Seal(block)
	if err := compress.WriteLengthPrefixed(cc.conn, frame); err != nil {
		return err
	}
	opmon.AddBytesSent(len(frame) + 4)
	return nil
}

// Send packs msg into an envelope and queues it
func (cc *ClientConnection) Send(msgtype MsgType, msg interface{}) error {
	packet := netutil.NewPacket()
	if err := packet.AppendEnvelope(uint64(msgtype), msg); err != nil {
		packet.Release()
		return err
	}
	return cc.SendPacket(packet)
}

// SendPacket queues a packet of envelopes; the connection releases it once written
func (cc *ClientConnection) SendPacket(packet *netutil.Packet) error {
	if cc.IsClosed() || cc.State() == Handshaking {
		packet.Release()
		return ErrConnectionClosed
	}

	if qlen := cc.sendQueue.Len(); qlen >= consts.CLIENT_SEND_QUEUE_MAX_LEN {
		packet.Release()
		err := errors.Errorf("%s: send queue overflow (%d)", cc, qlen)
		cc.closeWith(err)
		return err
	} else if qlen == consts.CLIENT_SEND_QUEUE_WARN_LEN {
		gwlog.Warnf("%s: send queue length is %d", cc, qlen)
	}

	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send %d bytes", cc, packet.GetPayloadLen())
	}
	cc.sendQueue.Push(packet)
	return nil
}

func (cc *ClientConnection) sendRoutine() {
	defer close(cc.sendDone)

	for {
		item := cc.sendQueue.Pop()
		if item == nil { // queue is closed
			return
		}

		switch v := item.(type) {
		case *netutil.Packet:
			_, err := cc.compressor.Write(v.Payload())
			v.Release()
			if err != nil {
				cc.closeWith(errors.Wrap(err, "send"))
				return
			}
		case closeAfterFlush:
			cc.flush()
			cc.closeWith(v.reason)
			return
		}

		if cc.sendQueue.Len() == 0 {
			if err := cc.flush(); err != nil {
				cc.closeWith(errors.Wrap(err, "flush"))
				return
			}
		}
	}
}

func (cc *ClientConnection) flush() error {
	if err := cc.compressor.Flush(); err != nil {
		return err
	}
	return cc.conn.Flush()
}

// Serve reads frames and dispatches envelopes to codec until the connection fails or is closed
//
// The returned error is the reason the connection ended; nil means it was closed locally.
func (cc *ClientConnection) Serve(codec *Codec) error {
	defer func() {
		if !cc.closing.Load() {
			cc.Close()
		}
	}()
	if cc.recvCipher == nil {
		return errors.Errorf("%s: serve before handshake", cc)
	}

	for {
		frame, err := compress.ReadBlock(cc.conn, maxCipherFrameSize)
		if err != nil {
			return cc.endReason(err)
		}
		atomic.StoreInt64(&cc.lastRecvTime, time.Now().UnixNano())
		opmon.AddBytesReceived(len(frame) + 4)

		block, err := cc.recvCipher.Open(frame)
		if err != nil {
			return cc.endReason(err)
		}
		raw, err := cc.decompressor.Decompress(block)
		if err != nil {
			return cc.endReason(err)
		}

		cc.frames.Feed(raw)
		for {
			msgtype, body, ok, err := cc.frames.Next()
			if err != nil {
				return cc.endReason(err)
			}
			if !ok {
				break
			}
			if consts.DEBUG_PACKETS {
				gwlog.Debugf("%s: recv %s (%d bytes)", cc, msgtype, len(body))
			}
			if err := codec.Dispatch(cc, msgtype, body); err != nil {
				if IsProtocolViolation(err) {
					opmon.ProtocolViolations.Inc()
					cc.Send(MT_ERROR, &ErrorMsg{Code: ERR_PROTOCOL, Message: errors.Cause(err).Error()})
					cc.CloseAfterFlush(err)
					return err
				}
				return cc.endReason(err)
			}
			if cc.IsClosed() || cc.closing.Load() {
				return cc.endReason(nil)
			}
		}
	}
}

func (cc *ClientConnection) endReason(err error) error {
	if cc.IsClosed() || cc.closing.Load() {
		return cc.CloseReason()
	}
	if err != nil && gwioutil.IsConnectionError(err) {
		return nil
	}
	return err
}

// CloseAfterFlush closes the connection once every queued message is written
func (cc *ClientConnection) CloseAfterFlush(reason error) {
	if cc.IsClosed() || cc.closing.Load() {
		return
	}
	if cc.State() == Handshaking {
		cc.closeWith(reason)
		return
	}
	cc.setCloseReason(reason)
	cc.closing.Store(true)
	cc.sendQueue.Push(closeAfterFlush{reason: reason})
	// a peer that stops reading must not hold the connection open
	time.AfterFunc(consts.HANDSHAKE_TIMEOUT, func() {
		cc.closeWith(reason)
	})
}

// Close closes the connection immediately; queued messages are dropped
func (cc *ClientConnection) Close() error {
	cc.closeWith(nil)
	return nil
}

func (cc *ClientConnection) closeWith(reason error) {
	cc.closeOnce.Do(func() {
		cc.setCloseReason(reason)
		cc.state.Store(int(Closed))
		cc.sendQueue.Close()
		cc.conn.Close()
		if cc.keys != nil {
			cc.keys.Destroy()
		}
	})
}

func (cc *ClientConnection) setCloseReason(reason error) {
	cc.errLock.Lock()
	if cc.closeErr == nil {
		cc.closeErr = reason
	}
	cc.errLock.Unlock()
}

// CloseReason returns the first error that closed the connection, if any
func (cc *ClientConnection) CloseReason() error {
	cc.errLock.Lock()
	defer cc.errLock.Unlock()
	return cc.closeErr
}

// IsClosed returns if the connection is closed
func (cc *ClientConnection) IsClosed() bool {
	return cc.State() == Closed
}

// WaitSendDone blocks until the send goroutine has exited
func (cc *ClientConnection) WaitSendDone(timeout time.Duration) bool {
	select {
	case <-cc.sendDone:
		return true
	case <-time.After(timeout):
		return false
	}
}
