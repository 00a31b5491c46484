package proto

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/netutil"
)

// Handler handles one message body received on cc
type Handler func(cc *ClientConnection, body []byte) error

type handlerEntry struct {
	states  StateMask
	handler Handler
}

// Codec maps message types to handlers and the connection states they are allowed in
//
// Register every handler before serving connections; Dispatch does not lock.
type Codec struct {
	handlers map[MsgType]handlerEntry
}

// NewCodec creates an empty Codec
func NewCodec() *Codec {
	return &Codec{handlers: map[MsgType]handlerEntry{}}
}

// Register sets the handler of msgtype, accepted only while the connection is in one of states
func (c *Codec) Register(msgtype MsgType, states StateMask, handler Handler) {
	if _, ok := c.handlers[msgtype]; ok {
		panic(errors.Errorf("handler of %s registered twice", msgtype))
	}
	c.handlers[msgtype] = handlerEntry{states: states, handler: handler}
}

// Dispatch runs the handler of msgtype
func (c *Codec) Dispatch(cc *ClientConnection, msgtype MsgType, body []byte) error {
	entry, ok := c.handlers[msgtype]
	if !ok {
		return protocolViolation(msgtype, "unknown message type")
	}
	state := cc.State()
	if !entry.states.Has(state) {
		return protocolViolation(msgtype, "not allowed in state %s", state)
	}
	return entry.handler(cc, body)
}

// Decode unpacks a message body, reporting malformed bodies as protocol violations
func Decode(msgtype MsgType, body []byte, msg interface{}) error {
	if err := netutil.MSG_PACKER.UnpackMsg(body, msg); err != nil {
		return errors.Wrap(protocolViolation(msgtype, "malformed body: %v", err), "decode")
	}
	return nil
}

// FrameReader reassembles envelopes from the decompressed stream
//
// Envelopes may share a compressed block or span several of them.
type FrameReader struct {
	buf []byte
	off int
}

// Feed appends decompressed bytes
func (fr *FrameReader) Feed(b []byte) {
	if fr.off > 0 && fr.off == len(fr.buf) {
		fr.buf = fr.buf[:0]
		fr.off = 0
	} else if fr.off > len(fr.buf)/2 {
		n := copy(fr.buf, fr.buf[fr.off:])
		fr.buf = fr.buf[:n]
		fr.off = 0
	}
	fr.buf = append(fr.buf, b...)
}

// Next returns the next complete envelope, or ok=false if more bytes are needed
//
// body is only valid until the next call to Feed.
func (fr *FrameReader) Next() (msgtype MsgType, body []byte, ok bool, err error) {
	pending := fr.buf[fr.off:]
	if len(pending) < netutil.ENVELOPE_HEADER_SIZE {
		return
	}
	mt, bodyLen := netutil.ParseEnvelopeHeader(pending)
	msgtype = MsgType(mt)
	if bodyLen > consts.MAX_MESSAGE_BODY_SIZE {
		err = protocolViolation(msgtype, "body too large: %d", bodyLen)
		return
	}
	end := netutil.ENVELOPE_HEADER_SIZE + int(bodyLen)
	if len(pending) < end {
		return
	}
	body = pending[netutil.ENVELOPE_HEADER_SIZE:end]
	fr.off += end
	ok = true
	return
}

// Buffered returns the number of bytes of incomplete envelopes
func (fr *FrameReader) Buffered() int {
	return len(fr.buf) - fr.off
}
