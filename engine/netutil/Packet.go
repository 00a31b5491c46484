package netutil

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
)

const (
	_MIN_PAYLOAD_CAP = 128
	_CAP_GROW_SHIFT  = uint(2)
	_MAX_PAYLOAD_CAP = consts.MAX_MESSAGE_BODY_SIZE + ENVELOPE_HEADER_SIZE

	// ENVELOPE_HEADER_SIZE is the size of [8-byte msgtype][4-byte body length]
	ENVELOPE_HEADER_SIZE = 12
)

var (
	// NETWORK_ENDIAN is the byte order of every integer on the wire
	NETWORK_ENDIAN = binary.LittleEndian

	predefinePayloadCapacities []uint32

	packetBufferPools = map[uint32]*sync.Pool{}
	packetPool        = sync.Pool{
		New: func() interface{} {
			p := &Packet{}
			p.bytes = p.initialBytes[:0]
			return p
		},
	}
)

func init() {
	payloadCap := uint32(_MIN_PAYLOAD_CAP) << _CAP_GROW_SHIFT
	for payloadCap < _MAX_PAYLOAD_CAP {
		predefinePayloadCapacities = append(predefinePayloadCapacities, payloadCap)
		payloadCap <<= _CAP_GROW_SHIFT
	}
	predefinePayloadCapacities = append(predefinePayloadCapacities, _MAX_PAYLOAD_CAP)

	for _, payloadCap := range predefinePayloadCapacities {
		payloadCap := payloadCap
		packetBufferPools[payloadCap] = &sync.Pool{
			New: func() interface{} {
				return make([]byte, 0, payloadCap)
			},
		}
	}
}

func getPayloadCapOfPayloadLen(payloadLen uint32) uint32 {
	for _, payloadCap := range predefinePayloadCapacities {
		if payloadCap >= payloadLen {
			return payloadCap
		}
	}
	return _MAX_PAYLOAD_CAP
}

// Packet is a reference counted buffer holding outgoing envelopes
//
// A packet broadcast to many connections is shared: AddRefCount once per extra receiver, and each
// receiver calls Release after writing it.
type Packet struct {
	refcount     int64
	bytes        []byte
	initialBytes [_MIN_PAYLOAD_CAP]byte
}

// NewPacket allocates a new packet
func NewPacket() *Packet {
	pkt := packetPool.Get().(*Packet)
	pkt.refcount = 1
	if len(pkt.bytes) != 0 {
		gwlog.Panicf("NewPacket: payload should be empty, but is %d", len(pkt.bytes))
	}
	return pkt
}

// AssureCapacity grows the packet so that need more bytes fit
func (p *Packet) AssureCapacity(need uint32) {
	requireCap := uint32(len(p.bytes)) + need
	oldCap := p.PayloadCap()
	if requireCap <= oldCap { // most case
		return
	}

	resizeToCap := getPayloadCapOfPayloadLen(requireCap)
	if resizeToCap < requireCap {
		gwlog.Panicf("packet payload too large: %d", requireCap)
	}
	buffer := packetBufferPools[resizeToCap].Get().([]byte)
	buffer = append(buffer[:0], p.bytes...)
	oldBytes := p.bytes
	p.bytes = buffer

	if oldCap > _MIN_PAYLOAD_CAP {
		packetBufferPools[oldCap].Put(oldBytes[:0])
	}
}

// AddRefCount adds reference count of packet
func (p *Packet) AddRefCount(add int64) {
	atomic.AddInt64(&p.refcount, add)
}

// Payload returns the written bytes
func (p *Packet) Payload() []byte {
	return p.bytes
}

// GetPayloadLen returns the payload length
func (p *Packet) GetPayloadLen() uint32 {
	return uint32(len(p.bytes))
}

// PayloadCap returns the current payload capacity
func (p *Packet) PayloadCap() uint32 {
	return uint32(cap(p.bytes))
}

// ClearPayload clears packet payload
func (p *Packet) ClearPayload() {
	p.bytes = p.bytes[:0]
}

// Release releases the packet to packet pool
func (p *Packet) Release() {
	refcount := atomic.AddInt64(&p.refcount, -1)

	if refcount == 0 {
		payloadCap := p.PayloadCap()
		if payloadCap > _MIN_PAYLOAD_CAP {
			packetBufferPools[payloadCap].Put(p.bytes[:0])
		}
		p.bytes = p.initialBytes[:0]
		packetPool.Put(p)
	} else if refcount < 0 {
		gwlog.Panicf("releasing packet with refcount=%d", refcount)
	}
}

// AppendUint32 appends one uint32 to the end of payload
func (p *Packet) AppendUint32(v uint32) {
	p.AssureCapacity(4)
	p.bytes = NETWORK_ENDIAN.AppendUint32(p.bytes, v)
}

// AppendUint64 appends one uint64 to the end of payload
func (p *Packet) AppendUint64(v uint64) {
	p.AssureCapacity(8)
	p.bytes = NETWORK_ENDIAN.AppendUint64(p.bytes, v)
}

// AppendBytes appends slice of bytes to the end of payload
func (p *Packet) AppendBytes(v []byte) {
	p.AssureCapacity(uint32(len(v)))
	p.bytes = append(p.bytes, v...)
}

// AppendVarBytes appends [4-byte length][v] to the end of payload
func (p *Packet) AppendVarBytes(v []byte) {
	p.AppendUint32(uint32(len(v)))
	p.AppendBytes(v)
}

// AppendData appends [4-byte length][packed msg] to the end of payload
func (p *Packet) AppendData(msg interface{}) error {
	dataBytes, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		return errors.Wrapf(err, "pack %T", msg)
	}
	if len(dataBytes) > consts.MAX_MESSAGE_BODY_SIZE {
		return errors.Errorf("message %T too large: %d", msg, len(dataBytes))
	}
	p.AppendVarBytes(dataBytes)
	return nil
}

// AppendEnvelope appends one [8-byte msgtype][4-byte body length][packed msg] envelope
func (p *Packet) AppendEnvelope(msgtype uint64, msg interface{}) error {
	n := len(p.bytes)
	p.AppendUint64(msgtype)
	if err := p.AppendData(msg); err != nil {
		p.bytes = p.bytes[:n]
		return err
	}
	return nil
}

// ParseEnvelopeHeader reads the msgtype and body length from the head of b
func ParseEnvelopeHeader(b []byte) (msgtype uint64, bodyLen uint32) {
	msgtype = NETWORK_ENDIAN.Uint64(b[:8])
	bodyLen = NETWORK_ENDIAN.Uint32(b[8:ENVELOPE_HEADER_SIZE])
	return
}
