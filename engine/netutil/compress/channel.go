package compress

import (
	"bytes"
	"compress/flate"
	"io"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
)

// Writer is the sending half of a compression channel.
//
// Writer is not safe for concurrent use; it belongs to the connection's send goroutine.
type Writer struct {
	sink   BlockSink
	halves [2][]byte
	active int
	n      int

	out bytes.Buffer
	fw  *flate.Writer

	rawBytes        uint64
	compressedBytes uint64
}

// NewWriter creates a Writer that emits compressed blocks to sink
func NewWriter(sink BlockSink) *Writer {
	w := &Writer{sink: sink}
	for i := range w.halves {
		w.halves[i] = make([]byte, consts.COMPRESS_BLOCK_SIZE)
	}
	// BestSpeed resets its history on small flushes, so it cannot carry the dictionary
	fw, err := flate.NewWriter(&w.out, flate.DefaultCompression)
	if err != nil {
		// only fails on invalid level
		panic(err)
	}
	w.fw = fw
	return w
}

// Write appends p to the raw block, emitting full blocks as they fill up
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		c := copy(w.halves[w.active][w.n:], p)
		w.n += c
		p = p[c:]
		written += c
		if w.n == consts.COMPRESS_BLOCK_SIZE {
			if err := w.emit(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Buffered returns the number of raw bytes waiting for the next block
func (w *Writer) Buffered() int {
	return w.n
}

// Flush compresses the pending raw bytes into one block, if there are any
func (w *Writer) Flush() error {
	if w.n == 0 {
		return nil
	}
	return w.emit()
}

// Stats returns the total raw and compressed bytes emitted
func (w *Writer) Stats() (raw uint64, compressed uint64) {
	return w.rawBytes, w.compressedBytes
}

func (w *Writer) emit() error {
	raw := w.halves[w.active][:w.n]

	w.out.Reset()
	var hdr [blockHeaderSize]byte
	blockEndian.PutUint32(hdr[:], uint32(len(raw)))
	w.out.Write(hdr[:])
	if _, err := w.fw.Write(raw); err != nil {
		return errors.Wrap(err, "compress")
	}
	// sync flush keeps the dictionary and ends the block on a byte boundary
	if err := w.fw.Flush(); err != nil {
		return errors.Wrap(err, "compress flush")
	}

	w.rawBytes += uint64(len(raw))
	w.compressedBytes += uint64(w.out.Len())

	w.active = 1 - w.active
	w.n = 0
	return w.sink.WriteBlock(w.out.Bytes())
}

// Reader is the receiving half of a compression channel.
//
// Reader is not safe for concurrent use; it belongs to the connection's read goroutine.
// Once a block fails to decompress, every later call fails with the same error.
type Reader struct {
	in  bytes.Buffer
	fr  io.ReadCloser
	err error
}

// NewReader creates a Reader
func NewReader() *Reader {
	r := &Reader{}
	// bytes.Buffer is an io.ByteReader, so flate never reads past what was fed
	r.fr = flate.NewReader(&r.in)
	return r
}

// Decompress decodes the next block and returns its raw bytes
func (r *Reader) Decompress(block []byte) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(block) <= blockHeaderSize {
		return nil, r.fail(errors.Errorf("block too short: %d", len(block)))
	}
	rawLen := blockEndian.Uint32(block[:blockHeaderSize])
	if rawLen == 0 || rawLen > consts.COMPRESS_BLOCK_SIZE {
		return nil, r.fail(errors.Errorf("bad raw block length %d", rawLen))
	}

	r.in.Write(block[blockHeaderSize:])
	raw := make([]byte, rawLen)
	if _, err := io.ReadFull(r.fr, raw); err != nil {
		return nil, r.fail(errors.Wrap(err, "inflate"))
	}
	return raw, nil
}

// Err returns the error that broke the stream, if any
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail(err error) error {
	r.err = decompressionError(err)
	r.in.Reset()
	return r.err
}
