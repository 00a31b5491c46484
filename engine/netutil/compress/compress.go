// Package compress implements the stateful block compression channel.
//
// A Writer accumulates bytes in a double buffered raw block and emits one compressed block per
// flush. Every block continues the dictionary of the blocks before it, so a Reader must be fed
// blocks in exactly the order the Writer produced them.
package compress

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwioutil"
)

var blockEndian = binary.LittleEndian

const (
	blockHeaderSize = 4
)

// BlockSink receives compressed blocks in production order
//
// The block slice is only valid during the call.
type BlockSink interface {
	WriteBlock(block []byte) error
}

// BlockSinkFunc adapts a function to BlockSink
type BlockSinkFunc func(block []byte) error

// WriteBlock calls f(block)
func (f BlockSinkFunc) WriteBlock(block []byte) error {
	return f(block)
}

// DecompressionError means a block was corrupt, truncated or out of order.
//
// The stream cannot resynchronize after it.
type DecompressionError struct {
	err error
}

func decompressionError(err error) error {
	return &DecompressionError{err: err}
}

func (e *DecompressionError) Error() string {
	return "decompression failed: " + e.err.Error()
}

// Cause returns the underlying error
func (e *DecompressionError) Cause() error {
	return e.err
}

// Unwrap returns the underlying error
func (e *DecompressionError) Unwrap() error {
	return e.err
}

// Format prints the causal chain with %+v
func (e *DecompressionError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "decompression failed: %+v", e.err)
		return
	}
	io.WriteString(s, e.Error())
}

// IsDecompressionError checks if err is or wraps a DecompressionError
func IsDecompressionError(err error) bool {
	var de *DecompressionError
	return errors.As(err, &de)
}

// LengthPrefixedSink writes each block as [4-byte length][block]
type LengthPrefixedSink struct {
	w io.Writer
}

// NewLengthPrefixedSink creates a LengthPrefixedSink writing to w
func NewLengthPrefixedSink(w io.Writer) *LengthPrefixedSink {
	return &LengthPrefixedSink{w: w}
}

// WriteBlock writes one length prefixed block
func (s *LengthPrefixedSink) WriteBlock(block []byte) error {
	return WriteLengthPrefixed(s.w, block)
}

// WriteLengthPrefixed writes [4-byte length][b] to w
func WriteLengthPrefixed(w io.Writer, b []byte) error {
	var hdr [blockHeaderSize]byte
	blockEndian.PutUint32(hdr[:], uint32(len(b)))
	if err := gwioutil.WriteAll(w, hdr[:]); err != nil {
		return err
	}
	return gwioutil.WriteAll(w, b)
}

// ReadBlock reads one [4-byte length][bytes] unit from r
//
// A length of zero or above maxSize is reported as a DecompressionError; transport errors are
// returned as they are.
func ReadBlock(r io.Reader, maxSize int) ([]byte, error) {
	var hdr [blockHeaderSize]byte
	if err := gwioutil.ReadAll(r, hdr[:]); err != nil {
		return nil, err
	}
	size := blockEndian.Uint32(hdr[:])
	if size == 0 || int64(size) > int64(maxSize) {
		return nil, decompressionError(errors.Errorf("bad block length %d", size))
	}
	block := make([]byte, size)
	if err := gwioutil.ReadAll(r, block); err != nil {
		return nil, err
	}
	return block, nil
}

// MaxCompressedBlockSize is an upper bound of one compressed block
func MaxCompressedBlockSize() int {
	return consts.MAX_FRAME_SIZE
}
