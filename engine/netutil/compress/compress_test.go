package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/sectorworld/engine/consts"
)

type blockCollector struct {
	blocks [][]byte
}

func (c *blockCollector) WriteBlock(block []byte) error {
	b := make([]byte, len(block))
	copy(b, block)
	c.blocks = append(c.blocks, b)
	return nil
}

func randomChunk(size int) []byte {
	b := make([]byte, size)
	for j := range b {
		b[j] = byte(97 + rand.Intn(10))
	}
	return b
}

func TestChannelRoundTrip(t *testing.T) {
	sink := &blockCollector{}
	w := NewWriter(sink)

	var expected bytes.Buffer
	for i := 0; i < 200; i++ {
		chunk := randomChunk(rand.Intn(3 * consts.COMPRESS_BLOCK_SIZE))
		expected.Write(chunk)
		n, err := w.Write(chunk)
		assert.Equal(t, nil, err)
		assert.Equal(t, len(chunk), n)
		if rand.Intn(3) == 0 {
			assert.Equal(t, nil, w.Flush())
			assert.Equal(t, 0, w.Buffered())
		}
	}
	assert.Equal(t, nil, w.Flush())

	r := NewReader()
	var restored bytes.Buffer
	for _, block := range sink.blocks {
		raw, err := r.Decompress(block)
		if err != nil {
			t.Fatalf("decompress: %+v", err)
		}
		assert.T(t, len(raw) <= consts.COMPRESS_BLOCK_SIZE)
		restored.Write(raw)
	}
	assert.T(t, bytes.Equal(expected.Bytes(), restored.Bytes()), "restored stream mismatch")

	raw, compressed := w.Stats()
	assert.Equal(t, uint64(expected.Len()), raw)
	t.Logf("raw %d compressed %d (%d%%)", raw, compressed, compressed*100/raw)
}

func TestDictionaryContinues(t *testing.T) {
	sink := &blockCollector{}
	w := NewWriter(sink)
	msg := []byte(`{"sector":"alpha-centauri","entity":1234,"position":[1.5,2.5,3.5]}`)
	for i := 0; i < 20; i++ {
		w.Write(msg)
		w.Flush()
	}
	// later blocks reference earlier ones and shrink
	assert.T(t, len(sink.blocks[19]) < len(sink.blocks[0])/2, len(sink.blocks[0]), len(sink.blocks[19]))

	r := NewReader()
	for _, block := range sink.blocks {
		raw, err := r.Decompress(block)
		assert.Equal(t, nil, err)
		assert.Equal(t, string(msg), string(raw))
	}
}

func TestEmptyFlushEmitsNothing(t *testing.T) {
	sink := &blockCollector{}
	w := NewWriter(sink)
	assert.Equal(t, nil, w.Flush())
	assert.Equal(t, 0, len(sink.blocks))
}

func TestCorruptBlock(t *testing.T) {
	sink := &blockCollector{}
	w := NewWriter(sink)
	w.Write(randomChunk(1000))
	w.Flush()
	w.Write(randomChunk(1000))
	w.Flush()

	r := NewReader()
	truncated := sink.blocks[0][:blockHeaderSize+2]
	_, err := r.Decompress(truncated)
	assert.T(t, IsDecompressionError(err), err)

	// the stream stays broken
	_, err = r.Decompress(sink.blocks[1])
	assert.T(t, IsDecompressionError(err), err)
	assert.Equal(t, err, r.Err())

	r = NewReader()
	bad := append([]byte{}, sink.blocks[0]...)
	blockEndian.PutUint32(bad, consts.COMPRESS_BLOCK_SIZE+1)
	_, err = r.Decompress(bad)
	assert.T(t, IsDecompressionError(err), err)

	_, err = NewReader().Decompress([]byte{1, 0})
	assert.T(t, IsDecompressionError(err), err)
}

func TestOutOfOrderBlocksRejected(t *testing.T) {
	sink := &blockCollector{}
	w := NewWriter(sink)
	msg := []byte(`{"sector":"alpha-centauri","entity":1234,"position":[1.5,2.5,3.5]}`)
	for i := 0; i < 2; i++ {
		w.Write(msg)
		w.Flush()
	}
	assert.Equal(t, 2, len(sink.blocks))

	r := NewReader()
	// blocks[1] references the dictionary built by blocks[0]
	_, err := r.Decompress(sink.blocks[1])
	assert.T(t, IsDecompressionError(err), err)

	// the stream stays broken even when the right block shows up
	_, err = r.Decompress(sink.blocks[0])
	assert.T(t, IsDecompressionError(err), err)
	assert.Equal(t, err, r.Err())
}

func TestLengthPrefixedBlocks(t *testing.T) {
	var wire bytes.Buffer
	w := NewWriter(NewLengthPrefixedSink(&wire))
	payload := randomChunk(3*consts.COMPRESS_BLOCK_SIZE + 17)
	w.Write(payload)
	w.Flush()

	r := NewReader()
	var restored []byte
	for wire.Len() > 0 {
		block, err := ReadBlock(&wire, MaxCompressedBlockSize())
		assert.Equal(t, nil, err)
		raw, err := r.Decompress(block)
		assert.Equal(t, nil, err)
		restored = append(restored, raw...)
	}
	assert.T(t, bytes.Equal(payload, restored))

	_, err := ReadBlock(bytes.NewReader([]byte{0, 0, 0, 0}), 100)
	assert.T(t, IsDecompressionError(err), err)
	_, err = ReadBlock(bytes.NewReader([]byte{200, 0, 0, 0}), 100)
	assert.T(t, IsDecompressionError(err), err)
}
