package netutil

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/google/uuid"
)

type testMsg struct {
	ID        string
	F1        float64
	F2        int
	ListField []int
	MapField  map[string]string
}

func BenchmarkMessagePackMsgPacker(b *testing.B) {
	benchmarkMsgPacker(b, &MessagePackMsgPacker{})
}

func benchmarkMsgPacker(b *testing.B, packer MsgPacker) {
	msg := testMsg{
		ID:        "abc",
		F1:        0.123124234,
		ListField: []int{1, 2, 3},
		MapField:  map[string]string{},
	}
	for i := 0; i < 100; i++ {
		msg.MapField[uuid.NewString()] = uuid.NewString()
	}

	var totalSize int64
	for i := 0; i < b.N; i++ {
		buf := make([]byte, 0, 100)
		buf, _ = packer.PackMsg(msg, buf)
		totalSize += int64(len(buf))

		var restoreMsg testMsg
		_ = packer.UnpackMsg(buf, &restoreMsg)
	}
	b.Logf("average size: %d", totalSize/int64(b.N))
}

func TestMessagePackMsgPacker(t *testing.T) {
	packer := MessagePackMsgPacker{}
	msg := testMsg{ID: "ship-1", F1: 1.5, F2: -3, ListField: []int{7, 8}, MapField: map[string]string{"a": "b"}}
	prefix := []byte{0xAA}
	buf, err := packer.PackMsg(msg, prefix)
	assert.Equal(t, nil, err)
	assert.Equal(t, byte(0xAA), buf[0])

	var restored testMsg
	assert.Equal(t, nil, packer.UnpackMsg(buf[1:], &restored))
	assert.Equal(t, msg, restored)

	assert.NotEqual(t, nil, packer.UnpackMsg([]byte{0xc1}, &restored))
}
