package gwioutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestReadWriteAll(t *testing.T) {
	var buf bytes.Buffer
	data := bytes.Repeat([]byte("sector"), 1000)
	assert.Equal(t, nil, WriteAll(&buf, data))

	out := make([]byte, len(data))
	assert.Equal(t, nil, ReadAll(&buf, out))
	assert.Equal(t, data, out)

	err := ReadAll(bytes.NewReader([]byte{1, 2}), make([]byte, 4))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestIsConnectionError(t *testing.T) {
	assert.T(t, IsConnectionError(io.EOF))
	assert.T(t, IsConnectionError(errors.Wrap(io.EOF, "read")))
	assert.T(t, !IsConnectionError(errors.New("other")))
	assert.T(t, !IsConnectionError(nil))
}
