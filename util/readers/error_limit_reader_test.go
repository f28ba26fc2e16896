package readers

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/patient-media-repo/common"
)

func TestLimitReaderExactlyAtLimit(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 1024)
	b, err := io.ReadAll(LimitReaderWithOverrunError(bytes.NewReader(data), 1024))
	require.NoError(t, err)
	assert.Equal(t, data, b)
}

func TestLimitReaderOneOver(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 1025)
	_, err := io.ReadAll(LimitReaderWithOverrunError(bytes.NewReader(data), 1024))
	require.Error(t, err)
	assert.True(t, common.IsRejection(err, common.RejectTooLarge))
}

func TestLimitReaderOneByteReads(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 10)
	_, err := io.ReadAll(LimitReaderWithOverrunError(iotest.OneByteReader(bytes.NewReader(data)), 9))
	assert.True(t, common.IsRejection(err, common.RejectTooLarge))

	b, err := io.ReadAll(LimitReaderWithOverrunError(iotest.OneByteReader(bytes.NewReader(data)), 10))
	require.NoError(t, err)
	assert.Len(t, b, 10)
}

func TestLimitReaderPassesErrors(t *testing.T) {
	_, err := io.ReadAll(LimitReaderWithOverrunError(iotest.ErrReader(io.ErrUnexpectedEOF), 10))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type emptyReader struct {
	calls int
}

func (r *emptyReader) Read(p []byte) (int, error) {
	r.calls++
	return 0, nil
}

func TestLimitReaderEmptyReadsAtLimit(t *testing.T) {
	src := &emptyReader{}
	lr := LimitReaderWithOverrunError(src, 0)
	n, err := lr.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.ErrNoProgress)
	assert.Equal(t, maxConsecutiveEmptyReads, src.calls)
}
