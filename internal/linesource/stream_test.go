package linesource

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader hands out one chunk per Read. An empty chunk is an empty read
// reporting io.EOF, the way standard input does when nothing is pending.
type chunkReader struct {
	chunks []string
	calls  []int
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	chunk := r.chunks[0]
	r.chunks = r.chunks[1:]
	r.calls = append(r.calls, len(chunk))
	if chunk == "" {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func TestStreamRetriesEmptyReads(t *testing.T) {
	r := &chunkReader{chunks: []string{"", "", "", "clear_status\n"}}
	s := NewStream(r)

	line, err := s.NextLine(nil)
	require.NoError(t, err)
	assert.Equal(t, "clear_status", string(line))
	assert.Equal(t, []int{0, 0, 0, 13}, r.calls)
}

func TestStreamWaitsForTerminator(t *testing.T) {
	r := &chunkReader{chunks: []string{"clear_", "", "sta", "", "tus\nplaying x\n"}}
	s := NewStream(r)

	line, err := s.NextLine(nil)
	require.NoError(t, err)
	assert.Equal(t, "clear_status", string(line))

	line, err = s.NextLine(line[:0])
	require.NoError(t, err)
	assert.Equal(t, "playing x", string(line))
}

type silentReader struct {
	empty int
	data  string
}

func (r *silentReader) Read(p []byte) (int, error) {
	if r.empty > 0 {
		r.empty--
		return 0, nil
	}
	if r.data == "" {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestStreamSurvivesReadsWithoutProgress(t *testing.T) {
	s := NewStream(&silentReader{empty: 250, data: "watching\n"})

	line, err := s.NextLine(nil)
	require.NoError(t, err)
	assert.Equal(t, "watching", string(line))
}

func TestStreamStripsCRLF(t *testing.T) {
	s := NewStream(strings.NewReader("message 1 hi\r\n"))

	line, err := s.NextLine(nil)
	require.NoError(t, err)
	assert.Equal(t, "message 1 hi", string(line))
}

func TestStreamAppendsToDst(t *testing.T) {
	s := NewStream(strings.NewReader("two\n"))

	line, err := s.NextLine([]byte("one "))
	require.NoError(t, err)
	assert.Equal(t, "one two", string(line))
}

func TestStreamLongLine(t *testing.T) {
	long := strings.Repeat("x", 10000)
	s := NewStream(strings.NewReader("playing " + long + "\n"))

	line, err := s.NextLine(nil)
	require.NoError(t, err)
	assert.Equal(t, "playing "+long, string(line))
}

func TestStreamInvalidEncoding(t *testing.T) {
	s := NewStream(strings.NewReader("playing \xff\xfe\n"))

	line, err := s.NextLine(nil)
	require.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Empty(t, line)
}

func TestStreamFatalError(t *testing.T) {
	boom := errors.New("device gone")
	r := &chunkReader{chunks: []string{"partial"}, err: boom}
	s := NewStream(r)

	line, err := s.NextLine([]byte("keep"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "keep", string(line))
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestStreamClose(t *testing.T) {
	c := &closeTracker{Reader: strings.NewReader("")}
	require.NoError(t, NewStream(c).Close())
	assert.True(t, c.closed)

	require.NoError(t, NewStream(strings.NewReader("")).Close())
}
