package linesource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFileFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("playing one\nwatch"), 0o644))

	src, err := OpenFile(path, WithBackoff(10*time.Millisecond), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer src.Close()

	line, err := src.NextLine(nil)
	require.NoError(t, err)
	assert.Equal(t, "playing one", string(line))

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer f.Close()
		f.WriteString("ing two\n")
	}()

	line, err = src.NextLine(line[:0])
	require.NoError(t, err)
	assert.Equal(t, "watching two", string(line))
}

func TestOpenPicksSourceKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	src, err := Open(path)
	require.NoError(t, err)
	assert.IsType(t, &File{}, src)
	require.NoError(t, src.Close())

	src, err = Open("")
	require.NoError(t, err)
	assert.IsType(t, &Stream{}, src)

	src, err = Open("-")
	require.NoError(t, err)
	assert.IsType(t, &Stream{}, src)

	_, err = Open(dir)
	assert.Error(t, err)

	_, err = Open(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
