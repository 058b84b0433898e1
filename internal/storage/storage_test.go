package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPresenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipebot.json")

	s, err := New(path, nil)
	require.NoError(t, err)

	got, err := s.LoadPresence()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SavePresence(&PresenceRecord{Kind: "watching", Name: "the logs"}))
	require.NoError(t, s.Close())

	s, err = New(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err = s.LoadPresence()
	require.NoError(t, err)
	assert.Equal(t, &PresenceRecord{Kind: "watching", Name: "the logs"}, got)

	require.NoError(t, s.SavePresence(nil))
	got, err = s.LoadPresence()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDispatchHistoryIsBounded(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "pipebot.json"), nil)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < dispatchHistoryLimit+5; i++ {
		require.NoError(t, s.AppendDispatch(DispatchRecord{Command: "message", ChannelID: 1, Text: fmt.Sprint(i)}))
	}

	history, err := s.FetchDispatchHistory()
	require.NoError(t, err)
	require.Len(t, history, dispatchHistoryLimit)
	assert.Equal(t, "5", history[0].Text)
	assert.Equal(t, fmt.Sprint(dispatchHistoryLimit+4), history[len(history)-1].Text)
}

func TestNewPassesLoggerToDatastore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipebot.json")
	s, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SavePresence(&PresenceRecord{Kind: "playing", Name: "chess"}))
	require.NoError(t, s.Close())

	core, logs := observer.New(zapcore.DebugLevel)
	s, err = New(path, zap.New(core))
	require.NoError(t, err)
	defer s.Close()

	entries := logs.FilterMessage("Datastore loaded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, path, fields["store"])
	assert.Equal(t, []interface{}{"presence"}, fields["keys"])
}

func TestClearedPresenceIsForgotten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipebot.json")
	s, err := New(path, nil)
	require.NoError(t, err)

	require.NoError(t, s.SavePresence(&PresenceRecord{Kind: "watching", Name: "the logs"}))
	require.NoError(t, s.SavePresence(nil))
	require.NoError(t, s.SavePresence(nil))
	require.NoError(t, s.Close())

	s, err = New(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadPresence()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSavePresenceWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipebot.json")
	s, err := New(path, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SavePresence(&PresenceRecord{Kind: "competing_in", Name: "a race"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a race")

	require.NoError(t, s.SavePresence(nil))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a race")
}
