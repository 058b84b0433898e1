package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pipebot/internal/command"
	"pipebot/internal/storage"
)

type memoryStore struct {
	history  []storage.DispatchRecord
	presence []*storage.PresenceRecord
	err      error
}

func (m *memoryStore) AppendDispatch(rec storage.DispatchRecord) error {
	m.history = append(m.history, rec)
	return m.err
}

func (m *memoryStore) SavePresence(rec *storage.PresenceRecord) error {
	m.presence = append(m.presence, rec)
	return m.err
}

func tracing(name string, trace *[]string) Middleware {
	return func(d Dispatcher) Dispatcher {
		return &Wrapped{
			Inner: d,
			SendFunc: func(ctx context.Context, channelID uint64, text string) error {
				*trace = append(*trace, name)
				return d.Send(ctx, channelID, text)
			},
		}
	}
}

func TestApplyOrderFirstIsOutermost(t *testing.T) {
	var trace []string
	base := &fakeDispatcher{}
	d := Apply(base, tracing("outer", &trace), tracing("inner", &trace))

	require.NoError(t, d.Send(context.Background(), 1, "x"))
	assert.Equal(t, []string{"outer", "inner"}, trace)
}

func TestWrappedDelegatesUnsetFuncs(t *testing.T) {
	base := &fakeDispatcher{}
	d := &Wrapped{Inner: base}

	require.NoError(t, d.Send(context.Background(), 7, "hi"))
	d.SetPresence(nil)
	assert.Equal(t, []string{"send", "presence"}, base.calls)
}

func TestWithHistoryRecordsOutcome(t *testing.T) {
	store := &memoryStore{}
	base := &fakeDispatcher{sendErr: errors.New("unknown channel")}
	d := Apply(base, WithHistory(store, zap.NewNop()))

	err := d.Send(context.Background(), 42, "hello")
	assert.EqualError(t, err, "unknown channel")
	d.SetPresence(&Presence{Kind: command.CompetingIn, Name: "races"})
	d.SetPresence(nil)

	require.Len(t, store.history, 3)
	assert.Equal(t, "message", store.history[0].Command)
	assert.Equal(t, uint64(42), store.history[0].ChannelID)
	assert.Equal(t, "unknown channel", store.history[0].Error)
	assert.False(t, store.history[0].Datetime.IsZero())
	assert.Equal(t, "competing_in", store.history[1].Command)
	assert.Equal(t, "races", store.history[1].Text)
	assert.Equal(t, "clear_status", store.history[2].Command)
}

func TestWithHistoryStoreFailureDoesNotFailDispatch(t *testing.T) {
	store := &memoryStore{err: errors.New("disk full")}
	d := Apply(&fakeDispatcher{}, WithHistory(store, zap.NewNop()))
	assert.NoError(t, d.Send(context.Background(), 1, "x"))
}

func TestWithPresenceMemory(t *testing.T) {
	store := &memoryStore{}
	base := &fakeDispatcher{}
	d := Apply(base, WithPresenceMemory(store, zap.NewNop()))

	d.SetPresence(&Presence{Kind: command.ListeningTo, Name: "rain"})
	d.SetPresence(nil)
	require.NoError(t, d.Send(context.Background(), 1, "x"))

	assert.Equal(t, []*storage.PresenceRecord{{Kind: "listening_to", Name: "rain"}, nil}, store.presence)
	assert.Len(t, base.presences, 2)
	assert.Len(t, base.sent, 1)
}

func TestWithLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := Apply(&fakeDispatcher{}, WithLogger(zap.New(core)))

	require.NoError(t, d.Send(context.Background(), 9, "hey"))
	d.SetPresence(&Presence{Kind: command.Watching, Name: "tv"})
	d.SetPresence(nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "Message sent", entries[0].Message)
	assert.Equal(t, uint64(9), entries[0].ContextMap()["channel"])
	assert.Equal(t, "Setting presence", entries[1].Message)
	assert.Equal(t, "watching", entries[1].ContextMap()["kind"])
	assert.Equal(t, "Clearing presence", entries[2].Message)
}

func TestPresenceRecordConversion(t *testing.T) {
	p := &Presence{Kind: command.Watching, Name: "tv"}
	assert.Equal(t, p, PresenceFromRecord(p.Record()))

	var none *Presence
	assert.Nil(t, none.Record())
	assert.Nil(t, PresenceFromRecord(nil))
	assert.Nil(t, PresenceFromRecord(&storage.PresenceRecord{Kind: "dancing", Name: "x"}))
	assert.Nil(t, PresenceFromRecord(&storage.PresenceRecord{Kind: "playing"}))
}
