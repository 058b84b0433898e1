package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pipebot/internal/command"
	"pipebot/internal/storage"
)

// Middleware wraps a Dispatcher (logging, history, persistence).
type Middleware func(Dispatcher) Dispatcher

// Apply wraps d with mws; the first middleware is the outermost.
func Apply(d Dispatcher, mws ...Middleware) Dispatcher {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

// Wrapped overrides some of a Dispatcher's methods. Nil funcs delegate to
// Inner.
type Wrapped struct {
	Inner        Dispatcher
	SendFunc     func(ctx context.Context, channelID uint64, text string) error
	PresenceFunc func(p *Presence)
}

func (w *Wrapped) Send(ctx context.Context, channelID uint64, text string) error {
	if w.SendFunc != nil {
		return w.SendFunc(ctx, channelID, text)
	}
	return w.Inner.Send(ctx, channelID, text)
}

func (w *Wrapped) SetPresence(p *Presence) {
	if w.PresenceFunc != nil {
		w.PresenceFunc(p)
		return
	}
	w.Inner.SetPresence(p)
}

// WithLogger logs every dispatch and its outcome.
func WithLogger(logger *zap.Logger) Middleware {
	return func(d Dispatcher) Dispatcher {
		return &Wrapped{
			Inner: d,
			SendFunc: func(ctx context.Context, channelID uint64, text string) error {
				start := time.Now()
				err := d.Send(ctx, channelID, text)
				fields := []zap.Field{
					zap.Uint64("channel", channelID),
					zap.Int("length", len(text)),
					zap.Duration("took", time.Since(start)),
				}
				if err != nil {
					logger.Warn("Message not sent", append(fields, zap.Error(err))...)
				} else {
					logger.Info("Message sent", fields...)
				}
				return err
			},
			PresenceFunc: func(p *Presence) {
				if p == nil {
					logger.Info("Clearing presence")
				} else {
					logger.Info("Setting presence", zap.Stringer("kind", p.Kind), zap.String("name", p.Name))
				}
				d.SetPresence(p)
			},
		}
	}
}

// HistoryStore records executed commands.
type HistoryStore interface {
	AppendDispatch(rec storage.DispatchRecord) error
}

// WithHistory appends a record for every dispatch to store. Store failures
// are logged and never fail the dispatch itself.
func WithHistory(store HistoryStore, logger *zap.Logger) Middleware {
	record := func(rec storage.DispatchRecord) {
		rec.Datetime = time.Now().UTC()
		if err := store.AppendDispatch(rec); err != nil {
			logger.Warn("Failed to record dispatch", zap.String("command", rec.Command), zap.Error(err))
		}
	}
	return func(d Dispatcher) Dispatcher {
		return &Wrapped{
			Inner: d,
			SendFunc: func(ctx context.Context, channelID uint64, text string) error {
				err := d.Send(ctx, channelID, text)
				rec := storage.DispatchRecord{Command: "message", ChannelID: channelID, Text: text}
				if err != nil {
					rec.Error = err.Error()
				}
				record(rec)
				return err
			},
			PresenceFunc: func(p *Presence) {
				d.SetPresence(p)
				if p == nil {
					record(storage.DispatchRecord{Command: "clear_status"})
				} else {
					record(storage.DispatchRecord{Command: p.Kind.Verb(), Text: p.Name})
				}
			},
		}
	}
}

// PresenceStore keeps the last presence across restarts.
type PresenceStore interface {
	SavePresence(rec *storage.PresenceRecord) error
}

// WithPresenceMemory saves every presence change to store.
func WithPresenceMemory(store PresenceStore, logger *zap.Logger) Middleware {
	return func(d Dispatcher) Dispatcher {
		return &Wrapped{
			Inner: d,
			PresenceFunc: func(p *Presence) {
				d.SetPresence(p)
				if err := store.SavePresence(p.Record()); err != nil {
					logger.Warn("Failed to save presence", zap.Error(err))
				}
			},
		}
	}
}

// Record converts p for storage. A nil presence is stored as nil.
func (p *Presence) Record() *storage.PresenceRecord {
	if p == nil {
		return nil
	}
	return &storage.PresenceRecord{Kind: p.Kind.Verb(), Name: p.Name}
}

// PresenceFromRecord converts a stored presence back. It returns nil for a
// nil record or one whose kind is no longer known.
func PresenceFromRecord(rec *storage.PresenceRecord) *Presence {
	if rec == nil || rec.Name == "" {
		return nil
	}
	kind, ok := command.KindFromVerb(rec.Kind)
	if !ok {
		return nil
	}
	return &Presence{Kind: kind, Name: rec.Name}
}
