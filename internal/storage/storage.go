// /internal/storage/storage.go
package storage

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"pipebot/datastore"
)

const (
	dispatchHistoryLimit int = 20

	keyPresence = "presence"
	keyHistory  = "dispatch_history"
)

type Storage struct {
	ds *datastore.DataStore
}

// PresenceRecord is the last presence the relay set. Kind is the command
// verb that set it ("playing", "watching", ...).
type PresenceRecord struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// presenceEnvelope is the stored form of a set presence.
type presenceEnvelope struct {
	Presence  *PresenceRecord `json:"presence"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DispatchRecord is one executed command.
type DispatchRecord struct {
	Command   string    `json:"command"`
	ChannelID uint64    `json:"channel_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	Datetime  time.Time `json:"datetime"`
}

// New opens the store at filePath. Background save failures are reported
// to logger.
func New(filePath string, logger *zap.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	if logger != nil {
		cfg.Logger = logger.With(zap.String("store", filePath))
	}
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// SavePresence stores rec as the current presence and writes it to disk
// right away; nil forgets it.
func (s *Storage) SavePresence(rec *PresenceRecord) error {
	var err error
	if rec == nil {
		err = s.ds.Delete(keyPresence)
	} else {
		err = s.ds.Put(keyPresence, presenceEnvelope{Presence: rec, UpdatedAt: time.Now().UTC()})
	}
	if err == nil {
		err = s.ds.Flush()
	}
	if err != nil {
		return fmt.Errorf("save presence: %w", err)
	}
	return nil
}

// LoadPresence returns the last saved presence. It is nil when the presence
// was never set or was cleared last.
func (s *Storage) LoadPresence() (*PresenceRecord, error) {
	var env presenceEnvelope
	if _, err := s.ds.Get(keyPresence, &env); err != nil {
		return nil, fmt.Errorf("load presence: %w", err)
	}
	return env.Presence, nil
}

// AppendDispatch adds rec to the history, keeping only the newest records.
func (s *Storage) AppendDispatch(rec DispatchRecord) error {
	history, err := s.FetchDispatchHistory()
	if err != nil {
		return err
	}

	history = append(history, rec)
	if len(history) > dispatchHistoryLimit {
		history = history[len(history)-dispatchHistoryLimit:]
	}
	if err := s.ds.Put(keyHistory, history); err != nil {
		return fmt.Errorf("save dispatch history: %w", err)
	}
	return nil
}

// FetchDispatchHistory returns the stored history, oldest first.
func (s *Storage) FetchDispatchHistory() ([]DispatchRecord, error) {
	var history []DispatchRecord
	if _, err := s.ds.Get(keyHistory, &history); err != nil {
		return nil, fmt.Errorf("load dispatch history: %w", err)
	}
	return history, nil
}
