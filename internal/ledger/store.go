package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrJournalConflict is returned when an append does not extend the journal head.
var ErrJournalConflict = errors.New("ledger: journal conflict")

// ErrLedgerHalted is returned by every mutation once the journal holds an
// entry the state cannot replay. Reads keep serving the last good state.
var ErrLedgerHalted = errors.New("ledger: halted")

// Store is the durable journal behind the ledger. Append must be durable
// before it returns nil.
type Store interface {
	Load(ctx context.Context) ([]Envelope, error)
	Append(ctx context.Context, env Envelope) error
}

// EventSink receives events after they are durable.
type EventSink interface {
	Publish(ctx context.Context, env Envelope) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, env Envelope) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Sinks fans an event out to several sinks, attempting all of them.
type Sinks []EventSink

// Publish delivers env to every sink and joins their errors.
func (s Sinks) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Publish logs the envelope.
func (s LogSink) Publish(_ context.Context, env Envelope) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("ledger event",
		slog.Uint64("seq", env.Seq),
		slog.String("kind", string(env.Kind())),
		slog.String("actor", env.Actor.String()),
		slog.String("id", env.ID.String()),
	)
	return nil
}

// MemoryStore keeps the journal in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Envelope
}

// NewMemoryStore returns an empty journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the journal.
func (m *MemoryStore) Load(_ context.Context) ([]Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Envelope(nil), m.entries...), nil
}

// Append adds env if it extends the head.
func (m *MemoryStore) Append(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env.Seq != uint64(len(m.entries))+1 {
		return fmt.Errorf("%w: head %d, got %d", ErrJournalConflict, len(m.entries), env.Seq)
	}
	m.entries = append(m.entries, env)
	return nil
}

// Replay folds a journal into a fresh state.
func Replay(entries []Envelope) (*State, error) {
	state := NewState()
	for _, env := range entries {
		if err := state.Apply(env); err != nil {
			return nil, err
		}
	}
	return state, nil
}
