package history

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"promptpix/internal/domain"
)

// Record keys for the two persisted collections. These match the original
// client-side storage layout so exported data stays interchangeable.
const (
	KeySingles = "promptpix_history"
	KeyBatches = "promptpix_batch_history"
)

// Backend is the durable medium a Store serializes into. Implementations
// must return domain.ErrNotFound from Load when no record exists yet.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Store owns the two history collections: single-prompt items and batch
// snapshots, each ordered most-recently-added first. Every mutation is
// flushed to the backend in full before returning.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  zerolog.Logger

	singles []domain.HistoryItem
	batches []domain.BatchHistoryItem
}

// NewStore wraps a backend. Call Load before serving traffic.
func NewStore(backend Backend, logger *zerolog.Logger) *Store {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Store{
		backend: backend,
		logger:  logger.With().Str("component", "history").Logger(),
	}
}

// Load hydrates both collections from the backend. Absent or corrupt records
// degrade to empty collections; Load never fails because of bad stored data.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.singles = loadCollection[domain.HistoryItem](ctx, s.backend, KeySingles, s.logger)
	s.batches = loadCollection[domain.BatchHistoryItem](ctx, s.backend, KeyBatches, s.logger)
	return nil
}

func loadCollection[T any](ctx context.Context, backend Backend, key string, logger zerolog.Logger) []T {
	data, err := backend.Load(ctx, key)
	if err != nil {
		logger.Debug().Err(err).Str("key", key).Msg("no stored record, starting empty")
		return nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("corrupt record, starting empty")
		return nil
	}
	return items
}

// Singles returns a copy of the single-prompt collection.
func (s *Store) Singles() []domain.HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HistoryItem, len(s.singles))
	copy(out, s.singles)
	return out
}

// Batches returns a copy of the batch-snapshot collection.
func (s *Store) Batches() []domain.BatchHistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BatchHistoryItem, len(s.batches))
	copy(out, s.batches)
	return out
}

// SingleByID looks up one single-prompt item.
func (s *Store) SingleByID(id string) (domain.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.singles {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.HistoryItem{}, domain.ErrNotFound
}

// BatchByID looks up one batch snapshot.
func (s *Store) BatchByID(id string) (domain.BatchHistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.batches {
		if item.ID == id {
			return item, nil
		}
	}
	return domain.BatchHistoryItem{}, domain.ErrNotFound
}

// AppendSingle prepends the item and flushes the full collection.
func (s *Store) AppendSingle(ctx context.Context, item domain.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singles = append([]domain.HistoryItem{item}, s.singles...)
	return s.flush(ctx, KeySingles, s.singles)
}

// AppendBatch prepends the snapshot and flushes the full collection.
func (s *Store) AppendBatch(ctx context.Context, item domain.BatchHistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append([]domain.BatchHistoryItem{item}, s.batches...)
	return s.flush(ctx, KeyBatches, s.batches)
}

// RemoveSingle deletes by id and flushes.
func (s *Store) RemoveSingle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.singles[:0:0]
	found := false
	for _, item := range s.singles {
		if item.ID == id {
			found = true
			continue
		}
		filtered = append(filtered, item)
	}
	if !found {
		return domain.ErrNotFound
	}
	s.singles = filtered
	return s.flush(ctx, KeySingles, s.singles)
}

// RemoveBatch deletes by id and flushes.
func (s *Store) RemoveBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.batches[:0:0]
	found := false
	for _, item := range s.batches {
		if item.ID == id {
			found = true
			continue
		}
		filtered = append(filtered, item)
	}
	if !found {
		return domain.ErrNotFound
	}
	s.batches = filtered
	return s.flush(ctx, KeyBatches, s.batches)
}

func (s *Store) flush(ctx context.Context, key string, collection any) error {
	data, err := json.Marshal(collection)
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, key, data); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("flush failed")
		return err
	}
	return nil
}
