package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CTAG07/babbler/pkg/markov"
	"github.com/CTAG07/babbler/pkg/store"
)

var (
	ErrModelExists  = errors.New("model already exists")
	ErrInvalidCount = errors.New("invalid sentence count")
)

// ModelInfo is the public view of a stored model.
type ModelInfo struct {
	Name      string             `json:"name"`
	Order     int                `json:"order"`
	Size      int                `json:"size"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Stats     *markov.ModelStats `json:"stats,omitempty"`
}

func newModelInfo(rec store.Record) ModelInfo {
	return ModelInfo{
		Name:      rec.Name,
		Order:     rec.Order,
		Size:      rec.Size,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// GenerateParams are the per-request generation settings. Zero values fall
// back to the configured defaults.
type GenerateParams struct {
	Count       int
	MaxLength   int
	Temperature *float64
	TopK        int
}

// ModelService holds the operations shared by the HTTP API and the CLI. Models
// live in the store as serialized tables and are restored for every call;
// writes to the same name are serialized with a per-name lock.
type ModelService struct {
	store  store.Store
	gen    *GenerateConfig
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*nameLock
}

// nameLock is a per-name mutex shared by every caller currently holding or
// waiting for it. The entry is dropped once refs reaches zero.
type nameLock struct {
	mu   sync.Mutex
	refs int
}

// NewModelService creates a new ModelService.
func NewModelService(st store.Store, gen *GenerateConfig, logger *slog.Logger) *ModelService {
	return &ModelService{
		store:  st,
		gen:    gen,
		logger: logger,
		locks:  make(map[string]*nameLock),
	}
}

// lock acquires the write lock for name and returns its release function.
func (s *ModelService) lock(name string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &nameLock{}
		s.locks[name] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, name)
		}
		s.locksMu.Unlock()
	}
}

func (s *ModelService) restore(rec store.Record) (*markov.Model, error) {
	m, err := markov.Restore(rec.Name, rec.Order, rec.Serialized, markov.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("could not restore model '%s': %w", rec.Name, err)
	}
	return m, nil
}

func (s *ModelService) load(ctx context.Context, name string) (*markov.Model, store.Record, error) {
	rec, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, store.Record{}, err
	}
	m, err := s.restore(rec)
	if err != nil {
		return nil, store.Record{}, err
	}
	return m, rec, nil
}

// save serializes m and writes it to the store.
func (s *ModelService) save(ctx context.Context, m *markov.Model) (store.Record, error) {
	if m.Stale() {
		if err := m.Serialize(); err != nil {
			return store.Record{}, err
		}
	}
	rec := store.Record{
		Name:       m.Name(),
		Order:      m.Order(),
		Size:       m.Size(),
		Serialized: m.Serialized(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return store.Record{}, err
	}
	return s.store.Load(ctx, rec.Name)
}

// ensureAbsent returns ErrModelExists when name is already stored.
func (s *ModelService) ensureAbsent(ctx context.Context, name string) error {
	_, err := s.store.Load(ctx, name)
	if err == nil {
		return fmt.Errorf("%w: '%s'", ErrModelExists, name)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Create trains a new model from corpus and stores it. An empty name is
// derived from the corpus.
func (s *ModelService) Create(ctx context.Context, name string, order int, corpus string) (ModelInfo, error) {
	m, err := markov.New(
		markov.WithName(name),
		markov.WithOrder(order),
		markov.WithCorpus(corpus),
		markov.WithLogger(s.logger),
	)
	if err != nil {
		return ModelInfo{}, err
	}

	unlock := s.lock(m.Name())
	defer unlock()

	if err = s.ensureAbsent(ctx, m.Name()); err != nil {
		return ModelInfo{}, err
	}
	rec, err := s.save(ctx, m)
	if err != nil {
		return ModelInfo{}, err
	}
	s.logger.Info("Model created", "name", rec.Name, "order", rec.Order, "size", rec.Size)
	return s.withStats(rec, m), nil
}

// Import stores a model from an already serialized table.
func (s *ModelService) Import(ctx context.Context, name string, order int, serialized string) (ModelInfo, error) {
	m, err := markov.Restore(name, order, serialized, markov.WithLogger(s.logger))
	if err != nil {
		return ModelInfo{}, err
	}
	// Normalize the encoding before it is persisted.
	if err = m.Serialize(); err != nil {
		return ModelInfo{}, err
	}

	unlock := s.lock(m.Name())
	defer unlock()

	if err = s.ensureAbsent(ctx, m.Name()); err != nil {
		return ModelInfo{}, err
	}
	rec, err := s.save(ctx, m)
	if err != nil {
		return ModelInfo{}, err
	}
	s.logger.Info("Model imported", "name", rec.Name, "order", rec.Order, "size", rec.Size)
	return s.withStats(rec, m), nil
}

// AddCorpus adds every sentence of corpus to the named model and stores the result.
func (s *ModelService) AddCorpus(ctx context.Context, name, corpus string) (ModelInfo, error) {
	unlock := s.lock(name)
	defer unlock()

	m, _, err := s.load(ctx, name)
	if err != nil {
		return ModelInfo{}, err
	}
	before := m.Size()
	m.AddCorpus(corpus)

	rec, err := s.save(ctx, m)
	if err != nil {
		return ModelInfo{}, err
	}
	s.logger.Info("Corpus added to model", "name", name, "size_before", before, "size_after", rec.Size)
	return s.withStats(rec, m), nil
}

// Generate produces sentences from the named model. The empty-model sentence
// is returned as is.
func (s *ModelService) Generate(ctx context.Context, name string, params GenerateParams) ([]string, error) {
	count := params.Count
	if count == 0 {
		count = 1
	}
	if count < 0 || count > s.gen.MaxCount {
		return nil, fmt.Errorf("%w: %d (must be between 1 and %d)", ErrInvalidCount, count, s.gen.MaxCount)
	}

	m, _, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}

	opts := s.generateOptions(params)
	sentences := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		sentence, err := m.Generate(opts...)
		if err != nil {
			return nil, fmt.Errorf("generation failed for model '%s': %w", name, err)
		}
		sentences = append(sentences, sentence)
	}
	s.logger.Debug("Sentences generated", "name", name, "count", count)
	return sentences, nil
}

func (s *ModelService) generateOptions(params GenerateParams) []markov.GenerateOption {
	maxLength := s.gen.MaxLength
	if params.MaxLength > 0 && (maxLength == 0 || params.MaxLength < maxLength) {
		maxLength = params.MaxLength
	}
	temperature := s.gen.Temperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	topK := s.gen.TopK
	if params.TopK > 0 {
		topK = params.TopK
	}
	return []markov.GenerateOption{
		markov.WithMaxLength(maxLength),
		markov.WithTemperature(temperature),
		markov.WithTopK(topK),
	}
}

// Get returns the stored metadata and live statistics of a model.
func (s *ModelService) Get(ctx context.Context, name string) (ModelInfo, error) {
	m, rec, err := s.load(ctx, name)
	if err != nil {
		return ModelInfo{}, err
	}
	return s.withStats(rec, m), nil
}

// List returns the metadata of all stored models.
func (s *ModelService) List(ctx context.Context) ([]ModelInfo, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]ModelInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, newModelInfo(rec))
	}
	return infos, nil
}

// Export returns the serialized table of a model.
func (s *ModelService) Export(ctx context.Context, name string) (string, error) {
	rec, err := s.store.Load(ctx, name)
	if err != nil {
		return "", err
	}
	return rec.Serialized, nil
}

// Delete removes a model. Missing models are reported with store.ErrNotFound.
func (s *ModelService) Delete(ctx context.Context, name string) error {
	unlock := s.lock(name)
	defer unlock()

	if _, err := s.store.Load(ctx, name); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info("Model deleted", "name", name)
	return nil
}

func (s *ModelService) withStats(rec store.Record, m *markov.Model) ModelInfo {
	info := newModelInfo(rec)
	stats := m.Stats()
	info.Stats = &stats
	return info
}
