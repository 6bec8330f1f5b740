package markov

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"unicode/utf8"
)

const (
	// StartToken pads the beginning of every sentence.
	StartToken = "START"
	// EndToken marks the end of every sentence.
	EndToken = "END"

	// DefaultName is used when neither a name nor a corpus is given.
	DefaultName = "Unnamed Model"
	// EmptyModelSentence is what Generate returns for a model with no transitions.
	EmptyModelSentence = "WHOA! You are trying to generate a sentence from an empty model!"

	// nameCorpusPrefix is how many characters of the corpus a derived name keeps.
	nameCorpusPrefix = 20
)

var (
	// ErrInvalidOrder is returned when a model is created with a non-positive
	// order, or seeded with a table whose contexts do not match the order.
	ErrInvalidOrder = errors.New("markov: invalid order")
	// ErrUnknownContext is returned when generation reaches a context that has
	// no entry in the table.
	ErrUnknownContext = errors.New("markov: unknown context")
	// ErrMalformedSerialization is returned when serialized text does not
	// match the pair-list format.
	ErrMalformedSerialization = errors.New("markov: malformed serialization")
)

// Model is an order-N Markov chain over word tokens. It is not safe for
// concurrent mutation; callers that share a model must serialize access.
type Model struct {
	name       string
	order      int
	size       int
	table      *Table
	serialized string
	stale      bool
	tokenizer  Tokenizer
	rng        *rand.Rand
	logger     *slog.Logger
}

type modelOptions struct {
	corpus    string
	order     int
	name      string
	table     *Table
	tokenizer Tokenizer
	rng       *rand.Rand
	logger    *slog.Logger
}

// Option configures a Model created with New.
type Option func(*modelOptions)

// WithCorpus trains the new model on the given text.
func WithCorpus(corpus string) Option {
	return func(o *modelOptions) { o.corpus = corpus }
}

// WithOrder sets the number of preceding tokens used as context.
// Default: 1
func WithOrder(order int) Option {
	return func(o *modelOptions) { o.order = order }
}

// WithName sets the display name of the model. Without it the name is
// derived from the corpus.
func WithName(name string) Option {
	return func(o *modelOptions) { o.name = name }
}

// WithTable seeds the model with an existing transition table. No corpus
// processing happens when a table is given.
func WithTable(t *Table) Option {
	return func(o *modelOptions) { o.table = t }
}

// WithTokenizer sets the tokenizer used to split corpora into sentences.
func WithTokenizer(t Tokenizer) Option {
	return func(o *modelOptions) { o.tokenizer = t }
}

// WithRand sets the random source used for generation. By default the
// process-wide source of math/rand/v2 is used.
func WithRand(r *rand.Rand) Option {
	return func(o *modelOptions) { o.rng = r }
}

// WithLogger sets the logger for the model. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *modelOptions) { o.logger = logger }
}

// New creates a model. An absent or empty corpus yields a valid, empty model.
// The returned model is already serialized.
func New(opts ...Option) (*Model, error) {
	o := &modelOptions{order: 1}
	for _, opt := range opts {
		opt(o)
	}

	if o.order <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, o.order)
	}

	m := &Model{
		name:      resolveName(o.name, o.corpus),
		order:     o.order,
		table:     NewTable(),
		tokenizer: o.tokenizer,
		rng:       o.rng,
		logger:    o.logger,
	}
	if m.tokenizer == nil {
		m.tokenizer = NewDefaultTokenizer()
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if o.table != nil {
		if ctx, ok := o.table.checkOrder(o.order); !ok {
			return nil, fmt.Errorf("%w: context %s has %d tokens, model order is %d", ErrInvalidOrder, ctx, ctx.Len(), o.order)
		}
		m.table = o.table
	} else if o.corpus != "" {
		m.AddCorpus(o.corpus)
	}
	m.recomputeSize()

	if err := m.Serialize(); err != nil {
		return nil, err
	}

	m.logger.Debug("Model created",
		slog.String("model_name", m.name),
		slog.Int("order", m.order),
		slog.Int("contexts", m.table.Len()),
	)
	return m, nil
}

// Restore rebuilds a model from its persisted form.
func Restore(name string, order int, serialized string, opts ...Option) (*Model, error) {
	opts = append(opts, WithName(name), WithOrder(order))
	m, err := New(opts...)
	if err != nil {
		return nil, err
	}
	m.serialized = serialized
	if err = m.Deserialize(); err != nil {
		return nil, err
	}
	return m, nil
}

func resolveName(name, corpus string) string {
	if name != "" {
		return name
	}
	if corpus != "" {
		return truncateRunes(corpus, nameCorpusPrefix) + "..."
	}
	return DefaultName
}

// truncateRunes keeps at most n characters of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// AddCorpus splits corpus into sentences with the model's tokenizer and adds
// each of them.
func (m *Model) AddCorpus(corpus string) {
	sentences := m.tokenizer.Sentences(corpus)
	for _, sentence := range sentences {
		m.AddSentence(sentence)
	}
	m.logger.Debug("Corpus added",
		slog.String("model_name", m.name),
		slog.Int("sentences_processed", len(sentences)),
		slog.Int("size", m.size),
	)
}

// AddSentence folds one tokenized sentence into the transition table. The
// sentence is padded with `order` START tokens and one END token, and every
// window of `order` tokens is counted as a context for the token after it.
//
// AddSentence does not refresh the serialized form; the model reports Stale
// until Serialize is called.
func (m *Model) AddSentence(tokens []string) {
	if len(tokens) == 0 {
		return
	}

	padded := make([]string, len(tokens)+m.order+1)
	for i := 0; i < m.order; i++ {
		padded[i] = StartToken
	}
	copy(padded[m.order:len(padded)-1], tokens)
	padded[len(padded)-1] = EndToken

	for i := 0; i < len(tokens)+1; i++ { // len+1 windows to include the final END.
		ctx := NewContext(padded[i : i+m.order]...)
		m.table.Add(ctx, padded[i+m.order], 1)
	}

	m.recomputeSize()
	m.stale = true
}

// recomputeSize applies the size formula: distinct contexts minus order minus 2.
func (m *Model) recomputeSize() {
	m.size = m.table.Len() - m.order - 2
}

// Name returns the model's display name.
func (m *Model) Name() string {
	return m.name
}

// Order returns the number of tokens in every context.
func (m *Model) Order() int {
	return m.order
}

// Size returns the number of distinct contexts minus order minus 2. The value
// can be negative for very small models.
func (m *Model) Size() int {
	return m.size
}

// Table returns the live transition table. Callers must not modify it.
func (m *Model) Table() *Table {
	return m.table
}

// Empty reports whether the model has no transitions.
func (m *Model) Empty() bool {
	return m.table.Len() == 0
}

// Stale reports whether the table changed since the last Serialize.
func (m *Model) Stale() bool {
	return m.stale
}

// SetLogger sets the logger for the model.
func (m *Model) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}
