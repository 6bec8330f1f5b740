package markov

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
)

// generateOptions Is used by Generate to configure default options.
type generateOptions struct {
	maxLength     int
	temperature   float64
	topK          int
	legacyAdvance bool
}

// GenerateOption is a function that configures generation parameters.
type GenerateOption func(*generateOptions)

// WithMaxLength caps the number of tokens in a generated sentence. A value of
// 0 or less means generation only stops at an END token.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithTemperature adjusts the randomness of the token selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent tokens more likely).
// Values < 1.0 decrease randomness (making more frequent tokens even more likely).
// A value of 0 or less results in deterministic selection (always choosing the most frequent token).
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the token selection pool to the top `k` most frequent tokens
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// WithLegacyContextAdvance makes generation collapse the context to the single
// token just chosen after the first step, regardless of order. Models of order
// 2 or more then fail with ErrUnknownContext after their first token. Only
// useful for reproducing output of older deployments.
func WithLegacyContextAdvance() GenerateOption {
	return func(o *generateOptions) { o.legacyAdvance = true }
}

// Generate walks the chain from the all-START context, picking each next token
// with probability proportional to its count, until END is chosen. It returns
// the chosen tokens joined by single spaces.
//
// An empty model is not an error: it returns EmptyModelSentence.
func (m *Model) Generate(opts ...GenerateOption) (string, error) {
	return m.GenerateFrom(nil, opts...)
}

// GenerateFrom continues a sentence that starts with seed. The seed tokens are
// part of the output and count towards the max length. A seed whose trailing
// context never occurs in the table fails with ErrUnknownContext.
func (m *Model) GenerateFrom(seed []string, opts ...GenerateOption) (string, error) {
	if m.Empty() {
		return EmptyModelSentence, nil
	}

	var words []string
	err := m.walk(context.Background(), seed, newGenerateOptions(opts), func(token string) bool {
		words = append(words, token)
		return true
	})
	if err != nil {
		return "", err
	}

	m.logger.Debug("Sentence generated",
		slog.String("model_name", m.name),
		slog.Int("generated_length", len(words)),
	)
	return strings.Join(words, " "), nil
}

func newGenerateOptions(opts []GenerateOption) *generateOptions {
	options := &generateOptions{
		maxLength:   0,
		temperature: 1.0,
		topK:        0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// walk feeds seed and then sampled tokens to emit until END, the max length,
// a false return from emit, or cancellation of ctx.
func (m *Model) walk(ctx context.Context, seed []string, options *generateOptions, emit func(string) bool) error {
	prefix := make([]string, m.order)
	for i := range prefix {
		prefix[i] = StartToken
	}
	state := NewContext(prefix...)
	generated := 0

	advance := func(token string) {
		if options.legacyAdvance {
			state = NewContext(token)
		} else {
			prefix = append(prefix[1:], token)
			state = NewContext(prefix...)
		}
	}

	for _, token := range seed {
		if options.maxLength > 0 && generated >= options.maxLength {
			return nil
		}
		if !emit(token) {
			return nil
		}
		generated++
		advance(token)
	}

	for options.maxLength <= 0 || generated < options.maxLength {
		if err := ctx.Err(); err != nil {
			return err
		}

		followers, ok := m.table.Get(state)
		if !ok {
			m.logger.Debug("Generation reached unknown context",
				slog.String("model_name", m.name),
				slog.String("context", state.String()),
				slog.Int("generated_length", generated),
			)
			return fmt.Errorf("%w %s after %d tokens", ErrUnknownContext, state, generated)
		}

		next := m.chooseNextToken(followers.items, followers.total, options)
		if next == EndToken {
			return nil
		}
		if !emit(next) {
			return nil
		}
		generated++
		advance(next)
	}
	return nil
}

func (m *Model) randIntN(n int) int {
	if m.rng != nil {
		return m.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (m *Model) randFloat64() float64 {
	if m.rng != nil {
		return m.rng.Float64()
	}
	return rand.Float64()
}

// chooseNextToken picks one follower. With the default options each token is
// chosen with probability count / totalFreq.
func (m *Model) chooseNextToken(choices []Follower, totalFreq int, options *generateOptions) string {
	var nextToken string

	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		sorted := make([]Follower, len(choices))
		copy(sorted, choices)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Count > sorted[j].Count
		})
		choices = sorted[:options.topK]
		totalFreq = 0
		for _, choice := range choices {
			totalFreq += choice.Count
		}
	}

	// temperature selection
	if options.temperature <= 0 { // Deterministic
		maxFreq := -1
		for _, choice := range choices {
			if choice.Count > maxFreq {
				maxFreq = choice.Count
				nextToken = choice.Token
			}
		}
	} else if options.temperature == 1.0 { // Standard weighted random
		randChoice := m.randIntN(totalFreq)
		for _, choice := range choices {
			randChoice -= choice.Count
			if randChoice < 0 {
				nextToken = choice.Token
				break
			}
		}
	} else { // Temperature-based sampling
		logProbabilities := make([]float64, len(choices))
		epsilon := -1e9
		for i, choice := range choices {
			lp := math.Log(float64(choice.Count)) / options.temperature
			logProbabilities[i] = lp
			if lp > epsilon {
				epsilon = lp
			}
		}
		var totalWeight float64
		weights := make([]float64, len(choices))
		for i, lp := range logProbabilities {
			w := math.Exp(lp - epsilon)
			weights[i] = w
			totalWeight += w
		}
		randChoice := m.randFloat64() * totalWeight
		nextToken = choices[len(choices)-1].Token
		for i, choice := range choices {
			randChoice -= weights[i]
			if randChoice < 0 {
				nextToken = choice.Token
				break
			}
		}
	}
	return nextToken
}
