package markov

import (
	"strings"
)

// DefaultSentenceDelimiter separates sentences in a corpus.
const DefaultSentenceDelimiter = ". "

// Tokenizer is an interface that defines the contract for splitting a corpus
// into tokenized sentences. This allows the model logic to be independent of
// the specific tokenization strategy.
type Tokenizer interface {
	// Sentences returns the non-empty token lists found in corpus.
	Sentences(corpus string) [][]string
}

// DefaultTokenizer splits a corpus into sentences on a literal delimiter and
// each sentence into whitespace-separated tokens. Punctuation stays attached
// to its word.
type DefaultTokenizer struct {
	delimiter string
}

// TokenizerOption Is a function that configures a DefaultTokenizer.
type TokenizerOption func(*DefaultTokenizer)

// WithSentenceDelimiter sets the literal string that ends a sentence.
// Default: ". "
func WithSentenceDelimiter(delim string) TokenizerOption {
	return func(t *DefaultTokenizer) {
		if delim != "" {
			t.delimiter = delim
		}
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more TokenizerOption functions.
func NewDefaultTokenizer(opts ...TokenizerOption) *DefaultTokenizer {
	t := &DefaultTokenizer{
		delimiter: DefaultSentenceDelimiter,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Sentences implements Tokenizer.
func (t *DefaultTokenizer) Sentences(corpus string) [][]string {
	var sentences [][]string
	for _, sentence := range strings.Split(corpus, t.delimiter) {
		tokens := strings.Fields(sentence)
		if len(tokens) > 0 {
			sentences = append(sentences, tokens)
		}
	}
	return sentences
}
