package markov

import (
	"math/rand/v2"
	"strings"
	"testing"
)

const testCorpus = `
    Lorem ipsum dolor sit amet, consectetuer adipiscing elit,
    sed diam nonummy nibh euismod tincidunt ut laoreet dolore
    magna aliquam erat volutpat. Ut wisi enim ad minim veniam,
    quis nostrud exercitation ulliam corper suscipit lobortis
    nisl ut aliquip ex ea commodo consequat. Duis autem veleum
    iriure dolor in hendrerit in vulputate velit esse molestie
    consequat, vel willum lunombro dolore eu feugiat nulla
    facilisis at vero eros et accumsan et iusto odio dignissim
    qui blandit praesent luptatum zzril delenit augue duis dolore
    te feugait nulla facilisi.
`

const fishCorpus = "one fish two fish. red fish blue fish"

// newTestModel builds a model from the given corpus and fails the test on error.
func newTestModel(t testing.TB, corpus string, order int, opts ...Option) *Model {
	t.Helper()
	opts = append([]Option{WithCorpus(corpus), WithOrder(order)}, opts...)
	m, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

// seededRand returns a deterministic random source for tests.
func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 1024))
}

// vocabulary returns every token of the corpus as split by the default tokenizer.
func vocabulary(corpus string) map[string]struct{} {
	vocab := make(map[string]struct{})
	for _, sentence := range NewDefaultTokenizer().Sentences(corpus) {
		for _, token := range sentence {
			vocab[token] = struct{}{}
		}
	}
	return vocab
}

// benchmarkCorpus repeats the test corpus to give benchmarks some bulk.
func benchmarkCorpus() string {
	return strings.Repeat(testCorpus+". ", 200)
}
