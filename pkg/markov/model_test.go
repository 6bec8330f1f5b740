package markov

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewEmptyModel(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Table().Len() != 0 {
		t.Errorf("expected an empty table, got %d contexts", m.Table().Len())
	}
	if !m.Empty() {
		t.Error("expected Empty() to be true")
	}
	if m.Name() != DefaultName {
		t.Errorf("expected name %q, got %q", DefaultName, m.Name())
	}
	if m.Order() != 1 {
		t.Errorf("expected default order 1, got %d", m.Order())
	}
	if m.Serialized() != "[]" {
		t.Errorf("expected a fresh model to be serialized as [], got %q", m.Serialized())
	}
	if m.Stale() {
		t.Error("a freshly built model should not be stale")
	}
}

func TestNewInvalidOrder(t *testing.T) {
	for _, order := range []int{0, -1, -10} {
		_, err := New(WithCorpus(fishCorpus), WithOrder(order))
		if !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("order %d: expected ErrInvalidOrder, got %v", order, err)
		}
	}
}

func TestModelName(t *testing.T) {
	testCases := []struct {
		name     string
		opts     []Option
		expected string
	}{
		{
			name:     "Explicit name wins",
			opts:     []Option{WithName("poems"), WithCorpus(testCorpus)},
			expected: "poems",
		},
		{
			name:     "Derived from corpus",
			opts:     []Option{WithCorpus(testCorpus)},
			expected: testCorpus[0:20] + "...",
		},
		{
			name:     "Short corpus is kept whole",
			opts:     []Option{WithCorpus("tiny corpus")},
			expected: "tiny corpus...",
		},
		{
			name:     "Counts characters, not bytes",
			opts:     []Option{WithCorpus(strings.Repeat("é", 25))},
			expected: strings.Repeat("é", 20) + "...",
		},
		{
			name:     "No corpus and no name",
			opts:     nil,
			expected: "Unnamed Model",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(tc.opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if m.Name() != tc.expected {
				t.Errorf("expected name %q, got %q", tc.expected, m.Name())
			}
		})
	}
}

func TestAddSentenceWindows(t *testing.T) {
	testCases := []struct {
		name     string
		order    int
		sentence []string
		contexts []Context
	}{
		{
			name:     "Order 1",
			order:    1,
			sentence: []string{"a", "b", "c"},
			contexts: []Context{
				NewContext(StartToken),
				NewContext("a"),
				NewContext("b"),
				NewContext("c"),
			},
		},
		{
			name:     "Order 2",
			order:    2,
			sentence: []string{"a", "b"},
			contexts: []Context{
				NewContext(StartToken, StartToken),
				NewContext(StartToken, "a"),
				NewContext("a", "b"),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(WithOrder(tc.order))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			m.AddSentence(tc.sentence)

			stats := m.Stats()
			if stats.TotalFrequency != len(tc.sentence)+1 {
				t.Errorf("expected %d windows, got %d", len(tc.sentence)+1, stats.TotalFrequency)
			}
			if got := m.Table().Contexts(); len(got) != len(tc.contexts) {
				t.Fatalf("expected %d contexts, got %d", len(tc.contexts), len(got))
			}
			for i, ctx := range m.Table().Contexts() {
				if ctx != tc.contexts[i] {
					t.Errorf("context %d: expected %s, got %s", i, tc.contexts[i], ctx)
				}
				if ctx.Len() != tc.order {
					t.Errorf("context %s has %d tokens, want %d", ctx, ctx.Len(), tc.order)
				}
			}

			last := m.Table().Contexts()[len(tc.contexts)-1]
			followers, _ := m.Table().Get(last)
			if followers.Count(EndToken) != 1 {
				t.Errorf("expected the last context to be followed by END, got %+v", followers.Items())
			}
		})
	}
}

func TestAddSentenceChangesTable(t *testing.T) {
	m := newTestModel(t, testCorpus, 1)
	old := m.Table().Clone()

	m.AddSentence([]string{"This", "is", "a", "new", "sentence."})
	if m.Table().Equal(old) {
		t.Error("expected the table to change after adding a sentence")
	}
}

func TestAddSentenceMonotonicCounts(t *testing.T) {
	sentence := []string{"Lorem", "ipsum", "dolor", "sit", "amet,"}
	m := newTestModel(t, "Lorem ipsum dolor sit amet,", 1)

	m.AddSentence(sentence)
	sizeBefore := m.Size()
	before := m.Table().Clone()

	m.AddSentence(sentence)
	if m.Size() != sizeBefore {
		t.Errorf("re-adding a known sentence changed size from %d to %d", sizeBefore, m.Size())
	}
	for _, ctx := range before.Contexts() {
		oldFollowers, _ := before.Get(ctx)
		newFollowers, ok := m.Table().Get(ctx)
		if !ok {
			t.Fatalf("context %s disappeared", ctx)
		}
		for _, item := range oldFollowers.Items() {
			if got := newFollowers.Count(item.Token); got < item.Count {
				t.Errorf("count of %q after %s decreased from %d to %d", item.Token, ctx, item.Count, got)
			}
		}
	}

	followers, _ := m.Table().Get(NewContext("Lorem"))
	if followers.Count("ipsum") != 3 {
		t.Errorf("expected 'Lorem' -> 'ipsum' to be counted 3 times, got %d", followers.Count("ipsum"))
	}
}

func TestAddSentenceNewContextsGrowSize(t *testing.T) {
	m := newTestModel(t, testCorpus, 1)
	before := m.Size()

	m.AddSentence([]string{"entirely", "unseen", "words"})
	if m.Size() != before+3 {
		t.Errorf("expected size to grow by 3, went from %d to %d", before, m.Size())
	}
}

func TestAddSentenceEmptyIsNoop(t *testing.T) {
	m := newTestModel(t, fishCorpus, 1)
	before := m.Table().Clone()

	m.AddSentence(nil)
	m.AddSentence([]string{})
	if !m.Table().Equal(before) {
		t.Error("adding an empty sentence changed the table")
	}
	if m.Stale() {
		t.Error("adding an empty sentence should not mark the model stale")
	}
}

func TestSizeFormula(t *testing.T) {
	testCases := []struct {
		corpus   string
		order    int
		expected int
	}{
		{corpus: "", order: 1, expected: -3},
		{corpus: "a b", order: 1, expected: 0},      // START, a, b
		{corpus: fishCorpus, order: 1, expected: 3}, // START, one, fish, two, red, blue
		{corpus: fishCorpus, order: 2, expected: 5}, // 9 contexts
		{corpus: "a", order: 3, expected: -3},       // 2 contexts
	}

	for _, tc := range testCases {
		m := newTestModel(t, tc.corpus, tc.order)
		if m.Size() != tc.expected {
			t.Errorf("corpus %q order %d: expected size %d, got %d", tc.corpus, tc.order, tc.expected, m.Size())
		}
	}
}

func TestSizeStableAcrossRestore(t *testing.T) {
	testCases := []struct {
		corpus string
		order  int
	}{
		{corpus: "", order: 1},
		{corpus: "", order: 3},
		{corpus: fishCorpus, order: 2},
	}

	for _, tc := range testCases {
		m := newTestModel(t, tc.corpus, tc.order)
		restored, err := Restore(m.Name(), m.Order(), m.Serialized())
		if err != nil {
			t.Fatalf("corpus %q order %d: Restore() error = %v", tc.corpus, tc.order, err)
		}
		if restored.Size() != m.Size() {
			t.Errorf("corpus %q order %d: size %d before save, %d after restore", tc.corpus, tc.order, m.Size(), restored.Size())
		}
	}
}

func TestNewWithTable(t *testing.T) {
	table := NewTable()
	table.Add(NewContext(StartToken), "hi", 2)
	table.Add(NewContext("hi"), EndToken, 2)

	m, err := New(WithTable(table), WithCorpus("ignored corpus"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !m.Table().Equal(table) {
		t.Error("expected the seeded table to be used as is")
	}
	if _, ok := m.Table().Get(NewContext("ignored")); ok {
		t.Error("corpus should not be processed when a table is supplied")
	}
	if m.Size() != -1 {
		t.Errorf("expected size -1, got %d", m.Size())
	}

	_, err = New(WithTable(table), WithOrder(2))
	if !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("expected ErrInvalidOrder for a table of the wrong order, got %v", err)
	}
}

func TestContext(t *testing.T) {
	a := NewContext("x", "y")
	b := NewContext("x", "y")
	c := NewContext("x y")
	if a != b {
		t.Error("contexts with the same tokens must be equal")
	}
	if a == c {
		t.Error("contexts with different tokens must differ")
	}
	if a.Len() != 2 || c.Len() != 1 {
		t.Errorf("unexpected lengths: %d, %d", a.Len(), c.Len())
	}
	tokens := a.Tokens()
	if len(tokens) != 2 || tokens[0] != "x" || tokens[1] != "y" {
		t.Errorf("unexpected tokens: %v", tokens)
	}
	if a.String() != "(x, y)" {
		t.Errorf("unexpected string form %q", a.String())
	}

	seen := map[Context]int{a: 1}
	if seen[b] != 1 {
		t.Error("equal contexts must hash to the same map entry")
	}

	// Token text never leaks into the token boundaries.
	testCases := [][]string{
		{"a\x1fb"},
		{"a", "b"},
		{"1:a", "b"},
		{"", ""},
		{""},
		{"x:", ":y", "3:abc"},
	}
	for i, tokens := range testCases {
		ctx := NewContext(tokens...)
		if ctx.Len() != len(tokens) {
			t.Errorf("case %d: Len() = %d, want %d", i, ctx.Len(), len(tokens))
		}
		got := ctx.Tokens()
		if len(got) != len(tokens) {
			t.Fatalf("case %d: Tokens() = %q, want %q", i, got, tokens)
		}
		for j := range tokens {
			if got[j] != tokens[j] {
				t.Errorf("case %d: Tokens() = %q, want %q", i, got, tokens)
			}
		}
		for k, other := range testCases {
			if k != i && NewContext(other...) == ctx {
				t.Errorf("contexts %q and %q collide", tokens, other)
			}
		}
	}
}

func BenchmarkAddCorpus(b *testing.B) {
	corpus := benchmarkCorpus()
	for _, order := range []int{1, 2, 3} {
		b.Run(fmt.Sprintf("order%d", order), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(corpus)))
			for i := 0; i < b.N; i++ {
				m, _ := New(WithOrder(order))
				m.AddCorpus(corpus)
			}
		})
	}
}
