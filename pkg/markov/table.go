package markov

import (
	"strconv"
	"strings"
)

// Context is the fixed-length, ordered run of tokens used as a lookup key into
// a Table. It is a comparable value type, so two contexts holding the same
// tokens in the same order are equal and hash identically.
//
// The key stores every token as "<byte length>:<token>", so any token text,
// separators and control bytes included, round-trips unchanged.
type Context struct {
	key string
	n   int
}

// NewContext builds a Context from the given tokens.
func NewContext(tokens ...string) Context {
	var b strings.Builder
	for _, token := range tokens {
		b.WriteString(strconv.Itoa(len(token)))
		b.WriteByte(':')
		b.WriteString(token)
	}
	return Context{key: b.String(), n: len(tokens)}
}

// startContext returns the context of `order` START tokens.
func startContext(order int) Context {
	tokens := make([]string, order)
	for i := range tokens {
		tokens[i] = StartToken
	}
	return NewContext(tokens...)
}

// Tokens returns a copy of the context's tokens.
func (c Context) Tokens() []string {
	tokens := make([]string, 0, c.n)
	rest := c.key
	for len(rest) > 0 {
		colon := strings.IndexByte(rest, ':')
		size, _ := strconv.Atoi(rest[:colon])
		rest = rest[colon+1:]
		tokens = append(tokens, rest[:size])
		rest = rest[size:]
	}
	return tokens
}

// Len returns the number of tokens in the context.
func (c Context) Len() int {
	return c.n
}

func (c Context) String() string {
	return "(" + strings.Join(c.Tokens(), ", ") + ")"
}

// Follower is a single possible next token and how often it was observed.
type Follower struct {
	Token string
	Count int
}

// Followers is the frequency table of tokens seen after one context. It keeps
// insertion order so that iteration, and therefore seeded sampling, is
// deterministic.
type Followers struct {
	index map[string]int
	items []Follower
	total int
}

func newFollowers() *Followers {
	return &Followers{index: make(map[string]int)}
}

// add increments the count of token by n, creating it if needed.
func (f *Followers) add(token string, n int) {
	if i, ok := f.index[token]; ok {
		f.items[i].Count += n
	} else {
		f.index[token] = len(f.items)
		f.items = append(f.items, Follower{Token: token, Count: n})
	}
	f.total += n
}

// Count returns how often token followed the context, or 0.
func (f *Followers) Count(token string) int {
	if i, ok := f.index[token]; ok {
		return f.items[i].Count
	}
	return 0
}

// Total returns the sum of all follower counts.
func (f *Followers) Total() int {
	return f.total
}

// Len returns the number of distinct followers.
func (f *Followers) Len() int {
	return len(f.items)
}

// Items returns a copy of the followers in insertion order.
func (f *Followers) Items() []Follower {
	out := make([]Follower, len(f.items))
	copy(out, f.items)
	return out
}

// Map returns the followers as a token -> count map.
func (f *Followers) Map() map[string]int {
	m := make(map[string]int, len(f.items))
	for _, item := range f.items {
		m[item.Token] = item.Count
	}
	return m
}

// Table is the transition table of a model: for every context, the tokens
// that followed it and their counts. Contexts are kept in insertion order.
type Table struct {
	entries map[Context]*Followers
	keys    []Context
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{entries: make(map[Context]*Followers)}
}

// Add records count more observations of next following ctx. Counts must be
// positive; non-positive counts are ignored.
func (t *Table) Add(ctx Context, next string, count int) {
	if count <= 0 {
		return
	}
	f, ok := t.entries[ctx]
	if !ok {
		f = newFollowers()
		t.entries[ctx] = f
		t.keys = append(t.keys, ctx)
	}
	f.add(next, count)
}

// Get returns the followers of ctx.
func (t *Table) Get(ctx Context) (*Followers, bool) {
	f, ok := t.entries[ctx]
	return f, ok
}

// Len returns the number of distinct contexts.
func (t *Table) Len() int {
	return len(t.keys)
}

// Contexts returns the table's contexts in insertion order.
func (t *Table) Contexts() []Context {
	out := make([]Context, len(t.keys))
	copy(out, t.keys)
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := NewTable()
	for _, ctx := range t.keys {
		for _, item := range t.entries[ctx].items {
			c.Add(ctx, item.Token, item.Count)
		}
	}
	return c
}

// Equal reports whether both tables hold the same contexts with the same
// follower counts. Insertion order is not compared.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.entries) != len(o.entries) {
		return false
	}
	for ctx, f := range t.entries {
		of, ok := o.entries[ctx]
		if !ok || len(f.items) != len(of.items) {
			return false
		}
		for _, item := range f.items {
			if of.Count(item.Token) != item.Count {
				return false
			}
		}
	}
	return true
}

// checkOrder returns the first context whose length is not order.
func (t *Table) checkOrder(order int) (Context, bool) {
	for _, ctx := range t.keys {
		if ctx.Len() != order {
			return ctx, false
		}
	}
	return Context{}, true
}
