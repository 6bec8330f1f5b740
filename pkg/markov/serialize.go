package markov

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"

	"github.com/goccy/go-json"
)

// Serialize encodes the table into the model's serialized form: a JSON array
// of [context-tokens, {follower: count}] pairs. Contexts appear in insertion
// order and follower keys are sorted, so equal tables built the same way
// always encode identically.
func (m *Model) Serialize() error {
	data, err := EncodeTable(m.table)
	if err != nil {
		return fmt.Errorf("could not serialize model '%s': %w", m.name, err)
	}
	m.serialized = string(data)
	m.stale = false
	return nil
}

// Serialized returns the encoding produced by the last Serialize.
func (m *Model) Serialized() string {
	return m.serialized
}

// Deserialize replaces the table with the one decoded from the serialized
// form. On error the current table is left untouched.
func (m *Model) Deserialize() error {
	table, err := DecodeTable([]byte(m.serialized), m.order)
	if err != nil {
		return err
	}
	m.table = table
	m.recomputeSize()
	m.stale = false

	m.logger.Debug("Model deserialized",
		slog.String("model_name", m.name),
		slog.Int("contexts", table.Len()),
	)
	return nil
}

// EncodeTable writes t in the pair-list format.
func EncodeTable(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, ctx := range t.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		ctxJSON, err := json.Marshal(ctx.Tokens())
		if err != nil {
			return nil, err
		}
		// Maps are encoded with sorted keys.
		followersJSON, err := json.Marshal(t.entries[ctx].Map())
		if err != nil {
			return nil, err
		}
		buf.WriteByte('[')
		buf.Write(ctxJSON)
		buf.WriteByte(',')
		buf.Write(followersJSON)
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// DecodeTable parses the pair-list format. Every context must hold exactly
// order tokens and every count must be positive. Errors wrap
// ErrMalformedSerialization and name the offending pair.
func DecodeTable(data []byte, order int) (*Table, error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("%w: expected an array of pairs: %v", ErrMalformedSerialization, err)
	}
	if pairs == nil && !bytes.Equal(bytes.TrimSpace(data), []byte("[]")) {
		return nil, fmt.Errorf("%w: expected an array of pairs, got null", ErrMalformedSerialization)
	}

	table := NewTable()
	for i, raw := range pairs {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("%w: pair %d: expected a two element array: %v", ErrMalformedSerialization, i, err)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: pair %d: expected 2 elements, got %d", ErrMalformedSerialization, i, len(pair))
		}

		var tokens []string
		if err := json.Unmarshal(pair[0], &tokens); err != nil || tokens == nil {
			return nil, fmt.Errorf("%w: pair %d: context is not a list of strings", ErrMalformedSerialization, i)
		}
		if len(tokens) != order {
			return nil, fmt.Errorf("%w: pair %d: context has %d tokens, want %d", ErrMalformedSerialization, i, len(tokens), order)
		}

		var followers map[string]int
		if err := json.Unmarshal(pair[1], &followers); err != nil || followers == nil {
			return nil, fmt.Errorf("%w: pair %d: followers are not a map of counts", ErrMalformedSerialization, i)
		}
		if len(followers) == 0 {
			return nil, fmt.Errorf("%w: pair %d: context has no followers", ErrMalformedSerialization, i)
		}

		ctx := NewContext(tokens...)
		if _, dup := table.Get(ctx); dup {
			return nil, fmt.Errorf("%w: pair %d: duplicate context %s", ErrMalformedSerialization, i, ctx)
		}

		names := make([]string, 0, len(followers))
		for token := range followers {
			names = append(names, token)
		}
		sort.Strings(names)
		for _, token := range names {
			count := followers[token]
			if count < 1 {
				return nil, fmt.Errorf("%w: pair %d: follower '%s' has count %d", ErrMalformedSerialization, i, token, count)
			}
			table.Add(ctx, token, count)
		}
	}
	return table, nil
}
