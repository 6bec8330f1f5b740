package markov

import (
	"errors"
	"strings"
	"testing"
)

func TestSerializationRoundTrip(t *testing.T) {
	for _, order := range []int{1, 2, 3} {
		m := newTestModel(t, testCorpus, order)
		previous := m.Table().Clone()

		if err := m.Serialize(); err != nil {
			t.Fatalf("order %d: Serialize() error = %v", order, err)
		}
		if err := m.Deserialize(); err != nil {
			t.Fatalf("order %d: Deserialize() error = %v", order, err)
		}
		if !previous.Equal(m.Table()) {
			t.Errorf("order %d: table changed across a serialize/deserialize round trip", order)
		}
	}
}

func TestSerializeFormat(t *testing.T) {
	m := newTestModel(t, "a b. a c", 1)

	expected := `[[["START"],{"a":2}],[["a"],{"b":1,"c":1}],[["b"],{"END":1}],[["c"],{"END":1}]]`
	if m.Serialized() != expected {
		t.Errorf("unexpected encoding\n got: %s\nwant: %s", m.Serialized(), expected)
	}
}

func TestSerializeDeterministic(t *testing.T) {
	a := newTestModel(t, testCorpus, 2)
	b := newTestModel(t, testCorpus, 2)
	if a.Serialized() != b.Serialized() {
		t.Error("two models built from the same corpus encoded differently")
	}

	// Re-encoding a decoded table must give the same text back.
	restored, err := Restore("copy", 2, a.Serialized())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if err = restored.Serialize(); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if restored.Serialized() != a.Serialized() {
		t.Error("encoding is not stable across a save/load cycle")
	}
}

func TestDeserializeMalformed(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		errorContains string
	}{
		{name: "Not JSON", input: "this is not json", errorContains: "array of pairs"},
		{name: "Object instead of array", input: `{"START":{"a":1}}`, errorContains: "array of pairs"},
		{name: "Null", input: "null", errorContains: "null"},
		{name: "Pair too short", input: `[[["START"]]]`, errorContains: "pair 0: expected 2 elements"},
		{name: "Pair too long", input: `[[["START"],{"a":1},3]]`, errorContains: "pair 0: expected 2 elements"},
		{name: "Pair is not an array", input: `["START"]`, errorContains: "pair 0"},
		{name: "Context of wrong order", input: `[[["START","START"],{"a":1}]]`, errorContains: "context has 2 tokens, want 1"},
		{name: "Context is not strings", input: `[[[1],{"a":1}]]`, errorContains: "context is not a list of strings"},
		{name: "Zero count", input: `[[["START"],{"a":0}]]`, errorContains: "has count 0"},
		{name: "Negative count", input: `[[["START"],{"a":-2}]]`, errorContains: "has count -2"},
		{name: "No followers", input: `[[["START"],{}]]`, errorContains: "no followers"},
		{name: "Duplicate context", input: `[[["START"],{"a":1}],[["START"],{"b":1}]]`, errorContains: "pair 1: duplicate context"},
		{name: "Second pair broken", input: `[[["START"],{"a":1}],[["a"],"END"]]`, errorContains: "pair 1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t, fishCorpus, 1)
			before := m.Table().Clone()
			sizeBefore := m.Size()

			m.serialized = tc.input
			err := m.Deserialize()
			if !errors.Is(err, ErrMalformedSerialization) {
				t.Fatalf("expected ErrMalformedSerialization, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.errorContains) {
				t.Errorf("expected error to contain %q, but got %q", tc.errorContains, err.Error())
			}
			if !m.Table().Equal(before) || m.Size() != sizeBefore {
				t.Error("a failed Deserialize must leave the table untouched")
			}
		})
	}
}

func TestSerializationRoundTripControlBytes(t *testing.T) {
	for _, order := range []int{1, 2} {
		m := newTestModel(t, "a\x1fb c. d\x00e a\x1fb", order)
		restored, err := Restore(m.Name(), order, m.Serialized())
		if err != nil {
			t.Fatalf("order %d: Restore() of the model's own encoding failed: %v", order, err)
		}
		if !restored.Table().Equal(m.Table()) {
			t.Errorf("order %d: table changed across a save/load cycle", order)
		}
		if restored.Size() != m.Size() {
			t.Errorf("order %d: size %d before save, %d after restore", order, m.Size(), restored.Size())
		}
		if order == 1 {
			if _, ok := restored.Table().Get(NewContext("a\x1fb")); !ok {
				t.Error("expected a\\x1fb to survive as a single token")
			}
		}
	}
}

func TestRestore(t *testing.T) {
	original := newTestModel(t, fishCorpus, 2, WithName("fish"))

	restored, err := Restore(original.Name(), original.Order(), original.Serialized())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.Name() != "fish" || restored.Order() != 2 || restored.Size() != original.Size() {
		t.Errorf("unexpected restored metadata: name=%q order=%d size=%d", restored.Name(), restored.Order(), restored.Size())
	}
	if !restored.Table().Equal(original.Table()) {
		t.Error("restored table differs from the original")
	}

	if _, err = Restore("fish", 1, original.Serialized()); !errors.Is(err, ErrMalformedSerialization) {
		t.Errorf("restoring with the wrong order should fail with ErrMalformedSerialization, got %v", err)
	}
	if _, err = Restore("fish", 0, "[]"); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("expected ErrInvalidOrder, got %v", err)
	}
}

// Generation reads the live table, so sentences added after the last
// Serialize are visible to Generate while Serialized still holds the old text.
func TestStaleSerializationAndLiveGeneration(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.AddSentence([]string{"hello", "world"})
	if !m.Stale() {
		t.Error("expected the model to be stale after AddSentence")
	}
	if m.Serialized() != "[]" {
		t.Errorf("AddSentence must not refresh the serialized form, got %q", m.Serialized())
	}

	output, err := m.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if output != "hello world" {
		t.Errorf("expected generation from the live table, got %q", output)
	}

	if err = m.Serialize(); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if m.Stale() {
		t.Error("expected Serialize to clear the stale flag")
	}
	if !strings.Contains(m.Serialized(), `"hello"`) {
		t.Errorf("expected the refreshed encoding to contain the new sentence, got %s", m.Serialized())
	}
}
