package markov

// ModelStats holds aggregated statistics for a single Markov model.
type ModelStats struct {
	Contexts         int `json:"contexts"`          // The number of distinct contexts.
	TotalTransitions int `json:"total_transitions"` // The number of unique context->next_token links.
	TotalFrequency   int `json:"total_frequency"`   // The sum of all counts; the total number of trained transitions.
	StartingTokens   int `json:"starting_tokens"`   // The number of unique tokens that can start a sentence.
	Vocabulary       int `json:"vocabulary"`        // The number of unique tokens, sentinels excluded.
}

// Stats returns a snapshot of statistics for the live table.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{Contexts: m.table.Len()}
	vocab := make(map[string]struct{})

	for _, ctx := range m.table.keys {
		f := m.table.entries[ctx]
		stats.TotalTransitions += f.Len()
		stats.TotalFrequency += f.Total()
		for _, item := range f.items {
			if item.Token != EndToken {
				vocab[item.Token] = struct{}{}
			}
		}
	}

	if starters, ok := m.table.Get(startContext(m.order)); ok {
		stats.StartingTokens = starters.Len()
		if starters.Count(EndToken) > 0 {
			stats.StartingTokens--
		}
	}
	stats.Vocabulary = len(vocab)
	return stats
}
