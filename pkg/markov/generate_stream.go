package markov

import (
	"context"
	"log/slog"
)

// GenerateStream runs Generate in the background and delivers the sentence one
// token at a time. This allows for processing the generated text token-by-token,
// which is useful for real-time applications or when generating very long sequences.
//
// The token channel is closed once generation is complete or ctx is cancelled.
// The error channel then yields at most one error (ErrUnknownContext or the
// context's error) and is closed as well. The model must not be modified while
// a stream is running.
func (m *Model) GenerateStream(ctx context.Context, opts ...GenerateOption) (<-chan string, <-chan error) {
	tokenChan := make(chan string)
	errChan := make(chan error, 1)
	options := newGenerateOptions(opts)

	go func() {
		defer close(errChan)
		defer close(tokenChan)

		if m.Empty() {
			select {
			case <-ctx.Done():
			case tokenChan <- EmptyModelSentence:
			}
			return
		}

		err := m.walk(ctx, nil, options, func(token string) bool {
			select {
			case <-ctx.Done():
				return false
			case tokenChan <- token:
				return true
			}
		})
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			m.logger.DebugContext(ctx, "Generation stream stopped",
				slog.String("model_name", m.name),
				slog.Any("error", err),
			)
			errChan <- err
		}
	}()

	return tokenChan, errChan
}
