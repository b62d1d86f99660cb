package recording

import "context"

// Store persists recording attempts.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new attempt. The attempt is validated before
	// insertion. Returns an error if an attempt with the same ID exists.
	Create(ctx context.Context, a *Attempt) error

	// Get retrieves an attempt by ID. Returns (nil, nil) if not found.
	Get(ctx context.Context, id string) (*Attempt, error)

	// PromptCounts returns, for one speaker, the number of attempts recorded
	// per prompt ID. Prompts with no attempts are absent from the map.
	PromptCounts(ctx context.Context, speakerID string) (map[string]int, error)
}
