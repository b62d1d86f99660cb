package corpus

import "context"

// Store persists candidates and canonical prompts.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// StageCandidates inserts all candidates in a single transaction.
	// Either every candidate is staged or none is.
	StageCandidates(ctx context.Context, candidates []Candidate) error

	// ApproveCandidates promotes the pending candidates among ids into the
	// canonical prompt table and marks them approved, all in one
	// transaction. Unknown ids and candidates already in a terminal state
	// are skipped. Returns the number of candidates promoted.
	ApproveCandidates(ctx context.Context, ids []string) (int, error)

	// RejectCandidates marks the pending candidates among ids rejected.
	// Unknown ids and terminal candidates are skipped. Returns the number
	// of candidates rejected.
	RejectCandidates(ctx context.Context, ids []string) (int, error)

	// ListCandidates returns staged candidates with the given status,
	// newest first. An empty status returns all candidates.
	ListCandidates(ctx context.Context, status CandidateStatus) ([]Candidate, error)

	// ImportPrompts inserts prompts in a single transaction, skipping ids
	// that already exist. Returns the number of prompts actually inserted.
	ImportPrompts(ctx context.Context, prompts []Prompt) (int, error)

	// ListPrompts returns every canonical prompt in stable id order.
	ListPrompts(ctx context.Context) ([]Prompt, error)

	// GetPrompt returns the prompt with the given id, or (nil, nil) if no
	// such prompt exists.
	GetPrompt(ctx context.Context, id string) (*Prompt, error)
}
