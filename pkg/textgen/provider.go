// Package textgen defines the Generator interface for text-generation
// backends used to draft corpus sentences.
//
// A generator wraps a remote or local model API (e.g., OpenAI, Anthropic, or
// a local Ollama instance) behind a single completion call so the corpus
// workflow never couples to a specific SDK.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package textgen

import "context"

// Usage holds token accounting information returned by the backend.
// Counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the system and user
	// prompts.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// Request carries everything the backend needs to produce a completion.
// UserPrompt must be non-empty.
type Request struct {
	// SystemPrompt is a high-priority instruction injected before the user
	// prompt. Backends without a dedicated system channel should prepend it
	// as a system-role message.
	SystemPrompt string

	// UserPrompt is the request body driving the completion.
	UserPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the backend default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means backend default.
	MaxTokens int

	// JSONOnly asks the backend to constrain output to a single JSON object
	// where the API supports it. Backends without native support may ignore
	// this field; callers must still parse defensively.
	JSONOnly bool
}

// Response is the full completion for one request.
type Response struct {
	// Content is the text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Generator is the abstraction over any text-generation backend.
type Generator interface {
	// Generate sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend for logging and metrics (e.g., "openai").
	Name() string
}
