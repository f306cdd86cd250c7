// Package providers implements the streaming text-generation backends used for
// translation and page-image extraction.
package providers

import (
	"context"
)

// Backend streams completions from a text-generation service.
type Backend interface {
	// Name returns the backend identifier (e.g., "ollama").
	Name() string

	// ListModels returns the model names the backend can serve.
	ListModels(ctx context.Context) ([]string, error)

	// Stream sends req and calls onChunk for every fragment of generated
	// text, in arrival order, on the calling goroutine. A non-nil error from
	// onChunk stops the stream and is returned.
	Stream(ctx context.Context, req *StreamRequest, onChunk func(chunk string) error) error

	// ClearHistory drops any conversation state kept between requests.
	ClearHistory()
}

// StreamRequest is a single-turn generation request.
type StreamRequest struct {
	Model  string
	System string   // system prompt, optional
	Prompt string   // user message
	Images [][]byte // raw image bytes for vision models
	Think  bool     // allow reasoning before answering
}
