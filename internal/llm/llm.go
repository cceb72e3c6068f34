// Package llm holds the chat-completion clients used to generate page bodies.
package llm

import (
	"context"
	"errors"
)

// ErrNoCompletion is returned when a provider answers without any choices.
var ErrNoCompletion = errors.New("no completion returned")

// ChatClient sends one user prompt and returns the model's reply.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}
