package ai

import "context"

// Message is the raw text returned by a language model invocation.
type Message struct {
	Content string
}

// LLM describes a language model capable of answering a single prompt.
// Retries, timeouts and response validation are the caller's responsibility.
type LLM interface {
	Invoke(ctx context.Context, prompt string) (Message, error)
}
