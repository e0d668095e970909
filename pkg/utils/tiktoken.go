// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with a tiktoken codec.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // codec construction is expensive; share one per process
var (
	sharedOnce    sync.Once
	sharedCounter *TokenCounter
)

// NewTokenCounter creates a token counter. Every provider is approximated
// with the GPT-4 encoding; exact counts come from provider usage when present.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens with a shared GPT-4 counter, falling back to
// a four-characters-per-token estimate.
func CountTokensSimple(text string) int {
	sharedOnce.Do(func() {
		sharedCounter, _ = NewTokenCounter("gpt-4")
	})
	return sharedCounter.CountTokens(text)
}
