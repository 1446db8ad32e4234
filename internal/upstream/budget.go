package upstream

import (
	"errors"
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// ErrPromptTooLong is returned when a prompt exceeds the token budget.
var ErrPromptTooLong = errors.New("prompt exceeds the token limit")

// PromptBudget counts prompt tokens with the cl100k_base encoding.
type PromptBudget struct {
	limit int
	codec tokenizer.Codec
}

// NewPromptBudget returns a budget of limit tokens. A limit of zero or less
// disables the check.
func NewPromptBudget(limit int) (*PromptBudget, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}
	return &PromptBudget{limit: limit, codec: codec}, nil
}

// Count returns the number of tokens in prompt.
func (b *PromptBudget) Count(prompt string) int {
	ids, _, _ := b.codec.Encode(prompt)
	return len(ids)
}

// Check returns the token count, and ErrPromptTooLong when it is over the limit.
func (b *PromptBudget) Check(prompt string) (int, error) {
	n := b.Count(prompt)
	if b.limit > 0 && n > b.limit {
		return n, fmt.Errorf("%w: %d tokens, limit %d", ErrPromptTooLong, n, b.limit)
	}
	return n, nil
}
