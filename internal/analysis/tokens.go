package analysis

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates prompt sizes for audit metadata.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter loads the o200k encoding. A load failure yields a counter
// that reports zero.
func NewTokenCounter() *TokenCounter {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Token counting disabled")
		return &TokenCounter{}
	}
	return &TokenCounter{codec: codec}
}

// Count returns the number of tokens across texts.
func (c *TokenCounter) Count(texts ...string) int {
	if c == nil || c.codec == nil {
		return 0
	}
	total := 0
	for _, t := range texts {
		ids, _, err := c.codec.Encode(t)
		if err != nil {
			return 0
		}
		total += len(ids)
	}
	return total
}
