package provider

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token count of a text.
type TokenCounter func(text string) int

var (
	encMu    sync.Mutex
	encCache = make(map[string]*tiktoken.Tiktoken)
)

// NewTokenCounter returns a tiktoken-based counter for model. Unknown models
// use cl100k_base; if no encoding can be loaded (offline, no cache) the
// counter falls back to EstimateTokens.
func NewTokenCounter(model string) TokenCounter {
	return func(text string) int {
		if text == "" {
			return 0
		}
		enc := encodingFor(model)
		if enc == nil {
			return EstimateTokens(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}

func encodingFor(model string) *tiktoken.Tiktoken {
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encCache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		enc = nil
	}
	encCache[model] = enc
	return enc
}

// EstimateTokens approximates tokens as characters / 4, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// EstimateUsage fills in a usage estimate when the provider reported none.
func EstimateUsage(count TokenCounter, prompt, reply string) Usage {
	if count == nil {
		count = EstimateTokens
	}
	return Usage{InputTokens: count(prompt), OutputTokens: count(reply)}
}
