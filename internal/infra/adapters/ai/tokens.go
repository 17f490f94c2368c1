package ai

import (
	"net/http"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/ports/adapter"
)

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

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

// EstimateTokens approximates the token count of text for providers that
// report no usage. Falls back to ~4 bytes per token when no encoding loads.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// EstimateTurns sums EstimateTokens over a conversation plus a small per-turn overhead.
func EstimateTurns(model string, turns []adapter.Turn) int {
	n := 0
	for _, t := range turns {
		n += 4 + EstimateTokens(model, t.Content)
		for _, c := range t.ToolCalls {
			n += EstimateTokens(model, c.Name) + EstimateTokens(model, string(c.Arguments))
		}
	}
	return n
}

// classifyStatus marks 4xx answers other than 408 and 429 as permanent.
func classifyStatus(status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return domain.Permanent(err)
	}
	return err
}
