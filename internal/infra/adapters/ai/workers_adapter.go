package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/infra/metrics"
)

var _ adapter.Engine = (*WorkersAIAdapter)(nil)

// WorkersAIAdapter calls the Workers AI REST endpoint
// POST {base}/accounts/{account}/ai/run/{model}. Depending on the model the
// result is a bare string, {response, tool_calls} or an OpenAI-style choice list.
type WorkersAIAdapter struct {
	account string
	token   string
	base    string
	model   string
	format  string
	maxOut  int
	client  *http.Client
}

func NewWorkersAIAdapter(account, token, base, model, format string, maxOut int) (*WorkersAIAdapter, error) {
	if account == "" || token == "" {
		return nil, errors.New("workers ai account or token empty")
	}
	if model == "" {
		model = "@hf/nousresearch/hermes-2-pro-mistral-7b"
	}
	if base == "" {
		base = "https://api.cloudflare.com/client/v4"
	}
	if format == "" {
		format = "native"
		if strings.HasPrefix(model, "@cf/qwen/") {
			format = "choices"
		}
	}
	return &WorkersAIAdapter{
		account: account,
		token:   token,
		base:    strings.TrimRight(base, "/"),
		model:   model,
		format:  format,
		maxOut:  maxOut,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (w *WorkersAIAdapter) Name() string           { return "workers-ai" }
func (w *WorkersAIAdapter) ResponseFormat() string { return w.format }

type workersMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	Name       string            `json:"name,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []workersToolCall `json:"tool_calls,omitempty"`
}

type workersToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type workersTool struct {
	Type     string           `json:"type"`
	Function adapter.ToolSpec `json:"function"`
}

func (w *WorkersAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (adapter.Output, error) {
	body := struct {
		Messages  []workersMessage `json:"messages"`
		Tools     []workersTool    `json:"tools,omitempty"`
		MaxTokens int              `json:"max_tokens,omitempty"`
	}{MaxTokens: w.maxOut}
	for _, t := range req.Turns {
		m := workersMessage{Role: t.Role, Content: t.Content, Name: t.Name, ToolCallID: t.ToolCallID}
		for _, c := range t.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, workersToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
		}
		body.Messages = append(body.Messages, m)
	}
	// the native API has no tool_choice; omitting tools forces a text answer
	if req.ToolChoice != adapter.ToolChoiceNone {
		for _, s := range req.Tools {
			body.Tools = append(body.Tools, workersTool{Type: "function", Function: s})
		}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", w.base, w.account, w.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+w.token)

	start := time.Now()
	resp, err := w.client.Do(httpReq)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveChatUsage(w.Name(), w.model, 0, 0, 0, latency, false)
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		metrics.ObserveChatUsage(w.Name(), w.model, 0, 0, 0, latency, false)
		return nil, classifyStatus(resp.StatusCode, fmt.Errorf("workers ai http %d: %s", resp.StatusCode, truncateBody(raw)))
	}

	var envelope struct {
		Result  json.RawMessage `json:"result"`
		Success bool            `json:"success"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		metrics.ObserveChatUsage(w.Name(), w.model, 0, 0, 0, latency, false)
		return nil, fmt.Errorf("workers ai: decode envelope: %w", err)
	}
	if !envelope.Success && len(envelope.Errors) > 0 {
		metrics.ObserveChatUsage(w.Name(), w.model, 0, 0, 0, latency, false)
		return nil, fmt.Errorf("workers ai: %s", envelope.Errors[0].Message)
	}

	out := parseWorkersResult(envelope.Result)
	in := EstimateTurns(w.model, req.Turns)
	var outText string
	if s, ok := out.(adapter.TextOutput); ok {
		outText = s.Text
	} else if n, ok := out.(adapter.NativeOutput); ok {
		outText = n.Response
	}
	outTok := EstimateTokens(w.model, outText)
	metrics.ObserveChatUsage(w.Name(), w.model, in, outTok, in+outTok, latency, true)
	return out, nil
}

// parseWorkersResult classifies the result payload into one of the output shapes.
func parseWorkersResult(raw json.RawMessage) adapter.Output {
	if len(raw) == 0 {
		return adapter.RawOutput{Body: json.RawMessage("null")}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return adapter.TextOutput{Text: s}
	}

	var probe struct {
		Response  *string           `json:"response"`
		ToolCalls []workersToolCall `json:"tool_calls"`
		Choices   []struct {
			Index   int `json:"index"`
			Message struct {
				Role      string `json:"role"`
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return adapter.RawOutput{Body: raw}
	}
	switch {
	case len(probe.Choices) > 0:
		out := adapter.ChoiceListOutput{}
		for _, c := range probe.Choices {
			msg := adapter.ChoiceMessage{Role: c.Message.Role, Content: c.Message.Content}
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, adapter.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: rawArgs(tc.Function.Arguments),
				})
			}
			out.Choices = append(out.Choices, adapter.Choice{Index: c.Index, Message: msg, FinishReason: c.FinishReason})
		}
		return out
	case probe.Response != nil || len(probe.ToolCalls) > 0:
		out := adapter.NativeOutput{}
		if probe.Response != nil {
			out.Response = *probe.Response
		}
		for _, tc := range probe.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, adapter.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		return out
	}
	return adapter.RawOutput{Body: raw}
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
