package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/infra/metrics"
)

var _ adapter.Engine = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini engine using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Name() string           { return "gemini" }
func (g *GeminiAdapter) ResponseFormat() string { return "text" }

func (g *GeminiAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (adapter.Output, error) {
	system, contents := toGenAIContents(req.Turns)
	if len(contents) == 0 {
		return nil, errors.New("gemini: no messages")
	}
	cfg := &genai.GenerateContentConfig{}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == adapter.ToolChoiceNone {
			mode = genai.FunctionCallingConfigModeNone
		}
		cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, contents, cfg)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveChatUsage("gemini", g.defaultModel, 0, 0, 0, latency, false)
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyStatus(apiErr.Code, err)
		}
		return nil, err
	}

	if resp.UsageMetadata != nil {
		metrics.ObserveChatUsage("gemini", g.defaultModel,
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
			int(resp.UsageMetadata.TotalTokenCount), latency, true)
	} else {
		metrics.ObserveChatUsage("gemini", g.defaultModel, 0, 0, 0, latency, true)
	}

	text := resp.Text()
	if calls := resp.FunctionCalls(); len(calls) > 0 {
		out := adapter.ToolCallOutput{Content: text}
		for _, fc := range calls {
			args, _ := json.Marshal(fc.Args)
			out.Calls = append(out.Calls, adapter.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args})
		}
		return out, nil
	}
	return adapter.TextOutput{Text: text}, nil
}

// toGenAIContents splits system turns into the system instruction and maps
// the rest onto Gemini's user/model roles. Tool results become function responses.
func toGenAIContents(turns []adapter.Turn) (string, []*genai.Content) {
	var sys []string
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case adapter.RoleSystem:
			sys = append(sys, t.Content)
		case adapter.RoleAssistant:
			parts := []*genai.Part{}
			if t.Content != "" {
				parts = append(parts, genai.NewPartFromText(t.Content))
			}
			for _, c := range t.ToolCalls {
				args := map[string]any{}
				_ = json.Unmarshal(c.Arguments, &args)
				p := genai.NewPartFromFunctionCall(c.Name, args)
				p.FunctionCall.ID = c.ID
				parts = append(parts, p)
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
		case adapter.RoleTool:
			resp := map[string]any{}
			if err := json.Unmarshal([]byte(t.Content), &resp); err != nil {
				resp = map[string]any{"output": t.Content}
			}
			p := genai.NewPartFromFunctionResponse(t.Name, resp)
			p.FunctionResponse.ID = t.ToolCallID
			out = append(out, genai.NewContentFromParts([]*genai.Part{p}, genai.RoleUser))
		default:
			out = append(out, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}
	return strings.Join(sys, "\n\n"), out
}
