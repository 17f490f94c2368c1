package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/infra/metrics"
)

var _ adapter.Engine = (*OpenAIAdapter)(nil)

// OpenAIAdapter drives any OpenAI-compatible Chat Completions endpoint.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	maxOut int
	name   string
}

// NewOpenAIAdapter builds the engine. baseURL may be empty for api.openai.com.
func NewOpenAIAdapter(apiKey, baseURL, model string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(60 * time.Second),
		option.WithMaxRetries(0), // the step runner owns retries
	}
	name := "openai"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
		name = "openai-compatible"
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  model,
		maxOut: maxOut,
		name:   name,
	}, nil
}

func (o *OpenAIAdapter) Name() string           { return o.name }
func (o *OpenAIAdapter) ResponseFormat() string { return "choices" }

func (o *OpenAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (adapter.Output, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: toOpenAIMessages(req.Turns),
	}
	if o.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
		choice := string(req.ToolChoice)
		if choice == "" {
			choice = string(adapter.ToolChoiceAuto)
		}
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(choice)}
		params.ParallelToolCalls = openai.Bool(false)
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveChatUsage(o.name, o.model, 0, 0, 0, latency, false)
		return nil, classifyOpenAIError(err)
	}

	out := adapter.ChoiceListOutput{}
	for _, c := range resp.Choices {
		msg := adapter.ChoiceMessage{Role: adapter.RoleAssistant, Content: c.Message.Content}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, adapter.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: rawArgs(tc.Function.Arguments),
			})
		}
		out.Choices = append(out.Choices, adapter.Choice{
			Index:        int(c.Index),
			Message:      msg,
			FinishReason: string(c.FinishReason),
		})
	}

	in, outTok, total := int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens), int(resp.Usage.TotalTokens)
	if total == 0 {
		in = EstimateTurns(o.model, req.Turns)
		if len(out.Choices) > 0 {
			outTok = EstimateTokens(o.model, out.Choices[0].Message.Content)
		}
		total = in + outTok
	}
	metrics.ObserveChatUsage(o.name, o.model, in, outTok, total, latency, true)
	return out, nil
}

func toOpenAIMessages(turns []adapter.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case adapter.RoleSystem:
			out = append(out, openai.SystemMessage(t.Content))
		case adapter.RoleTool:
			out = append(out, openai.ToolMessage(t.Content, t.ToolCallID))
		case adapter.RoleAssistant:
			if len(t.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(t.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(t.ToolCalls))
			for _, tc := range t.ToolCalls {
				args := string(tc.Arguments)
				if args == "" || !json.Valid(tc.Arguments) {
					args = "{}"
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: args,
						},
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if t.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(t.Content)}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			out = append(out, openai.UserMessage(t.Content))
		}
	}
	return out
}

func toOpenAITools(specs []adapter.ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, s := range specs {
		fn := shared.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
		}
		if len(s.Parameters) > 0 {
			fn.Parameters = shared.FunctionParameters(s.Parameters)
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}

func rawArgs(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !json.Valid([]byte(s)) {
		b, _ := json.Marshal(s)
		return b
	}
	return json.RawMessage(s)
}

// classifyOpenAIError marks client errors other than 408/429 as permanent.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, err)
	}
	return err
}
