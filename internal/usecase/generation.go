package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/tools"
)

// DefaultMaxRounds bounds engine round-trips per question.
const DefaultMaxRounds = 5

// DegradedNotice is the answer when the round bound is hit without any usable text.
const DegradedNotice = "Sorry, I couldn't finish working out an answer this time. Please try asking again in a moment."

// Tool call outcomes reported to the Observer.
const (
	ToolOK          = "ok"
	ToolUnknown     = "unknown"
	ToolInvalidArgs = "invalid_arguments"
	ToolFailed      = "failed"
)

// ToolRegistry is the part of tools.Registry the generation loop needs.
type ToolRegistry interface {
	List() []tools.Descriptor
	Specs() []adapter.ToolSpec
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// AnswerGenerator answers one question.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string) (string, error)
}

var _ AnswerGenerator = (*GenerationLoop)(nil)

type GenerationOptions struct {
	Persona   string
	MaxRounds int
	Adapter   ResponseAdapter // defaults to the engine's declared format
	Observer  Observer
}

// GenerationLoop drives engine/tool round-trips until the engine answers.
type GenerationLoop struct {
	engine    adapter.Engine
	registry  ToolRegistry
	adapter   ResponseAdapter
	persona   string
	maxRounds int
	obs       Observer
	log       *zerolog.Logger
}

func NewGenerationLoop(engine adapter.Engine, registry ToolRegistry, opts GenerationOptions, log *zerolog.Logger) *GenerationLoop {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "generation").Logger()
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Adapter == nil {
		opts.Adapter = ResponseAdapterFor(engine.ResponseFormat(), &l)
	}
	return &GenerationLoop{
		engine:    engine,
		registry:  registry,
		adapter:   opts.Adapter,
		persona:   opts.Persona,
		maxRounds: opts.MaxRounds,
		obs:       observerOrNop(opts.Observer),
		log:       &l,
	}
}

// Generate answers question. Engine failures are returned for the caller to retry;
// tool failures are fed back to the engine as observations.
func (g *GenerationLoop) Generate(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", domain.Permanent(domain.ErrEmptyQuestion)
	}

	var (
		descs []tools.Descriptor
		specs []adapter.ToolSpec
	)
	if g.registry != nil {
		descs = g.registry.List()
		specs = g.registry.Specs()
	}

	turns := []adapter.Turn{
		{Role: adapter.RoleSystem, Content: BuildSystemPrompt(g.persona, descs)},
		{Role: adapter.RoleUser, Content: question},
	}

	var partial string
	for round := 1; round <= g.maxRounds; round++ {
		final := round == g.maxRounds
		req := adapter.GenerateRequest{Turns: turns}
		if len(specs) > 0 {
			req.Tools = specs
			req.ToolChoice = adapter.ToolChoiceAuto
			if final {
				req.ToolChoice = adapter.ToolChoiceNone
			}
		}

		out, err := g.engine.Generate(ctx, req)
		if err != nil {
			return "", fmt.Errorf("engine %s round %d: %w", g.engine.Name(), round, err)
		}

		calls := toolCallsOf(out)
		if len(calls) == 0 {
			g.obs.GenerationFinished(round, false)
			return g.adapter.ExtractResponse(out), nil
		}

		content := contentOf(out)
		if content != "" {
			partial = content
		}
		if final {
			break
		}

		g.log.Debug().Int("round", round).Int("tool_calls", len(calls)).Msg("engine requested tools")
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}
		turns = append(turns, adapter.Turn{Role: adapter.RoleAssistant, Content: content, ToolCalls: calls})
		for _, call := range calls {
			turns = append(turns, adapter.Turn{
				Role:       adapter.RoleTool,
				Content:    g.invoke(ctx, call),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	g.log.Warn().Int("max_rounds", g.maxRounds).Bool("partial", partial != "").Msg("round bound reached while engine still requested tools")
	g.obs.GenerationFinished(g.maxRounds, true)
	if partial != "" {
		return partial, nil
	}
	return DegradedNotice, nil
}

func (g *GenerationLoop) invoke(ctx context.Context, call adapter.ToolCall) string {
	if g.registry == nil {
		g.obs.ToolCalled(call.Name, ToolUnknown)
		return `{"error":"no tools are available"}`
	}
	out, err := g.registry.Invoke(ctx, call.Name, call.Arguments)
	if err == nil {
		g.obs.ToolCalled(call.Name, ToolOK)
		return out
	}

	outcome := ToolFailed
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		outcome = ToolUnknown
	case errors.Is(err, tools.ErrInvalidArguments):
		outcome = ToolInvalidArgs
	}
	g.obs.ToolCalled(call.Name, outcome)
	g.log.Warn().Err(err).Str("tool", call.Name).Str("outcome", outcome).Msg("tool call failed")

	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

func toolCallsOf(out adapter.Output) []adapter.ToolCall {
	switch o := out.(type) {
	case adapter.ToolCallOutput:
		return o.Calls
	case *adapter.ToolCallOutput:
		if o != nil {
			return o.Calls
		}
	case adapter.NativeOutput:
		return o.ToolCalls
	case *adapter.NativeOutput:
		if o != nil {
			return o.ToolCalls
		}
	case adapter.ChoiceListOutput:
		if len(o.Choices) > 0 {
			return o.Choices[0].Message.ToolCalls
		}
	case *adapter.ChoiceListOutput:
		if o != nil && len(o.Choices) > 0 {
			return o.Choices[0].Message.ToolCalls
		}
	}
	return nil
}

// contentOf returns text the engine produced next to its tool calls, if any.
func contentOf(out adapter.Output) string {
	if s, ok := textOf(out); ok {
		return s
	}
	if s, ok := choicesOf(out); ok {
		return s
	}
	if s, ok := nativeOf(out); ok {
		return s
	}
	return ""
}
