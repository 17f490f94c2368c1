package adapter

import (
	"context"
	"encoding/json"
)

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation requested by the engine.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Turn is one conversation message sent to the engine.
type Turn struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant turns that requested tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool turns
	Name       string     `json:"name,omitempty"`         // tool turns
}

// ToolSpec is the engine-facing schema of a callable tool.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

type GenerateRequest struct {
	Turns      []Turn
	Tools      []ToolSpec
	ToolChoice ToolChoice
}

// Output is one engine reply. The set of implementations is closed: TextOutput,
// ChoiceListOutput, NativeOutput, ToolCallOutput and RawOutput.
type Output interface {
	isOutput()
}

// TextOutput is a bare string reply.
type TextOutput struct {
	Text string `json:"text"`
}

// ChoiceMessage is the message of an OpenAI-style choice.
type ChoiceMessage struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// ChoiceListOutput is the OpenAI-compatible {choices:[{message:{content}}]} shape.
type ChoiceListOutput struct {
	Choices []Choice `json:"choices"`
}

// NativeOutput is the {response: "..."} wrapper used by Workers AI style runtimes.
type NativeOutput struct {
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCallOutput is a structured tool-call request. Content is any text the engine
// produced alongside the calls.
type ToolCallOutput struct {
	Calls   []ToolCall `json:"tool_calls"`
	Content string     `json:"content,omitempty"`
}

// RawOutput carries a payload whose shape the engine could not classify.
type RawOutput struct {
	Body json.RawMessage `json:"body"`
}

func (TextOutput) isOutput()       {}
func (ChoiceListOutput) isOutput() {}
func (NativeOutput) isOutput()     {}
func (ToolCallOutput) isOutput()   {}
func (RawOutput) isOutput()        {}

// Usage for a single engine call, when the provider reports it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Engine is the port for one text-generation round-trip.
type Engine interface {
	// Name is the provider label used in logs and metrics.
	Name() string
	// ResponseFormat names the output shape the engine natively emits:
	// "text", "choices" or "native".
	ResponseFormat() string
	Generate(ctx context.Context, req GenerateRequest) (Output, error)
}
