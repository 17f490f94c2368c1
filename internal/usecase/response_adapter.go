package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain/ports/adapter"
)

// Response formats accepted by ResponseAdapterFor.
const (
	FormatText    = "text"
	FormatChoices = "choices"
	FormatNative  = "native"
)

// ResponseAdapter turns whatever an engine returned into answer text. It never fails
// and never returns an empty string.
type ResponseAdapter interface {
	Name() string
	ExtractResponse(out adapter.Output) string
}

// ResponseAdapterFor picks the adapter for a configured format; unknown formats get the
// plain text adapter.
func ResponseAdapterFor(format string, log *zerolog.Logger) ResponseAdapter {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "response_adapter").Logger()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatChoices:
		return &ChoiceListAdapter{log: &l}
	case FormatNative:
		return &NativeAdapter{log: &l}
	default:
		return &PlainTextAdapter{log: &l}
	}
}

// PlainTextAdapter expects engines that return a bare string.
type PlainTextAdapter struct{ log *zerolog.Logger }

func (a *PlainTextAdapter) Name() string { return FormatText }

func (a *PlainTextAdapter) ExtractResponse(out adapter.Output) string {
	if s, ok := textOf(out); ok {
		return s
	}
	if s, ok := nativeOf(out); ok {
		return s
	}
	if s, ok := choicesOf(out); ok {
		return s
	}
	return fallback(a.log, a.Name(), out)
}

// ChoiceListAdapter expects OpenAI-style {choices:[{message:{content}}]} output.
type ChoiceListAdapter struct{ log *zerolog.Logger }

func (a *ChoiceListAdapter) Name() string { return FormatChoices }

func (a *ChoiceListAdapter) ExtractResponse(out adapter.Output) string {
	if s, ok := textOf(out); ok {
		return s
	}
	if s, ok := choicesOf(out); ok {
		return s
	}
	if s, ok := nativeOf(out); ok {
		return s
	}
	return fallback(a.log, a.Name(), out)
}

// NativeAdapter expects the {response, tool_calls} wrapper some hosted runtimes return.
type NativeAdapter struct{ log *zerolog.Logger }

func (a *NativeAdapter) Name() string { return FormatNative }

func (a *NativeAdapter) ExtractResponse(out adapter.Output) string {
	if s, ok := textOf(out); ok {
		return s
	}
	if s, ok := nativeOf(out); ok {
		return s
	}
	if s, ok := choicesOf(out); ok {
		return s
	}
	return fallback(a.log, a.Name(), out)
}

func textOf(out adapter.Output) (string, bool) {
	switch o := out.(type) {
	case adapter.TextOutput:
		return nonBlank(o.Text)
	case *adapter.TextOutput:
		if o != nil {
			return nonBlank(o.Text)
		}
	case adapter.ToolCallOutput:
		return nonBlank(o.Content)
	case *adapter.ToolCallOutput:
		if o != nil {
			return nonBlank(o.Content)
		}
	case adapter.RawOutput:
		var s string
		if json.Unmarshal(o.Body, &s) == nil {
			return nonBlank(s)
		}
	}
	return "", false
}

func choicesOf(out adapter.Output) (string, bool) {
	var choices []adapter.Choice
	switch o := out.(type) {
	case adapter.ChoiceListOutput:
		choices = o.Choices
	case *adapter.ChoiceListOutput:
		if o != nil {
			choices = o.Choices
		}
	case adapter.RawOutput:
		var body struct {
			Choices []adapter.Choice `json:"choices"`
		}
		if json.Unmarshal(o.Body, &body) == nil {
			choices = body.Choices
		}
	}
	for _, c := range choices {
		if s, ok := nonBlank(c.Message.Content); ok {
			return s, true
		}
	}
	return "", false
}

func nativeOf(out adapter.Output) (string, bool) {
	switch o := out.(type) {
	case adapter.NativeOutput:
		return nonBlank(o.Response)
	case *adapter.NativeOutput:
		if o != nil {
			return nonBlank(o.Response)
		}
	case adapter.RawOutput:
		var body struct {
			Response string `json:"response"`
		}
		if json.Unmarshal(o.Body, &body) == nil {
			return nonBlank(body.Response)
		}
	}
	return "", false
}

func fallback(log *zerolog.Logger, name string, out adapter.Output) string {
	var s string
	if raw, ok := out.(adapter.RawOutput); ok && len(raw.Body) > 0 {
		s = string(raw.Body)
	} else if b, err := json.Marshal(out); err == nil {
		s = string(b)
	}
	if strings.TrimSpace(s) == "" || s == "null" || s == "{}" {
		s = fmt.Sprintf("%T", out)
		if out == nil {
			s = "(empty response)"
		}
	}
	if log != nil {
		log.Warn().Str("adapter", name).Str("output_type", fmt.Sprintf("%T", out)).Msg("unexpected engine output shape, returning serialized form")
	}
	return s
}

func nonBlank(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
