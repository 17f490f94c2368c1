//go:build !integration

package usecase_test

import (
	"encoding/json"
	"strings"
	"testing"

	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/usecase"
)

func TestResponseAdapters_AllShapesYieldText(t *testing.T) {
	outputs := map[string]adapter.Output{
		"text":     adapter.TextOutput{Text: "hello"},
		"choices":  adapter.ChoiceListOutput{Choices: []adapter.Choice{{Message: adapter.ChoiceMessage{Content: "hello"}}}},
		"native":   adapter.NativeOutput{Response: "hello"},
		"pointer":  &adapter.NativeOutput{Response: "hello"},
		"raw str":  adapter.RawOutput{Body: json.RawMessage(`"hello"`)},
		"raw resp": adapter.RawOutput{Body: json.RawMessage(`{"response":"hello"}`)},
		"raw chc":  adapter.RawOutput{Body: json.RawMessage(`{"choices":[{"message":{"content":"hello"}}]}`)},
	}
	for _, format := range []string{usecase.FormatText, usecase.FormatChoices, usecase.FormatNative} {
		a := usecase.ResponseAdapterFor(format, nil)
		if a.Name() != format {
			t.Fatalf("ResponseAdapterFor(%q) = %s", format, a.Name())
		}
		for name, out := range outputs {
			if got := a.ExtractResponse(out); got != "hello" {
				t.Errorf("%s/%s: got %q", format, name, got)
			}
		}
	}
}

func TestResponseAdapters_FallbackSerializes(t *testing.T) {
	odd := []adapter.Output{
		adapter.RawOutput{Body: json.RawMessage(`{"unexpected":42}`)},
		adapter.ChoiceListOutput{},
		adapter.NativeOutput{Response: "   "},
		adapter.ToolCallOutput{Calls: []adapter.ToolCall{{ID: "1", Name: "x"}}},
		nil,
	}
	for _, format := range []string{usecase.FormatText, usecase.FormatChoices, usecase.FormatNative} {
		a := usecase.ResponseAdapterFor(format, nil)
		for i, out := range odd {
			got := a.ExtractResponse(out)
			if strings.TrimSpace(got) == "" {
				t.Errorf("%s: output %d produced empty text", format, i)
			}
		}
	}
	got := usecase.ResponseAdapterFor(usecase.FormatText, nil).ExtractResponse(adapter.RawOutput{Body: json.RawMessage(`{"unexpected":42}`)})
	if got != `{"unexpected":42}` {
		t.Fatalf("raw payload should be returned verbatim, got %s", got)
	}
}

func TestResponseAdapterFor_UnknownFormatIsPlainText(t *testing.T) {
	if a := usecase.ResponseAdapterFor("qwen", nil); a.Name() != usecase.FormatText {
		t.Fatalf("got %s", a.Name())
	}
}

func TestResponseAdapters_ChoicesSkipsEmptyFirstChoice(t *testing.T) {
	out := adapter.ChoiceListOutput{Choices: []adapter.Choice{
		{Message: adapter.ChoiceMessage{Content: ""}},
		{Index: 1, Message: adapter.ChoiceMessage{Content: "second"}},
	}}
	if got := usecase.ResponseAdapterFor(usecase.FormatChoices, nil).ExtractResponse(out); got != "second" {
		t.Fatalf("got %q", got)
	}
}
