//go:build !integration

package usecase_test

import (
	"strings"
	"testing"
	"time"

	"async-ask-bot/internal/tools"
	"async-ask-bot/internal/usecase"
)

func TestBuildSystemPrompt_RendersTools(t *testing.T) {
	descs := []tools.Descriptor{
		tools.NewDateTimeTool(time.UTC, nil).Descriptor,
		tools.NewWeatherTool(tools.WeatherConfig{}).Descriptor,
	}
	got := usecase.BuildSystemPrompt("You are a test persona.", descs)

	for _, want := range []string{
		"You are a test persona.",
		"<tool_usage>",
		`<tool name="getCurrentDateTime">`,
		`<tool name="getWeather">`,
		"cityName (string, required)",
		"<when_not_to_use>",
		"Good answer:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
	if strings.Index(got, "getCurrentDateTime") > strings.Index(got, "getWeather") {
		t.Errorf("tools must be listed in registration order")
	}
	if again := usecase.BuildSystemPrompt("You are a test persona.", descs); again != got {
		t.Errorf("rendering is not deterministic")
	}
}

func TestBuildSystemPrompt_DefaultsAndNoTools(t *testing.T) {
	got := usecase.BuildSystemPrompt("", nil)
	if got != strings.TrimRight(usecase.DefaultPersona(), "\n") {
		t.Fatalf("empty persona should fall back to the built-in one")
	}
	if strings.Contains(got, "<tool_usage>") {
		t.Fatalf("no tools should mean no tool section")
	}
}
