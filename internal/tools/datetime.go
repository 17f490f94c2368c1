package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const DateTimeToolName = "getCurrentDateTime"

// NewDateTimeTool reports the current time in loc. now is injectable for tests.
func NewDateTimeTool(loc *time.Location, now func() time.Time) Tool {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Tool{
		Descriptor: Descriptor{
			Name:        DateTimeToolName,
			Description: "Returns the current date and time. Use this when asked about the current time, today's date, what day it is, or any time-related questions.",
			Params: []Param{
				{Name: "_unused", Type: "string", Description: "Unused parameter for schema compatibility"},
			},
			WhenToUse: []string{
				`User asks for the current time ("What time is it?", "今何時？")`,
				`User asks for today's date or weekday ("What day is it today?", "今日は何曜日？")`,
				"A relative date has to be resolved (tomorrow, next Friday, in 3 days)",
			},
			WhenNotToUse: []string{
				"Historical dates or general knowledge questions",
				"Time differences that do not depend on the current moment",
			},
			Examples: []Example{
				{
					Query:      "What time is it?",
					ToolOutput: `{"local":"2025-01-10 Friday 17:30:00","iso":"2025-01-10T08:30:00.000Z","timezone":"Asia/Tokyo (JST)"}`,
					Answer:     "It's 17:30 on Friday, January 10th.",
				},
			},
		},
		Call: func(ctx context.Context, _ map[string]any) (string, error) {
			t := now()
			local := t.In(loc)
			abbr, _ := local.Zone()
			out := map[string]string{
				"local":    local.Format("2006-01-02 Monday 15:04:05"),
				"iso":      t.UTC().Format("2006-01-02T15:04:05.000Z"),
				"timezone": fmt.Sprintf("%s (%s)", loc.String(), abbr),
			}
			b, err := json.Marshal(out)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}
}
