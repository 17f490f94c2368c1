package usecase

import (
	_ "embed"
	"strings"
	"text/template"

	"async-ask-bot/internal/tools"
)

//go:embed persona.md
var defaultPersona string

// DefaultPersona is the built-in persona preamble.
func DefaultPersona() string { return defaultPersona }

var toolSectionTmpl = template.Must(template.New("tool_usage").Parse(`
<tool_usage>
    <description>
        You have access to tools that provide accurate, real-time information.
        Tools are optional helpers. Only call one when the request genuinely needs what it provides.
    </description>
    <available_tools>
{{- range .}}
        <tool name="{{.Name}}">
            <summary>{{.Description}}</summary>
{{- if .Params}}
            <parameters>
{{- range .Params}}
                - {{.Name}} ({{if .Type}}{{.Type}}{{else}}string{{end}}{{if .Required}}, required{{end}}){{if .Description}}: {{.Description}}{{end}}
{{- end}}
            </parameters>
{{- end}}
{{- if .WhenToUse}}
            <when_to_use>
{{- range .WhenToUse}}
                - {{.}}
{{- end}}
            </when_to_use>
{{- end}}
{{- if .WhenNotToUse}}
            <when_not_to_use>
{{- range .WhenNotToUse}}
                - {{.}}
{{- end}}
            </when_not_to_use>
{{- end}}
{{- range .Examples}}
            <example>
                User: {{.Query}}
{{- if .ToolOutput}}
                Tool returns: {{.ToolOutput}}
{{- end}}
                Good answer: {{.Answer}}
            </example>
{{- end}}
        </tool>
{{- end}}
    </available_tools>
    <guidelines>
        1. Greetings and casual chat never need tools.
        2. Turn tool results into a natural reply in the user's language. Never dump raw data.
        3. Do not guess dates, times or live conditions when a tool can provide them.
    </guidelines>
</tool_usage>
`))

// BuildSystemPrompt renders persona followed by the tool section for descs. Empty
// persona falls back to the built-in one; no tools means no tool section.
func BuildSystemPrompt(persona string, descs []tools.Descriptor) string {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}
	persona = strings.TrimRight(persona, "\n")
	if len(descs) == 0 {
		return persona
	}
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n")
	if err := toolSectionTmpl.Execute(&b, descs); err != nil {
		// the template only reads plain fields; this cannot fail on valid descriptors
		return persona
	}
	return strings.TrimRight(b.String(), "\n")
}
