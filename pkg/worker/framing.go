package worker

import (
	"strings"

	"triad/pkg/config"
)

// Framing tags, in the order they appear in every prompt.
const (
	TagRole           = "AGENT_ROLE"
	TagDescription    = "AGENT_DESCRIPTION"
	TagToolFormatting = "TOOL_FORMATTING"
	TagTask           = "TASK"
)

// FramePrompt wraps input with the role's static framing. The result depends
// only on role and input.
func FramePrompt(role config.Role, input string) string {
	var b strings.Builder
	writeTag(&b, TagRole, role.Label())
	b.WriteByte('\n')
	writeTag(&b, TagDescription, role.Description)
	b.WriteByte('\n')
	writeTag(&b, TagToolFormatting, role.ToolFormatting)
	b.WriteByte('\n')
	writeTag(&b, TagTask, input)
	return b.String()
}

func writeTag(b *strings.Builder, tag, content string) {
	b.WriteString("<")
	b.WriteString(tag)
	b.WriteString(">")
	b.WriteString(content)
	b.WriteString("</")
	b.WriteString(tag)
	b.WriteString(">")
}
