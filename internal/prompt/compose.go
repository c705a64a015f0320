// Package prompt builds the task text handed to the agent runtime.
package prompt

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/metalagman/evalrunner/internal/task"
)

// Compose merges the operating instructions, the live URL and the descriptor
// into a single task prompt. The output depends only on its arguments.
// Sections for absent descriptor fields are omitted.
func Compose(baseInstructions string, d task.Descriptor, liveURL string) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(baseInstructions)
	b.WriteString("\n\n## Task Details\n\n")
	b.WriteString("Here are the details for your current task:\n\n")
	b.WriteString("- **Live URL:** ")
	b.WriteString(liveURL)
	b.WriteString("\n")

	if d.AppPrompt != nil {
		b.WriteString("- **Original Prompt:**\n```\n")
		b.WriteString(*d.AppPrompt)
		b.WriteString("\n```\n")
	}

	if d.UserJourneys != nil {
		b.WriteString("- **User Journeys to verify:**\n```json\n")
		b.WriteString(formatJourneys(d.UserJourneys))
		b.WriteString("\n```\n")
	}

	return b.String()
}

func formatJourneys(journeys []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	// A []string always encodes.
	_ = enc.Encode(journeys)
	return strings.TrimRight(buf.String(), "\n")
}
