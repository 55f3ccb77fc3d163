package ollama

import "strings"

// BuildPrompt serializes prior chat turns into a completion-style prompt for
// /api/generate. With no history the prompt is returned unchanged.
func BuildPrompt(history []Message, prompt string) string {
	if len(history) == 0 {
		return prompt
	}

	var b strings.Builder
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "user":
			b.WriteString("\n\nHuman: ")
			b.WriteString(content)
		case "assistant":
			b.WriteString("\n\nAssistant: ")
			b.WriteString(content)
		}
	}
	b.WriteString("\n\nHuman: ")
	b.WriteString(prompt)
	b.WriteString("\n\nAssistant:")
	return b.String()
}
