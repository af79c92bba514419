package emotion

import (
	"fmt"
	"strings"
)

const classifyTemplate = `Analyze the user's message and predict the emotional response of the character.
Possible emotions are: %s.

User Message: %s

Provide only the predicted emotion.`

// BuildPrompt returns the fixed classification instruction for message.
func BuildPrompt(message string) string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, string(l))
	}
	return fmt.Sprintf(classifyTemplate, strings.Join(names, ", "), message)
}
