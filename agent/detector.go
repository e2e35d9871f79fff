// Package agent contains the iteration loop that turns LLM responses into
// sandbox command executions and streams progress events to the client.
package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// Directives are delimited by shell tags embedded in the LLM output text.
// Content may span multiple lines and contain shell metacharacters.
var directivePattern = regexp.MustCompile(`(?s)<shell>(.*?)</shell>`)

// Command is one detected directive. ID is the correlation key between
// detection and later asynchronous execution-result events; two textually
// identical commands in one turn get distinct ids.
type Command struct {
	ID   string
	Text string
}

// CommandID formats the stable id for the idx-th non-empty directive of an
// iteration. Iteration numbers start at 1, indexes at 0.
func CommandID(iteration, idx int) string {
	return fmt.Sprintf("cmd-%d-%d", iteration, idx)
}

// DetectCommands extracts command directives from one full LLM response, in
// order of appearance. Directives that trim to empty are discarded and do
// not consume an id slot. The input text is never modified; stripping
// directives for display is a separate concern.
//
// The detector is stateless: calling it twice on the same input yields
// identical results.
func DetectCommands(text string, iteration int) []Command {
	matches := directivePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	commands := make([]Command, 0, len(matches))
	for _, match := range matches {
		content := strings.TrimSpace(match[1])
		if content == "" {
			continue
		}
		commands = append(commands, Command{
			ID:   CommandID(iteration, len(commands)),
			Text: content,
		})
	}
	if len(commands) == 0 {
		return nil
	}
	return commands
}

// StripDirectives removes directive blocks from text for display purposes,
// collapsing the surrounding whitespace. Detection never uses this.
func StripDirectives(text string) string {
	stripped := directivePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(stripped)
}
