package agent

import (
	"fmt"
	"strings"
	"time"
)

const taskPromptBase = `You are an autonomous task agent with access to an isolated Linux sandbox.

To run a command, emit it between shell tags in your reply:
<shell>ls -la</shell>

Rules:
- Commands run sequentially in the order they appear in your reply.
- Command output is fed back to you in the next turn; inspect it before continuing.
- Output longer than a few thousand characters is truncated.
- The reserved command "skill" manages your saved skills. Run "skill help" to list its sub-commands. Use "skill search <keyword>" before solving a problem you may have solved before.
- When the task is complete, reply without any shell tags and summarize the outcome for the user.`

const codifyPromptBase = `You are reviewing a finished conversation transcript to distill a reusable skill.

Read the transcript, extract the generalizable procedure (not the one-off details), and save it with a single command in your reply:
<shell>skill suggest "<the distilled procedure>" --name="<short-kebab-case-name>"</shell>

If a skill with that name already exists and your version is better, add --force.
Reply with exactly one suggest command and a one-sentence rationale.`

// buildSystemPrompt assembles the system message for a run. The summary of
// compacted history, when present, is prepended as prior context.
func buildSystemPrompt(mode, summary string, now time.Time) string {
	var sb strings.Builder
	if mode == "codify-skill" {
		sb.WriteString(codifyPromptBase)
	} else {
		sb.WriteString(taskPromptBase)
	}
	fmt.Fprintf(&sb, "\n\nCurrent date: %s", now.Format("2006-01-02"))
	if summary != "" {
		sb.WriteString("\n\nSummary of earlier conversation:\n")
		sb.WriteString(summary)
	}
	return sb.String()
}
