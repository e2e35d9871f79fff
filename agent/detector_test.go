package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectCommandsOrderAndIDs(t *testing.T) {
	text := "<shell>ls</shell> <shell>cat file1.py</shell> <shell>cat file2.py</shell>"
	commands := DetectCommands(text, 1)
	require.Len(t, commands, 3)
	require.Equal(t, "cmd-1-0", commands[0].ID)
	require.Equal(t, "ls", commands[0].Text)
	require.Equal(t, "cmd-1-1", commands[1].ID)
	require.Equal(t, "cat file1.py", commands[1].Text)
	require.Equal(t, "cmd-1-2", commands[2].ID)
	require.Equal(t, "cat file2.py", commands[2].Text)
}

func TestDetectCommandsSkipsEmptyDirectives(t *testing.T) {
	text := "<shell>ls</shell><shell>  </shell><shell>pwd</shell>"
	commands := DetectCommands(text, 2)
	require.Len(t, commands, 2)
	// The empty directive does not consume an id slot.
	require.Equal(t, "cmd-2-0", commands[0].ID)
	require.Equal(t, "cmd-2-1", commands[1].ID)
	require.Equal(t, "pwd", commands[1].Text)
}

func TestDetectCommandsMultilineAndMetacharacters(t *testing.T) {
	text := "before <shell>grep -r \"foo\" . | head -5 &&\necho done</shell> after"
	commands := DetectCommands(text, 1)
	require.Len(t, commands, 1)
	require.Equal(t, "grep -r \"foo\" . | head -5 &&\necho done", commands[0].Text)
}

func TestDetectCommandsIdempotent(t *testing.T) {
	text := "<shell>ls</shell> text <shell>ls</shell>"
	first := DetectCommands(text, 3)
	second := DetectCommands(text, 3)
	require.Equal(t, first, second)
	// Identical command text still yields distinct ids.
	require.NotEqual(t, first[0].ID, first[1].ID)
}

func TestDetectCommandsNone(t *testing.T) {
	require.Nil(t, DetectCommands("no directives here", 1))
	require.Nil(t, DetectCommands("<shell></shell>", 1))
}

func TestStripDirectives(t *testing.T) {
	text := "Let me check.\n<shell>ls</shell>\nDone."
	require.Equal(t, "Let me check.\n\nDone.", StripDirectives(text))
}
