package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// skillSearchLimit caps search hits reported back to the agent.
const skillSearchLimit = 5

// SkillRecord is a stored skill as the agent sees it.
type SkillRecord struct {
	UID     string
	Name    string
	Content string
}

// SkillHit is one semantic search result.
type SkillHit struct {
	UID     string
	Name    string
	Snippet string
}

// SkillStore is the persistence surface the skill sub-commands run against.
// The server wires it to the relational store plus the vector index and the
// skill-file storage backend.
type SkillStore interface {
	ListSkillNames(ctx context.Context) ([]string, error)
	// GetSkill returns nil when no skill has that name.
	GetSkill(ctx context.Context, name string) (*SkillRecord, error)
	// SaveSkill creates or overwrites; the bool reports creation.
	SaveSkill(ctx context.Context, name, content string) (*SkillRecord, bool, error)
	SearchSkills(ctx context.Context, query string, limit int) ([]SkillHit, error)
	// GetSkillFile returns found=false when the skill or file is absent.
	GetSkillFile(ctx context.Context, skillName, fileName string) ([]byte, bool, error)
	AddSkillFile(ctx context.Context, skillName, fileName string, content []byte) error
}

const skillHelpText = `Skill commands:
  skill help                                  Show this help
  skill list                                  List saved skill names
  skill search <keyword>                      Search skills (quote multi-word phrases)
  skill get <name>                            Print a skill's content
  skill set <name> "<content>"                Create or overwrite a skill
  skill get-file <name> <file>                Print a file attached to a skill
  skill copy-to-sandbox <name> <file>         Copy a skill file into the sandbox
  skill add-file <file> <name>                Attach a sandbox file to a skill
  skill suggest "<text>" --name="<name>"      Save distilled text as a skill (add --force to overwrite)`

// SkillHandler implements the skill sub-command surface: a small text
// protocol the agent drives through shell directives. Results are plain
// text fed straight back to the LLM; suggest alone answers in JSON.
type SkillHandler struct {
	skills  SkillStore
	sandbox *LazySandbox

	names []string // registered sub-command names, longest first
}

// NewSkillHandler creates a handler over the given store and the request's
// sandbox session.
func NewSkillHandler(skills SkillStore, sb *LazySandbox) *SkillHandler {
	names := []string{
		"help", "list", "search", "get", "set",
		"get-file", "copy-to-sandbox", "add-file", "suggest",
	}
	// Longest-first so "get-file x" never dispatches to "get".
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return &SkillHandler{skills: skills, sandbox: sb, names: names}
}

// Handle runs one sub-command line (the text after the "skill" token).
// Usage mistakes and missing skills/files come back as ordinary text; the
// error return is reserved for sandbox failures that must end the session.
func (h *SkillHandler) Handle(ctx context.Context, args string) (string, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return skillHelpText, nil
	}

	for _, name := range h.names {
		if args != name && !strings.HasPrefix(args, name+" ") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(args, name))
		switch name {
		case "help":
			return skillHelpText, nil
		case "list":
			return h.list(ctx)
		case "search":
			return h.search(ctx, rest)
		case "get":
			return h.get(ctx, rest)
		case "set":
			return h.set(ctx, rest)
		case "get-file":
			return h.getFile(ctx, rest)
		case "copy-to-sandbox":
			return h.copyToSandbox(ctx, rest)
		case "add-file":
			return h.addFile(ctx, rest)
		case "suggest":
			return h.suggest(ctx, rest)
		}
	}
	word := strings.Fields(args)[0]
	return fmt.Sprintf("Unknown skill command: %s. Run 'skill help' to see available commands.", word), nil
}

func (h *SkillHandler) list(ctx context.Context) (string, error) {
	names, err := h.skills.ListSkillNames(ctx)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	if len(names) == 0 {
		return "No skills saved yet.", nil
	}
	return strings.Join(names, "\n"), nil
}

func (h *SkillHandler) search(ctx context.Context, rest string) (string, error) {
	args := splitArgs(rest)
	if len(args) == 0 {
		return "Usage: skill search <keyword>", nil
	}
	// A quoted argument is one phrase; unquoted words also form one query.
	query := strings.Join(args, " ")
	hits, err := h.skills.SearchSkills(ctx, query, skillSearchLimit)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No skills matched %q.", query), nil
	}
	var sb strings.Builder
	for i, hit := range hits {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s", hit.Name, hit.Snippet)
	}
	return sb.String(), nil
}

func (h *SkillHandler) get(ctx context.Context, rest string) (string, error) {
	args := splitArgs(rest)
	if len(args) != 1 {
		return "Usage: skill get <name>", nil
	}
	skill, err := h.skills.GetSkill(ctx, args[0])
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	if skill == nil {
		return fmt.Sprintf("Skill not found: %s", args[0]), nil
	}
	return skill.Content, nil
}

func (h *SkillHandler) set(ctx context.Context, rest string) (string, error) {
	args := splitArgs(rest)
	if len(args) < 2 {
		return `Usage: skill set <name> "<content>"`, nil
	}
	name := args[0]
	content := strings.Join(args[1:], " ")
	_, created, err := h.skills.SaveSkill(ctx, name, content)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	if created {
		return fmt.Sprintf("Created skill '%s'.", name), nil
	}
	return fmt.Sprintf("Updated skill '%s'.", name), nil
}

func (h *SkillHandler) getFile(ctx context.Context, rest string) (string, error) {
	args := splitArgs(rest)
	if len(args) != 2 {
		return "Usage: skill get-file <name> <file>", nil
	}
	data, found, err := h.skills.GetSkillFile(ctx, args[0], args[1])
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	if !found {
		return fmt.Sprintf("File not found: %s/%s", args[0], args[1]), nil
	}
	return string(data), nil
}

func (h *SkillHandler) copyToSandbox(ctx context.Context, rest string) (string, error) {
	args := splitArgs(rest)
	if len(args) != 2 {
		return "Usage: skill copy-to-sandbox <name> <file>", nil
	}
	skillName, fileName := args[0], args[1]
	data, found, err := h.skills.GetSkillFile(ctx, skillName, fileName)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	if !found {
		return fmt.Sprintf("File not found: %s/%s", skillName, fileName), nil
	}
	exec, err := h.sandbox.Executor(ctx)
	if err != nil {
		return "", errors.Wrap(err, "acquire sandbox")
	}
	if err := exec.WriteFile(ctx, fileName, data); err != nil {
		return "", errors.Wrapf(err, "write %s to sandbox", fileName)
	}
	return fmt.Sprintf("Copied %s to sandbox.", fileName), nil
}

func (h *SkillHandler) addFile(ctx context.Context, rest string) (string, error) {
	args := splitArgs(rest)
	if len(args) != 2 {
		return "Usage: skill add-file <file> <name>", nil
	}
	fileName, skillName := args[0], args[1]
	skill, err := h.skills.GetSkill(ctx, skillName)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	if skill == nil {
		return fmt.Sprintf("Skill not found: %s", skillName), nil
	}
	exec, err := h.sandbox.Executor(ctx)
	if err != nil {
		return "", errors.Wrap(err, "acquire sandbox")
	}
	data, found, err := exec.ReadFile(ctx, fileName)
	if err != nil {
		return "", errors.Wrapf(err, "read %s from sandbox", fileName)
	}
	if !found {
		return fmt.Sprintf("File not found in sandbox: %s", fileName), nil
	}
	if err := h.skills.AddSkillFile(ctx, skillName, fileName, data); err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), nil
	}
	return fmt.Sprintf("Added %s to skill '%s'.", fileName, skillName), nil
}

// suggestResult is the JSON answer of the suggest sub-command.
type suggestResult struct {
	Status  string `json:"status"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

func (h *SkillHandler) suggest(ctx context.Context, rest string) (string, error) {
	args := splitArgs(rest)
	var text, name string
	var force bool
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--name="):
			name = strings.TrimPrefix(arg, "--name=")
		case arg == "--force":
			force = true
		case text == "":
			text = arg
		}
	}
	if text == "" || name == "" {
		return `Usage: skill suggest "<text>" --name="<name>" [--force]`, nil
	}

	existing, err := h.skills.GetSkill(ctx, name)
	if err != nil {
		return suggestJSON(suggestResult{Status: "error", Name: name, Message: err.Error()}), nil
	}
	if existing != nil && !force {
		return suggestJSON(suggestResult{
			Status:  "exists",
			Name:    name,
			Message: fmt.Sprintf("Skill '%s' already exists. Pass --force to overwrite it.", name),
		}), nil
	}
	_, created, err := h.skills.SaveSkill(ctx, name, text)
	if err != nil {
		return suggestJSON(suggestResult{Status: "error", Name: name, Message: err.Error()}), nil
	}
	status := "updated"
	if created {
		status = "created"
	}
	return suggestJSON(suggestResult{
		Status:  status,
		Name:    name,
		Message: fmt.Sprintf("Skill '%s' %s.", name, status),
	}), nil
}

func suggestJSON(result suggestResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, err.Error())
	}
	return string(data)
}

// splitArgs splits a sub-command argument line on whitespace while keeping
// double-quoted spans together. Quotes may appear mid-token, as in
// --name="deploy app". There is no escape syntax; skill names and file
// names never need literal quotes.
func splitArgs(line string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	flush := func() {
		if current.Len() > 0 {
			args = append(args, current.String())
			current.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return args
}
