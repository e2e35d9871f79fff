package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

// NewSkillToolRegistry builds the provider-native tool registry over the
// skill store. These are the same skills the `skill` directives operate on;
// function-capable models may reach them without emitting a shell directive.
func NewSkillToolRegistry(skills SkillStore) map[string]tools.Tool {
	return map[string]tools.Tool{
		"list_skills":   &listSkillsTool{skills: skills},
		"search_skills": &searchSkillsTool{skills: skills},
		"get_skill":     &getSkillTool{skills: skills},
	}
}

// SkillToolDefs returns the function schemas advertised to the model for the
// registry built by NewSkillToolRegistry.
func SkillToolDefs() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "list_skills",
				Description: "List the names of all saved skills. No parameters needed.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "search_skills",
				Description: "Search saved skills semantically for a topic or problem.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string", "description": "The search query"},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "get_skill",
				Description: "Read the full content of a saved skill by name.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string", "description": "The skill name"},
					},
					"required": []string{"name"},
				},
			},
		},
	}
}

type listSkillsTool struct {
	skills SkillStore
}

func (t *listSkillsTool) Name() string { return "list_skills" }
func (t *listSkillsTool) Description() string {
	return "List the names of all saved skills. No parameters needed."
}
func (t *listSkillsTool) Call(ctx context.Context, input string) (string, error) {
	slog.Info("[AGENT TOOL CALL]", "tool", t.Name(), "input", input)
	names, err := t.skills.ListSkillNames(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "No skills saved yet.", nil
	}
	return strings.Join(names, "\n"), nil
}

type searchSkillsTool struct {
	skills SkillStore
}

func (t *searchSkillsTool) Name() string { return "search_skills" }
func (t *searchSkillsTool) Description() string {
	return "Search saved skills semantically. Input should be a JSON string with key `query` (string)."
}
func (t *searchSkillsTool) Call(ctx context.Context, input string) (string, error) {
	slog.Info("[AGENT TOOL CALL]", "tool", t.Name(), "input", input)
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil || args.Query == "" {
		// Some models hand the bare query instead of the JSON arguments.
		args.Query = strings.TrimSpace(input)
	}
	if args.Query == "" {
		return "A search query is required.", nil
	}
	hits, err := t.skills.SearchSkills(ctx, args.Query, skillSearchLimit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No skills matched %q.", args.Query), nil
	}
	var sb strings.Builder
	for _, hit := range hits {
		fmt.Fprintf(&sb, "%s: %s\n", hit.Name, hit.Snippet)
	}
	return sb.String(), nil
}

type getSkillTool struct {
	skills SkillStore
}

func (t *getSkillTool) Name() string { return "get_skill" }
func (t *getSkillTool) Description() string {
	return "Read a saved skill. Input should be a JSON string with key `name` (string)."
}
func (t *getSkillTool) Call(ctx context.Context, input string) (string, error) {
	slog.Info("[AGENT TOOL CALL]", "tool", t.Name(), "input", input)
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil || args.Name == "" {
		args.Name = strings.TrimSpace(input)
	}
	if args.Name == "" {
		return "A skill name is required.", nil
	}
	skill, err := t.skills.GetSkill(ctx, args.Name)
	if err != nil {
		return "", err
	}
	if skill == nil {
		return fmt.Sprintf("Skill not found: %s", args.Name), nil
	}
	return skill.Content, nil
}
