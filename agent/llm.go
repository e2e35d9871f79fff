package agent

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
)

// Chat message roles fed to the LLM.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of LLM input history.
type ChatMessage struct {
	Role    string
	Content string
}

// Usage is per-iteration usage metadata. Pointer fields stay nil when the
// provider did not report them; implying false precision with zeroes is
// worse than omitting.
type Usage struct {
	InputTokens     *int  `json:"inputTokens,omitempty"`
	OutputTokens    *int  `json:"outputTokens,omitempty"`
	CacheReadTokens *int  `json:"cacheReadTokens,omitempty"`
	DurationMs      int64 `json:"durationMs,omitempty"`
}

// ToolCall is a provider-native tool invocation inside an assistant turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Delta is one streamed chunk of an in-flight assistant turn.
type Delta struct {
	Text      string
	Reasoning string
}

// Turn is a fully drained assistant response.
type Turn struct {
	Text      string
	Reasoning string
	ToolCalls []ToolCall
	Usage     *Usage
	Raw       string // provider debug payload, never re-parsed
}

// LLM is the provider binding the loop depends on. onDelta is invoked for
// every streamed chunk before the full turn resolves.
type LLM interface {
	StreamTurn(ctx context.Context, history []ChatMessage, onDelta func(Delta)) (*Turn, error)
}

// LangchainLLM adapts a langchaingo model to the LLM interface. Any
// OpenAI-compatible endpoint (OpenRouter included) works through
// langchaingo's openai client.
type LangchainLLM struct {
	model    llms.Model
	toolDefs []llms.Tool
}

// NewLangchainLLM wraps a langchaingo model. toolDefs are advertised on
// every call; models that cannot call functions ignore them.
func NewLangchainLLM(model llms.Model, toolDefs ...llms.Tool) *LangchainLLM {
	return &LangchainLLM{model: model, toolDefs: toolDefs}
}

// StreamTurn sends the history and streams the response, forwarding every
// text chunk through onDelta as it arrives.
func (l *LangchainLLM) StreamTurn(ctx context.Context, history []ChatMessage, onDelta func(Delta)) (*Turn, error) {
	content := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case ChatRoleSystem:
			role = llms.ChatMessageTypeSystem
		case ChatRoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	opts := []llms.CallOption{
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) > 0 && onDelta != nil {
				onDelta(Delta{Text: string(chunk)})
			}
			return nil
		}),
	}
	if len(l.toolDefs) > 0 {
		opts = append(opts, llms.WithTools(l.toolDefs))
	}

	start := time.Now()
	resp, err := l.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "llm call failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from LLM")
	}

	choice := resp.Choices[0]
	turn := &Turn{
		Text:      choice.Content,
		Reasoning: choice.ReasoningContent,
		Usage:     usageFromGenerationInfo(choice.GenerationInfo, time.Since(start)),
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	if turn.Reasoning != "" && onDelta != nil {
		// Providers that return reasoning only on the final payload still
		// surface it as one reasoning delta.
		onDelta(Delta{Reasoning: turn.Reasoning})
	}
	return turn, nil
}

// usageFromGenerationInfo maps langchaingo's loosely typed generation info
// to Usage. Missing counters stay nil.
func usageFromGenerationInfo(info map[string]any, elapsed time.Duration) *Usage {
	usage := &Usage{DurationMs: elapsed.Milliseconds()}
	for key, value := range info {
		n, ok := asInt(value)
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(key, "PromptTokens"):
			usage.InputTokens = &n
		case strings.EqualFold(key, "CompletionTokens"):
			usage.OutputTokens = &n
		case strings.EqualFold(key, "CachedTokens") || strings.EqualFold(key, "PromptCachedTokens"):
			usage.CacheReadTokens = &n
		}
	}
	return usage
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
