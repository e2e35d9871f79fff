package store

import "encoding/json"

// Conversation modes.
const (
	// ModeTask is a normal task-execution run.
	ModeTask = "task"
	// ModeCodifySkill distills a finished transcript into a reusable skill.
	ModeCodifySkill = "codify-skill"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool part lifecycle states. Status only ever moves forward through
// queued -> running -> completed.
const (
	ToolStatusQueued    = "queued"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
)

// Part types.
const (
	PartTypeText      = "text"
	PartTypeReasoning = "reasoning"
	PartTypeTool      = "tool"
)

// Conversation represents a single task thread.
type Conversation struct {
	ID        int32
	UID       string
	Title     string
	Mode      string // ModeTask | ModeCodifySkill
	Summary   string // compacted/summarized older history
	SandboxID string // last sandbox session bound to this conversation
	CreatedTs int64
	UpdatedTs int64
}

// Part is one element of a message's content sequence. For assistant
// messages the parts are the single source of truth; raw text is kept only
// as a debug payload and never re-parsed.
type Part struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Command   string `json:"command,omitempty"`
	Output    string `json:"output,omitempty"`
	Status    string `json:"status,omitempty"`
	CommandID string `json:"commandId,omitempty"`
}

// MessageStats carries per-run usage metadata. Pointer fields stay nil when
// the provider did not report a value.
type MessageStats struct {
	InputTokens     *int  `json:"inputTokens,omitempty"`
	OutputTokens    *int  `json:"outputTokens,omitempty"`
	CacheReadTokens *int  `json:"cacheReadTokens,omitempty"`
	DurationMs      int64 `json:"durationMs,omitempty"`
	Iterations      int   `json:"iterations,omitempty"`
}

// Message is a single message within a conversation.
type Message struct {
	ID             int32
	ConversationID int32
	Role           string // RoleUser | RoleAssistant
	Parts          []Part
	Stats          *MessageStats
	Raw            string // raw LLM output, debug only
	CreatedTs      int64
}

// FindConversation filters for ListConversations / GetConversation.
type FindConversation struct {
	UID     *string
	Mode    *string
	Filters []string // CEL expressions, see plugin/filter
}

// UpdateConversation carries fields accepted by UpdateConversation.
type UpdateConversation struct {
	UID       string
	Title     *string
	Mode      *string
	Summary   *string
	SandboxID *string
}

// FindMessage filters for ListMessages.
type FindMessage struct {
	ConversationID int32
}

// CreateMessage is the payload for CreateMessage.
type CreateMessage struct {
	ConversationID int32
	Role           string
	Parts          []Part
	Stats          *MessageStats
	Raw            string
}

// MarshalParts encodes a part sequence for storage. Drivers store parts as a
// JSON column rather than a join table.
func MarshalParts(parts []Part) (string, error) {
	if len(parts) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalParts decodes a stored part sequence.
func UnmarshalParts(raw string) ([]Part, error) {
	if raw == "" {
		return nil, nil
	}
	var parts []Part
	if err := json.Unmarshal([]byte(raw), &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// MarshalStats encodes message stats for storage; empty string when nil.
func MarshalStats(stats *MessageStats) (string, error) {
	if stats == nil {
		return "", nil
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalStats decodes stored message stats; nil when empty.
func UnmarshalStats(raw string) (*MessageStats, error) {
	if raw == "" {
		return nil, nil
	}
	stats := &MessageStats{}
	if err := json.Unmarshal([]byte(raw), stats); err != nil {
		return nil, err
	}
	return stats, nil
}
