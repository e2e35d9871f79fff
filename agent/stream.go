package agent

import "sync"

// EventType discriminates stream events.
type EventType string

// Stream event types, in rough order of appearance during a run.
const (
	EventText            EventType = "text"
	EventReasoning       EventType = "reasoning"
	EventToolCall        EventType = "tool-call"
	EventToolStart       EventType = "tool-start"
	EventToolResult      EventType = "tool-result"
	EventAgentToolCall   EventType = "agent-tool-call"
	EventAgentToolResult EventType = "agent-tool-result"
	EventSource          EventType = "source"
	EventUsage           EventType = "usage"
	EventRawContent      EventType = "raw-content"
	EventIterationEnd    EventType = "iteration-end"
	EventSandbox         EventType = "sandbox-lifecycle"
	EventError           EventType = "error"
	EventDone            EventType = "done"
)

// Event is one record of the outbound stream protocol: a self-describing
// typed record with type-specific optional fields, encoded as one JSON line.
// Events are transient; they are consumed live and summarized into message
// parts afterwards, never persisted as a log.
type Event struct {
	Type EventType `json:"type"`

	// text / reasoning / error / raw-content
	Content string `json:"content,omitempty"`

	// tool-call / tool-start / tool-result
	CommandID string `json:"commandId,omitempty"`
	Command   string `json:"command,omitempty"`
	Output    string `json:"output,omitempty"`

	// agent-tool-call / agent-tool-result
	ToolName  string `json:"toolName,omitempty"`
	ToolInput string `json:"toolInput,omitempty"`

	// source
	SkillUID  string `json:"skillUid,omitempty"`
	SkillName string `json:"skillName,omitempty"`
	Snippet   string `json:"snippet,omitempty"`

	// usage / iteration-end
	Iteration       int    `json:"iteration,omitempty"`
	Usage           *Usage `json:"usage,omitempty"`
	HasMoreCommands *bool  `json:"hasMoreCommands,omitempty"`

	// sandbox-lifecycle / done
	SandboxID string `json:"sandboxId,omitempty"`
	Phase     string `json:"phase,omitempty"`
}

// Stream state. open -> closing -> closed, never backwards.
const (
	streamOpen = iota
	streamClosing
	streamClosed
)

// Stream is the one-way, server-to-client push channel of a run: single
// producer (the loop), single consumer (the HTTP response writer). It
// tolerates the consumer disappearing: sends after Close are silently
// dropped and Close is idempotent.
type Stream struct {
	mu    sync.Mutex
	ch    chan Event
	state int
}

// NewStream creates a stream with the given send buffer.
func NewStream(buffer int) *Stream {
	return &Stream{ch: make(chan Event, buffer)}
}

// Send enqueues an event; false when the stream is no longer open. A full
// buffer blocks the producer rather than dropping: back-pressure from a
// slow consumer slows the loop down, disconnects close the stream instead.
func (s *Stream) Send(ev Event) bool {
	s.mu.Lock()
	if s.state != streamOpen {
		s.mu.Unlock()
		return false
	}
	// Holding the lock while sending keeps Close from racing the channel
	// close; Close waits for the lock, so the channel cannot close mid-send.
	defer s.mu.Unlock()
	s.ch <- ev
	return true
}

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != streamOpen {
		return
	}
	s.state = streamClosing
	close(s.ch)
	s.state = streamClosed
}

// Events is the consumer side; the channel closes when the stream closes.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// boolPtr is a convenience for the HasMoreCommands field.
func boolPtr(b bool) *bool { return &b }
