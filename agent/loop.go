package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/tools"

	"github.com/agentpad/agentpad/store"
)

// MaxIterations caps agent turns per request. The bound is a safety net
// against runaway loops independent of any explicit error.
const MaxIterations = 10

// RunOptions parameterizes one agent run.
type RunOptions struct {
	Mode    string // store.ModeTask | store.ModeCodifySkill
	Summary string // compacted-history summary for the system prompt
	History []ChatMessage
	Env     map[string]string // shell-only environment overrides
}

// RunResult is the persisted outcome of a run: the assistant message parts
// in stream order, aggregate usage, and the sandbox binding if one was used.
type RunResult struct {
	Parts     []store.Part
	Stats     store.MessageStats
	SandboxID string
	Raw       string
	Aborted   bool
}

// Runner drives the bounded agent loop: call the LLM, stream its output,
// detect and execute command directives, feed results back, repeat.
type Runner struct {
	llm     LLM
	router  *Router
	sandbox *LazySandbox
	release func(ctx context.Context) // tears down the sandbox session on abort
	tools   map[string]tools.Tool     // provider-native tool registry, may be empty
}

// NewRunner assembles a runner for one request. release is invoked only when
// the client aborts mid-run; on normal completion the sandbox stays warm for
// the next message.
func NewRunner(llm LLM, router *Router, sb *LazySandbox, release func(ctx context.Context), toolRegistry map[string]tools.Tool) *Runner {
	return &Runner{llm: llm, router: router, sandbox: sb, release: release, tools: toolRegistry}
}

// Run executes the loop, pushing events to stream until a terminal event.
// The stream is always closed before Run returns; every run ends in either
// a done event or an error event, never silence.
func (r *Runner) Run(ctx context.Context, stream *Stream, opts RunOptions) *RunResult {
	defer stream.Close()

	result := &RunResult{}
	start := time.Now()
	history := make([]ChatMessage, 0, len(opts.History)+2)
	history = append(history, ChatMessage{
		Role:    ChatRoleSystem,
		Content: buildSystemPrompt(opts.Mode, opts.Summary, time.Now()),
	})
	history = append(history, opts.History...)

	sandboxAnnounced := false
	completed := 0
	var rawParts []string
	finish := func() {
		result.Raw = strings.Join(rawParts, "\n")
		result.Stats.Iterations = completed
		result.Stats.DurationMs = time.Since(start).Milliseconds()
	}

	for iteration := 1; iteration <= MaxIterations; iteration++ {
		// Abort is observed here, at the top of each iteration. An abort
		// raised mid-iteration lets the current iteration drain first, so
		// iteration N+1 never starts.
		select {
		case <-ctx.Done():
			finish()
			r.abort(stream, result, iteration)
			return result
		default:
		}

		turn, err := r.llm.StreamTurn(ctx, history, func(d Delta) {
			if d.Text != "" {
				stream.Send(Event{Type: EventText, Content: d.Text})
			}
			if d.Reasoning != "" {
				stream.Send(Event{Type: EventReasoning, Content: d.Reasoning})
			}
		})
		if err != nil {
			// Loop-fatal: one error event, no retry of the iteration.
			slog.Error("agent turn failed", "iteration", iteration, "err", err)
			finish()
			stream.Send(Event{Type: EventError, Content: err.Error()})
			return result
		}

		rawParts = append(rawParts, turn.Raw)
		completed = iteration
		if turn.Reasoning != "" {
			result.Parts = append(result.Parts, store.Part{Type: store.PartTypeReasoning, Content: turn.Reasoning})
		}
		if display := StripDirectives(turn.Text); display != "" {
			result.Parts = append(result.Parts, store.Part{Type: store.PartTypeText, Content: display})
		}
		if turn.Raw != "" {
			stream.Send(Event{Type: EventRawContent, Content: turn.Raw})
		}
		if turn.Usage != nil {
			accumulateUsage(&result.Stats, turn.Usage)
			stream.Send(Event{Type: EventUsage, Iteration: iteration, Usage: turn.Usage})
		}

		// The assistant turn that invoked the tools must precede their
		// results in history, so it is appended before dispatch.
		assistantAppended := false
		if len(turn.ToolCalls) > 0 {
			history = append(history, ChatMessage{Role: ChatRoleAssistant, Content: turn.Text})
			assistantAppended = true
		}
		nativeCalls := r.runNativeTools(ctx, stream, turn, &history)

		commands := DetectCommands(turn.Text, iteration)
		// All detections surface before any execution starts: one queued
		// tool-call per directive, correlated 1:1 by command id with the
		// results that follow.
		for _, cmd := range commands {
			stream.Send(Event{Type: EventToolCall, CommandID: cmd.ID, Command: cmd.Text})
			result.Parts = append(result.Parts, store.Part{
				Type:      store.PartTypeTool,
				CommandID: cmd.ID,
				Command:   cmd.Text,
				Status:    store.ToolStatusQueued,
			})
		}

		sessionFatal := false
		var resultsBlock strings.Builder
		for _, cmd := range commands {
			stream.Send(Event{Type: EventToolStart, CommandID: cmd.ID, Command: cmd.Text})
			setPartStatus(result.Parts, cmd.ID, store.ToolStatusRunning, "")

			output, err := r.router.Execute(ctx, cmd.Text, ExecOptions{Env: opts.Env})
			if err != nil {
				// Session-fatal: report once, skip the iteration's
				// remaining commands.
				slog.Warn("command failed fatally", "commandId", cmd.ID, "err", err)
				stream.Send(Event{Type: EventError, Content: err.Error()})
				sessionFatal = true
				break
			}
			if !sandboxAnnounced && r.sandbox.Used() {
				sandboxAnnounced = true
				result.SandboxID = r.sandbox.ID()
				phase := "reconnected"
				if r.sandbox.Created() {
					phase = "created"
				}
				stream.Send(Event{Type: EventSandbox, Phase: phase, SandboxID: result.SandboxID})
			}
			stream.Send(Event{Type: EventToolResult, CommandID: cmd.ID, Command: cmd.Text, Output: output})
			setPartStatus(result.Parts, cmd.ID, store.ToolStatusCompleted, output)
			fmt.Fprintf(&resultsBlock, "[%s] $ %s\n%s\n\n", cmd.ID, cmd.Text, output)
		}

		hasMore := (len(commands) > 0 || nativeCalls > 0) && !sessionFatal
		stream.Send(Event{Type: EventIterationEnd, Iteration: iteration, HasMoreCommands: boolPtr(hasMore)})

		if !hasMore {
			// Final answer, session-fatal stop, or a turn with nothing to
			// execute. Either way no further LLM calls are issued.
			break
		}

		if !assistantAppended {
			history = append(history, ChatMessage{Role: ChatRoleAssistant, Content: turn.Text})
		}
		if resultsBlock.Len() > 0 {
			history = append(history, ChatMessage{
				Role:    ChatRoleUser,
				Content: "Command results:\n\n" + resultsBlock.String(),
			})
		}
	}

	finish()
	stream.Send(Event{Type: EventDone, SandboxID: result.SandboxID})
	return result
}

// runNativeTools dispatches provider-native tool calls through the registry,
// deduplicating by call id since some models repeat a tool_call_id within
// one response. Results are appended to history as user-role context.
func (r *Runner) runNativeTools(ctx context.Context, stream *Stream, turn *Turn, history *[]ChatMessage) int {
	if len(turn.ToolCalls) == 0 {
		return 0
	}
	seenCallIDs := make(map[string]bool)
	dispatched := 0
	var block strings.Builder
	for _, call := range turn.ToolCalls {
		if seenCallIDs[call.ID] {
			continue
		}
		seenCallIDs[call.ID] = true
		dispatched++

		stream.Send(Event{Type: EventAgentToolCall, ToolName: call.Name, ToolInput: call.Arguments})
		var output string
		if tool, ok := r.tools[call.Name]; ok {
			var err error
			output, err = tool.Call(ctx, call.Arguments)
			if err != nil {
				output = "Error: " + err.Error()
			}
		} else {
			output = "Unknown tool: " + call.Name
		}
		stream.Send(Event{Type: EventAgentToolResult, ToolName: call.Name, Output: output})
		fmt.Fprintf(&block, "[%s] %s\n%s\n\n", call.ID, call.Name, output)
	}
	if block.Len() > 0 {
		*history = append(*history, ChatMessage{
			Role:    ChatRoleUser,
			Content: "Tool results:\n\n" + block.String(),
		})
	}
	return dispatched
}

// abort handles a client disconnect observed at an iteration boundary: the
// sandbox is torn down if it was used, and the client (if still reading)
// gets a terminal done event.
func (r *Runner) abort(stream *Stream, result *RunResult, iteration int) {
	slog.Info("agent run aborted", "iteration", iteration)
	result.Aborted = true
	if r.sandbox.Used() && r.release != nil {
		// The request context is already canceled; cleanup gets its own.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.release(cleanupCtx)
	}
	stream.Send(Event{Type: EventDone, SandboxID: result.SandboxID})
}

// accumulateUsage folds one iteration's usage into the run totals.
func accumulateUsage(stats *store.MessageStats, usage *Usage) {
	addTo := func(total **int, delta *int) {
		if delta == nil {
			return
		}
		if *total == nil {
			n := 0
			*total = &n
		}
		**total += *delta
	}
	addTo(&stats.InputTokens, usage.InputTokens)
	addTo(&stats.OutputTokens, usage.OutputTokens)
	addTo(&stats.CacheReadTokens, usage.CacheReadTokens)
}

// setPartStatus advances the tool part with the given command id. Output is
// written only when non-empty so a running update does not clear anything.
func setPartStatus(parts []store.Part, commandID, status, output string) {
	for i := range parts {
		if parts[i].Type == store.PartTypeTool && parts[i].CommandID == commandID {
			parts[i].Status = status
			if output != "" {
				parts[i].Output = output
			}
			return
		}
	}
}
