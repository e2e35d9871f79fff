package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/agentpad/agentpad/agent"
	"github.com/agentpad/agentpad/sandbox"
	"github.com/agentpad/agentpad/store"
)

const (
	// compactThreshold is the total character count of persisted message
	// content that triggers compaction. Roughly 80% of a 128k-token context
	// window at 4 chars per token.
	compactThreshold = 400_000

	// keepRecentMessages is the number of recent messages kept verbatim
	// after compaction.
	keepRecentMessages = 10

	// streamBuffer absorbs event bursts between consumer flushes.
	streamBuffer = 64
)

type chatRequest struct {
	Content   string            `json:"content"`
	SandboxID string            `json:"sandboxId"` // reconnect to an existing sandbox
	Env       map[string]string `json:"env"`       // shell-only environment overrides
	Mode      string            `json:"mode"`      // per-run override of the conversation mode
}

// handleChat runs one agent turn against a conversation and streams progress
// as newline-delimited JSON events. The response always ends with a terminal
// event; the producer closes the connection.
func (s *APIV1Service) handleChat(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	ctx := c.Request().Context()
	uid := c.Param("uid")

	conv, err := s.Store.GetConversation(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	mode := conv.Mode
	if req.Mode != "" {
		if req.Mode != store.ModeTask && req.Mode != store.ModeCodifySkill {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown mode")
		}
		mode = req.Mode
	}
	if req.Content == "" {
		if mode != store.ModeCodifySkill {
			return echo.NewHTTPError(http.StatusBadRequest, "content is required")
		}
		// Codification is triggered on the transcript alone.
		req.Content = "Distill this conversation into a reusable skill."
	}

	dbMsgs, err := s.Store.ListMessages(ctx, &store.FindMessage{ConversationID: conv.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	dbMsgs, conv, err = s.maybeCompact(ctx, conv, dbMsgs)
	if err != nil {
		slog.Warn("context compaction failed", "conversation", uid, "err", err)
	}

	if _, err := s.Store.CreateMessage(ctx, &store.CreateMessage{
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Parts:          []store.Part{{Type: store.PartTypeText, Content: req.Content}},
	}); err != nil {
		slog.Warn("failed to persist user message", "err", err)
	}

	if len(dbMsgs) == 0 && conv.Title == "New Task" {
		go s.autoTitleConversation(context.Background(), uid, req.Content)
	}

	// NDJSON response; one event per line.
	rw := c.Response()
	rw.Header().Set("Content-Type", "application/x-ndjson")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(rw)
	flush := func() {
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
	}

	// The sandbox is provisioned lazily on the first shell command and
	// keyed by conversation, so concurrent conversations never share one.
	lazy := agent.NewLazySandbox(func(ctx context.Context) (sandbox.Executor, bool, error) {
		return s.Sandboxes.Acquire(ctx, uid, req.SandboxID)
	})
	release := func(ctx context.Context) {
		s.Sandboxes.Release(ctx, uid)
	}
	skillHandler := agent.NewSkillHandler(s.Skills, lazy)
	router := agent.NewRouter(lazy, skillHandler)
	runner := agent.NewRunner(s.LLM, router, lazy, release, agent.NewSkillToolRegistry(s.Skills))

	stream := agent.NewStream(streamBuffer)

	// Cited skills surface before the run so the client can show what prior
	// knowledge the agent starts from.
	if hits, err := s.Skills.SearchSkills(ctx, req.Content, 3); err == nil {
		for _, hit := range hits {
			stream.Send(agent.Event{
				Type:      agent.EventSource,
				SkillUID:  hit.UID,
				SkillName: hit.Name,
				Snippet:   hit.Snippet,
			})
		}
	}

	opts := agent.RunOptions{
		Mode:    mode,
		Summary: conv.Summary,
		History: buildHistory(dbMsgs, req.Content),
		Env:     req.Env,
	}

	var result *agent.RunResult
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result = runner.Run(ctx, stream, opts)
	}()

	for ev := range stream.Events() {
		if err := encoder.Encode(ev); err != nil {
			// Client gone. The runner keeps draining into the stream until
			// it observes the canceled context; we keep consuming so it
			// never blocks on a full buffer.
			continue
		}
		flush()
	}
	<-finished

	// Persistence survives the client disconnect; the request context is
	// dead by now on aborts.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if len(result.Parts) > 0 {
		if _, err := s.Store.CreateMessage(persistCtx, &store.CreateMessage{
			ConversationID: conv.ID,
			Role:           store.RoleAssistant,
			Parts:          result.Parts,
			Stats:          &result.Stats,
			Raw:            result.Raw,
		}); err != nil {
			slog.Warn("failed to persist assistant message", "err", err)
		}
	}
	update := &store.UpdateConversation{UID: uid}
	if result.SandboxID != "" && !result.Aborted {
		update.SandboxID = &result.SandboxID
	}
	if _, err := s.Store.UpdateConversation(persistCtx, update); err != nil {
		slog.Warn("failed to update conversation", "err", err)
	}
	return nil
}

// buildHistory flattens persisted messages into LLM chat history. Tool parts
// are replayed as the result blocks the model originally saw.
func buildHistory(msgs []*store.Message, pendingUserContent string) []agent.ChatMessage {
	history := make([]agent.ChatMessage, 0, len(msgs)+1)
	for _, msg := range msgs {
		content := flattenParts(msg.Parts)
		if content == "" {
			continue
		}
		role := agent.ChatRoleUser
		if msg.Role == store.RoleAssistant {
			role = agent.ChatRoleAssistant
		}
		history = append(history, agent.ChatMessage{Role: role, Content: content})
	}
	history = append(history, agent.ChatMessage{Role: agent.ChatRoleUser, Content: pendingUserContent})
	return history
}

func flattenParts(parts []store.Part) string {
	var sb strings.Builder
	for _, part := range parts {
		switch part.Type {
		case store.PartTypeText:
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(part.Content)
		case store.PartTypeTool:
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "[%s] $ %s\n%s", part.CommandID, part.Command, part.Output)
		}
	}
	return strings.TrimSpace(sb.String())
}

// maybeCompact summarizes older messages when the total character count
// exceeds compactThreshold, keeping the most recent keepRecentMessages
// verbatim.
func (s *APIV1Service) maybeCompact(ctx context.Context, conv *store.Conversation, msgs []*store.Message) ([]*store.Message, *store.Conversation, error) {
	total := 0
	for _, m := range msgs {
		total += len(flattenParts(m.Parts))
	}
	if total <= compactThreshold {
		return msgs, conv, nil
	}
	cutAt := len(msgs) - keepRecentMessages
	if cutAt <= 0 {
		return msgs, conv, nil
	}
	old := msgs[:cutAt]
	recent := msgs[cutAt:]

	var sb strings.Builder
	sb.WriteString("Summarize this conversation concisely, preserving key facts, commands run, and decisions:\n\n")
	for _, m := range old {
		sb.WriteString(m.Role + ": " + flattenParts(m.Parts) + "\n")
	}
	summary, err := s.callLLM(ctx, sb.String())
	if err != nil {
		return msgs, conv, err
	}
	fullSummary := summary
	if conv.Summary != "" {
		fullSummary = conv.Summary + "\n\n" + summary
	}

	updated, err := s.Store.UpdateConversation(ctx, &store.UpdateConversation{
		UID:     conv.UID,
		Summary: &fullSummary,
	})
	if err != nil {
		return msgs, conv, err
	}
	// Replace the message log with just the recent tail; the summary stands
	// in for everything older.
	if err := s.Store.DeleteMessages(ctx, conv.ID); err != nil {
		return msgs, conv, err
	}
	kept := make([]*store.Message, 0, len(recent))
	for _, m := range recent {
		created, err := s.Store.CreateMessage(ctx, &store.CreateMessage{
			ConversationID: conv.ID,
			Role:           m.Role,
			Parts:          m.Parts,
			Stats:          m.Stats,
			Raw:            m.Raw,
		})
		if err != nil {
			slog.Warn("failed to re-insert message during compaction", "err", err)
			continue
		}
		kept = append(kept, created)
	}
	slog.Info("context compacted", "conversation", conv.UID, "summary_len", len(fullSummary), "kept_messages", len(kept))
	return kept, updated, nil
}

func (s *APIV1Service) autoTitleConversation(ctx context.Context, uid, firstMessage string) {
	prompt := fmt.Sprintf(
		"Generate a short (5-7 word) title for a task that starts with:\n%q\nReturn only the title, no quotes.",
		firstMessage,
	)
	title, err := s.callLLM(ctx, prompt)
	if err != nil || strings.TrimSpace(title) == "" {
		return
	}
	title = strings.TrimSpace(title)
	if _, err := s.Store.UpdateConversation(ctx, &store.UpdateConversation{UID: uid, Title: &title}); err != nil {
		slog.Warn("auto-title update failed", "conversation", uid, "err", err)
	}
}

// callLLM runs a one-shot, non-streamed prompt for internal chores like
// titling and summarization.
func (s *APIV1Service) callLLM(ctx context.Context, prompt string) (string, error) {
	turn, err := s.LLM.StreamTurn(ctx, []agent.ChatMessage{
		{Role: agent.ChatRoleUser, Content: prompt},
	}, nil)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}
