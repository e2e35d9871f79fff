package v1

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"

	"github.com/agentpad/agentpad/store"
)

type conversationRequest struct {
	Title string `json:"title"`
	Mode  string `json:"mode"`
}

type conversationResponse struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	Mode      string `json:"mode"`
	SandboxID string `json:"sandboxId,omitempty"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type messageResponse struct {
	ID        int32               `json:"id"`
	Role      string              `json:"role"`
	Parts     []store.Part        `json:"parts"`
	Stats     *store.MessageStats `json:"stats,omitempty"`
	CreatedTs int64               `json:"createdTs"`
}

func toConversationResponse(c *store.Conversation) conversationResponse {
	return conversationResponse{
		UID:       c.UID,
		Title:     c.Title,
		Mode:      c.Mode,
		SandboxID: c.SandboxID,
		CreatedTs: c.CreatedTs,
		UpdatedTs: c.UpdatedTs,
	}
}

func (s *APIV1Service) listConversations(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	find := &store.FindConversation{}
	if f := c.QueryParam("filter"); f != "" {
		find.Filters = append(find.Filters, f)
	}
	conversations, err := s.Store.ListConversations(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]conversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		resp = append(resp, toConversationResponse(conv))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createConversation(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	var req conversationRequest
	if err := c.Bind(&req); err != nil {
		req.Title = ""
	}
	if req.Title == "" {
		req.Title = "New Task"
	}
	if req.Mode != "" && req.Mode != store.ModeTask && req.Mode != store.ModeCodifySkill {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown mode")
	}
	conv, err := s.Store.CreateConversation(c.Request().Context(), &store.Conversation{
		UID:   shortuuid.New(),
		Title: req.Title,
		Mode:  req.Mode,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (s *APIV1Service) updateConversation(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	var req conversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	update := &store.UpdateConversation{UID: uid}
	if req.Title != "" {
		update.Title = &req.Title
	}
	if req.Mode != "" {
		if req.Mode != store.ModeTask && req.Mode != store.ModeCodifySkill {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown mode")
		}
		update.Mode = &req.Mode
	}
	conv, err := s.Store.UpdateConversation(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (s *APIV1Service) deleteConversation(c *echo.Context) error {
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
	// The sandbox session dies with its conversation.
	s.Sandboxes.Release(ctx, uid)
	if err := s.Store.DeleteConversation(ctx, uid); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) listMessages(c *echo.Context) error {
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
	messages, err := s.Store.ListMessages(ctx, &store.FindMessage{ConversationID: conv.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]messageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, messageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Parts:     msg.Parts,
			Stats:     msg.Stats,
			CreatedTs: msg.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}
