package v1

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/agentpad/agentpad/store"
)

// markdown renders skill content for the preview endpoint.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// maxSkillFileUpload bounds a single file attachment.
const maxSkillFileUpload = 8 << 20

type skillRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type skillResponse struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type skillFileResponse struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedTs int64  `json:"createdTs"`
}

func toSkillResponse(sk *store.Skill) skillResponse {
	return skillResponse{
		UID:       sk.UID,
		Name:      sk.Name,
		Content:   sk.Content,
		CreatedTs: sk.CreatedTs,
		UpdatedTs: sk.UpdatedTs,
	}
}

func (s *APIV1Service) listSkills(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	find := &store.FindSkill{}
	if f := c.QueryParam("filter"); f != "" {
		find.Filters = append(find.Filters, f)
	}
	list, err := s.Store.ListSkills(c.Request().Context(), find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]skillResponse, 0, len(list))
	for _, sk := range list {
		resp = append(resp, toSkillResponse(sk))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createSkill(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	var req skillRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	record, created, err := s.Skills.SaveSkill(c.Request().Context(), req.Name, req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	sk, err := s.Store.GetSkill(c.Request().Context(), &store.FindSkill{UID: &record.UID})
	if err != nil || sk == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "skill lookup failed")
	}
	return c.JSON(status, toSkillResponse(sk))
}

func (s *APIV1Service) getSkill(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	sk, err := s.Store.GetSkill(c.Request().Context(), &store.FindSkill{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sk == nil {
		return echo.NewHTTPError(http.StatusNotFound, "skill not found")
	}
	return c.JSON(http.StatusOK, toSkillResponse(sk))
}

func (s *APIV1Service) updateSkill(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	var req skillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	update := &store.UpdateSkill{UID: uid}
	if req.Name != "" {
		update.Name = &req.Name
	}
	if req.Content != "" {
		update.Content = &req.Content
	}
	sk, err := s.Store.UpdateSkill(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sk == nil {
		return echo.NewHTTPError(http.StatusNotFound, "skill not found")
	}
	// Content changed; the embedding must follow.
	if _, _, err := s.Skills.SaveSkill(c.Request().Context(), sk.Name, sk.Content); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toSkillResponse(sk))
}

func (s *APIV1Service) deleteSkill(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	if err := s.Skills.DeleteSkill(c.Request().Context(), uid); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// previewSkill renders the skill's markdown content as HTML.
func (s *APIV1Service) previewSkill(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	sk, err := s.Store.GetSkill(c.Request().Context(), &store.FindSkill{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sk == nil {
		return echo.NewHTTPError(http.StatusNotFound, "skill not found")
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(sk.Content), &buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTML(http.StatusOK, buf.String())
}

func (s *APIV1Service) listSkillFiles(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	sk, err := s.Store.GetSkill(c.Request().Context(), &store.FindSkill{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sk == nil {
		return echo.NewHTTPError(http.StatusNotFound, "skill not found")
	}
	files, err := s.Store.ListSkillFiles(c.Request().Context(), &store.FindSkillFile{SkillID: sk.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]skillFileResponse, 0, len(files))
	for _, file := range files {
		resp = append(resp, skillFileResponse{
			Name:      file.Name,
			Size:      file.Size,
			CreatedTs: file.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) getSkillFile(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	sk, err := s.Store.GetSkill(c.Request().Context(), &store.FindSkill{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sk == nil {
		return echo.NewHTTPError(http.StatusNotFound, "skill not found")
	}
	data, found, err := s.Skills.GetSkillFile(c.Request().Context(), sk.Name, c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

func (s *APIV1Service) uploadSkillFile(c *echo.Context) error {
	if err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	sk, err := s.Store.GetSkill(c.Request().Context(), &store.FindSkill{UID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if sk == nil {
		return echo.NewHTTPError(http.StatusNotFound, "skill not found")
	}
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSkillFileUpload+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}
	if len(data) > maxSkillFileUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	if err := s.Skills.AddSkillFile(c.Request().Context(), sk.Name, c.Param("name"), data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}
