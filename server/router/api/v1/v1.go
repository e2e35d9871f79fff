// Package v1 is the HTTP API surface.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/agentpad/agentpad/agent"
	"github.com/agentpad/agentpad/plugin/mcpserver"
	"github.com/agentpad/agentpad/sandbox"
	"github.com/agentpad/agentpad/server/auth"
	"github.com/agentpad/agentpad/server/profile"
	"github.com/agentpad/agentpad/server/skills"
	"github.com/agentpad/agentpad/server/version"
	"github.com/agentpad/agentpad/store"
)

// APIV1Service bundles the dependencies of the v1 handlers.
type APIV1Service struct {
	Store     *store.Store
	Skills    *skills.Service
	Sandboxes *sandbox.Registry
	LLM       agent.LLM
	Auth      *auth.Authenticator
	Profile   *profile.Profile
}

// RegisterRoutes mounts all v1 endpoints on the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/auth/login", s.login)
	g.GET("/status", s.status)

	g.GET("/conversations", s.listConversations)
	g.POST("/conversations", s.createConversation)
	g.PATCH("/conversations/:uid", s.updateConversation)
	g.DELETE("/conversations/:uid", s.deleteConversation)
	g.GET("/conversations/:uid/messages", s.listMessages)
	g.POST("/conversations/:uid/chat", s.handleChat)

	g.GET("/skills", s.listSkills)
	g.POST("/skills", s.createSkill)
	g.GET("/skills/rss", s.skillsRSS)
	g.GET("/skills/:uid", s.getSkill)
	g.PATCH("/skills/:uid", s.updateSkill)
	g.DELETE("/skills/:uid", s.deleteSkill)
	g.GET("/skills/:uid/preview", s.previewSkill)
	g.GET("/skills/:uid/files", s.listSkillFiles)
	g.GET("/skills/:uid/files/:name", s.getSkillFile)
	g.POST("/skills/:uid/files/:name", s.uploadSkillFile)

	// External MCP clients reach the skill library here.
	mcpHandler := mcpserver.HTTPHandler(mcpserver.New(s.Skills, s.Profile.Version))
	e.Any("/mcp", echo.WrapHandler(mcpHandler))
}

// requireAuth rejects unauthenticated requests when an access secret is
// configured.
func (s *APIV1Service) requireAuth(c *echo.Context) error {
	if err := s.Auth.Authenticate(c.Request()); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return nil
}

type loginRequest struct {
	AccessSecret string `json:"accessSecret"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *APIV1Service) login(c *echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	token, err := s.Auth.Login(req.AccessSecret)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	c.SetCookie(&http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return c.JSON(http.StatusOK, loginResponse{Token: token})
}

type statusResponse struct {
	Version        string `json:"version"`
	Mode           string `json:"mode"`
	SandboxBackend string `json:"sandboxBackend"`
	AuthEnabled    bool   `json:"authEnabled"`
	Healthy        bool   `json:"healthy"`
}

func (s *APIV1Service) status(c *echo.Context) error {
	// Refuse to report healthy when the binary is older than the schema
	// floor; mixed deployments behind one database must fail loudly.
	healthy := version.IsVersionGreaterOrEqualThan(version.Version, version.MinSchemaVersion)
	return c.JSON(http.StatusOK, statusResponse{
		Version:        s.Profile.Version,
		Mode:           s.Profile.Mode,
		SandboxBackend: s.Profile.SandboxBackend,
		AuthEnabled:    s.Auth.Enabled(),
		Healthy:        healthy,
	})
}
