package v1

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v5"

	"github.com/agentpad/agentpad/store"
)

// rssItemLimit caps the feed length.
const rssItemLimit = 20

// skillsRSS publishes recently codified skills as an RSS feed. The feed is
// public read-only metadata; file bodies and full content stay behind auth.
func (s *APIV1Service) skillsRSS(c *echo.Context) error {
	ctx := c.Request().Context()
	limit := rssItemLimit
	list, err := s.Store.ListSkills(ctx, &store.FindSkill{Limit: &limit})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	baseURL := fmt.Sprintf("%s://%s", scheme(c.Request()), c.Request().Host)
	feed := &feeds.Feed{
		Title:       "agentpad skills",
		Link:        &feeds.Link{Href: baseURL + "/api/v1/skills"},
		Description: "Recently codified skills",
		Created:     time.Now(),
	}
	for _, sk := range list {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          sk.UID,
			Title:       sk.Name,
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/api/v1/skills/%s", baseURL, sk.UID)},
			Description: firstLine(sk.Content),
			Created:     time.Unix(sk.CreatedTs, 0),
			Updated:     time.Unix(sk.UpdatedTs, 0),
		})
	}

	rss, err := feed.ToRss()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "application/rss+xml", []byte(rss))
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

func firstLine(content string) string {
	line := strings.TrimSpace(content)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimLeft(line, "# ")
}
