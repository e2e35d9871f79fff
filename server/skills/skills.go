// Package skills composes the relational store, the vector index, and the
// file storage backend into the one skill service the agent, the HTTP API,
// and the MCP server all share.
package skills

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"

	"github.com/agentpad/agentpad/agent"
	"github.com/agentpad/agentpad/plugin/storage"
	"github.com/agentpad/agentpad/plugin/vectorstore"
	"github.com/agentpad/agentpad/store"
)

// snippetLength bounds search-hit previews.
const snippetLength = 200

// Service implements agent.SkillStore. The vector index is optional; without
// it search falls back to case-folded keyword matching.
type Service struct {
	store   *store.Store
	vectors *vectorstore.Store
	files   storage.Driver
	folder  cases.Caser
}

// NewService wires the three backends together. vectors may be nil when no
// embedding endpoint is configured.
func NewService(st *store.Store, vectors *vectorstore.Store, files storage.Driver) *Service {
	return &Service{store: st, vectors: vectors, files: files, folder: cases.Fold()}
}

// ListSkillNames returns all skill names, newest first.
func (s *Service) ListSkillNames(ctx context.Context) ([]string, error) {
	list, err := s.store.ListSkills(ctx, &store.FindSkill{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, skill := range list {
		names = append(names, skill.Name)
	}
	return names, nil
}

// GetSkill returns nil when no skill has that name.
func (s *Service) GetSkill(ctx context.Context, name string) (*agent.SkillRecord, error) {
	skill, err := s.store.GetSkill(ctx, &store.FindSkill{Name: &name})
	if err != nil {
		return nil, err
	}
	if skill == nil {
		return nil, nil
	}
	return &agent.SkillRecord{UID: skill.UID, Name: skill.Name, Content: skill.Content}, nil
}

// SaveSkill creates or overwrites a skill and re-indexes its embedding.
func (s *Service) SaveSkill(ctx context.Context, name, content string) (*agent.SkillRecord, bool, error) {
	existing, err := s.store.GetSkill(ctx, &store.FindSkill{Name: &name})
	if err != nil {
		return nil, false, err
	}

	var skill *store.Skill
	created := existing == nil
	if created {
		skill, err = s.store.CreateSkill(ctx, &store.Skill{
			UID:     shortuuid.New(),
			Name:    name,
			Content: content,
		})
	} else {
		skill, err = s.store.UpdateSkill(ctx, &store.UpdateSkill{
			UID:     existing.UID,
			Content: &content,
		})
	}
	if err != nil {
		return nil, false, err
	}

	// The embedding is derivative data; a failed upsert degrades search but
	// must not fail the save.
	if s.vectors != nil {
		if err := s.vectors.UpsertSkill(ctx, skill.UID, skill.Name, skill.Content); err != nil {
			slog.Warn("skill embedding upsert failed", "skill", skill.Name, "err", err)
		}
	}
	return &agent.SkillRecord{UID: skill.UID, Name: skill.Name, Content: skill.Content}, created, nil
}

// SearchSkills queries the vector index, falling back to keyword matching
// when the index is unavailable or empty.
func (s *Service) SearchSkills(ctx context.Context, query string, limit int) ([]agent.SkillHit, error) {
	if s.vectors != nil {
		results, err := s.vectors.SearchSimilar(ctx, query, limit)
		if err != nil {
			slog.Warn("semantic skill search failed, falling back to keywords", "err", err)
		} else if len(results) > 0 {
			hits := make([]agent.SkillHit, 0, len(results))
			for _, r := range results {
				hits = append(hits, agent.SkillHit{
					UID:     r.SkillUID,
					Name:    r.Name,
					Snippet: snippet(r.Content),
				})
			}
			return hits, nil
		}
	}
	return s.keywordSearch(ctx, query, limit)
}

// keywordSearch is a case-folded substring match over names and content.
func (s *Service) keywordSearch(ctx context.Context, query string, limit int) ([]agent.SkillHit, error) {
	list, err := s.store.ListSkills(ctx, &store.FindSkill{})
	if err != nil {
		return nil, err
	}
	needle := s.folder.String(query)
	var hits []agent.SkillHit
	for _, skill := range list {
		if len(hits) >= limit {
			break
		}
		if strings.Contains(s.folder.String(skill.Name), needle) ||
			strings.Contains(s.folder.String(skill.Content), needle) {
			hits = append(hits, agent.SkillHit{
				UID:     skill.UID,
				Name:    skill.Name,
				Snippet: snippet(skill.Content),
			})
		}
	}
	return hits, nil
}

// GetSkillFile loads a file attachment's body from the storage backend.
func (s *Service) GetSkillFile(ctx context.Context, skillName, fileName string) ([]byte, bool, error) {
	skill, err := s.store.GetSkill(ctx, &store.FindSkill{Name: &skillName})
	if err != nil {
		return nil, false, err
	}
	if skill == nil {
		return nil, false, nil
	}
	file, err := s.findFile(ctx, skill.ID, fileName)
	if err != nil {
		return nil, false, err
	}
	if file == nil {
		return nil, false, nil
	}
	return s.files.Get(ctx, file.StorageKey)
}

// AddSkillFile stores a file body and records its metadata. Re-adding a file
// with the same name replaces it.
func (s *Service) AddSkillFile(ctx context.Context, skillName, fileName string, content []byte) error {
	skill, err := s.store.GetSkill(ctx, &store.FindSkill{Name: &skillName})
	if err != nil {
		return err
	}
	if skill == nil {
		return errors.Errorf("skill not found: %s", skillName)
	}
	key := "skills/" + skill.UID + "/" + fileName
	if err := s.files.Put(ctx, key, content); err != nil {
		return err
	}
	_, err = s.store.CreateSkillFile(ctx, &store.CreateSkillFile{
		SkillID:    skill.ID,
		Name:       fileName,
		StorageKey: key,
		Size:       int64(len(content)),
	})
	return err
}

// DeleteSkill removes the skill row, its file bodies and metadata, and its
// embedding.
func (s *Service) DeleteSkill(ctx context.Context, uid string) error {
	skill, err := s.store.GetSkill(ctx, &store.FindSkill{UID: &uid})
	if err != nil {
		return err
	}
	if skill == nil {
		return nil
	}
	files, err := s.store.ListSkillFiles(ctx, &store.FindSkillFile{SkillID: skill.ID})
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := s.files.Delete(ctx, file.StorageKey); err != nil {
			slog.Warn("skill file body delete failed", "key", file.StorageKey, "err", err)
		}
	}
	if err := s.store.DeleteSkill(ctx, uid); err != nil {
		return err
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteSkill(ctx, skill.UID); err != nil {
			slog.Warn("skill embedding delete failed", "skill", skill.Name, "err", err)
		}
	}
	return nil
}

func (s *Service) findFile(ctx context.Context, skillID int32, fileName string) (*store.SkillFile, error) {
	files, err := s.store.ListSkillFiles(ctx, &store.FindSkillFile{SkillID: skillID, Name: &fileName})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return files[0], nil
}

func snippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= snippetLength {
		return content
	}
	return content[:snippetLength] + "..."
}
