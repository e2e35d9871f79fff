package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/agentpad/agentpad/plugin/filter"
)

// Driver is the database abstraction implemented by store/db/{sqlite,mysql,postgres}.
type Driver interface {
	EnsureTables(ctx context.Context) error
	Close() error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, uid string) error

	CreateMessage(ctx context.Context, create *CreateMessage) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	DeleteMessages(ctx context.Context, conversationID int32) error

	CreateSkill(ctx context.Context, create *Skill) (*Skill, error)
	ListSkills(ctx context.Context, find *FindSkill) ([]*Skill, error)
	GetSkill(ctx context.Context, find *FindSkill) (*Skill, error)
	UpdateSkill(ctx context.Context, update *UpdateSkill) (*Skill, error)
	DeleteSkill(ctx context.Context, uid string) error

	CreateSkillFile(ctx context.Context, create *CreateSkillFile) (*SkillFile, error)
	ListSkillFiles(ctx context.Context, find *FindSkillFile) ([]*SkillFile, error)
	DeleteSkillFiles(ctx context.Context, skillID int32) error
}

// Store is the driver-agnostic persistence facade.
type Store struct {
	driver Driver
}

// New creates a store backed by the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// EnsureTables creates missing tables and indexes.
func (s *Store) EnsureTables(ctx context.Context) error {
	return s.driver.EnsureTables(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.driver.Close()
}

// CreateConversation creates a new conversation thread.
func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	if create.Mode == "" {
		create.Mode = ModeTask
	}
	return s.driver.CreateConversation(ctx, create)
}

// ListConversations lists conversations matching the given filter. CEL
// filter expressions are evaluated in-memory after the SQL fetch.
func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(find.Filters) == 0 {
		return list, nil
	}
	progs, err := filter.CompileAll(find.Filters)
	if err != nil {
		return nil, errors.Wrap(err, "compile conversation filters")
	}
	filtered := make([]*Conversation, 0, len(list))
	for _, c := range list {
		ok, err := filter.MatchAll(progs, map[string]any{
			"title":      c.Title,
			"mode":       c.Mode,
			"created_ts": c.CreatedTs,
			"updated_ts": c.UpdatedTs,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// GetConversation returns the first conversation matching the given filter.
func (s *Store) GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error) {
	return s.driver.GetConversation(ctx, find)
}

// UpdateConversation updates a conversation's mutable fields.
func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

// DeleteConversation deletes a conversation and all its messages (cascade).
func (s *Store) DeleteConversation(ctx context.Context, uid string) error {
	return s.driver.DeleteConversation(ctx, uid)
}

// CreateMessage persists a new message to a conversation.
func (s *Store) CreateMessage(ctx context.Context, create *CreateMessage) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

// ListMessages returns all messages for a conversation, ordered oldest first.
func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// DeleteMessages deletes all messages for the given conversation (used
// during compaction).
func (s *Store) DeleteMessages(ctx context.Context, conversationID int32) error {
	return s.driver.DeleteMessages(ctx, conversationID)
}

// CreateSkill creates a new named skill.
func (s *Store) CreateSkill(ctx context.Context, create *Skill) (*Skill, error) {
	return s.driver.CreateSkill(ctx, create)
}

// ListSkills lists skills matching the given filter, newest first. CEL
// filter expressions are evaluated in-memory after the SQL fetch.
func (s *Store) ListSkills(ctx context.Context, find *FindSkill) ([]*Skill, error) {
	list, err := s.driver.ListSkills(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(find.Filters) == 0 {
		return list, nil
	}
	progs, err := filter.CompileAll(find.Filters)
	if err != nil {
		return nil, errors.Wrap(err, "compile skill filters")
	}
	filtered := make([]*Skill, 0, len(list))
	for _, sk := range list {
		ok, err := filter.MatchAll(progs, map[string]any{
			"name":       sk.Name,
			"content":    sk.Content,
			"created_ts": sk.CreatedTs,
			"updated_ts": sk.UpdatedTs,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, sk)
		}
	}
	return filtered, nil
}

// GetSkill returns the first skill matching the given filter, or nil.
func (s *Store) GetSkill(ctx context.Context, find *FindSkill) (*Skill, error) {
	return s.driver.GetSkill(ctx, find)
}

// UpdateSkill updates a skill's mutable fields.
func (s *Store) UpdateSkill(ctx context.Context, update *UpdateSkill) (*Skill, error) {
	return s.driver.UpdateSkill(ctx, update)
}

// DeleteSkill deletes a skill and its file metadata (cascade). File bodies
// in the storage backend are the caller's responsibility.
func (s *Store) DeleteSkill(ctx context.Context, uid string) error {
	return s.driver.DeleteSkill(ctx, uid)
}

// CreateSkillFile records a file attachment on a skill.
func (s *Store) CreateSkillFile(ctx context.Context, create *CreateSkillFile) (*SkillFile, error) {
	return s.driver.CreateSkillFile(ctx, create)
}

// ListSkillFiles returns file attachments for a skill.
func (s *Store) ListSkillFiles(ctx context.Context, find *FindSkillFile) ([]*SkillFile, error) {
	return s.driver.ListSkillFiles(ctx, find)
}

// DeleteSkillFiles deletes all file metadata for the given skill.
func (s *Store) DeleteSkillFiles(ctx context.Context, skillID int32) error {
	return s.driver.DeleteSkillFiles(ctx, skillID)
}
