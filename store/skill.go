package store

// Skill is a named chunk of procedural knowledge the agent can retrieve
// instead of re-deriving a solution. Content is markdown.
type Skill struct {
	ID        int32
	UID       string
	Name      string
	Content   string
	CreatedTs int64
	UpdatedTs int64
}

// SkillFile is a file attachment on a skill. The file body lives in the
// storage backend (plugin/storage) under StorageKey; only metadata is kept
// in the database.
type SkillFile struct {
	ID         int32
	SkillID    int32
	Name       string
	StorageKey string
	Size       int64
	CreatedTs  int64
}

// FindSkill filters for ListSkills / GetSkill.
type FindSkill struct {
	UID     *string
	Name    *string
	Filters []string // CEL expressions, see plugin/filter
	Limit   *int
}

// UpdateSkill carries fields accepted by UpdateSkill.
type UpdateSkill struct {
	UID     string
	Name    *string
	Content *string
}

// FindSkillFile filters for ListSkillFiles.
type FindSkillFile struct {
	SkillID int32
	Name    *string
}

// CreateSkillFile is the payload for CreateSkillFile.
type CreateSkillFile struct {
	SkillID    int32
	Name       string
	StorageKey string
	Size       int64
}
