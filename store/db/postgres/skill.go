package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentpad/agentpad/store"
)

func (d *DB) CreateSkill(ctx context.Context, create *store.Skill) (*store.Skill, error) {
	stmt := `INSERT INTO skill (uid, name, content) VALUES ($1, $2, $3)`
	if _, err := d.db.ExecContext(ctx, stmt, create.UID, create.Name, create.Content); err != nil {
		return nil, err
	}
	return d.GetSkill(ctx, &store.FindSkill{UID: &create.UID})
}

func (d *DB) ListSkills(ctx context.Context, find *store.FindSkill) ([]*store.Skill, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UID; v != nil {
		args = append(args, *v)
		where = append(where, fmt.Sprintf("uid = $%d", len(args)))
	}
	if v := find.Name; v != nil {
		args = append(args, *v)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}
	query := fmt.Sprintf(
		`SELECT id, uid, name, content, created_ts, updated_ts
		 FROM skill WHERE %s ORDER BY updated_ts DESC`,
		strings.Join(where, " AND "),
	)
	if v := find.Limit; v != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *v)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Skill
	for rows.Next() {
		s := &store.Skill{}
		if err := rows.Scan(&s.ID, &s.UID, &s.Name, &s.Content, &s.CreatedTs, &s.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (d *DB) GetSkill(ctx context.Context, find *store.FindSkill) (*store.Skill, error) {
	list, err := d.ListSkills(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (d *DB) UpdateSkill(ctx context.Context, update *store.UpdateSkill) (*store.Skill, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		args = append(args, *v)
		set = append(set, fmt.Sprintf("name = $%d", len(args)))
	}
	if v := update.Content; v != nil {
		args = append(args, *v)
		set = append(set, fmt.Sprintf("content = $%d", len(args)))
	}
	if len(set) == 0 {
		return d.GetSkill(ctx, &store.FindSkill{UID: &update.UID})
	}
	set = append(set, "updated_ts = EXTRACT(EPOCH FROM NOW())")
	args = append(args, update.UID)
	stmt := fmt.Sprintf("UPDATE skill SET %s WHERE uid = $%d", strings.Join(set, ", "), len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, err
	}
	return d.GetSkill(ctx, &store.FindSkill{UID: &update.UID})
}

func (d *DB) DeleteSkill(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM skill WHERE uid = $1", uid)
	return err
}

func (d *DB) CreateSkillFile(ctx context.Context, create *store.CreateSkillFile) (*store.SkillFile, error) {
	stmt := `INSERT INTO skill_file (skill_id, name, storage_key, size) VALUES ($1, $2, $3, $4)
	         ON CONFLICT (skill_id, name) DO UPDATE SET storage_key = EXCLUDED.storage_key, size = EXCLUDED.size`
	if _, err := d.db.ExecContext(ctx, stmt, create.SkillID, create.Name, create.StorageKey, create.Size); err != nil {
		return nil, err
	}
	files, err := d.ListSkillFiles(ctx, &store.FindSkillFile{SkillID: create.SkillID, Name: &create.Name})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("skill file not found after upsert")
	}
	return files[0], nil
}

func (d *DB) ListSkillFiles(ctx context.Context, find *store.FindSkillFile) ([]*store.SkillFile, error) {
	where, args := []string{"skill_id = $1"}, []any{find.SkillID}
	if v := find.Name; v != nil {
		args = append(args, *v)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}
	query := fmt.Sprintf(
		`SELECT id, skill_id, name, storage_key, size, created_ts
		 FROM skill_file WHERE %s ORDER BY name ASC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.SkillFile
	for rows.Next() {
		f := &store.SkillFile{}
		if err := rows.Scan(&f.ID, &f.SkillID, &f.Name, &f.StorageKey, &f.Size, &f.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func (d *DB) DeleteSkillFiles(ctx context.Context, skillID int32) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM skill_file WHERE skill_id = $1", skillID)
	return err
}
