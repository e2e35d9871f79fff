package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentpad/agentpad/store"
)

func (d *DB) CreateSkill(ctx context.Context, create *store.Skill) (*store.Skill, error) {
	stmt := "INSERT INTO `skill` (`uid`, `name`, `content`) VALUES (?, ?, ?)"
	if _, err := d.db.ExecContext(ctx, stmt, create.UID, create.Name, create.Content); err != nil {
		return nil, err
	}
	return d.GetSkill(ctx, &store.FindSkill{UID: &create.UID})
}

func (d *DB) ListSkills(ctx context.Context, find *store.FindSkill) ([]*store.Skill, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UID; v != nil {
		where, args = append(where, "`uid` = ?"), append(args, *v)
	}
	if v := find.Name; v != nil {
		where, args = append(where, "`name` = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, name, content, UNIX_TIMESTAMP(created_ts), UNIX_TIMESTAMP(updated_ts)
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
		set, args = append(set, "`name` = ?"), append(args, *v)
	}
	if v := update.Content; v != nil {
		set, args = append(set, "`content` = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return d.GetSkill(ctx, &store.FindSkill{UID: &update.UID})
	}
	set = append(set, "`updated_ts` = CURRENT_TIMESTAMP")
	args = append(args, update.UID)
	stmt := fmt.Sprintf("UPDATE `skill` SET %s WHERE `uid` = ?", strings.Join(set, ", "))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, err
	}
	return d.GetSkill(ctx, &store.FindSkill{UID: &update.UID})
}

func (d *DB) DeleteSkill(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM `skill` WHERE `uid` = ?", uid)
	return err
}

func (d *DB) CreateSkillFile(ctx context.Context, create *store.CreateSkillFile) (*store.SkillFile, error) {
	stmt := "INSERT INTO `skill_file` (`skill_id`, `name`, `storage_key`, `size`) VALUES (?, ?, ?, ?)" +
		" ON DUPLICATE KEY UPDATE `storage_key` = VALUES(`storage_key`), `size` = VALUES(`size`)"
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
	where, args := []string{"`skill_id` = ?"}, []any{find.SkillID}
	if v := find.Name; v != nil {
		where, args = append(where, "`name` = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, skill_id, name, storage_key, size, UNIX_TIMESTAMP(created_ts)
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
	_, err := d.db.ExecContext(ctx, "DELETE FROM `skill_file` WHERE `skill_id` = ?", skillID)
	return err
}
