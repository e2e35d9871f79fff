package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentpad/agentpad/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `INSERT INTO conversation (uid, title, mode) VALUES (?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt, create.UID, create.Title, create.Mode); err != nil {
		return nil, err
	}
	return d.GetConversation(ctx, &store.FindConversation{UID: &create.UID})
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.Mode; v != nil {
		where, args = append(where, "mode = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, uid, title, mode, summary, sandbox_id, created_ts, updated_ts
		 FROM conversation WHERE %s ORDER BY updated_ts DESC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Conversation
	for rows.Next() {
		c := &store.Conversation{}
		if err := rows.Scan(&c.ID, &c.UID, &c.Title, &c.Mode, &c.Summary, &c.SandboxID, &c.CreatedTs, &c.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error) {
	list, err := d.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = ?"), append(args, *v)
	}
	if v := update.Mode; v != nil {
		set, args = append(set, "mode = ?"), append(args, *v)
	}
	if v := update.Summary; v != nil {
		set, args = append(set, "summary = ?"), append(args, *v)
	}
	if v := update.SandboxID; v != nil {
		set, args = append(set, "sandbox_id = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return d.GetConversation(ctx, &store.FindConversation{UID: &update.UID})
	}
	set = append(set, "updated_ts = strftime('%s', 'now')")
	args = append(args, update.UID)
	stmt := fmt.Sprintf("UPDATE conversation SET %s WHERE uid = ?", strings.Join(set, ", "))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, err
	}
	return d.GetConversation(ctx, &store.FindConversation{UID: &update.UID})
}

func (d *DB) DeleteConversation(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM conversation WHERE uid = ?", uid)
	return err
}

func (d *DB) CreateMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error) {
	parts, err := store.MarshalParts(create.Parts)
	if err != nil {
		return nil, err
	}
	stats, err := store.MarshalStats(create.Stats)
	if err != nil {
		return nil, err
	}
	stmt := `INSERT INTO message (conversation_id, role, parts, stats, raw) VALUES (?, ?, ?, ?, ?)`
	result, err := d.db.ExecContext(ctx, stmt, create.ConversationID, create.Role, parts, stats, create.Raw)
	if err != nil {
		return nil, err
	}
	rawID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	m := &store.Message{
		ID:             int32(rawID),
		ConversationID: create.ConversationID,
		Role:           create.Role,
		Parts:          create.Parts,
		Stats:          create.Stats,
		Raw:            create.Raw,
	}
	_ = d.db.QueryRowContext(ctx, "SELECT created_ts FROM message WHERE id = ?", m.ID).Scan(&m.CreatedTs)
	return m, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	query := `SELECT id, conversation_id, role, parts, stats, raw, created_ts
	          FROM message WHERE conversation_id = ? ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, find.ConversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Message
	for rows.Next() {
		m := &store.Message{}
		var parts, stats string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &parts, &stats, &m.Raw, &m.CreatedTs); err != nil {
			return nil, err
		}
		if m.Parts, err = store.UnmarshalParts(parts); err != nil {
			return nil, err
		}
		if m.Stats, err = store.UnmarshalStats(stats); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) DeleteMessages(ctx context.Context, conversationID int32) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM message WHERE conversation_id = ?", conversationID)
	return err
}
