package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/baiirun/workdesk/internal/model"
)

// InsertTimeEntry appends a time entry to its item.
func (db *DB) InsertTimeEntry(ctx context.Context, e model.TimeEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO time_entries (id, item_id, author_id, hours, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ItemID, e.AuthorID, e.Hours, e.Description, formatTime(e.Date), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to log time: %w", err)
	}
	return nil
}

func (db *DB) TimeEntry(ctx context.Context, id string) (model.TimeEntry, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, item_id, author_id, hours, description, date, created_at
		FROM time_entries WHERE id = ?`, id)
	e, err := scanTimeEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TimeEntry{}, model.NotFound("time entry", id)
	}
	if err != nil {
		return model.TimeEntry{}, fmt.Errorf("failed to get time entry: %w", err)
	}
	return e, nil
}

func (db *DB) DeleteTimeEntry(ctx context.Context, id string) error {
	return db.deleteByID(ctx, "time_entries", "time entry", id)
}

func scanTimeEntry(row scanner) (model.TimeEntry, error) {
	var e model.TimeEntry
	var date, createdAt string
	if err := row.Scan(&e.ID, &e.ItemID, &e.AuthorID, &e.Hours, &e.Description, &date, &createdAt); err != nil {
		return model.TimeEntry{}, err
	}
	var err error
	if e.Date, err = parseTime(date); err != nil {
		return model.TimeEntry{}, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.TimeEntry{}, err
	}
	return e, nil
}

// timeEntries returns an item's entries in the order they were logged.
func (db *DB) timeEntries(ctx context.Context, itemID string) ([]model.TimeEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, item_id, author_id, hours, description, date, created_at
		FROM time_entries WHERE item_id = ?
		ORDER BY created_at, rowid`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get time entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertComment stores a comment and its resolved mentions.
func (db *DB) InsertComment(ctx context.Context, c model.Comment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO comments (id, item_id, author_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ItemID, c.AuthorID, c.Content, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	for i, m := range c.Mentions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO mentions (comment_id, user_id, username, position)
			VALUES (?, ?, ?, ?)`,
			c.ID, m.UserID, m.Username, i)
		if err != nil {
			return fmt.Errorf("failed to record mention of %s: %w", m.Username, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Comment(ctx context.Context, id string) (model.Comment, error) {
	var c model.Comment
	var createdAt string
	err := db.QueryRowContext(ctx, `
		SELECT id, item_id, author_id, content, created_at
		FROM comments WHERE id = ?`, id).Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Comment{}, model.NotFound("comment", id)
	}
	if err != nil {
		return model.Comment{}, fmt.Errorf("failed to get comment: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Comment{}, err
	}

	mentions, err := db.mentions(ctx, `WHERE comment_id = ?`, id)
	if err != nil {
		return model.Comment{}, err
	}
	c.Mentions = mentions[id]
	return c, nil
}

// DeleteComment removes a comment and its mentions.
func (db *DB) DeleteComment(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM mentions WHERE comment_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete mentions: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return model.NotFound("comment", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// comments returns an item's comments oldest first, with mentions.
func (db *DB) comments(ctx context.Context, itemID string) ([]model.Comment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, item_id, author_id, content, created_at
		FROM comments WHERE item_id = ?
		ORDER BY created_at, rowid`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Content, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	// The connection must be free before the mentions query.
	_ = rows.Close()

	if len(comments) == 0 {
		return nil, nil
	}
	mentions, err := db.mentions(ctx, `WHERE comment_id IN (SELECT id FROM comments WHERE item_id = ?)`, itemID)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i].Mentions = mentions[comments[i].ID]
	}
	return comments, nil
}

// mentions returns mentions grouped by comment id, each group in the order
// the users were mentioned.
func (db *DB) mentions(ctx context.Context, where string, args ...any) (map[string][]model.Mention, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT comment_id, user_id, username FROM mentions `+where+`
		ORDER BY comment_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get mentions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]model.Mention)
	for rows.Next() {
		var commentID string
		var m model.Mention
		if err := rows.Scan(&commentID, &m.UserID, &m.Username); err != nil {
			return nil, fmt.Errorf("failed to scan mention: %w", err)
		}
		out[commentID] = append(out[commentID], m)
	}
	return out, rows.Err()
}

// Mentions returns the comments that mention userID, newest first.
func (db *DB) Mentions(ctx context.Context, userID string) ([]model.Comment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.item_id, c.author_id, c.content, c.created_at
		FROM comments c JOIN mentions m ON m.comment_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.created_at DESC, c.rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mentions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []model.Comment
	for rows.Next() {
		var c model.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (db *DB) InsertAttachment(ctx context.Context, a model.Attachment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO attachments (id, item_id, filename, size, mime_type, uploader_id, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemID, a.Filename, a.Size, a.MimeType, a.UploaderID, a.URL, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func (db *DB) Attachment(ctx context.Context, id string) (model.Attachment, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, item_id, filename, size, mime_type, uploader_id, url, created_at
		FROM attachments WHERE id = ?`, id)
	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attachment{}, model.NotFound("attachment", id)
	}
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}

func (db *DB) DeleteAttachment(ctx context.Context, id string) error {
	return db.deleteByID(ctx, "attachments", "attachment", id)
}

func scanAttachment(row scanner) (model.Attachment, error) {
	var a model.Attachment
	var createdAt string
	if err := row.Scan(&a.ID, &a.ItemID, &a.Filename, &a.Size, &a.MimeType, &a.UploaderID, &a.URL, &createdAt); err != nil {
		return model.Attachment{}, err
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Attachment{}, err
	}
	return a, nil
}

func (db *DB) attachments(ctx context.Context, itemID string) ([]model.Attachment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, item_id, filename, size, mime_type, uploader_id, url, created_at
		FROM attachments WHERE item_id = ?
		ORDER BY created_at, rowid`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// deleteByID removes one row from table, failing with model.ErrNotFound when
// nothing matched. table is always a constant.
func (db *DB) deleteByID(ctx context.Context, table, what, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return model.NotFound(what, id)
	}
	return nil
}
