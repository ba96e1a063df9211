package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/baiirun/workdesk/internal/model"
)

const itemColumns = `id, kind, title, description, priority, status,
	start_date, due_date, sla_deadline, reminder_at, reminder_sent,
	parent_id, estimated_hours,
	is_recurring, recurrence_type, recurrence_interval, recurrence_end, next_occurrence,
	recurrence_source_id, successor_id,
	creator_id, assignee_id, created_at, updated_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*model.WorkItem, error) {
	item := &model.WorkItem{}
	var (
		start, due, sla, reminder           sql.NullString
		parentID, assigneeID                sql.NullString
		recurType, recurEnd, nextOccurrence sql.NullString
		sourceID, successorID               sql.NullString
		estimate                            sql.NullFloat64
		createdAt, updatedAt                string
	)
	err := row.Scan(
		&item.ID, &item.Kind, &item.Title, &item.Description, &item.Priority, &item.Status,
		&start, &due, &sla, &reminder, &item.ReminderSent,
		&parentID, &estimate,
		&item.IsRecurring, &recurType, &item.Recurrence.Interval, &recurEnd, &nextOccurrence,
		&sourceID, &successorID,
		&item.CreatorID, &assigneeID, &createdAt, &updatedAt, &item.Version,
	)
	if err != nil {
		return nil, err
	}

	if item.StartDate, err = parseTimePtr(start); err != nil {
		return nil, err
	}
	if item.DueDate, err = parseTimePtr(due); err != nil {
		return nil, err
	}
	if item.SLADeadline, err = parseTimePtr(sla); err != nil {
		return nil, err
	}
	if item.ReminderAt, err = parseTimePtr(reminder); err != nil {
		return nil, err
	}
	if item.Recurrence.End, err = parseTimePtr(recurEnd); err != nil {
		return nil, err
	}
	if item.NextOccurrence, err = parseTimePtr(nextOccurrence); err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	item.ParentID = nullString(parentID)
	item.AssigneeID = nullString(assigneeID)
	item.RecurrenceSourceID = nullString(sourceID)
	item.SuccessorID = nullString(successorID)
	if recurType.Valid {
		item.Recurrence.Type = model.RecurrenceType(recurType.String)
	}
	if estimate.Valid {
		h := estimate.Float64
		item.EstimatedHours = &h
	}
	return item, nil
}

// LoadItem retrieves an item with its time entries, comments and attachments.
func (db *DB) LoadItem(ctx context.Context, id string) (*model.WorkItem, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound("item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if item.TimeEntries, err = db.timeEntries(ctx, id); err != nil {
		return nil, err
	}
	if item.Comments, err = db.comments(ctx, id); err != nil {
		return nil, err
	}
	if item.Attachments, err = db.attachments(ctx, id); err != nil {
		return nil, err
	}
	return item, nil
}

// InsertItem stores a new item at version 1.
func (db *DB) InsertItem(ctx context.Context, item *model.WorkItem) error {
	if err := insertItem(ctx, db.DB, item); err != nil {
		return err
	}
	item.Version = 1
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertItem(ctx context.Context, ex execer, item *model.WorkItem) error {
	if !item.Kind.IsValid() {
		return model.Invalid("kind", "unknown kind %q", item.Kind)
	}
	if !item.Status.IsValid() {
		return model.Invalid("status", "unknown status %q", item.Status)
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		item.ID, item.Kind, item.Title, item.Description, item.Priority, item.Status,
		formatTimePtr(item.StartDate), formatTimePtr(item.DueDate), formatTimePtr(item.SLADeadline),
		formatTimePtr(item.ReminderAt), item.ReminderSent,
		item.ParentID, item.EstimatedHours,
		item.IsRecurring, recurrenceType(item), item.Recurrence.Interval,
		formatTimePtr(item.Recurrence.End), formatTimePtr(item.NextOccurrence),
		item.RecurrenceSourceID, item.SuccessorID,
		item.CreatorID, item.AssigneeID, formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "items.recurrence_source_id") {
			return fmt.Errorf("successor of %s already exists: %w", *item.RecurrenceSourceID, model.ErrConflict)
		}
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func recurrenceType(item *model.WorkItem) any {
	if !item.IsRecurring {
		return nil
	}
	return string(item.Recurrence.Type)
}

func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// SaveItem writes every scalar field of item if the stored row is still at
// item.Version, then advances item.Version.
func (db *DB) SaveItem(ctx context.Context, item *model.WorkItem) error {
	if err := saveItem(ctx, db.DB, item); err != nil {
		return err
	}
	item.Version++
	return nil
}

type querier interface {
	execer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func saveItem(ctx context.Context, q querier, item *model.WorkItem) error {
	result, err := q.ExecContext(ctx, `
		UPDATE items SET
			title = ?, description = ?, priority = ?, status = ?,
			start_date = ?, due_date = ?, sla_deadline = ?, reminder_at = ?, reminder_sent = ?,
			parent_id = ?, estimated_hours = ?,
			is_recurring = ?, recurrence_type = ?, recurrence_interval = ?, recurrence_end = ?, next_occurrence = ?,
			successor_id = ?, assignee_id = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		item.Title, item.Description, item.Priority, item.Status,
		formatTimePtr(item.StartDate), formatTimePtr(item.DueDate), formatTimePtr(item.SLADeadline),
		formatTimePtr(item.ReminderAt), item.ReminderSent,
		item.ParentID, item.EstimatedHours,
		item.IsRecurring, recurrenceType(item), item.Recurrence.Interval,
		formatTimePtr(item.Recurrence.End), formatTimePtr(item.NextOccurrence),
		item.SuccessorID, item.AssigneeID, formatTime(item.UpdatedAt),
		item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	var version int64
	err = q.QueryRowContext(ctx, `SELECT version FROM items WHERE id = ?`, item.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotFound("item", item.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to check item version: %w", err)
	}
	return fmt.Errorf("item %s is at version %d, expected %d: %w", item.ID, version, item.Version, model.ErrConflict)
}

// SaveTransition persists a status change, its history row and an optional
// recurrence successor in one transaction.
func (db *DB) SaveTransition(ctx context.Context, item *model.WorkItem, change model.StatusChange, successor *model.WorkItem) error {
	err := db.immediate(ctx, func(q querier) error {
		// Blockers are read again under the write lock so an edge added by
		// another process after the caller's check still refuses completion.
		if change.To == model.StatusCompleted {
			blocking, err := unfinishedBlockers(ctx, q, item.ID)
			if err != nil {
				return err
			}
			if len(blocking) > 0 {
				return &model.BlockedError{ItemID: item.ID, BlockingIDs: blocking}
			}
		}

		if err := saveItem(ctx, q, item); err != nil {
			return err
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO status_history (item_id, from_status, to_status, actor_id, at)
			VALUES (?, ?, ?, ?, ?)`,
			change.ItemID, change.From, change.To, change.ActorID, formatTime(change.At))
		if err != nil {
			return fmt.Errorf("failed to record status change: %w", err)
		}

		if successor != nil {
			return insertItem(ctx, q, successor)
		}
		return nil
	})
	if err != nil {
		return err
	}

	item.Version++
	if successor != nil {
		successor.Version = 1
	}
	return nil
}

// DeleteItems removes items with their activity, history and every edge
// touching them. Surviving children are detached.
func (db *DB) DeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id IN (`+placeholders+`)`, args...).Scan(&count); err != nil {
		return fmt.Errorf("failed to check items: %w", err)
	}
	if count != len(ids) {
		return model.NotFound("item", strings.Join(ids, ", "))
	}

	steps := []struct {
		what  string
		query string
		args  []any
	}{
		{"detach children", `UPDATE items SET parent_id = NULL, version = version + 1
			WHERE parent_id IN (` + placeholders + `) AND id NOT IN (` + placeholders + `)`, append(append([]any{}, args...), args...)},
		{"delete dependencies", `DELETE FROM deps WHERE blocking_id IN (` + placeholders + `) OR dependent_id IN (` + placeholders + `)`, append(append([]any{}, args...), args...)},
		{"delete mentions", `DELETE FROM mentions WHERE comment_id IN (SELECT id FROM comments WHERE item_id IN (` + placeholders + `))`, args},
		{"delete comments", `DELETE FROM comments WHERE item_id IN (` + placeholders + `)`, args},
		{"delete time entries", `DELETE FROM time_entries WHERE item_id IN (` + placeholders + `)`, args},
		{"delete attachments", `DELETE FROM attachments WHERE item_id IN (` + placeholders + `)`, args},
		{"delete history", `DELETE FROM status_history WHERE item_id IN (` + placeholders + `)`, args},
		{"delete items", `DELETE FROM items WHERE id IN (` + placeholders + `)`, args},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, step.args...); err != nil {
			return fmt.Errorf("failed to %s: %w", step.what, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
