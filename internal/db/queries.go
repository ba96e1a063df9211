package db

import (
	"context"
	"fmt"
	"time"

	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/service"
)

// ListItems returns items matching filter, most urgent first. Activity
// (time entries, comments, attachments) is not loaded.
func (db *DB) ListItems(ctx context.Context, filter service.ListFilter) ([]*model.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	args := []any{}

	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, model.Invalid("status", "unknown status %q", *filter.Status)
		}
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, *filter.Kind)
	}
	if filter.ParentID != nil {
		query += ` AND parent_id = ?`
		args = append(args, *filter.ParentID)
	}
	if filter.TopLevel {
		query += ` AND parent_id IS NULL`
	}
	if filter.AssigneeID != nil {
		query += ` AND assignee_id = ?`
		args = append(args, *filter.AssigneeID)
	}
	query += ` ORDER BY ` + priorityOrder + `, created_at ASC, id`

	return db.queryItems(ctx, query, args...)
}

// priorityOrder sorts critical first.
const priorityOrder = `CASE priority
	WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END`

// Children returns the direct subtasks of parentID.
func (db *DB) Children(ctx context.Context, parentID string) ([]*model.WorkItem, error) {
	return db.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE parent_id = ? ORDER BY created_at, id`, parentID)
}

// Statuses returns the status of each id that exists.
func (db *DB) Statuses(ctx context.Context, ids []string) (map[string]model.Status, error) {
	out := make(map[string]model.Status, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	rows, err := db.QueryContext(ctx, `SELECT id, status FROM items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var status model.Status
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		out[id] = status
	}
	return out, rows.Err()
}

// DueReminders lists unfinished items whose reminder is due and unsent.
func (db *DB) DueReminders(ctx context.Context, now time.Time) ([]*model.WorkItem, error) {
	return db.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE reminder_sent = 0
		  AND reminder_at IS NOT NULL
		  AND reminder_at <= ?
		  AND status NOT IN ('completed', 'cancelled')
		ORDER BY reminder_at, id`, formatTime(now))
}

// StatusHistory returns an item's status changes in the order they happened.
func (db *DB) StatusHistory(ctx context.Context, itemID string) ([]model.StatusChange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT item_id, from_status, to_status, actor_id, at
		FROM status_history WHERE item_id = ?
		ORDER BY id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		var at string
		if err := rows.Scan(&c.ItemID, &c.From, &c.To, &c.ActorID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		if c.At, err = parseTime(at); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

// StatusCounts returns how many items are in each status.
func (db *DB) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status model.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// queryItems is a helper to scan item rows.
func (db *DB) queryItems(ctx context.Context, query string, args ...any) ([]*model.WorkItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*model.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

var (
	_ service.Store    = (*DB)(nil)
	_ service.Identity = (*DB)(nil)
)
