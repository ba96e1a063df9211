package db

import (
	"context"
	"fmt"

	"github.com/baiirun/workdesk/internal/model"
)

const allEdgesQuery = `
	SELECT blocking_id, dependent_id, created_at FROM deps
	ORDER BY blocking_id, dependent_id`

// AddEdge stores a dependency edge once check accepts the current edge set;
// check vetoes the insert by returning an error. The read, the check and the
// insert share one immediate transaction, so no other connection to the file
// can add an edge in between. Storing an existing edge is a no-op. A nil
// check accepts everything.
func (db *DB) AddEdge(ctx context.Context, dep model.Dependency, check func(edges []model.Dependency) error) error {
	return db.immediate(ctx, func(q querier) error {
		// Verify both items exist
		var count int
		err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id IN (?, ?)`, dep.BlockingID, dep.DependentID).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to verify items: %w", err)
		}
		if count != 2 {
			return model.NotFound("item", dep.BlockingID+" or "+dep.DependentID)
		}

		if check != nil {
			edges, err := queryEdges(ctx, q, allEdgesQuery)
			if err != nil {
				return err
			}
			if err := check(edges); err != nil {
				return err
			}
		}

		_, err = q.ExecContext(ctx, `
			INSERT OR IGNORE INTO deps (blocking_id, dependent_id, created_at) VALUES (?, ?, ?)`,
			dep.BlockingID, dep.DependentID, formatTime(dep.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to add dependency: %w", err)
		}
		return nil
	})
}

// DeleteEdge removes an edge and reports whether it existed.
func (db *DB) DeleteEdge(ctx context.Context, blockingID, dependentID string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM deps WHERE blocking_id = ? AND dependent_id = ?`, blockingID, dependentID)
	if err != nil {
		return false, fmt.Errorf("failed to remove dependency: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// LoadEdges returns the edges where id is either the blocking or the
// dependent item.
func (db *DB) LoadEdges(ctx context.Context, id string) ([]model.Dependency, error) {
	return queryEdges(ctx, db.DB, `
		SELECT blocking_id, dependent_id, created_at FROM deps
		WHERE blocking_id = ? OR dependent_id = ?
		ORDER BY blocking_id, dependent_id`, id, id)
}

// AllEdges returns every dependency edge.
func (db *DB) AllEdges(ctx context.Context) ([]model.Dependency, error) {
	return queryEdges(ctx, db.DB, allEdgesQuery)
}

func queryEdges(ctx context.Context, q querier, query string, args ...any) ([]model.Dependency, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []model.Dependency
	for rows.Next() {
		var d model.Dependency
		var createdAt string
		if err := rows.Scan(&d.BlockingID, &d.DependentID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// unfinishedBlockers lists the blocking items of id whose status is not
// completed, read through q.
func unfinishedBlockers(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.blocking_id FROM deps d
		JOIN items i ON i.id = d.blocking_id
		WHERE d.dependent_id = ? AND i.status != ?
		ORDER BY d.blocking_id`, id, model.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var blocker string
		if err := rows.Scan(&blocker); err != nil {
			return nil, fmt.Errorf("failed to scan blocker: %w", err)
		}
		ids = append(ids, blocker)
	}
	return ids, rows.Err()
}
