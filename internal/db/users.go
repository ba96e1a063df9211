package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/baiirun/workdesk/internal/model"
)

// usernamePattern matches what a comment can @mention.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_](?:[A-Za-z0-9_.-]*[A-Za-z0-9_])?$`)

// CreateUser registers a user that items and comments can reference.
func (db *DB) CreateUser(ctx context.Context, username, name string) (model.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !usernamePattern.MatchString(username) {
		return model.User{}, model.Invalid("username", "%q must be letters, digits, '_', '.' or '-'", username)
	}

	u := model.User{
		ID:        model.GenerateID("us"),
		Username:  username,
		Name:      name,
		CreatedAt: time.Now(),
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, username, name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.Name, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err, "users.username") {
			return model.User{}, model.Invalid("username", "%s is already taken", username)
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// ResolveUser looks a user up by id.
func (db *DB) ResolveUser(ctx context.Context, id string) (model.User, error) {
	return db.queryUser(ctx, `WHERE id = ?`, id)
}

// ResolveUsername looks a user up by username, case-insensitively.
func (db *DB) ResolveUsername(ctx context.Context, username string) (model.User, error) {
	return db.queryUser(ctx, `WHERE username = ? COLLATE NOCASE`, strings.TrimPrefix(username, "@"))
}

func (db *DB) queryUser(ctx context.Context, where, key string) (model.User, error) {
	var u model.User
	var name sql.NullString
	var createdAt string
	err := db.QueryRowContext(ctx, `SELECT id, username, name, created_at FROM users `+where, key).
		Scan(&u.ID, &u.Username, &name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.NotFound("user", key)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.Name = name.String
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// ListUsers returns every user ordered by username.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, username, name, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var name sql.NullString
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Name = name.String
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
