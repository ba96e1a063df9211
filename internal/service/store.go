package service

import (
	"context"
	"time"

	"github.com/baiirun/workdesk/internal/model"
)

// Store is the storage collaborator. Lookups of absent records fail with an
// error wrapping model.ErrNotFound.
type Store interface {
	// LoadItem returns the item with its time entries, comments and attachments.
	LoadItem(ctx context.Context, id string) (*model.WorkItem, error)
	InsertItem(ctx context.Context, item *model.WorkItem) error
	// SaveItem writes the item's scalar fields if its stored version still
	// equals item.Version, then bumps item.Version. A stale version fails with
	// model.ErrConflict.
	SaveItem(ctx context.Context, item *model.WorkItem) error
	// SaveTransition persists a status change, its history row and the
	// optional recurrence successor atomically, under the same version check
	// as SaveItem. A completion is refused with *model.BlockedError if a
	// blocking item is unfinished at commit time.
	SaveTransition(ctx context.Context, item *model.WorkItem, change model.StatusChange, successor *model.WorkItem) error
	// DeleteItems removes the items, their activity and every edge touching
	// them. Surviving children of deleted items are re-parented to nil.
	DeleteItems(ctx context.Context, ids []string) error
	ListItems(ctx context.Context, filter ListFilter) ([]*model.WorkItem, error)
	Children(ctx context.Context, parentID string) ([]*model.WorkItem, error)
	// Statuses returns the current status of each id that exists.
	Statuses(ctx context.Context, ids []string) (map[string]model.Status, error)

	// LoadEdges returns every edge touching id, in either direction.
	LoadEdges(ctx context.Context, id string) ([]model.Dependency, error)
	AllEdges(ctx context.Context) ([]model.Dependency, error)
	// AddEdge inserts dep if check accepts the full edge set. Check and
	// insert are atomic with respect to every other writer of the store.
	AddEdge(ctx context.Context, dep model.Dependency, check func(edges []model.Dependency) error) error
	// DeleteEdge reports whether the edge existed.
	DeleteEdge(ctx context.Context, blockingID, dependentID string) (bool, error)

	InsertTimeEntry(ctx context.Context, entry model.TimeEntry) error
	TimeEntry(ctx context.Context, id string) (model.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id string) error

	InsertComment(ctx context.Context, c model.Comment) error
	Comment(ctx context.Context, id string) (model.Comment, error)
	DeleteComment(ctx context.Context, id string) error

	InsertAttachment(ctx context.Context, a model.Attachment) error
	Attachment(ctx context.Context, id string) (model.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error

	StatusHistory(ctx context.Context, itemID string) ([]model.StatusChange, error)
	// DueReminders lists unfinished items whose reminder is at or before now
	// and has not been sent.
	DueReminders(ctx context.Context, now time.Time) ([]*model.WorkItem, error)
}

// Identity resolves user references. Unknown users fail with model.ErrNotFound.
type Identity interface {
	ResolveUser(ctx context.Context, id string) (model.User, error)
	ResolveUsername(ctx context.Context, username string) (model.User, error)
}

// ListFilter narrows ListItems. Zero values match everything.
type ListFilter struct {
	Status   *model.Status
	Kind     *model.Kind
	ParentID *string
	// TopLevel restricts results to items without a parent.
	TopLevel   bool
	AssigneeID *string
}

type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
