package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/progress"
	"github.com/baiirun/workdesk/internal/recurrence"
)

// CreateSpec describes a new item. Kind defaults to task and Priority to
// medium when left empty.
type CreateSpec struct {
	Kind           model.Kind
	Title          string
	Description    string
	Priority       model.Priority
	StartDate      *time.Time
	DueDate        *time.Time
	ReminderAt     *time.Time
	ParentID       *string
	EstimatedHours *float64
	Recurrence     *model.Recurrence
	CreatorID      string
	AssigneeID     *string
}

// CreateItem validates spec and persists a new item in the todo state.
func (s *Service) CreateItem(ctx context.Context, spec CreateSpec) (*model.WorkItem, error) {
	item, err := s.buildItem(ctx, spec)
	if err != nil {
		return nil, s.reject("create", err)
	}
	if err := s.store.InsertItem(ctx, item); err != nil {
		return nil, err
	}

	s.metrics.itemsCreated.WithLabelValues(string(item.Kind)).Inc()
	s.log.Info("item created", "item", item.ID, "kind", item.Kind, "priority", item.Priority)
	return item, nil
}

func (s *Service) buildItem(ctx context.Context, spec CreateSpec) (*model.WorkItem, error) {
	if spec.Kind == "" {
		spec.Kind = model.KindTask
	}
	if spec.Priority == "" {
		spec.Priority = model.PriorityMedium
	}
	title := strings.TrimSpace(spec.Title)

	switch {
	case !spec.Kind.IsValid():
		return nil, model.Invalid("kind", "unknown kind %q", spec.Kind)
	case title == "":
		return nil, model.Invalid("title", "title cannot be empty")
	case len(title) > maxTitleLen:
		return nil, model.Invalid("title", "title exceeds %d characters", maxTitleLen)
	case !spec.Priority.IsValid():
		return nil, model.Invalid("priority", "unknown priority %q", spec.Priority)
	}
	if err := validateEstimate(spec.EstimatedHours); err != nil {
		return nil, err
	}
	if err := validateDates(spec.StartDate, spec.DueDate); err != nil {
		return nil, err
	}

	if _, err := s.requireUser(ctx, "creator", spec.CreatorID); err != nil {
		return nil, err
	}
	if spec.AssigneeID != nil {
		if _, err := s.requireUser(ctx, "assignee", *spec.AssigneeID); err != nil {
			return nil, err
		}
	}
	if spec.ParentID != nil {
		if _, err := s.store.LoadItem(ctx, *spec.ParentID); err != nil {
			return nil, fmt.Errorf("parent: %w", err)
		}
	}

	now := s.now()
	item := &model.WorkItem{
		ID:             s.newID(model.ItemPrefix(spec.Kind)),
		Kind:           spec.Kind,
		Title:          title,
		Description:    spec.Description,
		Priority:       spec.Priority,
		Status:         model.StatusTodo,
		StartDate:      spec.StartDate,
		DueDate:        spec.DueDate,
		ReminderAt:     spec.ReminderAt,
		ParentID:       spec.ParentID,
		EstimatedHours: spec.EstimatedHours,
		CreatorID:      spec.CreatorID,
		AssigneeID:     spec.AssigneeID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if spec.Recurrence != nil {
		rule := *spec.Recurrence
		if !rule.Type.IsValid() {
			return nil, model.Invalid("recurrence", "unknown recurrence type %q", rule.Type)
		}
		if rule.Interval < 0 {
			return nil, model.Invalid("recurrence", "interval cannot be negative")
		}
		item.IsRecurring = true
		item.Recurrence = rule
	}

	sla, err := s.deadlines.SLADeadline(item.Kind, item.Priority, now)
	if err != nil {
		return nil, err
	}
	item.SLADeadline = sla

	if item.NextOccurrence, err = recurrence.NextOccurrenceTime(item, now); err != nil {
		return nil, err
	}
	return item.Clone(), nil
}

func validateEstimate(h *float64) error {
	if h == nil {
		return nil
	}
	if *h < 0 || math.IsNaN(*h) || math.IsInf(*h, 0) {
		return model.Invalid("estimated_hours", "must be a non-negative number")
	}
	return nil
}

func validateDates(start, due *time.Time) error {
	if start != nil && due != nil && due.Before(*start) {
		return model.Invalid("due_date", "due date is before start date")
	}
	return nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*model.WorkItem, error) {
	return s.store.LoadItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, filter ListFilter) ([]*model.WorkItem, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, model.Invalid("status", "unknown status %q", *filter.Status)
	}
	if filter.Kind != nil && !filter.Kind.IsValid() {
		return nil, model.Invalid("kind", "unknown kind %q", *filter.Kind)
	}
	return s.store.ListItems(ctx, filter)
}

// UpdateOptions lists the fields UpdateItem changes. Nil fields are left
// alone; the Clear flags reset optional fields to empty.
type UpdateOptions struct {
	Title          *string
	Description    *string
	Priority       *model.Priority
	StartDate      *time.Time
	DueDate        *time.Time
	ReminderAt     *time.Time
	AssigneeID     *string
	EstimatedHours *float64

	ClearDueDate  bool
	ClearReminder bool
	ClearAssignee bool
}

// UpdateItem edits an item's descriptive fields. Status is never changed
// here; see ChangeStatus. A priority change on a ticket re-derives its SLA
// deadline from the creation time.
func (s *Service) UpdateItem(ctx context.Context, id string, opts UpdateOptions) (*model.WorkItem, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := s.store.LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyUpdate(ctx, item, opts); err != nil {
		return nil, s.reject("update", err, "item", id)
	}

	item.UpdatedAt = s.now()
	if err := s.store.SaveItem(ctx, item); err != nil {
		return nil, s.reject("update", err, "item", id)
	}
	s.log.Info("item updated", "item", id)
	return item, nil
}

func (s *Service) applyUpdate(ctx context.Context, item *model.WorkItem, opts UpdateOptions) error {
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return model.Invalid("title", "title cannot be empty")
		}
		if len(title) > maxTitleLen {
			return model.Invalid("title", "title exceeds %d characters", maxTitleLen)
		}
		item.Title = title
	}
	if opts.Description != nil {
		item.Description = *opts.Description
	}
	if opts.Priority != nil {
		if !opts.Priority.IsValid() {
			return model.Invalid("priority", "unknown priority %q", *opts.Priority)
		}
		if *opts.Priority != item.Priority {
			item.Priority = *opts.Priority
			sla, err := s.deadlines.SLADeadline(item.Kind, item.Priority, item.CreatedAt)
			if err != nil {
				return err
			}
			item.SLADeadline = sla
		}
	}
	if opts.EstimatedHours != nil {
		if err := validateEstimate(opts.EstimatedHours); err != nil {
			return err
		}
		h := *opts.EstimatedHours
		item.EstimatedHours = &h
	}

	switch {
	case opts.ClearAssignee:
		item.AssigneeID = nil
	case opts.AssigneeID != nil:
		if _, err := s.requireUser(ctx, "assignee", *opts.AssigneeID); err != nil {
			return err
		}
		a := *opts.AssigneeID
		item.AssigneeID = &a
	}

	switch {
	case opts.ClearReminder:
		item.ReminderAt = nil
		item.ReminderSent = false
	case opts.ReminderAt != nil:
		r := *opts.ReminderAt
		item.ReminderAt = &r
		item.ReminderSent = false
	}

	datesChanged := false
	if opts.StartDate != nil {
		d := *opts.StartDate
		item.StartDate = &d
		datesChanged = true
	}
	switch {
	case opts.ClearDueDate:
		item.DueDate = nil
		datesChanged = true
	case opts.DueDate != nil:
		d := *opts.DueDate
		item.DueDate = &d
		datesChanged = true
	}
	if err := validateDates(item.StartDate, item.DueDate); err != nil {
		return err
	}
	if datesChanged {
		next, err := recurrence.NextOccurrenceTime(item, s.now())
		if err != nil {
			return err
		}
		item.NextOccurrence = next
	}
	return nil
}

// SetParent re-parents childID under parentID, or detaches it when parentID
// is nil. A parent chain that would loop back to the child is rejected.
func (s *Service) SetParent(ctx context.Context, childID string, parentID *string) (*model.WorkItem, error) {
	unlock := s.locks.Lock(childID)
	defer unlock()

	child, err := s.store.LoadItem(ctx, childID)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		if *parentID == childID {
			return nil, s.reject("set_parent", model.Invalid("parent", "%s cannot be its own parent", childID))
		}
		if err := s.checkParentChain(ctx, childID, *parentID); err != nil {
			return nil, s.reject("set_parent", err, "item", childID)
		}
		p := *parentID
		child.ParentID = &p
	} else {
		child.ParentID = nil
	}
	parent := "none"
	if child.ParentID != nil {
		parent = *child.ParentID
	}

	child.UpdatedAt = s.now()
	if err := s.store.SaveItem(ctx, child); err != nil {
		return nil, s.reject("set_parent", err, "item", childID)
	}
	s.log.Info("item re-parented", "item", childID, "parent", parent)
	return child, nil
}

// checkParentChain walks up from parentID and fails if it reaches childID.
func (s *Service) checkParentChain(ctx context.Context, childID, parentID string) error {
	chain := []string{}
	seen := map[string]bool{}
	for id := parentID; id != ""; {
		if id == childID {
			chain = append(chain, childID)
			return fmt.Errorf("%s cannot be a subtask of %s: parent chain %s loops: %w",
				childID, parentID, strings.Join(chain, " -> "), model.ErrCyclicDependency)
		}
		if seen[id] {
			// An existing loop that does not pass through the child.
			return nil
		}
		seen[id] = true
		chain = append(chain, id)

		item, err := s.store.LoadItem(ctx, id)
		if err != nil {
			if id == parentID {
				return fmt.Errorf("parent: %w", err)
			}
			return err
		}
		id = ""
		if item.ParentID != nil {
			id = *item.ParentID
		}
	}
	return nil
}

// DeletePolicy decides what happens to the subtasks of a deleted item.
type DeletePolicy int

const (
	// DeleteOrphan detaches subtasks, leaving them without a parent.
	DeleteOrphan DeletePolicy = iota
	// DeleteCascade deletes every descendant along with the item.
	DeleteCascade
)

func (p DeletePolicy) String() string {
	if p == DeleteCascade {
		return "cascade"
	}
	return "orphan"
}

// DeleteItem hard-deletes an item and every dependency edge touching it. It
// returns the ids that were deleted.
func (s *Service) DeleteItem(ctx context.Context, id string, policy DeletePolicy) ([]string, error) {
	if _, err := s.store.LoadItem(ctx, id); err != nil {
		return nil, err
	}

	ids := []string{id}
	if policy == DeleteCascade {
		var err error
		if ids, err = s.descendants(ctx, id); err != nil {
			return nil, err
		}
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	unlock := s.locks.LockAll(sorted)
	defer unlock()

	s.graphMu.Lock()
	defer s.graphMu.Unlock()

	if err := s.store.DeleteItems(ctx, ids); err != nil {
		return nil, err
	}
	s.log.Info("item deleted", "item", id, "policy", policy, "items", len(ids))
	return ids, nil
}

// descendants returns root followed by every item below it, breadth first.
func (s *Service) descendants(ctx context.Context, root string) ([]string, error) {
	out := []string{root}
	seen := map[string]bool{root: true}
	for i := 0; i < len(out); i++ {
		children, err := s.store.Children(ctx, out[i])
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c.ID)
			}
		}
	}
	return out, nil
}

// Progress reports subtask completion and time against estimate.
func (s *Service) Progress(ctx context.Context, id string) (progress.Report, error) {
	item, err := s.store.LoadItem(ctx, id)
	if err != nil {
		return progress.Report{}, err
	}
	children, err := s.store.Children(ctx, id)
	if err != nil {
		return progress.Report{}, err
	}
	return progress.Rollup(item, children), nil
}

// DeadlineStatus evaluates the item's SLA deadline or due date at the current
// time. ok is false when the item has no deadline or is finished.
func (s *Service) DeadlineStatus(ctx context.Context, id string) (ev deadline.Evaluation, ok bool, err error) {
	item, err := s.store.LoadItem(ctx, id)
	if err != nil {
		return deadline.Evaluation{}, false, err
	}
	ev, ok = s.deadlines.EvaluateItem(item, s.now())
	return ev, ok, nil
}

// History returns the item's accepted status changes, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]model.StatusChange, error) {
	if _, err := s.store.LoadItem(ctx, id); err != nil {
		return nil, err
	}
	return s.store.StatusHistory(ctx, id)
}

// DueReminders lists unfinished items whose reminder time has passed and
// whose reminder has not been sent.
func (s *Service) DueReminders(ctx context.Context) ([]*model.WorkItem, error) {
	return s.store.DueReminders(ctx, s.now())
}

// MarkReminderSent flags the item's reminder as delivered. Marking an
// already-sent reminder is a no-op.
func (s *Service) MarkReminderSent(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := s.store.LoadItem(ctx, id)
	if err != nil {
		return err
	}
	if item.ReminderSent {
		return nil
	}
	item.ReminderSent = true
	return s.store.SaveItem(ctx, item)
}
