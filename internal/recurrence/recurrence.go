// Package recurrence computes the next instance of a recurring work item by
// fixed calendar arithmetic.
package recurrence

import (
	"time"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
)

// Next returns the occurrence that follows anchor under rule. Monthly and
// yearly steps keep the anchor's day of month, clamped to the target month's
// length (Jan 31 -> Feb 28). Time of day and location are preserved.
func Next(anchor time.Time, rule model.Recurrence) (time.Time, error) {
	n := rule.Every()
	switch rule.Type {
	case model.RecurDaily:
		return anchor.AddDate(0, 0, n), nil
	case model.RecurWeekly:
		return anchor.AddDate(0, 0, 7*n), nil
	case model.RecurMonthly:
		return addMonthsClamped(anchor, n), nil
	case model.RecurYearly:
		return addMonthsClamped(anchor, 12*n), nil
	default:
		return time.Time{}, model.Invalid("recurrence", "unknown recurrence type %q", rule.Type)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	// Day 1 never overflows, so this lands in the intended month.
	first := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Anchor picks the timestamp a series advances from: the due date, else the
// start date, else now.
func Anchor(item *model.WorkItem, now time.Time) time.Time {
	switch {
	case item.DueDate != nil:
		return *item.DueDate
	case item.StartDate != nil:
		return *item.StartDate
	default:
		return now
	}
}

// NextOccurrenceTime returns when the item's next instance would be due, or
// nil if the item does not recur or the series has ended.
func NextOccurrenceTime(item *model.WorkItem, now time.Time) (*time.Time, error) {
	if !item.IsRecurring {
		return nil, nil
	}
	next, err := Next(Anchor(item, now), item.Recurrence)
	if err != nil {
		return nil, err
	}
	if end := item.Recurrence.End; end != nil && next.After(*end) {
		return nil, nil
	}
	return &next, nil
}

type Scheduler struct {
	// Deadlines derives SLA deadlines for ticket drafts.
	Deadlines deadline.Calculator
	// NewID generates ids for drafts; model.GenerateID when nil.
	NewID func(prefix string) string
}

// NextOccurrence builds the draft of the item that follows src, or returns
// nil when the series has ended. The draft is not persisted.
func (s Scheduler) NextOccurrence(src *model.WorkItem, now time.Time) (*model.WorkItem, error) {
	if !src.IsRecurring {
		return nil, nil
	}

	anchor := Anchor(src, now)
	next, err := Next(anchor, src.Recurrence)
	if err != nil {
		return nil, err
	}
	if end := src.Recurrence.End; end != nil && next.After(*end) {
		return nil, nil
	}
	shift := next.Sub(anchor)

	newID := s.NewID
	if newID == nil {
		newID = model.GenerateID
	}
	sourceID := src.ID

	draft := &model.WorkItem{
		ID:                 newID(model.ItemPrefix(src.Kind)),
		Kind:               src.Kind,
		Title:              src.Title,
		Description:        src.Description,
		Priority:           src.Priority,
		Status:             model.StatusTodo,
		ParentID:           src.ParentID,
		EstimatedHours:     src.EstimatedHours,
		IsRecurring:        true,
		Recurrence:         src.Recurrence,
		RecurrenceSourceID: &sourceID,
		CreatorID:          src.CreatorID,
		AssigneeID:         src.AssigneeID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	// Deep-copy pointer fields so the draft never aliases the source.
	draft = draft.Clone()

	switch {
	case src.DueDate != nil:
		draft.DueDate = &next
		if src.StartDate != nil {
			start := shiftWith(*src.StartDate, shift, src.Recurrence)
			draft.StartDate = &start
		}
	default:
		// Undated series keep their cadence through the start date.
		draft.StartDate = &next
	}

	if src.ReminderAt != nil {
		reminder := shiftWith(*src.ReminderAt, shift, src.Recurrence)
		draft.ReminderAt = &reminder
	}

	sla, err := s.Deadlines.SLADeadline(draft.Kind, draft.Priority, now)
	if err != nil {
		return nil, err
	}
	draft.SLADeadline = sla

	following, err := NextOccurrenceTime(draft, now)
	if err != nil {
		return nil, err
	}
	draft.NextOccurrence = following
	return draft, nil
}

// shiftWith moves a companion timestamp (start date, reminder) along with the
// anchor. Daily and weekly series shift by the same duration; monthly and
// yearly ones step by calendar so the offset survives month-length changes.
func shiftWith(t time.Time, shift time.Duration, rule model.Recurrence) time.Time {
	switch rule.Type {
	case model.RecurMonthly, model.RecurYearly:
		advanced, err := Next(t, rule)
		if err != nil {
			return t.Add(shift)
		}
		return advanced
	default:
		return t.Add(shift)
	}
}
