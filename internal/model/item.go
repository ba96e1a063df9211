// Package model defines the work-item types shared by every workdesk package.
//
// A WorkItem backs both "tasks" and "IT tickets"; the two differ only in which
// optional fields are populated and in how their deadline is derived.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTask   Kind = "task"
	KindTicket Kind = "ticket"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindTask, KindTicket:
		return true
	}
	return false
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses returns every status in board order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled}
}

func (s Status) IsValid() bool {
	for _, valid := range Statuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities returns every priority, lowest first.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

func (p Priority) IsValid() bool {
	return p.Rank() >= 0
}

// Rank orders priorities: low=0 < medium=1 < high=2 < critical=3.
// Unknown priorities rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return -1
	}
}

type RecurrenceType string

const (
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
	RecurYearly  RecurrenceType = "yearly"
)

func (r RecurrenceType) IsValid() bool {
	switch r {
	case RecurDaily, RecurWeekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

// Recurrence describes how a completed item spawns its successor.
type Recurrence struct {
	Type RecurrenceType
	// Interval is the number of Type units between occurrences (1 when unset).
	Interval int
	// End bounds the series; no occurrence is scheduled after it.
	End *time.Time
}

// Every returns the effective interval.
func (r Recurrence) Every() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

type WorkItem struct {
	ID          string
	Kind        Kind
	Title       string
	Description string
	Priority    Priority
	Status      Status

	StartDate    *time.Time
	DueDate      *time.Time
	SLADeadline  *time.Time
	ReminderAt   *time.Time
	ReminderSent bool

	ParentID *string

	EstimatedHours *float64
	TimeEntries    []TimeEntry

	IsRecurring        bool
	Recurrence         Recurrence
	NextOccurrence     *time.Time
	RecurrenceSourceID *string // item this one was spawned from
	SuccessorID        *string // item spawned when this one completed

	Comments    []Comment
	Attachments []Attachment

	CreatorID  string
	AssigneeID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Version increments on every save and guards against lost updates.
	Version int64
}

// Clone returns a deep copy of the item so callers can mutate it freely.
func (w *WorkItem) Clone() *WorkItem {
	c := *w
	c.StartDate = cloneTime(w.StartDate)
	c.DueDate = cloneTime(w.DueDate)
	c.SLADeadline = cloneTime(w.SLADeadline)
	c.ReminderAt = cloneTime(w.ReminderAt)
	c.NextOccurrence = cloneTime(w.NextOccurrence)
	c.Recurrence.End = cloneTime(w.Recurrence.End)
	c.ParentID = cloneString(w.ParentID)
	c.AssigneeID = cloneString(w.AssigneeID)
	c.RecurrenceSourceID = cloneString(w.RecurrenceSourceID)
	c.SuccessorID = cloneString(w.SuccessorID)
	if w.EstimatedHours != nil {
		h := *w.EstimatedHours
		c.EstimatedHours = &h
	}
	c.TimeEntries = append([]TimeEntry(nil), w.TimeEntries...)
	c.Comments = make([]Comment, len(w.Comments))
	for i, cm := range w.Comments {
		cm.Mentions = append([]Mention(nil), cm.Mentions...)
		c.Comments[i] = cm
	}
	c.Attachments = append([]Attachment(nil), w.Attachments...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Dependency is a directed "blocks" edge: BlockingID must complete before
// DependentID can.
type Dependency struct {
	BlockingID  string
	DependentID string
	CreatedAt   time.Time
}

// StatusChange records one accepted transition.
type StatusChange struct {
	ItemID  string
	From    Status
	To      Status
	ActorID string
	At      time.Time
}

// GenerateID returns a short random id with a prefix naming the record type,
// e.g. "tk-1f3a9c0b" for a ticket.
func GenerateID(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "-" + raw[:8]
}

// ItemPrefix returns the id prefix for items of the given kind.
func ItemPrefix(k Kind) string {
	if k == KindTicket {
		return "tk"
	}
	return "ts"
}
