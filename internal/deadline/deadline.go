// Package deadline maps priorities to SLA durations and classifies how close
// an item is to its deadline. Everything here is pure: "now" is always passed in.
package deadline

import (
	"time"

	"github.com/baiirun/workdesk/internal/model"
)

type State string

const (
	StateOnTrack  State = "on_track"
	StateWarning  State = "warning"
	StateBreached State = "breached"
)

// DefaultWarnFraction is the share of the original duration below which an
// item is reported as WARNING.
const DefaultWarnFraction = 0.25

// Table maps each priority to its SLA duration.
type Table map[model.Priority]time.Duration

// DefaultTable is the ticket SLA used when configuration does not override it.
func DefaultTable() Table {
	return Table{
		model.PriorityCritical: 4 * time.Hour,
		model.PriorityHigh:     8 * time.Hour,
		model.PriorityMedium:   24 * time.Hour,
		model.PriorityLow:      48 * time.Hour,
	}
}

// Evaluation is the outcome of checking a deadline at a point in time.
// Remaining is negative once the deadline has passed.
type Evaluation struct {
	State     State
	Deadline  time.Time
	Remaining time.Duration
}

type Calculator struct {
	Table        Table
	WarnFraction float64
}

// New returns a calculator with the default table and warning threshold.
func New() Calculator {
	return Calculator{Table: DefaultTable(), WarnFraction: DefaultWarnFraction}
}

// ComputeDeadline returns the SLA duration for a priority.
func (c Calculator) ComputeDeadline(p model.Priority) (time.Duration, error) {
	if !p.IsValid() {
		return 0, model.Invalid("priority", "unknown priority %q", p)
	}
	d, ok := c.Table[p]
	if !ok {
		d, ok = DefaultTable()[p]
	}
	if !ok {
		return 0, model.Invalid("priority", "no SLA configured for %q", p)
	}
	return d, nil
}

// Evaluate classifies now against a deadline whose full span was total.
// BREACHED when now is after the deadline, WARNING when the remaining time is
// at most WarnFraction of total, ON_TRACK otherwise.
func (c Calculator) Evaluate(deadline time.Time, total time.Duration, now time.Time) Evaluation {
	remaining := deadline.Sub(now)
	ev := Evaluation{Deadline: deadline, Remaining: remaining}

	switch {
	case now.After(deadline):
		ev.State = StateBreached
	case float64(remaining) <= c.WarnFraction*float64(total):
		ev.State = StateWarning
	default:
		ev.State = StateOnTrack
	}
	return ev
}

// EvaluateItem evaluates the deadline that applies to an item: the SLA
// deadline for tickets, the due date for tasks. The second result is false
// when the item has no deadline or is already finished.
func (c Calculator) EvaluateItem(item *model.WorkItem, now time.Time) (Evaluation, bool) {
	if item.Status.IsTerminal() {
		return Evaluation{}, false
	}

	// The span is taken from the stored deadline, not the current table, so
	// a changed SLA configuration does not move the warning threshold.
	if item.Kind == model.KindTicket && item.SLADeadline != nil {
		total := item.SLADeadline.Sub(item.CreatedAt)
		if total < 0 {
			total = 0
		}
		return c.Evaluate(*item.SLADeadline, total, now), true
	}

	if item.DueDate != nil {
		total := item.DueDate.Sub(item.CreatedAt)
		if total < 0 {
			total = 0
		}
		return c.Evaluate(*item.DueDate, total, now), true
	}

	return Evaluation{}, false
}

// SLADeadline returns created + SLA(priority) for tickets and nil for tasks.
func (c Calculator) SLADeadline(kind model.Kind, p model.Priority, created time.Time) (*time.Time, error) {
	if kind != model.KindTicket {
		return nil, nil
	}
	d, err := c.ComputeDeadline(p)
	if err != nil {
		return nil, err
	}
	deadline := created.Add(d)
	return &deadline, nil
}
