// Package workflow enforces the work-item status state machine.
//
//	todo -> in_progress -> {on_hold, completed, cancelled}
//	on_hold -> in_progress
//	any non-terminal -> cancelled
//
// completed and cancelled are terminal. A recurring item "restarts" by
// spawning a new instance, never by reopening.
package workflow

import (
	"time"

	"github.com/baiirun/workdesk/internal/model"
)

var transitions = map[model.Status][]model.Status{
	model.StatusTodo:       {model.StatusInProgress, model.StatusCancelled},
	model.StatusInProgress: {model.StatusOnHold, model.StatusCompleted, model.StatusCancelled},
	model.StatusOnHold:     {model.StatusInProgress, model.StatusCancelled},
}

// Allowed returns the statuses reachable from s in one step.
func Allowed(s model.Status) []model.Status {
	return append([]model.Status(nil), transitions[s]...)
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BlockerChecker lists the unfinished items blocking completion of an item.
type BlockerChecker interface {
	UnfinishedBlockers(itemID string) []string
}

// BlockerFunc adapts a function to BlockerChecker.
type BlockerFunc func(itemID string) []string

func (f BlockerFunc) UnfinishedBlockers(itemID string) []string { return f(itemID) }

// Scheduler materializes the next instance of a recurring item.
type Scheduler interface {
	NextOccurrence(item *model.WorkItem, now time.Time) (*model.WorkItem, error)
}

// Outcome is the result of an accepted transition.
type Outcome struct {
	From model.Status
	To   model.Status
	// Successor is the next recurrence instance, when one was spawned.
	Successor *model.WorkItem
}

type Machine struct {
	Blockers  BlockerChecker
	Scheduler Scheduler
}

// RequestTransition moves item to target. The item is modified only when no
// error is returned; dependency edges are never touched.
func (m Machine) RequestTransition(item *model.WorkItem, target model.Status, now time.Time) (Outcome, error) {
	if !target.IsValid() {
		return Outcome{}, model.Invalid("status", "unknown status %q", target)
	}

	from := item.Status
	if !CanTransition(from, target) {
		return Outcome{}, &model.TransitionError{
			ItemID:  item.ID,
			From:    from,
			To:      target,
			Allowed: Allowed(from),
		}
	}

	if target == model.StatusCompleted && m.Blockers != nil {
		if blocking := m.Blockers.UnfinishedBlockers(item.ID); len(blocking) > 0 {
			return Outcome{}, &model.BlockedError{ItemID: item.ID, BlockingIDs: blocking}
		}
	}

	out := Outcome{From: from, To: target}

	// Schedule before mutating so a scheduler error leaves the item untouched.
	if target == model.StatusCompleted && item.IsRecurring && item.SuccessorID == nil && m.Scheduler != nil {
		next, err := m.Scheduler.NextOccurrence(item, now)
		if err != nil {
			return Outcome{}, err
		}
		out.Successor = next
	}

	item.Status = target
	item.UpdatedAt = now
	if out.Successor != nil {
		id := out.Successor.ID
		item.SuccessorID = &id
	}
	return out, nil
}
