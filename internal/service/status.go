package service

import (
	"context"

	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/workflow"
)

// ChangeResult is the outcome of an accepted status change.
type ChangeResult struct {
	Item *model.WorkItem
	// Successor is the next instance of a recurring item, when completing it
	// spawned one.
	Successor *model.WorkItem
}

// ChangeStatus moves an item to target on behalf of actorID. Completion is
// refused while any blocking item is unfinished. Completing a recurring item
// creates its successor exactly once, in the same storage transaction as the
// status change.
func (s *Service) ChangeStatus(ctx context.Context, id string, target model.Status, actorID string) (ChangeResult, error) {
	if _, err := s.requireUser(ctx, "actor", actorID); err != nil {
		return ChangeResult{}, s.reject("status", err, "item", id)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	item, err := s.store.LoadItem(ctx, id)
	if err != nil {
		return ChangeResult{}, err
	}

	var blocking []string
	if target == model.StatusCompleted {
		// Held through the save so no edge can be added between check and write.
		s.graphMu.RLock()
		defer s.graphMu.RUnlock()

		if blocking, err = s.unfinishedBlockers(ctx, id); err != nil {
			return ChangeResult{}, err
		}
	}

	machine := workflow.Machine{
		Blockers:  workflow.BlockerFunc(func(string) []string { return blocking }),
		Scheduler: s.scheduler(),
	}
	now := s.now()
	out, err := machine.RequestTransition(item, target, now)
	if err != nil {
		return ChangeResult{}, s.reject("status", err, "item", id, "from", item.Status, "to", target)
	}

	change := model.StatusChange{ItemID: id, From: out.From, To: out.To, ActorID: actorID, At: now}
	if err := s.store.SaveTransition(ctx, item, change, out.Successor); err != nil {
		return ChangeResult{}, s.reject("status", err, "item", id, "from", out.From, "to", out.To)
	}

	s.metrics.transitions.WithLabelValues(string(out.From), string(out.To)).Inc()
	s.log.Info("status changed", "item", id, "from", out.From, "to", out.To, "actor", actorID)
	if out.Successor != nil {
		s.metrics.spawned.Inc()
		s.log.Info("recurrence spawned", "item", id, "successor", out.Successor.ID, "due", out.Successor.DueDate)
	}
	return ChangeResult{Item: item, Successor: out.Successor}, nil
}
