package service

import (
	"context"

	"github.com/baiirun/workdesk/internal/depgraph"
	"github.com/baiirun/workdesk/internal/model"
)

// AddDependency records that blockingID must complete before dependentID.
// The edge is checked against the whole persisted edge set, inside the same
// store transaction as the insert, and rejected with
// model.ErrCyclicDependency if it would close a cycle. Adding an existing
// edge succeeds without change.
func (s *Service) AddDependency(ctx context.Context, blockingID, dependentID string) error {
	if blockingID == dependentID {
		return s.reject("dep_add", model.Invalid("dependency", "%s cannot block itself", blockingID))
	}
	if err := s.requireItems(ctx, blockingID, dependentID); err != nil {
		return s.reject("dep_add", err)
	}

	s.graphMu.Lock()
	defer s.graphMu.Unlock()

	dep := model.Dependency{BlockingID: blockingID, DependentID: dependentID, CreatedAt: s.now()}
	err := s.store.AddEdge(ctx, dep, func(edges []model.Dependency) error {
		g, err := depgraph.Load(edges)
		if err != nil {
			return err
		}
		return g.AddEdge(blockingID, dependentID)
	})
	if err != nil {
		return s.reject("dep_add", err, "blocking", blockingID, "dependent", dependentID)
	}
	s.log.Info("dependency added", "blocking", blockingID, "dependent", dependentID)
	return nil
}

// RemoveDependency deletes the edge, failing with model.ErrNotFound when it
// does not exist.
func (s *Service) RemoveDependency(ctx context.Context, blockingID, dependentID string) error {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()

	existed, err := s.store.DeleteEdge(ctx, blockingID, dependentID)
	if err != nil {
		return err
	}
	if !existed {
		return s.reject("dep_rm", model.NotFound("dependency", blockingID+" -> "+dependentID))
	}
	s.log.Info("dependency removed", "blocking", blockingID, "dependent", dependentID)
	return nil
}

// Dependencies returns every edge, ordered by blocking then dependent id.
func (s *Service) Dependencies(ctx context.Context) ([]model.Dependency, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	return s.store.AllEdges(ctx)
}

// BlockingItemsOf lists the items id waits on.
func (s *Service) BlockingItemsOf(ctx context.Context, id string) ([]string, error) {
	g, err := s.graphAround(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.BlockingItemsOf(id), nil
}

// BlockedItemsOf lists the items waiting on id.
func (s *Service) BlockedItemsOf(ctx context.Context, id string) ([]string, error) {
	g, err := s.graphAround(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.BlockedItemsOf(id), nil
}

// IsBlocked reports whether any item blocking id is not yet completed.
func (s *Service) IsBlocked(ctx context.Context, id string) (bool, error) {
	blocking, err := s.UnfinishedBlockers(ctx, id)
	return len(blocking) > 0, err
}

// UnfinishedBlockers lists the blocking items of id that are not completed.
func (s *Service) UnfinishedBlockers(ctx context.Context, id string) ([]string, error) {
	if err := s.requireItems(ctx, id); err != nil {
		return nil, err
	}
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	return s.unfinishedBlockers(ctx, id)
}

// unfinishedBlockers expects the caller to hold graphMu.
func (s *Service) unfinishedBlockers(ctx context.Context, id string) ([]string, error) {
	edges, err := s.store.LoadEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := depgraph.Load(edges)
	if err != nil {
		return nil, err
	}
	statuses, err := s.store.Statuses(ctx, g.BlockingItemsOf(id))
	if err != nil {
		return nil, err
	}
	return g.UnfinishedBlockers(id, func(blocker string) (model.Status, bool) {
		st, ok := statuses[blocker]
		return st, ok
	}), nil
}

// graphAround loads the edges touching id into a graph.
func (s *Service) graphAround(ctx context.Context, id string) (*depgraph.Graph, error) {
	if err := s.requireItems(ctx, id); err != nil {
		return nil, err
	}
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()

	edges, err := s.store.LoadEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	return depgraph.Load(edges)
}

// requireItems fails with model.ErrNotFound naming the first missing id.
func (s *Service) requireItems(ctx context.Context, ids ...string) error {
	found, err := s.store.Statuses(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return model.NotFound("item", id)
		}
	}
	return nil
}
