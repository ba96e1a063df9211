package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	"github.com/baiirun/workdesk/internal/db"
	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/depgraph"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/service"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *service.Service
	db    *db.DB
	clock *testClock
	reg   *prometheus.Registry
	alice model.User
	bob   model.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	alice, err := store.CreateUser(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	bob, err := store.CreateUser(ctx, "bob", "Bob")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	clock := &testClock{t: epoch}
	reg := prometheus.NewRegistry()
	svc := service.New(store, store, service.WithClock(clock), service.WithRegisterer(reg))
	return &fixture{svc: svc, db: store, clock: clock, reg: reg, alice: alice, bob: bob}
}

func (f *fixture) create(t *testing.T, spec service.CreateSpec) *model.WorkItem {
	t.Helper()
	if spec.CreatorID == "" {
		spec.CreatorID = f.alice.ID
	}
	if spec.Title == "" {
		spec.Title = "Test item"
	}
	item, err := f.svc.CreateItem(context.Background(), spec)
	if err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	return item
}

func (f *fixture) move(t *testing.T, id string, targets ...model.Status) service.ChangeResult {
	t.Helper()
	var res service.ChangeResult
	for _, target := range targets {
		var err error
		res, err = f.svc.ChangeStatus(context.Background(), id, target, f.alice.ID)
		if err != nil {
			t.Fatalf("failed to move %s to %s: %v", id, target, err)
		}
	}
	return res
}

func ptr[T any](v T) *T { return &v }

func TestCreateItem_Defaults(t *testing.T) {
	f := setup(t)
	item := f.create(t, service.CreateSpec{Title: "  Write report  "})

	if item.Kind != model.KindTask || item.Priority != model.PriorityMedium || item.Status != model.StatusTodo {
		t.Errorf("got kind=%s priority=%s status=%s", item.Kind, item.Priority, item.Status)
	}
	if item.Title != "Write report" {
		t.Errorf("title = %q, want trimmed", item.Title)
	}
	if !strings.HasPrefix(item.ID, "ts-") {
		t.Errorf("id = %q, want ts- prefix", item.ID)
	}
	if item.SLADeadline != nil {
		t.Errorf("tasks have no SLA, got %v", item.SLADeadline)
	}

	got, err := f.svc.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("failed to get item: %v", err)
	}
	if got.Title != item.Title || !got.CreatedAt.Equal(epoch) {
		t.Errorf("stored item = %+v", got)
	}
}

func TestCreateItem_TicketSLA(t *testing.T) {
	f := setup(t)
	item := f.create(t, service.CreateSpec{Kind: model.KindTicket, Priority: model.PriorityCritical})

	if !strings.HasPrefix(item.ID, "tk-") {
		t.Errorf("id = %q, want tk- prefix", item.ID)
	}
	if item.SLADeadline == nil || !item.SLADeadline.Equal(epoch.Add(4*time.Hour)) {
		t.Errorf("SLA = %v, want created + 4h", item.SLADeadline)
	}
}

func TestCreateItem_Validation(t *testing.T) {
	f := setup(t)
	due := epoch.Add(time.Hour)
	start := epoch.Add(2 * time.Hour)

	tests := []struct {
		name string
		spec service.CreateSpec
		want error
	}{
		{"empty title", service.CreateSpec{Title: "   ", CreatorID: f.alice.ID}, model.ErrValidation},
		{"title too long", service.CreateSpec{Title: strings.Repeat("x", 501), CreatorID: f.alice.ID}, model.ErrValidation},
		{"unknown kind", service.CreateSpec{Title: "x", Kind: "epic", CreatorID: f.alice.ID}, model.ErrValidation},
		{"unknown priority", service.CreateSpec{Title: "x", Priority: "urgent", CreatorID: f.alice.ID}, model.ErrValidation},
		{"negative estimate", service.CreateSpec{Title: "x", EstimatedHours: ptr(-1.0), CreatorID: f.alice.ID}, model.ErrValidation},
		{"NaN estimate", service.CreateSpec{Title: "x", EstimatedHours: ptr(math.NaN()), CreatorID: f.alice.ID}, model.ErrValidation},
		{"due before start", service.CreateSpec{Title: "x", StartDate: &start, DueDate: &due, CreatorID: f.alice.ID}, model.ErrValidation},
		{"missing creator", service.CreateSpec{Title: "x"}, model.ErrValidation},
		{"unknown creator", service.CreateSpec{Title: "x", CreatorID: "us-ghost"}, model.ErrValidation},
		{"unknown assignee", service.CreateSpec{Title: "x", AssigneeID: ptr("us-ghost"), CreatorID: f.alice.ID}, model.ErrValidation},
		{"bad recurrence", service.CreateSpec{Title: "x", Recurrence: &model.Recurrence{Type: "hourly"}, CreatorID: f.alice.ID}, model.ErrValidation},
		{"missing parent", service.CreateSpec{Title: "x", ParentID: ptr("ts-ghost"), CreatorID: f.alice.ID}, model.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateItem(context.Background(), tt.spec)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateItem() error = %v, want %v", err, tt.want)
			}
		})
	}

	items, _ := f.svc.ListItems(context.Background(), service.ListFilter{})
	if len(items) != 0 {
		t.Errorf("rejected creates left %d items behind", len(items))
	}
}

func TestChangeStatus_Lifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.create(t, service.CreateSpec{})

	res := f.move(t, item.ID, model.StatusInProgress, model.StatusOnHold, model.StatusInProgress, model.StatusCompleted)
	if res.Item.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", res.Item.Status)
	}
	if res.Successor != nil {
		t.Errorf("non-recurring item spawned %v", res.Successor)
	}

	history, err := f.svc.History(ctx, item.ID)
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	want := []model.Status{model.StatusInProgress, model.StatusOnHold, model.StatusInProgress, model.StatusCompleted}
	if len(history) != len(want) {
		t.Fatalf("expected %d history rows, got %d", len(want), len(history))
	}
	for i, h := range history {
		if h.To != want[i] || h.ActorID != f.alice.ID {
			t.Errorf("history[%d] = %+v, want to=%s", i, h, want[i])
		}
	}
	if history[0].From != model.StatusTodo {
		t.Errorf("first change from %s, want todo", history[0].From)
	}
}

func TestChangeStatus_Illegal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.create(t, service.CreateSpec{})

	_, err := f.svc.ChangeStatus(ctx, item.ID, model.StatusCompleted, f.alice.ID)
	var te *model.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != model.StatusTodo || !slices.Contains(te.Allowed, model.StatusInProgress) {
		t.Errorf("transition error = %+v", te)
	}

	got, _ := f.svc.GetItem(ctx, item.ID)
	if got.Status != model.StatusTodo || got.Version != item.Version {
		t.Errorf("rejected transition changed item: status=%s version=%d", got.Status, got.Version)
	}

	f.move(t, item.ID, model.StatusCancelled)
	if _, err := f.svc.ChangeStatus(ctx, item.ID, model.StatusInProgress, f.alice.ID); !errors.Is(err, model.ErrIllegalTransition) {
		t.Errorf("cancelled is terminal, got %v", err)
	}

	if _, err := f.svc.ChangeStatus(ctx, item.ID, model.StatusInProgress, "us-ghost"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("unknown actor should be rejected, got %v", err)
	}
	if _, err := f.svc.ChangeStatus(ctx, "ts-ghost", model.StatusInProgress, f.alice.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestChangeStatus_BlockedByDependency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	blocker := f.create(t, service.CreateSpec{Title: "Blocker"})
	other := f.create(t, service.CreateSpec{Title: "Other blocker"})
	dependent := f.create(t, service.CreateSpec{Title: "Dependent"})

	for _, b := range []string{blocker.ID, other.ID} {
		if err := f.svc.AddDependency(ctx, b, dependent.ID); err != nil {
			t.Fatalf("failed to add dependency: %v", err)
		}
	}
	f.move(t, dependent.ID, model.StatusInProgress)

	_, err := f.svc.ChangeStatus(ctx, dependent.ID, model.StatusCompleted, f.alice.ID)
	if !errors.Is(err, model.ErrBlockedByDependency) {
		t.Fatalf("expected blocked, got %v", err)
	}
	ids := model.OffendingIDs(err)
	slices.Sort(ids)
	want := []string{blocker.ID, other.ID}
	slices.Sort(want)
	if !slices.Equal(ids, want) {
		t.Errorf("blocking ids = %v, want %v", ids, want)
	}

	// A cancelled blocker never completes, so it keeps blocking.
	f.move(t, blocker.ID, model.StatusInProgress, model.StatusCompleted)
	f.move(t, other.ID, model.StatusCancelled)

	blocked, err := f.svc.IsBlocked(ctx, dependent.ID)
	if err != nil || !blocked {
		t.Errorf("IsBlocked = (%v, %v), want true", blocked, err)
	}
	if _, err := f.svc.ChangeStatus(ctx, dependent.ID, model.StatusCompleted, f.alice.ID); !errors.Is(err, model.ErrBlockedByDependency) {
		t.Errorf("expected cancelled blocker to block, got %v", err)
	}

	if err := f.svc.RemoveDependency(ctx, other.ID, dependent.ID); err != nil {
		t.Fatalf("failed to remove dependency: %v", err)
	}
	f.move(t, dependent.ID, model.StatusCompleted)

	// Completion leaves edges in place.
	blocking, _ := f.svc.BlockingItemsOf(ctx, dependent.ID)
	if !slices.Equal(blocking, []string{blocker.ID}) {
		t.Errorf("BlockingItemsOf = %v, want [%s]", blocking, blocker.ID)
	}
	blockedBy, _ := f.svc.BlockedItemsOf(ctx, blocker.ID)
	if !slices.Equal(blockedBy, []string{dependent.ID}) {
		t.Errorf("BlockedItemsOf = %v, want [%s]", blockedBy, dependent.ID)
	}
}

func TestAddDependency_RejectsCycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, service.CreateSpec{Title: "A"})
	b := f.create(t, service.CreateSpec{Title: "B"})
	c := f.create(t, service.CreateSpec{Title: "C"})

	if err := f.svc.AddDependency(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.AddDependency(ctx, b.ID, c.ID); err != nil {
		t.Fatal(err)
	}

	err := f.svc.AddDependency(ctx, c.ID, a.ID)
	if !errors.Is(err, model.ErrCyclicDependency) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if path := model.OffendingIDs(err); len(path) < 3 {
		t.Errorf("expected cycle path through all three items, got %v", path)
	}

	edges, err := f.svc.Dependencies(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 2 {
		t.Errorf("rejected edge was persisted: %v", edges)
	}

	tests := []struct {
		name                string
		blocking, dependent string
		want                error
	}{
		{"self edge", a.ID, a.ID, model.ErrValidation},
		{"missing blocker", "ts-ghost", a.ID, model.ErrNotFound},
		{"missing dependent", a.ID, "ts-ghost", model.ErrNotFound},
		{"duplicate", a.ID, b.ID, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.AddDependency(ctx, tt.blocking, tt.dependent)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("AddDependency() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRemoveDependency_NotFound(t *testing.T) {
	f := setup(t)
	a := f.create(t, service.CreateSpec{Title: "A"})
	b := f.create(t, service.CreateSpec{Title: "B"})

	if err := f.svc.RemoveDependency(context.Background(), a.ID, b.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCompleteRecurring_SpawnsSuccessor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	due := epoch.Add(8 * time.Hour)
	reminder := epoch.Add(7 * time.Hour)
	item := f.create(t, service.CreateSpec{
		Title:      "Standup notes",
		DueDate:    &due,
		ReminderAt: &reminder,
		AssigneeID: &f.bob.ID,
		Recurrence: &model.Recurrence{Type: model.RecurDaily},
	})
	if item.NextOccurrence == nil || !item.NextOccurrence.Equal(due.AddDate(0, 0, 1)) {
		t.Errorf("NextOccurrence = %v, want due + 1 day", item.NextOccurrence)
	}

	res := f.move(t, item.ID, model.StatusInProgress, model.StatusCompleted)
	next := res.Successor
	if next == nil {
		t.Fatal("expected a successor")
	}
	if next.Status != model.StatusTodo || next.ID == item.ID {
		t.Errorf("successor = %+v", next)
	}
	if next.DueDate == nil || !next.DueDate.Equal(due.AddDate(0, 0, 1)) {
		t.Errorf("successor due = %v, want %v", next.DueDate, due.AddDate(0, 0, 1))
	}
	if next.ReminderAt == nil || !next.ReminderAt.Equal(reminder.AddDate(0, 0, 1)) {
		t.Errorf("successor reminder = %v", next.ReminderAt)
	}

	stored, err := f.svc.GetItem(ctx, next.ID)
	if err != nil {
		t.Fatalf("successor not persisted: %v", err)
	}
	if stored.RecurrenceSourceID == nil || *stored.RecurrenceSourceID != item.ID {
		t.Errorf("successor source = %v, want %s", stored.RecurrenceSourceID, item.ID)
	}
	if stored.AssigneeID == nil || *stored.AssigneeID != f.bob.ID {
		t.Errorf("successor assignee = %v", stored.AssigneeID)
	}

	done, _ := f.svc.GetItem(ctx, item.ID)
	if done.SuccessorID == nil || *done.SuccessorID != next.ID {
		t.Errorf("completed item successor = %v, want %s", done.SuccessorID, next.ID)
	}
}

func TestCompleteRecurring_EndStopsSeries(t *testing.T) {
	f := setup(t)
	due := epoch.Add(8 * time.Hour)
	end := due.Add(time.Hour)
	item := f.create(t, service.CreateSpec{
		DueDate:    &due,
		Recurrence: &model.Recurrence{Type: model.RecurWeekly, End: &end},
	})

	res := f.move(t, item.ID, model.StatusInProgress, model.StatusCompleted)
	if res.Successor != nil {
		t.Errorf("series past its end spawned %s", res.Successor.ID)
	}
}

func TestCompleteRecurring_ConcurrentCompletionsSpawnOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	due := epoch.Add(time.Hour)
	item := f.create(t, service.CreateSpec{
		Kind:       model.KindTicket,
		Priority:   model.PriorityHigh,
		DueDate:    &due,
		Recurrence: &model.Recurrence{Type: model.RecurMonthly},
	})
	f.move(t, item.ID, model.StatusInProgress)

	var mu sync.Mutex
	var successes, illegal int
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			_, err := f.svc.ChangeStatus(ctx, item.ID, model.StatusCompleted, f.alice.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrIllegalTransition), errors.Is(err, model.ErrConflict):
				illegal++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if successes != 1 || illegal != 7 {
		t.Errorf("successes=%d rejected=%d, want 1 and 7", successes, illegal)
	}

	items, err := f.svc.ListItems(ctx, service.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	spawned := 0
	for _, it := range items {
		if it.RecurrenceSourceID != nil && *it.RecurrenceSourceID == item.ID {
			spawned++
		}
	}
	if spawned != 1 {
		t.Errorf("expected exactly one successor, got %d", spawned)
	}

	expected := `
# HELP workdesk_recurrence_spawned_total Recurrence successors created on completion
# TYPE workdesk_recurrence_spawned_total counter
workdesk_recurrence_spawned_total 1
`
	if err := testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "workdesk_recurrence_spawned_total"); err != nil {
		t.Error(err)
	}
}

func TestDeleteItem_Orphan(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	parent := f.create(t, service.CreateSpec{Title: "Parent"})
	child := f.create(t, service.CreateSpec{Title: "Child", ParentID: &parent.ID})
	other := f.create(t, service.CreateSpec{Title: "Other"})
	if err := f.svc.AddDependency(ctx, parent.ID, other.ID); err != nil {
		t.Fatal(err)
	}

	deleted, err := f.svc.DeleteItem(ctx, parent.ID, service.DeleteOrphan)
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if !slices.Equal(deleted, []string{parent.ID}) {
		t.Errorf("deleted = %v", deleted)
	}

	got, err := f.svc.GetItem(ctx, child.ID)
	if err != nil {
		t.Fatalf("child should survive: %v", err)
	}
	if got.ParentID != nil {
		t.Errorf("child still points at %s", *got.ParentID)
	}
	if blocked, _ := f.svc.IsBlocked(ctx, other.ID); blocked {
		t.Error("edge from deleted item survived")
	}
	if _, err := f.svc.GetItem(ctx, parent.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteItem_Cascade(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	root := f.create(t, service.CreateSpec{Title: "Root"})
	child := f.create(t, service.CreateSpec{Title: "Child", ParentID: &root.ID})
	grandchild := f.create(t, service.CreateSpec{Title: "Grandchild", ParentID: &child.ID})
	keep := f.create(t, service.CreateSpec{Title: "Keep"})
	if err := f.svc.AddDependency(ctx, grandchild.ID, keep.ID); err != nil {
		t.Fatal(err)
	}

	deleted, err := f.svc.DeleteItem(ctx, root.ID, service.DeleteCascade)
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if len(deleted) != 3 || deleted[0] != root.ID {
		t.Errorf("deleted = %v, want root first then its two descendants", deleted)
	}

	items, _ := f.svc.ListItems(ctx, service.ListFilter{})
	if len(items) != 1 || items[0].ID != keep.ID {
		t.Errorf("remaining items = %v", items)
	}
	edges, _ := f.db.AllEdges(ctx)
	if len(edges) != 0 {
		t.Errorf("edges survived cascade: %v", edges)
	}
}

func TestSetParent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, service.CreateSpec{Title: "A"})
	b := f.create(t, service.CreateSpec{Title: "B", ParentID: &a.ID})
	c := f.create(t, service.CreateSpec{Title: "C", ParentID: &b.ID})

	if _, err := f.svc.SetParent(ctx, a.ID, &c.ID); !errors.Is(err, model.ErrCyclicDependency) {
		t.Errorf("expected parent loop to be rejected, got %v", err)
	}
	if _, err := f.svc.SetParent(ctx, a.ID, &a.ID); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected self parent to be rejected, got %v", err)
	}
	if _, err := f.svc.SetParent(ctx, a.ID, ptr("ts-ghost")); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected missing parent, got %v", err)
	}

	moved, err := f.svc.SetParent(ctx, c.ID, nil)
	if err != nil {
		t.Fatalf("failed to detach: %v", err)
	}
	if moved.ParentID != nil {
		t.Errorf("parent = %v, want nil", *moved.ParentID)
	}

	top, _ := f.svc.ListItems(ctx, service.ListFilter{TopLevel: true})
	if len(top) != 2 {
		t.Errorf("expected 2 top-level items, got %d", len(top))
	}
}

func TestUpdateItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ticket := f.create(t, service.CreateSpec{Kind: model.KindTicket, Priority: model.PriorityLow})

	f.clock.Advance(time.Hour)
	updated, err := f.svc.UpdateItem(ctx, ticket.ID, service.UpdateOptions{
		Title:      ptr("Printer on fire"),
		Priority:   ptr(model.PriorityHigh),
		AssigneeID: &f.bob.ID,
	})
	if err != nil {
		t.Fatalf("failed to update: %v", err)
	}
	if updated.Title != "Printer on fire" || updated.Priority != model.PriorityHigh {
		t.Errorf("updated = %+v", updated)
	}
	// SLA is measured from creation, not from the update.
	if updated.SLADeadline == nil || !updated.SLADeadline.Equal(epoch.Add(8*time.Hour)) {
		t.Errorf("SLA = %v, want created + 8h", updated.SLADeadline)
	}
	if updated.Status != model.StatusTodo {
		t.Errorf("update changed status to %s", updated.Status)
	}

	cleared, err := f.svc.UpdateItem(ctx, ticket.ID, service.UpdateOptions{ClearAssignee: true})
	if err != nil || cleared.AssigneeID != nil {
		t.Errorf("ClearAssignee = (%v, %v)", cleared, err)
	}

	tests := []struct {
		name string
		opts service.UpdateOptions
	}{
		{"empty title", service.UpdateOptions{Title: ptr(" ")}},
		{"bad priority", service.UpdateOptions{Priority: ptr(model.Priority("p0"))}},
		{"unknown assignee", service.UpdateOptions{AssigneeID: ptr("us-ghost")}},
		{"negative estimate", service.UpdateOptions{EstimatedHours: ptr(-2.0)}},
		{"due before start", service.UpdateOptions{StartDate: ptr(epoch.Add(48 * time.Hour)), DueDate: ptr(epoch)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.UpdateItem(ctx, ticket.ID, tt.opts); !errors.Is(err, model.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLogTime(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.create(t, service.CreateSpec{EstimatedHours: ptr(10.0)})

	for _, h := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := f.svc.LogTime(ctx, service.LogTimeSpec{ItemID: item.ID, UserID: f.alice.ID, Hours: h}); !errors.Is(err, model.ErrValidation) {
			t.Errorf("LogTime(%v) expected validation error, got %v", h, err)
		}
	}
	if _, err := f.svc.LogTime(ctx, service.LogTimeSpec{ItemID: "ts-ghost", UserID: f.alice.ID, Hours: 1}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	if _, err := f.svc.LogTime(ctx, service.LogTimeSpec{ItemID: item.ID, UserID: f.alice.ID, Hours: 8}); err != nil {
		t.Fatalf("failed to log time: %v", err)
	}
	summary, err := f.svc.LogTime(ctx, service.LogTimeSpec{ItemID: item.ID, UserID: f.bob.ID, Hours: 4.5})
	if err != nil {
		t.Fatalf("failed to log time: %v", err)
	}
	if summary.LoggedHours != 12.5 || !summary.OverBudget() || *summary.OverBudgetBy != 2.5 {
		t.Errorf("summary = %+v, want 12.5 logged and 2.5 over", summary)
	}

	got, _ := f.svc.GetItem(ctx, item.ID)
	if len(got.TimeEntries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.TimeEntries))
	}

	bobsEntry := got.TimeEntries[1]
	err = f.svc.DeleteTimeEntry(ctx, bobsEntry.ID, item.ID, f.alice.ID)
	if !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := f.svc.DeleteTimeEntry(ctx, bobsEntry.ID, item.ID, f.bob.ID); err != nil {
		t.Errorf("author should delete own entry: %v", err)
	}
}

func TestParseMentionTokens(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"@alice please check", []string{"alice"}},
		{"cc @alice, @bob.", []string{"alice", "bob"}},
		{"@alice @alice again", []string{"alice"}},
		{"mail alice@example.com", nil},
		{"(@carol) and @dave-", []string{"carol", "dave"}},
		{"@", nil},
		{"no mentions here", nil},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			got := service.ParseMentionTokens(tt.content)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseMentionTokens(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestAddComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.create(t, service.CreateSpec{})

	content := "@bob can you look? also @BOB and @ghost, mail me at alice@example.com"
	c, err := f.svc.AddComment(ctx, item.ID, f.alice.ID, content)
	if err != nil {
		t.Fatalf("failed to comment: %v", err)
	}
	if c.Content != content {
		t.Errorf("content rewritten to %q", c.Content)
	}
	if len(c.Mentions) != 1 || c.Mentions[0].UserID != f.bob.ID {
		t.Errorf("mentions = %+v, want just bob", c.Mentions)
	}

	if _, err := f.svc.AddComment(ctx, item.ID, f.alice.ID, "  "); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	if err := f.svc.DeleteComment(ctx, c.ID, item.ID, f.bob.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := f.svc.DeleteComment(ctx, c.ID, item.ID, "us-ghost"); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("unknown actor should be forbidden, got %v", err)
	}
	if err := f.svc.DeleteComment(ctx, c.ID, item.ID, f.alice.ID); err != nil {
		t.Errorf("author should delete own comment: %v", err)
	}
}

func TestAttachments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	item := f.create(t, service.CreateSpec{})

	a, err := f.svc.AddAttachment(ctx, service.AttachmentSpec{
		ItemID: item.ID, Filename: "dump.bin", Size: 1024, UploaderID: f.bob.ID, URL: "file:///tmp/dump.bin",
	})
	if err != nil {
		t.Fatalf("failed to attach: %v", err)
	}
	if a.MimeType != "application/octet-stream" {
		t.Errorf("mime = %q, want default", a.MimeType)
	}

	if _, err := f.svc.AddAttachment(ctx, service.AttachmentSpec{ItemID: item.ID, Filename: "x", Size: -1, UploaderID: f.bob.ID}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	if err := f.svc.RemoveAttachment(ctx, a.ID, item.ID, f.alice.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := f.svc.RemoveAttachment(ctx, a.ID, "ts-other", f.bob.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("attachment on another item should be not found, got %v", err)
	}
	if err := f.svc.RemoveAttachment(ctx, a.ID, item.ID, f.bob.ID); err != nil {
		t.Errorf("uploader should remove attachment: %v", err)
	}
}

func TestDeadlineStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ticket := f.create(t, service.CreateSpec{Kind: model.KindTicket, Priority: model.PriorityCritical})

	tests := []struct {
		advance time.Duration
		want    deadline.State
	}{
		{time.Hour, deadline.StateOnTrack},
		{2*time.Hour + 30*time.Minute, deadline.StateWarning},
		{time.Hour, deadline.StateBreached},
	}
	for _, tt := range tests {
		f.clock.Advance(tt.advance)
		ev, ok, err := f.svc.DeadlineStatus(ctx, ticket.ID)
		if err != nil || !ok {
			t.Fatalf("DeadlineStatus = (%v, %v)", ok, err)
		}
		if ev.State != tt.want {
			t.Errorf("at %v: state = %s, want %s", f.clock.Now().Sub(epoch), ev.State, tt.want)
		}
	}

	f.move(t, ticket.ID, model.StatusCancelled)
	if _, ok, _ := f.svc.DeadlineStatus(ctx, ticket.ID); ok {
		t.Error("finished items have no deadline status")
	}
}

func TestReminders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	at := epoch.Add(30 * time.Minute)
	item := f.create(t, service.CreateSpec{ReminderAt: &at})
	f.create(t, service.CreateSpec{Title: "No reminder"})

	due, _ := f.svc.DueReminders(ctx)
	if len(due) != 0 {
		t.Errorf("reminder fired early: %v", due)
	}

	f.clock.Advance(time.Hour)
	due, err := f.svc.DueReminders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != item.ID {
		t.Fatalf("due = %v, want [%s]", due, item.ID)
	}

	if err := f.svc.MarkReminderSent(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.MarkReminderSent(ctx, item.ID); err != nil {
		t.Errorf("second mark should be a no-op: %v", err)
	}
	if due, _ := f.svc.DueReminders(ctx); len(due) != 0 {
		t.Errorf("sent reminder still due: %v", due)
	}
}

func TestProgress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	parent := f.create(t, service.CreateSpec{Title: "Parent", EstimatedHours: ptr(4.0)})
	for i := range 4 {
		child := f.create(t, service.CreateSpec{Title: "Child", ParentID: &parent.ID})
		if i < 3 {
			f.move(t, child.ID, model.StatusInProgress, model.StatusCompleted)
		}
	}
	if _, err := f.svc.LogTime(ctx, service.LogTimeSpec{ItemID: parent.ID, UserID: f.alice.ID, Hours: 1}); err != nil {
		t.Fatal(err)
	}

	report, err := f.svc.Progress(ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Subtasks != 4 || report.SubtaskPercent != 75 {
		t.Errorf("report = %+v, want 3 of 4 complete", report)
	}
	if report.Time.LoggedHours != 1 || report.Time.Remaining == nil || *report.Time.Remaining != 3 {
		t.Errorf("time = %+v", report.Time)
	}
}

func TestMetrics_Rejections(t *testing.T) {
	f := setup(t)
	item := f.create(t, service.CreateSpec{})

	_, _ = f.svc.ChangeStatus(context.Background(), item.ID, model.StatusCompleted, f.alice.ID)

	expected := `
# HELP workdesk_items_rejections_total Rejected mutations by operation and error kind
# TYPE workdesk_items_rejections_total counter
workdesk_items_rejections_total{kind="IllegalTransition",op="status"} 1
`
	if err := testutil.GatherAndCompare(f.reg, strings.NewReader(expected), "workdesk_items_rejections_total"); err != nil {
		t.Error(err)
	}
}

func TestEndToEnd_RecurringBlockedWeekly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	due := epoch.Add(48 * time.Hour)
	end := epoch.AddDate(0, 0, 21)
	x := f.create(t, service.CreateSpec{
		Title:      "Patch servers",
		Priority:   model.PriorityHigh,
		DueDate:    &due,
		Recurrence: &model.Recurrence{Type: model.RecurWeekly, End: &end},
	})
	y := f.create(t, service.CreateSpec{Title: "Announce maintenance window"})

	if _, err := f.svc.LogTime(ctx, service.LogTimeSpec{ItemID: x.ID, UserID: f.alice.ID, Hours: 2}); err != nil {
		t.Fatalf("failed to log time: %v", err)
	}
	if err := f.svc.AddDependency(ctx, y.ID, x.ID); err != nil {
		t.Fatalf("failed to add dependency: %v", err)
	}

	f.move(t, x.ID, model.StatusInProgress)
	_, err := f.svc.ChangeStatus(ctx, x.ID, model.StatusCompleted, f.alice.ID)
	var blocked *model.BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if len(blocked.BlockingIDs) != 1 || blocked.BlockingIDs[0] != y.ID {
		t.Errorf("blocking ids = %v, want [%s]", blocked.BlockingIDs, y.ID)
	}

	f.move(t, y.ID, model.StatusInProgress, model.StatusCompleted)
	res := f.move(t, x.ID, model.StatusCompleted)
	if res.Item.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", res.Item.Status)
	}
	if res.Successor == nil {
		t.Fatal("expected a successor")
	}

	next, err := f.svc.GetItem(ctx, res.Successor.ID)
	if err != nil {
		t.Fatalf("successor not persisted: %v", err)
	}
	if next.Status != model.StatusTodo {
		t.Errorf("successor status = %s, want todo", next.Status)
	}
	if want := due.AddDate(0, 0, 7); next.DueDate == nil || !next.DueDate.Equal(want) {
		t.Errorf("successor due = %v, want %v", next.DueDate, want)
	}
	if len(next.TimeEntries) != 0 {
		t.Errorf("successor carried %d time entries", len(next.TimeEntries))
	}
	if next.Priority != model.PriorityHigh {
		t.Errorf("successor priority = %s", next.Priority)
	}

	items, err := f.svc.ListItems(ctx, service.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	spawned := 0
	for _, it := range items {
		if it.RecurrenceSourceID != nil && *it.RecurrenceSourceID == x.ID {
			spawned++
		}
	}
	if spawned != 1 {
		t.Errorf("expected exactly one successor, got %d", spawned)
	}
	if done, _ := f.svc.GetItem(ctx, x.ID); len(done.TimeEntries) != 1 {
		t.Errorf("source lost its time entries: %v", done.TimeEntries)
	}
}

// Two services on separate connections to one file stand in for two
// workdesk processes.
func TestAddDependency_OppositeEdgesFromTwoStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	open := func() *db.DB {
		store, err := db.Open(path)
		if err != nil {
			t.Fatalf("failed to open db: %v", err)
		}
		if err := store.Init(); err != nil {
			t.Fatalf("failed to init db: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	}
	first, second := open(), open()
	alice, err := first.CreateUser(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	clock := &testClock{t: epoch}
	svc1 := service.New(first, first, service.WithClock(clock))
	svc2 := service.New(second, second, service.WithClock(clock))

	const rounds = 10
	for i := range rounds {
		a, err := svc1.CreateItem(ctx, service.CreateSpec{Title: fmt.Sprintf("A%d", i), CreatorID: alice.ID})
		if err != nil {
			t.Fatal(err)
		}
		b, err := svc2.CreateItem(ctx, service.CreateSpec{Title: fmt.Sprintf("B%d", i), CreatorID: alice.ID})
		if err != nil {
			t.Fatal(err)
		}

		var errs [2]error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = svc1.AddDependency(ctx, a.ID, b.ID) }()
		go func() { defer wg.Done(); errs[1] = svc2.AddDependency(ctx, b.ID, a.ID) }()
		wg.Wait()

		accepted, cyclic := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, model.ErrCyclicDependency):
				cyclic++
			default:
				t.Fatalf("round %d: unexpected error: %v", i, err)
			}
		}
		if accepted != 1 || cyclic != 1 {
			t.Fatalf("round %d: accepted=%d cyclic=%d, want 1 and 1", i, accepted, cyclic)
		}
	}

	edges, err := second.AllEdges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != rounds {
		t.Errorf("got %d edges, want %d", len(edges), rounds)
	}
	if _, err := depgraph.Load(edges); err != nil {
		t.Errorf("stored edge set is not acyclic: %v", err)
	}
}

func TestDeleteItem_IgnoresUnrelatedEdges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.create(t, service.CreateSpec{Title: "A"})
	b := f.create(t, service.CreateSpec{Title: "B"})
	gone := f.create(t, service.CreateSpec{Title: "Gone"})

	// A cycle written behind the service's back must not stop deletes
	// elsewhere.
	now := time.Now()
	for _, d := range []model.Dependency{{BlockingID: a.ID, DependentID: b.ID, CreatedAt: now}, {BlockingID: b.ID, DependentID: a.ID, CreatedAt: now}} {
		if err := f.db.AddEdge(ctx, d, nil); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := f.svc.DeleteItem(ctx, gone.ID, service.DeleteOrphan); err != nil {
		t.Errorf("delete failed: %v", err)
	}
}
