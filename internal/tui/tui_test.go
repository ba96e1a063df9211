package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/progress"
	"github.com/baiirun/workdesk/internal/service"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// fakeBackend answers from an in-memory item list. changeErr, when set, is
// returned by ChangeStatus instead of applying the move.
type fakeBackend struct {
	items     []*model.WorkItem
	changeErr error
	successor *model.WorkItem
	created   []service.CreateSpec
	deps      [][2]string
	blockers  map[string][]string
}

func (f *fakeBackend) ListItems(context.Context, service.ListFilter) ([]*model.WorkItem, error) {
	out := make([]*model.WorkItem, len(f.items))
	for i, it := range f.items {
		out[i] = it.Clone()
	}
	return out, nil
}

func (f *fakeBackend) CreateItem(_ context.Context, spec service.CreateSpec) (*model.WorkItem, error) {
	f.created = append(f.created, spec)
	item := &model.WorkItem{ID: "ts-new", Title: spec.Title, Status: model.StatusTodo, Priority: model.PriorityMedium}
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeBackend) ChangeStatus(_ context.Context, id string, target model.Status, _ string) (service.ChangeResult, error) {
	if f.changeErr != nil {
		return service.ChangeResult{}, f.changeErr
	}
	for _, it := range f.items {
		if it.ID == id {
			it.Status = target
			return service.ChangeResult{Item: it.Clone(), Successor: f.successor}, nil
		}
	}
	return service.ChangeResult{}, model.NotFound("item", id)
}

func (f *fakeBackend) AddDependency(_ context.Context, blockingID, dependentID string) error {
	f.deps = append(f.deps, [2]string{blockingID, dependentID})
	return nil
}

func (f *fakeBackend) UnfinishedBlockers(_ context.Context, id string) ([]string, error) {
	return f.blockers[id], nil
}

func (f *fakeBackend) AddComment(_ context.Context, itemID, authorID, content string) (model.Comment, error) {
	return model.Comment{ItemID: itemID, AuthorID: authorID, Content: content}, nil
}

func (f *fakeBackend) LogTime(_ context.Context, spec service.LogTimeSpec) (progress.TimeSummary, error) {
	return progress.TimeSummary{LoggedHours: spec.Hours}, nil
}

func (f *fakeBackend) DeleteItem(_ context.Context, id string, _ service.DeletePolicy) ([]string, error) {
	return []string{id}, nil
}

func (f *fakeBackend) Deadlines() deadline.Calculator { return deadline.New() }
func (f *fakeBackend) Now() time.Time                 { return now }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func item(id, title string, status model.Status) *model.WorkItem {
	return &model.WorkItem{ID: id, Title: title, Kind: model.KindTask, Status: status, Priority: model.PriorityMedium, CreatedAt: now}
}

// loaded returns a board that has received the backend's items.
func loaded(t *testing.T, fb *fakeBackend) Model {
	t.Helper()
	m := New(fb, "us-alice")
	msg := m.loadItems()()
	next, _ := m.Update(msg)
	return next.(Model)
}

// send applies msgs in order and returns the final model and command.
func send(m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func TestBoard_GroupsByStatus(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{
		item("ts-1", "Write docs", model.StatusTodo),
		item("ts-2", "Fix login", model.StatusInProgress),
		item("ts-3", "Ship", model.StatusCompleted),
	}}
	m := loaded(t, fb)

	if got := len(m.columns[model.StatusTodo]); got != 1 {
		t.Errorf("todo column has %d cards, want 1", got)
	}
	if got := len(m.visibleStatuses()); got != 3 {
		t.Errorf("visible columns = %d, want 3 without finished", got)
	}

	m, _ = send(m, key("f"))
	if got := len(m.visibleStatuses()); got != 5 {
		t.Errorf("visible columns = %d, want 5 with finished", got)
	}
}

func TestBoard_Navigation(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{
		item("ts-1", "A", model.StatusTodo),
		item("ts-2", "B", model.StatusTodo),
		item("ts-3", "C", model.StatusInProgress),
	}}
	m := loaded(t, fb)

	m, _ = send(m, key("j"))
	if got := m.selected().ID; got != "ts-2" {
		t.Errorf("after j selected %s, want ts-2", got)
	}
	m, _ = send(m, key("l"))
	if got := m.selected().ID; got != "ts-3" {
		t.Errorf("after l selected %s, want ts-3", got)
	}
	// Row clamps to the shorter column.
	if m.row != 0 {
		t.Errorf("row = %d, want 0", m.row)
	}
	m, _ = send(m, key("l"))
	if m.selected() != nil {
		t.Errorf("on_hold column is empty, selected %v", m.selected())
	}
}

func TestBoard_OptimisticMove(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{item("ts-1", "A", model.StatusTodo)}}
	m := loaded(t, fb)

	m, cmd := send(m, key(">"))
	if cmd == nil {
		t.Fatal("expected a command for the move")
	}
	// Card moves before the service answers.
	if got := len(m.columns[model.StatusInProgress]); got != 1 {
		t.Fatalf("in_progress column has %d cards before confirmation, want 1", got)
	}
	if got := m.selected().ID; got != "ts-1" {
		t.Errorf("cursor did not follow the card, selected %s", got)
	}
	if _, ok := m.pending["ts-1"]; !ok {
		t.Error("move not marked pending")
	}

	m, _ = send(m, cmd())
	if _, ok := m.pending["ts-1"]; ok {
		t.Error("move still pending after confirmation")
	}
	if m.err != nil {
		t.Errorf("unexpected error: %v", m.err)
	}
	if !strings.Contains(m.message, "Moved ts-1 to in_progress") {
		t.Errorf("message = %q", m.message)
	}
}

func TestBoard_RejectedMoveRollsBack(t *testing.T) {
	fb := &fakeBackend{
		items:     []*model.WorkItem{item("ts-1", "A", model.StatusInProgress)},
		changeErr: &model.BlockedError{ItemID: "ts-1", BlockingIDs: []string{"ts-9"}},
	}
	m := loaded(t, fb)

	m, cmd := send(m, key("d"))
	if cmd == nil {
		t.Fatal("expected a command for the move")
	}
	m, _ = send(m, cmd())

	if got := len(m.columns[model.StatusInProgress]); got != 1 {
		t.Errorf("in_progress column has %d cards after rollback, want 1", got)
	}
	if !errors.Is(m.err, model.ErrBlockedByDependency) {
		t.Errorf("err = %v, want blocked", m.err)
	}
	if got := m.selected().ID; got != "ts-1" {
		t.Errorf("cursor not back on rolled back card, selected %s", got)
	}
}

func TestBoard_IllegalMoveRejectedLocally(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{item("ts-1", "A", model.StatusTodo)}}
	m := loaded(t, fb)

	m, cmd := send(m, key("d"))
	if cmd != nil {
		t.Error("illegal move should not reach the service")
	}
	if !errors.Is(m.err, model.ErrIllegalTransition) {
		t.Errorf("err = %v, want illegal transition", m.err)
	}
	if got := len(m.columns[model.StatusTodo]); got != 1 {
		t.Errorf("card left todo column")
	}
}

func TestBoard_SuccessorAppears(t *testing.T) {
	src := item("ts-1", "Backup", model.StatusInProgress)
	src.IsRecurring = true
	src.Recurrence = model.Recurrence{Type: model.RecurDaily}
	fb := &fakeBackend{
		items:     []*model.WorkItem{src},
		successor: item("ts-2", "Backup", model.StatusTodo),
	}
	m := loaded(t, fb)

	m, cmd := send(m, key("d"))
	m, _ = send(m, cmd())

	if got := len(m.columns[model.StatusTodo]); got != 1 {
		t.Errorf("todo column has %d cards, want the successor", got)
	}
	if !strings.Contains(m.message, "next occurrence ts-2") {
		t.Errorf("message = %q", m.message)
	}
}

func TestBoard_PendingSurvivesReload(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{item("ts-1", "A", model.StatusTodo)}}
	m := loaded(t, fb)

	m, _ = send(m, key("s"))
	// A reload arrives before the move is confirmed.
	m, _ = send(m, m.loadItems()())
	if got := len(m.columns[model.StatusInProgress]); got != 1 {
		t.Errorf("reload undid optimistic move")
	}
}

func TestBoard_CreateInput(t *testing.T) {
	fb := &fakeBackend{}
	m := loaded(t, fb)

	m, _ = send(m, key("n"), key("Renew"), tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, key("cert"))
	if m.inputText != "Renew cert" {
		t.Fatalf("inputText = %q", m.inputText)
	}
	m, cmd := send(m, key("enter"))
	if cmd == nil {
		t.Fatal("expected create command")
	}
	m, _ = send(m, cmd())
	if len(fb.created) != 1 || fb.created[0].Title != "Renew cert" || fb.created[0].CreatorID != "us-alice" {
		t.Errorf("created = %+v", fb.created)
	}
	if m.message != "Created ts-new" {
		t.Errorf("message = %q", m.message)
	}
}

func TestBoard_AddDependencyInput(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{item("ts-1", "A", model.StatusTodo)}}
	m := loaded(t, fb)

	m, cmd := send(m, key("a"), key("ts-9"), key("enter"))
	if cmd == nil {
		t.Fatal("expected dependency command")
	}
	cmd()
	if len(fb.deps) != 1 || fb.deps[0] != [2]string{"ts-9", "ts-1"} {
		t.Errorf("deps = %v, want ts-9 blocking ts-1", fb.deps)
	}
}

func TestBoard_LogInputRejectsBadHours(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{item("ts-1", "A", model.StatusTodo)}}
	m := loaded(t, fb)

	m, cmd := send(m, key("L"), key("lots"), key("enter"))
	if cmd != nil {
		t.Error("bad hours should not reach the service")
	}
	if m.err == nil {
		t.Error("expected an error for non-numeric hours")
	}
}

func TestBoard_Search(t *testing.T) {
	fb := &fakeBackend{items: []*model.WorkItem{
		item("ts-1", "Printer jam", model.StatusTodo),
		item("ts-2", "VPN down", model.StatusTodo),
	}}
	m := loaded(t, fb)

	m, _ = send(m, key("/"), key("vpn"))
	if got := len(m.columns[model.StatusTodo]); got != 1 {
		t.Errorf("live search kept %d cards, want 1", got)
	}
	m, _ = send(m, key("enter"), key("esc"))
	if got := len(m.columns[model.StatusTodo]); got != 2 {
		t.Errorf("clearing search kept %d cards, want 2", got)
	}
}

func TestBoard_DetailLoadsBlockers(t *testing.T) {
	fb := &fakeBackend{
		items:    []*model.WorkItem{item("ts-1", "A", model.StatusTodo)},
		blockers: map[string][]string{"ts-1": {"ts-7"}},
	}
	m := New(fb, "us-alice")
	m, cmd := send(m, m.loadItems()())
	if cmd == nil {
		t.Fatal("expected detail load after items")
	}
	m, _ = send(m, cmd())
	if !strings.Contains(m.View(), "ts-7") {
		t.Error("detail pane does not list the blocker")
	}
}

func TestView_Renders(t *testing.T) {
	due := now.Add(-time.Hour)
	late := item("ts-1", "Overdue report", model.StatusTodo)
	late.DueDate = &due
	fb := &fakeBackend{items: []*model.WorkItem{late}}
	m := loaded(t, fb)
	m, _ = send(m, tea.WindowSizeMsg{Width: 120, Height: 40})

	out := m.View()
	for _, want := range []string{"workdesk", "todo (1)", "in_progress (0)", "Overdue report", "breached"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"too long title", 8, "too lon…"},
		{"x", 1, "x"},
		{"xy", 1, "…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
