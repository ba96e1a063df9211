// Package tui provides an interactive kanban board for workdesk using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/progress"
	"github.com/baiirun/workdesk/internal/service"
	"github.com/baiirun/workdesk/internal/workflow"
)

// Backend is the slice of the work-item service the board drives.
// *service.Service satisfies it.
type Backend interface {
	ListItems(ctx context.Context, filter service.ListFilter) ([]*model.WorkItem, error)
	CreateItem(ctx context.Context, spec service.CreateSpec) (*model.WorkItem, error)
	ChangeStatus(ctx context.Context, id string, target model.Status, actorID string) (service.ChangeResult, error)
	AddDependency(ctx context.Context, blockingID, dependentID string) error
	UnfinishedBlockers(ctx context.Context, id string) ([]string, error)
	AddComment(ctx context.Context, itemID, authorID, content string) (model.Comment, error)
	LogTime(ctx context.Context, spec service.LogTimeSpec) (progress.TimeSummary, error)
	DeleteItem(ctx context.Context, id string, policy service.DeletePolicy) ([]string, error)
	Deadlines() deadline.Calculator
	Now() time.Time
}

// InputMode represents what kind of text input is active.
type InputMode int

const (
	InputNone    InputMode = iota
	InputCreate            // Entering new item title
	InputLog               // Entering "hours [description]"
	InputComment           // Entering comment text
	InputAddDep            // Entering id of the item that blocks the selection
	InputSearch            // Entering search text
)

// Status icons
const (
	iconTodo       = "○"
	iconInProgress = "◐"
	iconOnHold     = "◑"
	iconCompleted  = "●"
	iconCancelled  = "✗"
)

// Layout constants
const (
	minColumnWidth = 18
	detailHeight   = 8
)

// Model is the main Bubble Tea model for the board.
type Model struct {
	backend Backend
	actorID string

	items []*model.WorkItem
	// columns holds the filtered items grouped by status.
	columns map[model.Status][]*model.WorkItem
	col     int // index into visibleStatuses()
	row     int

	// Filter state
	showFinished bool
	filterSearch string

	// Input state
	inputMode  InputMode
	inputText  string
	inputLabel string

	// UI state
	width   int
	height  int
	err     error
	message string

	// pending holds the optimistic target of items whose move is in flight.
	pending map[string]model.Status

	// Detail state for the selected card
	detailID       string
	detailBlockers []string
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedCardStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	statusColors = map[model.Status]lipgloss.Color{
		model.StatusTodo:       lipgloss.Color("252"),
		model.StatusInProgress: lipgloss.Color("214"),
		model.StatusOnHold:     lipgloss.Color("141"),
		model.StatusCompleted:  lipgloss.Color("42"),
		model.StatusCancelled:  lipgloss.Color("245"),
	}

	priorityColors = map[model.Priority]lipgloss.Color{
		model.PriorityCritical: lipgloss.Color("196"),
		model.PriorityHigh:     lipgloss.Color("208"),
		model.PriorityMedium:   lipgloss.Color("39"),
		model.PriorityLow:      lipgloss.Color("241"),
	}

	deadlineColors = map[deadline.State]lipgloss.Color{
		deadline.StateOnTrack:  lipgloss.Color("42"),
		deadline.StateWarning:  lipgloss.Color("214"),
		deadline.StateBreached: lipgloss.Color("196"),
	}

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	filterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// Content area padding
	contentPadding = 2
)

func statusIcon(s model.Status) string {
	switch s {
	case model.StatusTodo:
		return iconTodo
	case model.StatusInProgress:
		return iconInProgress
	case model.StatusOnHold:
		return iconOnHold
	case model.StatusCompleted:
		return iconCompleted
	case model.StatusCancelled:
		return iconCancelled
	default:
		return "?"
	}
}

// New creates a board that acts as actorID.
func New(backend Backend, actorID string) Model {
	return Model{
		backend: backend,
		actorID: actorID,
		columns: make(map[model.Status][]*model.WorkItem),
		pending: make(map[string]model.Status),
	}
}

// Messages
type itemsMsg struct {
	items []*model.WorkItem
	err   error
}

type moveMsg struct {
	id     string
	from   model.Status
	to     model.Status
	result service.ChangeResult
	err    error
}

type detailMsg struct {
	id       string // Track which card this load was for (to ignore stale results)
	blockers []string
	err      error
}

type actionMsg struct {
	message string
	err     error
}

// loadItems loads every item from the service.
func (m Model) loadItems() tea.Cmd {
	return func() tea.Msg {
		items, err := m.backend.ListItems(context.Background(), service.ListFilter{})
		return itemsMsg{items: items, err: err}
	}
}

// loadDetail loads the unfinished blockers of the selected card.
func (m Model) loadDetail() tea.Cmd {
	item := m.selected()
	if item == nil {
		return nil
	}
	id := item.ID
	return func() tea.Msg {
		blockers, err := m.backend.UnfinishedBlockers(context.Background(), id)
		return detailMsg{id: id, blockers: blockers, err: err}
	}
}

// visibleStatuses returns the board columns in order.
func (m Model) visibleStatuses() []model.Status {
	if m.showFinished {
		return model.Statuses()
	}
	var out []model.Status
	for _, s := range model.Statuses() {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// applyFilters regroups items into columns.
func (m *Model) applyFilters() {
	m.columns = make(map[model.Status][]*model.WorkItem)
	search := strings.ToLower(m.filterSearch)
	for _, item := range m.items {
		if search != "" &&
			!strings.Contains(strings.ToLower(item.Title), search) &&
			!strings.Contains(strings.ToLower(item.ID), search) &&
			!strings.Contains(strings.ToLower(item.Description), search) {
			continue
		}
		m.columns[item.Status] = append(m.columns[item.Status], item)
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	cols := m.visibleStatuses()
	if m.col >= len(cols) {
		m.col = len(cols) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	n := len(m.columns[cols[m.col]])
	if m.row >= n {
		m.row = max(0, n-1)
	}
}

// selected returns the card under the cursor, or nil.
func (m Model) selected() *model.WorkItem {
	cols := m.visibleStatuses()
	if m.col >= len(cols) {
		return nil
	}
	cards := m.columns[cols[m.col]]
	if m.row >= len(cards) {
		return nil
	}
	return cards[m.row]
}

// follow moves the cursor onto item id in status s, when that column is shown.
func (m *Model) follow(id string, s model.Status) {
	for c, st := range m.visibleStatuses() {
		if st != s {
			continue
		}
		for r, item := range m.columns[st] {
			if item.ID == id {
				m.col, m.row = c, r
				return
			}
		}
	}
}

// replace swaps in a new copy of an item, or appends it if unknown.
func (m *Model) replace(item *model.WorkItem) {
	for i, it := range m.items {
		if it.ID == item.ID {
			m.items[i] = item
			return
		}
	}
	m.items = append(m.items, item)
}

func (m *Model) setStatus(id string, s model.Status) {
	for i, it := range m.items {
		if it.ID == id {
			c := it.Clone()
			c.Status = s
			m.items[i] = c
			return
		}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.loadItems()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Clear message on any key
		m.message = ""
		m.err = nil
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case itemsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.items = msg.items
		// Keep optimistic statuses for moves still in flight.
		for id, target := range m.pending {
			m.setStatus(id, target)
		}
		m.applyFilters()
		return m, m.loadDetail()

	case moveMsg:
		delete(m.pending, msg.id)
		if msg.err != nil {
			m.setStatus(msg.id, msg.from)
			m.err = msg.err
			m.applyFilters()
			m.follow(msg.id, msg.from)
			return m, nil
		}
		m.replace(msg.result.Item)
		m.message = fmt.Sprintf("Moved %s to %s", msg.id, msg.to)
		if next := msg.result.Successor; next != nil {
			m.replace(next)
			m.message += fmt.Sprintf("; next occurrence %s", next.ID)
		}
		m.applyFilters()
		m.follow(msg.id, msg.to)
		return m, m.loadDetail()

	case detailMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		// Ignore stale results from a previous cursor position
		if item := m.selected(); item != nil && item.ID == msg.id {
			m.detailID = msg.id
			m.detailBlockers = msg.blockers
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.message = msg.message
		}
		return m, m.loadItems()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle input mode first
	if m.inputMode != InputNone {
		return m.handleInputKey(msg)
	}
	return m.handleBoardKey(msg)
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inputMode = InputNone
		m.inputText = ""
		return m, nil

	case "enter":
		return m.submitInput()

	case "backspace":
		if len(m.inputText) > 0 {
			m.inputText = m.inputText[:len(m.inputText)-1]
		}

	default:
		// Add text if printable
		if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
			m.inputText += string(msg.Runes)
			if msg.Type == tea.KeySpace && len(msg.Runes) == 0 {
				m.inputText += " "
			}
		}
	}
	// Live filter for search
	if m.inputMode == InputSearch {
		m.filterSearch = m.inputText
		m.applyFilters()
	}
	return m, nil
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.inputText)
	mode := m.inputMode
	m.inputMode = InputNone
	m.inputText = ""

	// Handle inputs that don't require a selected card
	switch mode {
	case InputSearch:
		m.filterSearch = text
		m.applyFilters()
		return m, nil

	case InputCreate:
		if text == "" {
			return m, nil
		}
		backend, actor := m.backend, m.actorID
		return m, func() tea.Msg {
			item, err := backend.CreateItem(context.Background(), service.CreateSpec{Title: text, CreatorID: actor})
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{message: fmt.Sprintf("Created %s", item.ID)}
		}
	}

	// Remaining inputs require a selected card
	item := m.selected()
	if item == nil || text == "" {
		return m, nil
	}
	backend, actor, id := m.backend, m.actorID, item.ID

	switch mode {
	case InputLog:
		hoursText, desc, _ := strings.Cut(text, " ")
		hours, err := strconv.ParseFloat(hoursText, 64)
		if err != nil {
			m.err = fmt.Errorf("hours must be a number, got %q", hoursText)
			return m, nil
		}
		return m, func() tea.Msg {
			sum, err := backend.LogTime(context.Background(), service.LogTimeSpec{
				ItemID: id, UserID: actor, Hours: hours, Description: strings.TrimSpace(desc),
			})
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{message: fmt.Sprintf("Logged %gh to %s (%gh total)", hours, id, sum.LoggedHours)}
		}

	case InputComment:
		return m, func() tea.Msg {
			c, err := backend.AddComment(context.Background(), id, actor, text)
			if err != nil {
				return actionMsg{err: err}
			}
			msg := fmt.Sprintf("Commented on %s", id)
			if n := len(c.Mentions); n > 0 {
				msg += fmt.Sprintf(" (%d mentioned)", n)
			}
			return actionMsg{message: msg}
		}

	case InputAddDep:
		return m, func() tea.Msg {
			// text blocks the selected card
			if err := backend.AddDependency(context.Background(), text, id); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{message: fmt.Sprintf("%s now blocks %s", text, id)}
		}
	}

	return m, nil
}

func (m Model) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols := m.visibleStatuses()

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "left", "h":
		if m.col > 0 {
			m.col--
			m.clampCursor()
			return m, m.loadDetail()
		}

	case "right", "l":
		if m.col < len(cols)-1 {
			m.col++
			m.clampCursor()
			return m, m.loadDetail()
		}

	case "up", "k":
		if m.row > 0 {
			m.row--
			return m, m.loadDetail()
		}

	case "down", "j":
		if m.row < len(m.columns[cols[m.col]])-1 {
			m.row++
			return m, m.loadDetail()
		}

	// Moves
	case "<":
		if m.col > 0 {
			return m.moveTo(cols[m.col-1])
		}
	case ">":
		if m.col < len(cols)-1 {
			return m.moveTo(cols[m.col+1])
		}
	case "s":
		return m.moveTo(model.StatusInProgress)
	case "p":
		return m.moveTo(model.StatusOnHold)
	case "d":
		return m.moveTo(model.StatusCompleted)
	case "c":
		return m.moveTo(model.StatusCancelled)
	case "D":
		return m.doDelete()

	// Inputs
	case "n":
		return m.startInput(InputCreate, "New task: ")
	case "L":
		return m.startInput(InputLog, "Hours [description]: ")
	case "C":
		return m.startInput(InputComment, "Comment: ")
	case "a":
		return m.startInput(InputAddDep, "Add blocker ID: ")
	case "/":
		return m.startInput(InputSearch, "Search: ")

	case "f":
		m.showFinished = !m.showFinished
		m.clampCursor()
		return m, m.loadDetail()

	case "esc":
		// If a search is set, clear it; otherwise quit
		if m.filterSearch != "" {
			m.filterSearch = ""
			m.applyFilters()
		} else {
			return m, tea.Quit
		}

	case "r":
		return m, m.loadItems()
	}

	return m, nil
}

func (m Model) startInput(mode InputMode, label string) (Model, tea.Cmd) {
	m.inputMode = mode
	m.inputLabel = label
	m.inputText = ""
	return m, nil
}

// moveTo moves the selected card to target at once and asks the service to
// confirm. A rejected move puts the card back.
func (m Model) moveTo(target model.Status) (Model, tea.Cmd) {
	item := m.selected()
	if item == nil {
		return m, nil
	}
	if _, busy := m.pending[item.ID]; busy {
		m.message = fmt.Sprintf("%s is still saving", item.ID)
		return m, nil
	}
	from := item.Status
	if !workflow.CanTransition(from, target) {
		m.err = &model.TransitionError{ItemID: item.ID, From: from, To: target, Allowed: workflow.Allowed(from)}
		return m, nil
	}

	id := item.ID
	m.pending[id] = target
	m.setStatus(id, target)
	m.applyFilters()
	m.follow(id, target)

	backend, actor := m.backend, m.actorID
	return m, func() tea.Msg {
		res, err := backend.ChangeStatus(context.Background(), id, target, actor)
		return moveMsg{id: id, from: from, to: target, result: res, err: err}
	}
}

func (m Model) doDelete() (Model, tea.Cmd) {
	item := m.selected()
	if item == nil {
		return m, nil
	}
	backend, id := m.backend, item.ID
	return m, func() tea.Msg {
		if _, err := backend.DeleteItem(context.Background(), id, service.DeleteOrphan); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{message: fmt.Sprintf("Deleted %s", id)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.boardView())
	b.WriteString("\n")
	b.WriteString(m.detailView())

	// Input line
	if m.inputMode != InputNone {
		b.WriteString("\n")
		b.WriteString(inputStyle.Render(m.inputLabel + m.inputText + "█"))
	}

	// Status message
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	} else if m.message != "" {
		b.WriteString("\n")
		b.WriteString(messageStyle.Render(m.message))
	}

	padStyle := lipgloss.NewStyle().
		PaddingLeft(contentPadding).
		PaddingRight(contentPadding).
		PaddingTop(1)

	return padStyle.Render(b.String())
}

func (m Model) boardView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("workdesk"))
	fmt.Fprintf(&b, "  %d items", len(m.items))
	if m.filterSearch != "" {
		b.WriteString("  ")
		b.WriteString(filterStyle.Render("search:\"" + m.filterSearch + "\""))
	}
	b.WriteString("\n\n")

	cols := m.visibleStatuses()
	width := m.width
	if width == 0 {
		width = 100
	}
	// Each column has 2 border chars plus 1 char gap.
	colWidth := (width-contentPadding*2)/len(cols) - 3
	if colWidth < minColumnWidth {
		colWidth = minColumnWidth
	}
	height := m.height - detailHeight - 8
	if height < 5 {
		height = 10
	}

	boxes := make([]string, 0, len(cols)*2)
	for c, s := range cols {
		lines := m.columnLines(s, c == m.col, colWidth, height)
		color := lipgloss.Color("241")
		if c == m.col {
			color = lipgloss.Color("39")
		}
		if c > 0 {
			boxes = append(boxes, " ")
		}
		boxes = append(boxes, buildBorderedBox(normalizeLines(lines, height, colWidth), colWidth, color))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	return b.String()
}

// columnLines renders a header and the visible window of cards.
func (m Model) columnLines(s model.Status, focused bool, width, height int) []string {
	cards := m.columns[s]
	header := lipgloss.NewStyle().Foreground(statusColors[s]).Bold(true).
		Render(fmt.Sprintf("%s %s (%d)", statusIcon(s), s, len(cards)))
	lines := []string{header, ""}

	visible := height - 2
	start := 0
	if focused && m.row >= visible {
		start = m.row - visible + 1
	}
	end := min(start+visible, len(cards))
	for i := start; i < end; i++ {
		if focused && i == m.row {
			lines = append(lines, selectedCardStyle.Width(width).Render(m.cardLinePlain(cards[i], width)))
			continue
		}
		lines = append(lines, m.cardLineStyled(cards[i], width))
	}
	return lines
}

// deadlineMark flags cards whose deadline is close or missed.
func (m Model) deadlineMark(item *model.WorkItem) (string, deadline.State) {
	ev, ok := m.backend.Deadlines().EvaluateItem(item, m.backend.Now())
	if !ok {
		return " ", ""
	}
	switch ev.State {
	case deadline.StateBreached:
		return "!", ev.State
	case deadline.StateWarning:
		return "~", ev.State
	}
	return " ", ev.State
}

// cardLinePlain returns a card line without ANSI styling, for the
// highlighted row.
func (m Model) cardLinePlain(item *model.WorkItem, width int) string {
	mark, _ := m.deadlineMark(item)
	saving := ""
	if _, ok := m.pending[item.ID]; ok {
		saving = "…"
	}
	return truncate(fmt.Sprintf("%s%s %s%s", mark, priorityLetter(item.Priority), item.Title, saving), width)
}

func (m Model) cardLineStyled(item *model.WorkItem, width int) string {
	mark, state := m.deadlineMark(item)
	line := m.cardLinePlain(item, width)
	// The plain line starts with the mark and the priority letter.
	rest := strings.TrimPrefix(line, mark+priorityLetter(item.Priority))
	return lipgloss.NewStyle().Foreground(deadlineColors[state]).Render(mark) +
		lipgloss.NewStyle().Foreground(priorityColors[item.Priority]).Render(priorityLetter(item.Priority)) +
		rest
}

func priorityLetter(p model.Priority) string {
	if p == "" {
		return "?"
	}
	return strings.ToUpper(string(p)[:1])
}

func (m Model) detailView() string {
	item := m.selected()
	if item == nil {
		return dimStyle.Render("No card selected") + "\n" + m.helpView()
	}

	var lines []string
	color := statusColors[item.Status]
	lines = append(lines, lipgloss.NewStyle().Foreground(color).Render(statusIcon(item.Status))+" "+
		titleStyle.Render(item.Title)+"  "+dimStyle.Render(item.ID))

	meta := fmt.Sprintf("%s  %s", item.Kind, item.Priority)
	if item.AssigneeID != nil {
		meta += "  assignee " + *item.AssigneeID
	}
	if item.IsRecurring {
		meta += fmt.Sprintf("  every %d %s", item.Recurrence.Every(), item.Recurrence.Type)
	}
	lines = append(lines, detailLabelStyle.Render("Info:     ")+meta)

	if ev, ok := m.backend.Deadlines().EvaluateItem(item, m.backend.Now()); ok {
		state := lipgloss.NewStyle().Foreground(deadlineColors[ev.State]).Render(string(ev.State))
		lines = append(lines, detailLabelStyle.Render("Deadline: ")+
			fmt.Sprintf("%s (%s)", humanize.RelTime(ev.Deadline, m.backend.Now(), "ago", "from now"), state))
	}
	if item.EstimatedHours != nil || len(item.TimeEntries) > 0 {
		sum := progress.TimeProgress(item.TimeEntries, item.EstimatedHours)
		t := fmt.Sprintf("%gh logged", sum.LoggedHours)
		if sum.EstimatedHours != nil {
			t += fmt.Sprintf(" of %gh", *sum.EstimatedHours)
		}
		lines = append(lines, detailLabelStyle.Render("Time:     ")+t)
	}
	if m.detailID == item.ID && len(m.detailBlockers) > 0 {
		lines = append(lines, detailLabelStyle.Render("Blocked by: ")+strings.Join(m.detailBlockers, ", "))
	}
	lines = append(lines, m.helpView())
	return strings.Join(lines, "\n")
}

func (m Model) helpView() string {
	return helpStyle.Render("h/l/j/k:nav  </>:move  s:start p:hold d:done c:cancel  n:new L:log C:comment a:add-dep D:delete") +
		"\n" + helpStyle.Render("/:search  f:finished  r:refresh  q:quit")
}

// normalizeLines ensures the slice has exactly `height` lines, each padded to `width`.
func normalizeLines(lines []string, height, width int) []string {
	result := make([]string, height)
	for i := 0; i < height; i++ {
		if i < len(lines) {
			result[i] = padToWidth(lines[i], width)
		} else {
			result[i] = strings.Repeat(" ", width)
		}
	}
	return result
}

// buildBorderedBox creates a box with rounded borders around content lines.
func buildBorderedBox(lines []string, contentWidth int, borderColor lipgloss.Color) string {
	style := lipgloss.NewStyle().Foreground(borderColor)
	horizontal := style.Render(strings.Repeat("─", contentWidth))
	vertical := style.Render("│")

	var b strings.Builder
	b.WriteString(style.Render("╭") + horizontal + style.Render("╮") + "\n")
	for _, line := range lines {
		b.WriteString(vertical + line + vertical + "\n")
	}
	b.WriteString(style.Render("╰") + horizontal + style.Render("╯"))
	return b.String()
}

// padToWidth pads a string to the specified width with spaces.
// Accounts for ANSI escape codes when calculating visible width.
func padToWidth(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

// Run starts the board.
func Run(backend Backend, actorID string) error {
	p := tea.NewProgram(New(backend, actorID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
