package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/progress"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	statusStyles = map[model.Status]lipgloss.Style{
		model.StatusTodo:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		model.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		model.StatusOnHold:     lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		model.StatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		model.StatusCancelled:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}

	deadlineStyles = map[deadline.State]lipgloss.Style{
		deadline.StateOnTrack:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		deadline.StateWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		deadline.StateBreached: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
)

// ItemJSON is the JSON shape of a work item.
type ItemJSON struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	Parent         *string    `json:"parent,omitempty"`
	Assignee       *string    `json:"assignee,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	SLADeadline    *time.Time `json:"sla_deadline,omitempty"`
	ReminderAt     *time.Time `json:"reminder_at,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	LoggedHours    float64    `json:"logged_hours"`
	Recurrence     *RecurJSON `json:"recurrence,omitempty"`
	Successor      *string    `json:"successor,omitempty"`
	Comments       int        `json:"comments"`
	Attachments    int        `json:"attachments"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type RecurJSON struct {
	Type     string     `json:"type"`
	Interval int        `json:"interval"`
	End      *time.Time `json:"end,omitempty"`
	Next     *time.Time `json:"next,omitempty"`
}

// ChangeJSON is printed by the status commands.
type ChangeJSON struct {
	Item      ItemJSON  `json:"item"`
	Successor *ItemJSON `json:"successor,omitempty"`
}

type ErrorJSON struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	IDs     []string `json:"ids,omitempty"`
}

type DeadlineJSON struct {
	ItemID    string    `json:"item_id"`
	State     string    `json:"state"`
	Deadline  time.Time `json:"deadline"`
	Remaining string    `json:"remaining"`
}

func itemJSON(item *model.WorkItem) ItemJSON {
	out := ItemJSON{
		ID:             item.ID,
		Kind:           string(item.Kind),
		Title:          item.Title,
		Description:    item.Description,
		Status:         string(item.Status),
		Priority:       string(item.Priority),
		Parent:         item.ParentID,
		Assignee:       item.AssigneeID,
		StartDate:      item.StartDate,
		DueDate:        item.DueDate,
		SLADeadline:    item.SLADeadline,
		ReminderAt:     item.ReminderAt,
		EstimatedHours: item.EstimatedHours,
		LoggedHours:    progress.TimeProgress(item.TimeEntries, nil).LoggedHours,
		Successor:      item.SuccessorID,
		Comments:       len(item.Comments),
		Attachments:    len(item.Attachments),
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
	if item.IsRecurring {
		out.Recurrence = &RecurJSON{
			Type:     string(item.Recurrence.Type),
			Interval: item.Recurrence.Every(),
			End:      item.Recurrence.End,
			Next:     item.NextOccurrence,
		}
	}
	return out
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("{\"kind\":\"Internal\",\"message\":%q}\n", err.Error())
		return
	}
	fmt.Println(string(b))
}

func styledStatus(s model.Status) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

// relTime renders t relative to now, e.g. "3 hours from now".
func relTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// formatItemLine is one row of list output.
func formatItemLine(item *model.WorkItem) string {
	var b strings.Builder
	status := fmt.Sprintf("%-11s", item.Status)
	if st, ok := statusStyles[item.Status]; ok {
		status = st.Render(status)
	}
	fmt.Fprintf(&b, "%-11s %s %-8s %s", item.ID, status, item.Priority, item.Title)
	if item.Kind == model.KindTicket {
		b.WriteString(dimStyle.Render(" [ticket]"))
	}
	if item.IsRecurring {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" (every %d %s)", item.Recurrence.Every(), item.Recurrence.Type)))
	}
	return b.String()
}

func formatDeadline(ev deadline.Evaluation, now time.Time) string {
	st := deadlineStyles[ev.State]
	return fmt.Sprintf("%s, %s (%s)", st.Render(string(ev.State)),
		relTime(ev.Deadline, now), ev.Deadline.Local().Format("2006-01-02 15:04"))
}

func hours(h float64) string {
	return humanize.FtoaWithDigits(h, 2) + "h"
}

// printItem prints the full detail view of an item.
func printItem(item *model.WorkItem, blockers []string, now time.Time, ev *deadline.Evaluation) {
	fmt.Printf("%s %s\n", headerStyle.Render(item.Title), dimStyle.Render(item.ID))
	field := func(label, value string) {
		fmt.Printf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", label+":")), value)
	}
	field("Kind", string(item.Kind))
	field("Status", styledStatus(item.Status))
	field("Priority", string(item.Priority))
	if item.AssigneeID != nil {
		field("Assignee", *item.AssigneeID)
	}
	if item.ParentID != nil {
		field("Parent", *item.ParentID)
	}
	if item.StartDate != nil {
		field("Start", item.StartDate.Local().Format("2006-01-02 15:04"))
	}
	if item.DueDate != nil {
		field("Due", item.DueDate.Local().Format("2006-01-02 15:04"))
	}
	if ev != nil {
		field("Deadline", formatDeadline(*ev, now))
	}
	if item.ReminderAt != nil {
		sent := ""
		if item.ReminderSent {
			sent = " (sent)"
		}
		field("Reminder", relTime(*item.ReminderAt, now)+sent)
	}
	if item.IsRecurring {
		r := fmt.Sprintf("every %d %s", item.Recurrence.Every(), item.Recurrence.Type)
		if item.Recurrence.End != nil {
			r += " until " + item.Recurrence.End.Local().Format("2006-01-02")
		}
		field("Repeats", r)
	}
	if item.SuccessorID != nil {
		field("Next", *item.SuccessorID)
	}
	sum := progress.TimeProgress(item.TimeEntries, item.EstimatedHours)
	if sum.EstimatedHours != nil || sum.LoggedHours > 0 {
		t := hours(sum.LoggedHours) + " logged"
		if sum.EstimatedHours != nil {
			t += " of " + hours(*sum.EstimatedHours)
		}
		if sum.OverBudget() {
			t += errorStyle.Render(" (over by " + hours(*sum.OverBudgetBy) + ")")
		}
		field("Time", t)
	}
	if len(blockers) > 0 {
		field("Blocked by", strings.Join(blockers, ", "))
	}
	field("Created", relTime(item.CreatedAt, now))

	if item.Description != "" {
		fmt.Printf("\n%s\n", item.Description)
	}

	if len(item.Comments) > 0 {
		fmt.Printf("\n%s\n", labelStyle.Render("Comments"))
		for _, c := range item.Comments {
			fmt.Printf("  %s %s %s\n", dimStyle.Render(c.ID), dimStyle.Render(c.AuthorID+", "+relTime(c.CreatedAt, now)+":"), c.Content)
		}
	}
	if len(item.Attachments) > 0 {
		fmt.Printf("\n%s\n", labelStyle.Render("Attachments"))
		for _, a := range item.Attachments {
			fmt.Printf("  %s %s (%s, %s)\n", dimStyle.Render(a.ID), a.Filename, humanize.Bytes(uint64(a.Size)), a.MimeType)
		}
	}
	if len(item.TimeEntries) > 0 {
		fmt.Printf("\n%s\n", labelStyle.Render("Time log"))
		for _, e := range item.TimeEntries {
			line := fmt.Sprintf("  %s %s by %s on %s", dimStyle.Render(e.ID), hours(e.Hours), e.AuthorID, e.Date.Local().Format("2006-01-02"))
			if e.Description != "" {
				line += ": " + e.Description
			}
			fmt.Println(line)
		}
	}
}
