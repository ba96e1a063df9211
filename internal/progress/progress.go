// Package progress derives completion and time rollups from an item's
// subtasks and time entries. Nothing here touches storage.
package progress

import (
	"math"

	"github.com/baiirun/workdesk/internal/model"
)

// SubtaskProgress returns the percentage of children that are completed.
// An item without children reports 0.
func SubtaskProgress(children []*model.WorkItem) float64 {
	if len(children) == 0 {
		return 0
	}
	done := 0
	for _, c := range children {
		if c.Status == model.StatusCompleted {
			done++
		}
	}
	return 100 * float64(done) / float64(len(children))
}

// TimeSummary compares logged hours against the estimate. EstimatedHours,
// OverBudgetBy and Remaining are nil when the item has no estimate.
type TimeSummary struct {
	LoggedHours    float64  `json:"logged_hours"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	OverBudgetBy   *float64 `json:"over_budget_by,omitempty"`
	Remaining      *float64 `json:"remaining,omitempty"`
}

// OverBudget reports whether more time was logged than estimated.
func (s TimeSummary) OverBudget() bool {
	return s.OverBudgetBy != nil && *s.OverBudgetBy > 0
}

// TimeProgress sums entries and compares them to estimated.
func TimeProgress(entries []model.TimeEntry, estimated *float64) TimeSummary {
	var logged float64
	for _, e := range entries {
		logged += e.Hours
	}
	s := TimeSummary{LoggedHours: round(logged)}
	if estimated == nil {
		return s
	}

	est := *estimated
	over := round(math.Max(0, logged-est))
	remaining := round(math.Max(0, est-logged))
	s.EstimatedHours = &est
	s.OverBudgetBy = &over
	s.Remaining = &remaining
	return s
}

// round trims float noise from summing fractional hours (0.1+0.2).
func round(h float64) float64 {
	return math.Round(h*1e6) / 1e6
}

// Report is the full rollup for one item.
type Report struct {
	ItemID          string               `json:"item_id"`
	Subtasks        int                  `json:"subtasks"`
	SubtaskPercent  float64              `json:"subtask_percent"`
	ChildrenByState map[model.Status]int `json:"children_by_status"`
	Time            TimeSummary          `json:"time"`
}

// Rollup combines subtask and time progress for item.
func Rollup(item *model.WorkItem, children []*model.WorkItem) Report {
	counts := make(map[model.Status]int, len(model.Statuses()))
	for _, c := range children {
		counts[c.Status]++
	}
	return Report{
		ItemID:          item.ID,
		Subtasks:        len(children),
		SubtaskPercent:  SubtaskProgress(children),
		ChildrenByState: counts,
		Time:            TimeProgress(item.TimeEntries, item.EstimatedHours),
	}
}
