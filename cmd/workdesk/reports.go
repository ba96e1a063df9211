package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/service"
)

var slaCmd = &cobra.Command{
	Use:   "sla [id]",
	Short: "Show deadline status",
	Long: `Show how close an item is to its SLA deadline (tickets) or due date (tasks).
Without an id, list every unfinished item that has a deadline, most urgent first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		now := svc.Now()

		if len(args) == 1 {
			ev, ok, err := svc.DeadlineStatus(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				if flagJSON {
					printJSON(nil)
				} else {
					fmt.Printf("%s has no open deadline\n", args[0])
				}
				return nil
			}
			if flagJSON {
				printJSON(DeadlineJSON{ItemID: args[0], State: string(ev.State), Deadline: ev.Deadline, Remaining: ev.Remaining.Round(time.Second).String()})
				return nil
			}
			fmt.Printf("%s %s\n", args[0], formatDeadline(ev, now))
			return nil
		}

		items, err := svc.ListItems(ctx, service.ListFilter{})
		if err != nil {
			return err
		}
		type row struct {
			item *model.WorkItem
			json DeadlineJSON
		}
		var rows []row
		calc := svc.Deadlines()
		for _, item := range items {
			ev, ok := calc.EvaluateItem(item, now)
			if !ok {
				continue
			}
			rows = append(rows, row{item, DeadlineJSON{
				ItemID:    item.ID,
				State:     string(ev.State),
				Deadline:  ev.Deadline,
				Remaining: ev.Remaining.Round(time.Second).String(),
			}})
		}
		slices.SortStableFunc(rows, func(a, b row) int {
			return a.json.Deadline.Compare(b.json.Deadline)
		})

		if flagJSON {
			out := make([]DeadlineJSON, 0, len(rows))
			for _, r := range rows {
				out = append(out, r.json)
			}
			printJSON(out)
			return nil
		}
		if len(rows) == 0 {
			fmt.Println("No open deadlines")
			return nil
		}
		for _, r := range rows {
			ev, _ := calc.EvaluateItem(r.item, now)
			fmt.Printf("%-11s %s  %s\n", r.item.ID, formatDeadline(ev, now), r.item.Title)
		}
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress <id>",
	Short: "Show subtask completion and time against estimate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := svc.Progress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(report)
			return nil
		}
		if report.Subtasks > 0 {
			done := report.ChildrenByState[model.StatusCompleted]
			fmt.Printf("%s %.0f%% (%d of %d subtasks completed)\n", labelStyle.Render("Subtasks:"), report.SubtaskPercent, done, report.Subtasks)
		} else {
			fmt.Printf("%s none\n", labelStyle.Render("Subtasks:"))
		}
		t := report.Time
		line := hours(t.LoggedHours) + " logged"
		if t.EstimatedHours != nil {
			line += " of " + hours(*t.EstimatedHours)
			if t.OverBudget() {
				line += errorStyle.Render(", over by " + hours(*t.OverBudgetBy))
			} else {
				line += ", " + hours(*t.Remaining) + " remaining"
			}
		}
		fmt.Printf("%s %s\n", labelStyle.Render("Time:"), line)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(slaCmd, progressCmd)
}
