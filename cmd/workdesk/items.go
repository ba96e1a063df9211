package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/service"
)

// add flags
var (
	flagTicket      bool
	flagPriority    string
	flagDesc        string
	flagDue         string
	flagStart       string
	flagRemind      string
	flagEstimate    float64
	flagParent      string
	flagAssignee    string
	flagRecur       string
	flagEvery       int
	flagUntil       string
	flagListStatus  string
	flagListKind    string
	flagListParent  string
	flagListTop     bool
	flagListMine    bool
	flagClearDue    bool
	flagClearRemind bool
	flagUnassign    bool
	flagTitle       string
	flagCascade     bool
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task or ticket",
	Long: `Create a task, or a ticket with --ticket. Tickets get an SLA deadline
from their priority. Recurring items spawn their next occurrence when completed.

Dates accept YYYY-MM-DD, "YYYY-MM-DD HH:MM", or an offset like +4h or +3d.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		me, err := actor(ctx)
		if err != nil {
			return err
		}
		now := svc.Now()

		spec := service.CreateSpec{
			Kind:        model.KindTask,
			Title:       args[0],
			Description: flagDesc,
			CreatorID:   me.ID,
		}
		if flagTicket {
			spec.Kind = model.KindTicket
		}
		if flagPriority != "" {
			if spec.Priority, err = parsePriority(flagPriority); err != nil {
				return err
			}
		}
		if spec.DueDate, err = optionalWhen(flagDue, now); err != nil {
			return err
		}
		if spec.StartDate, err = optionalWhen(flagStart, now); err != nil {
			return err
		}
		if spec.ReminderAt, err = optionalWhen(flagRemind, now); err != nil {
			return err
		}
		if cmd.Flags().Changed("estimate") {
			spec.EstimatedHours = &flagEstimate
		}
		if flagParent != "" {
			spec.ParentID = &flagParent
		}
		if spec.AssigneeID, err = userID(ctx, flagAssignee); err != nil {
			return err
		}
		if flagRecur != "" {
			rule := &model.Recurrence{Type: model.RecurrenceType(strings.ToLower(flagRecur)), Interval: flagEvery}
			if flagUntil != "" {
				end, err := parseUntil(flagUntil, now)
				if err != nil {
					return err
				}
				rule.End = &end
			}
			spec.Recurrence = rule
		}

		item, err := svc.CreateItem(ctx, spec)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(itemJSON(item))
			return nil
		}
		fmt.Printf("Created %s %s\n", item.Kind, item.ID)
		if item.SLADeadline != nil {
			fmt.Printf("SLA deadline %s\n", relTime(*item.SLADeadline, now))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show item details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		item, err := svc.GetItem(ctx, args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(itemJSON(item))
			return nil
		}
		blockers, err := svc.UnfinishedBlockers(ctx, item.ID)
		if err != nil {
			return err
		}
		now := svc.Now()
		if ev, ok := svc.Deadlines().EvaluateItem(item, now); ok {
			printItem(item, blockers, now, &ev)
		} else {
			printItem(item, blockers, now, nil)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var filter service.ListFilter
		if flagListStatus != "" {
			st, err := parseStatus(flagListStatus)
			if err != nil {
				return err
			}
			filter.Status = &st
		}
		if flagListKind != "" {
			k := model.Kind(flagListKind)
			if !k.IsValid() {
				return model.Invalid("kind", "must be task or ticket, got %q", flagListKind)
			}
			filter.Kind = &k
		}
		if flagListParent != "" {
			filter.ParentID = &flagListParent
		}
		filter.TopLevel = flagListTop
		if flagListMine {
			me, err := actor(ctx)
			if err != nil {
				return err
			}
			filter.AssigneeID = &me.ID
		}

		items, err := svc.ListItems(ctx, filter)
		if err != nil {
			return err
		}
		if flagJSON {
			out := make([]ItemJSON, 0, len(items))
			for _, item := range items {
				out = append(out, itemJSON(item))
			}
			printJSON(out)
			return nil
		}
		if len(items) == 0 {
			fmt.Println("No items")
			return nil
		}
		for _, item := range items {
			fmt.Println(formatItemLine(item))
		}
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit an item's fields",
	Long:  `Edit title, description, priority, dates, assignee or estimate. Status changes use start, hold, resume, done and cancel.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		now := svc.Now()
		flags := cmd.Flags()

		var opts service.UpdateOptions
		var err error
		if flags.Changed("title") {
			opts.Title = &flagTitle
		}
		if flags.Changed("desc") {
			opts.Description = &flagDesc
		}
		if flags.Changed("priority") {
			p, err := parsePriority(flagPriority)
			if err != nil {
				return err
			}
			opts.Priority = &p
		}
		if opts.StartDate, err = optionalWhen(flagStart, now); err != nil {
			return err
		}
		if opts.DueDate, err = optionalWhen(flagDue, now); err != nil {
			return err
		}
		if opts.ReminderAt, err = optionalWhen(flagRemind, now); err != nil {
			return err
		}
		if opts.AssigneeID, err = userID(ctx, flagAssignee); err != nil {
			return err
		}
		if flags.Changed("estimate") {
			opts.EstimatedHours = &flagEstimate
		}
		opts.ClearDueDate = flagClearDue
		opts.ClearReminder = flagClearRemind
		opts.ClearAssignee = flagUnassign

		item, err := svc.UpdateItem(ctx, args[0], opts)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(itemJSON(item))
			return nil
		}
		fmt.Printf("Updated %s\n", item.ID)
		return nil
	},
}

var parentCmd = &cobra.Command{
	Use:   "parent <id> [parent-id]",
	Short: "Make an item a subtask of another, or detach it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var parent *string
		if len(args) == 2 {
			parent = &args[1]
		}
		item, err := svc.SetParent(cmd.Context(), args[0], parent)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(itemJSON(item))
			return nil
		}
		if parent == nil {
			fmt.Printf("Detached %s\n", item.ID)
		} else {
			fmt.Printf("%s is now a subtask of %s\n", item.ID, *parent)
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an item",
	Long:  `Delete an item and its dependency edges. Subtasks are detached unless --cascade deletes them too.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := service.DeleteOrphan
		if flagCascade {
			policy = service.DeleteCascade
		}
		deleted, err := svc.DeleteItem(cmd.Context(), args[0], policy)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(map[string][]string{"deleted": deleted})
			return nil
		}
		fmt.Printf("Deleted %s\n", strings.Join(deleted, ", "))
		return nil
	},
}

func init() {
	f := addCmd.Flags()
	f.BoolVar(&flagTicket, "ticket", false, "create an IT ticket (gets an SLA deadline)")
	f.StringVarP(&flagPriority, "priority", "p", "", "critical, high, medium or low (default medium)")
	f.StringVarP(&flagDesc, "desc", "d", "", "description")
	f.StringVar(&flagDue, "due", "", "due date")
	f.StringVar(&flagStart, "start", "", "start date")
	f.StringVar(&flagRemind, "remind", "", "reminder time")
	f.Float64Var(&flagEstimate, "estimate", 0, "estimated hours")
	f.StringVar(&flagParent, "parent", "", "parent item id")
	f.StringVar(&flagAssignee, "assignee", "", "assignee username")
	f.StringVar(&flagRecur, "recur", "", "daily, weekly, monthly or yearly")
	f.IntVar(&flagEvery, "every", 1, "recurrence interval")
	f.StringVar(&flagUntil, "until", "", "last date of the series")

	f = listCmd.Flags()
	f.StringVarP(&flagListStatus, "status", "s", "", "filter by status")
	f.StringVar(&flagListKind, "kind", "", "filter by kind (task or ticket)")
	f.StringVar(&flagListParent, "parent", "", "only subtasks of this item")
	f.BoolVar(&flagListTop, "top", false, "only items without a parent")
	f.BoolVar(&flagListMine, "mine", false, "only items assigned to me")

	f = updateCmd.Flags()
	f.StringVar(&flagTitle, "title", "", "new title")
	f.StringVarP(&flagDesc, "desc", "d", "", "new description")
	f.StringVarP(&flagPriority, "priority", "p", "", "new priority")
	f.StringVar(&flagDue, "due", "", "new due date")
	f.StringVar(&flagStart, "start", "", "new start date")
	f.StringVar(&flagRemind, "remind", "", "new reminder time")
	f.StringVar(&flagAssignee, "assignee", "", "new assignee username")
	f.Float64Var(&flagEstimate, "estimate", 0, "new estimate in hours")
	f.BoolVar(&flagClearDue, "clear-due", false, "remove the due date")
	f.BoolVar(&flagClearRemind, "clear-remind", false, "remove the reminder")
	f.BoolVar(&flagUnassign, "unassign", false, "remove the assignee")

	rmCmd.Flags().BoolVar(&flagCascade, "cascade", false, "also delete every subtask")

	rootCmd.AddCommand(addCmd, showCmd, listCmd, updateCmd, parentCmd, rmCmd)
}
