package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/baiirun/workdesk/internal/model"
)

// changeStatus moves id to target as the current user.
func changeStatus(cmd *cobra.Command, id string, target model.Status) error {
	ctx := cmd.Context()
	me, err := actor(ctx)
	if err != nil {
		return err
	}
	res, err := svc.ChangeStatus(ctx, id, target, me.ID)
	if err != nil {
		return err
	}

	if flagJSON {
		out := ChangeJSON{Item: itemJSON(res.Item)}
		if res.Successor != nil {
			next := itemJSON(res.Successor)
			out.Successor = &next
		}
		printJSON(out)
		return nil
	}
	fmt.Printf("%s is now %s\n", res.Item.ID, styledStatus(res.Item.Status))
	if next := res.Successor; next != nil {
		when := "no date"
		if next.DueDate != nil {
			when = "due " + next.DueDate.Local().Format("2006-01-02 15:04")
		} else if next.StartDate != nil {
			when = "starts " + next.StartDate.Local().Format("2006-01-02 15:04")
		}
		fmt.Printf("Next occurrence %s (%s)\n", next.ID, when)
	}
	return nil
}

func statusCommand(use, short string, target model.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeStatus(cmd, args[0], target)
		},
	}
}

var statusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move an item to any status",
	Long: `Move an item to a status: todo, in_progress, on_hold, completed or cancelled.

Allowed moves:
  todo        -> in_progress, cancelled
  in_progress -> on_hold, completed, cancelled
  on_hold     -> in_progress, cancelled

Completing an item requires every item blocking it to be completed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseStatus(args[1])
		if err != nil {
			return err
		}
		return changeStatus(cmd, args[0], target)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show an item's status changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := svc.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			type changeJSON struct {
				From  string `json:"from"`
				To    string `json:"to"`
				Actor string `json:"actor"`
				At    string `json:"at"`
			}
			out := make([]changeJSON, 0, len(changes))
			for _, c := range changes {
				out = append(out, changeJSON{From: string(c.From), To: string(c.To), Actor: c.ActorID, At: c.At.UTC().Format("2006-01-02T15:04:05Z")})
			}
			printJSON(out)
			return nil
		}
		if len(changes) == 0 {
			fmt.Println("No status changes")
			return nil
		}
		now := svc.Now()
		for _, c := range changes {
			fmt.Printf("%s -> %s  %s %s\n", c.From, styledStatus(c.To), c.ActorID, dimStyle.Render(relTime(c.At, now)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(
		statusCommand("start", "Start working on an item", model.StatusInProgress),
		statusCommand("hold", "Put an item on hold", model.StatusOnHold),
		statusCommand("resume", "Resume an item that is on hold", model.StatusInProgress),
		statusCommand("done", "Complete an item", model.StatusCompleted),
		statusCommand("cancel", "Cancel an item", model.StatusCancelled),
		statusCmd,
		historyCmd,
	)
}
