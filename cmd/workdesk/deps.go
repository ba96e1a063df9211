package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage blocking dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <blocking-id> <dependent-id>",
	Short: "Record that one item blocks another",
	Long:  `Record that <blocking-id> must be completed before <dependent-id> can be. Edges that would create a cycle are rejected.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.AddDependency(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		if flagJSON {
			printJSON(map[string]string{"blocking": args[0], "dependent": args[1]})
			return nil
		}
		fmt.Printf("%s blocks %s\n", args[0], args[1])
		return nil
	},
}

var depRmCmd = &cobra.Command{
	Use:   "rm <blocking-id> <dependent-id>",
	Short: "Remove a blocking dependency",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.RemoveDependency(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("%s no longer blocks %s\n", args[0], args[1])
		}
		return nil
	},
}

var depLsCmd = &cobra.Command{
	Use:   "ls [id]",
	Short: "List what blocks an item and what it blocks",
	Long:  `List what blocks an item and what it blocks. Without an id, list every dependency.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			return listAllDeps(cmd)
		}
		id := args[0]
		blocking, err := svc.BlockingItemsOf(ctx, id)
		if err != nil {
			return err
		}
		blocked, err := svc.BlockedItemsOf(ctx, id)
		if err != nil {
			return err
		}
		unfinished, err := svc.UnfinishedBlockers(ctx, id)
		if err != nil {
			return err
		}

		if flagJSON {
			printJSON(struct {
				ID         string   `json:"id"`
				BlockedBy  []string `json:"blocked_by"`
				Blocks     []string `json:"blocks"`
				Unfinished []string `json:"unfinished_blockers"`
			}{id, nonNil(blocking), nonNil(blocked), nonNil(unfinished)})
			return nil
		}

		open := make(map[string]bool, len(unfinished))
		for _, b := range unfinished {
			open[b] = true
		}
		fmt.Println(labelStyle.Render("Blocked by:"))
		if len(blocking) == 0 {
			fmt.Println(dimStyle.Render("  (none)"))
		}
		for _, b := range blocking {
			mark := "done"
			if open[b] {
				mark = "open"
			}
			fmt.Printf("  %s %s\n", b, dimStyle.Render("("+mark+")"))
		}
		fmt.Println(labelStyle.Render("Blocks:"))
		if len(blocked) == 0 {
			fmt.Println(dimStyle.Render("  (none)"))
		}
		for _, b := range blocked {
			fmt.Printf("  %s\n", b)
		}
		return nil
	},
}

func listAllDeps(cmd *cobra.Command) error {
	deps, err := svc.Dependencies(cmd.Context())
	if err != nil {
		return err
	}
	if flagJSON {
		out := make([]map[string]string, 0, len(deps))
		for _, d := range deps {
			out = append(out, map[string]string{"blocking": d.BlockingID, "dependent": d.DependentID})
		}
		printJSON(out)
		return nil
	}
	if len(deps) == 0 {
		fmt.Println("No dependencies")
		return nil
	}
	now := svc.Now()
	for _, d := range deps {
		fmt.Printf("%s blocks %s %s\n", d.BlockingID, d.DependentID, dimStyle.Render(relTime(d.CreatedAt, now)))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func init() {
	depCmd.AddCommand(depAddCmd, depRmCmd, depLsCmd)
	rootCmd.AddCommand(depCmd)
}
