package main

import (
	"github.com/spf13/cobra"

	"github.com/baiirun/workdesk/internal/tui"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Open the interactive kanban board",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		me, err := actor(cmd.Context())
		if err != nil {
			return err
		}
		return tui.Run(svc, me.ID)
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
