package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagUserName string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// setup already opened the file and applied the schema.
		if !flagJSON {
			fmt.Println("Database ready")
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := flagUserName
		if name == "" {
			name = args[0]
		}
		u, err := store.CreateUser(cmd.Context(), args[0], name)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(map[string]string{"id": u.ID, "username": u.Username, "name": u.Name})
			return nil
		}
		fmt.Printf("Created user @%s (%s)\n", u.Username, u.ID)
		return nil
	},
}

var userLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := store.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if flagJSON {
			type userJSON struct {
				ID       string `json:"id"`
				Username string `json:"username"`
				Name     string `json:"name"`
			}
			out := make([]userJSON, 0, len(users))
			for _, u := range users {
				out = append(out, userJSON{u.ID, u.Username, u.Name})
			}
			printJSON(out)
			return nil
		}
		for _, u := range users {
			fmt.Printf("%-11s @%s %s\n", u.ID, u.Username, dimStyle.Render(u.Name))
		}
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&flagUserName, "name", "", "display name (default the username)")
	userCmd.AddCommand(userAddCmd, userLsCmd)
	rootCmd.AddCommand(initCmd, userCmd)
}
