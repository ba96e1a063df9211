package main

import (
	"fmt"
	"mime"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/baiirun/workdesk/internal/service"
)

var (
	flagLogMessage string
	flagLogDate    string
	flagAttachSize string
	flagAttachMime string
	flagAttachURL  string
)

var logCmd = &cobra.Command{
	Use:   "log <id> <hours>",
	Short: "Log time spent on an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		me, err := actor(ctx)
		if err != nil {
			return err
		}
		h, err := parseHours(args[1])
		if err != nil {
			return err
		}
		spec := service.LogTimeSpec{ItemID: args[0], UserID: me.ID, Hours: h, Description: flagLogMessage}
		if flagLogDate != "" {
			if spec.Date, err = parseWhen(flagLogDate, svc.Now()); err != nil {
				return err
			}
		}

		sum, err := svc.LogTime(ctx, spec)
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(sum)
			return nil
		}
		line := fmt.Sprintf("Logged %s on %s (%s total", hours(h), args[0], hours(sum.LoggedHours))
		if sum.EstimatedHours != nil {
			line += " of " + hours(*sum.EstimatedHours)
		}
		line += ")"
		fmt.Println(line)
		if sum.OverBudget() {
			fmt.Println(errorStyle.Render("Over budget by " + hours(*sum.OverBudgetBy)))
		}
		return nil
	},
}

var timeCmd = &cobra.Command{
	Use:   "time",
	Short: "Manage time entries",
}

var timeRmCmd = &cobra.Command{
	Use:   "rm <entry-id> <item-id>",
	Short: "Delete one of your time entries",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		me, err := actor(ctx)
		if err != nil {
			return err
		}
		if err := svc.DeleteTimeEntry(ctx, args[0], args[1], me.ID); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("Deleted time entry %s\n", args[0])
		}
		return nil
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment <id> <text>",
	Short: "Comment on an item; @username mentions a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		me, err := actor(ctx)
		if err != nil {
			return err
		}
		c, err := svc.AddComment(ctx, args[0], me.ID, args[1])
		if err != nil {
			return err
		}
		if flagJSON {
			mentions := make([]string, 0, len(c.Mentions))
			for _, m := range c.Mentions {
				mentions = append(mentions, m.Username)
			}
			printJSON(map[string]any{"id": c.ID, "item_id": c.ItemID, "mentions": mentions})
			return nil
		}
		fmt.Printf("Added comment %s\n", c.ID)
		for _, m := range c.Mentions {
			fmt.Printf("Mentioned @%s\n", m.Username)
		}
		return nil
	},
}

var commentRmCmd = &cobra.Command{
	Use:   "rm <comment-id> <item-id>",
	Short: "Delete one of your comments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		me, err := actor(ctx)
		if err != nil {
			return err
		}
		if err := svc.DeleteComment(ctx, args[0], args[1], me.ID); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("Deleted comment %s\n", args[0])
		}
		return nil
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <id> <filename>",
	Short: "Record a file attached to an item",
	Long:  `Record attachment metadata. The file itself lives wherever --url points.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		me, err := actor(ctx)
		if err != nil {
			return err
		}
		var size uint64
		if flagAttachSize != "" {
			if size, err = humanize.ParseBytes(flagAttachSize); err != nil {
				return fmt.Errorf("invalid size %q: %w", flagAttachSize, err)
			}
		}
		mimeType := flagAttachMime
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(args[1]))
		}

		a, err := svc.AddAttachment(ctx, service.AttachmentSpec{
			ItemID:     args[0],
			Filename:   args[1],
			Size:       int64(size),
			MimeType:   mimeType,
			UploaderID: me.ID,
			URL:        flagAttachURL,
		})
		if err != nil {
			return err
		}
		if flagJSON {
			printJSON(map[string]any{"id": a.ID, "filename": a.Filename, "size": a.Size, "mime_type": a.MimeType})
			return nil
		}
		fmt.Printf("Attached %s as %s (%s)\n", a.Filename, a.ID, humanize.Bytes(uint64(a.Size)))
		return nil
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach <attachment-id> <item-id>",
	Short: "Remove one of your attachments",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		me, err := actor(ctx)
		if err != nil {
			return err
		}
		if err := svc.RemoveAttachment(ctx, args[0], args[1], me.ID); err != nil {
			return err
		}
		if !flagJSON {
			fmt.Printf("Removed attachment %s\n", args[0])
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVarP(&flagLogMessage, "message", "m", "", "what the time was spent on")
	logCmd.Flags().StringVar(&flagLogDate, "date", "", "when the work happened (default now)")

	attachCmd.Flags().StringVar(&flagAttachSize, "size", "", "file size, e.g. 2.5MB")
	attachCmd.Flags().StringVar(&flagAttachMime, "mime", "", "MIME type (default from the extension)")
	attachCmd.Flags().StringVar(&flagAttachURL, "url", "", "where the file is stored")

	timeCmd.AddCommand(timeRmCmd)
	commentCmd.AddCommand(commentRmCmd)
	rootCmd.AddCommand(logCmd, timeCmd, commentCmd, attachCmd, detachCmd)
}
