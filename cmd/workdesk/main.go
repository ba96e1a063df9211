// Command workdesk manages tasks and IT tickets from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baiirun/workdesk/internal/config"
	"github.com/baiirun/workdesk/internal/db"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/service"
)

// Global flags
var (
	flagDB      string
	flagConfig  string
	flagAs      string
	flagJSON    bool
	flagVerbose bool
)

// Populated by PersistentPreRunE for commands that touch the store.
var (
	cfg   *config.Config
	store *db.DB
	svc   *service.Service
	log   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "workdesk",
	Short:         "Track tasks and IT tickets",
	Long:          `workdesk tracks tasks and IT tickets through their lifecycle: statuses, blocking dependencies, SLA deadlines, recurrence, time logging, comments and attachments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		return setup(cmd.Name() == "sweep")
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			err := store.Close()
			store = nil
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default ~/.workdesk/workdesk.db)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.workdesk/config.toml, or $"+config.EnvPath+")")
	rootCmd.PersistentFlags().StringVar(&flagAs, "as", "", "username to act as (default from config)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")
}

// setup loads config, builds the logger and opens the store. Only a
// long-running command logs below warn without --verbose.
func setup(longRunning bool) error {
	path, err := config.Path(flagConfig)
	if err != nil {
		return err
	}
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if !longRunning && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	if flagVerbose {
		level = slog.LevelDebug
	}
	log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dbPath := flagDB
	if dbPath == "" {
		dbPath = cfg.Database
	}
	if dbPath == "" {
		if dbPath, err = db.DefaultPath(); err != nil {
			return err
		}
	}
	store, err = db.Open(dbPath)
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return err
	}

	svc = service.New(store, store,
		service.WithDeadlines(cfg.Calculator()),
		service.WithLogger(log),
	)
	return nil
}

// actor resolves the user commands act as: --as, then the config's user.
func actor(ctx context.Context) (model.User, error) {
	name := flagAs
	if name == "" {
		name = cfg.User
	}
	if name == "" {
		return model.User{}, errors.New("no user given: pass --as or set user in the config file")
	}
	u, err := store.ResolveUsername(ctx, strings.TrimPrefix(name, "@"))
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("unknown user %q (create it with 'workdesk user add'): %w", name, err)
	}
	return u, err
}

// userID resolves a username flag value to a user id. Empty stays empty.
func userID(ctx context.Context, username string) (*string, error) {
	if username == "" {
		return nil, nil
	}
	u, err := store.ResolveUsername(ctx, strings.TrimPrefix(username, "@"))
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return &u.ID, nil
}

// Exit codes by error kind.
const (
	exitError      = 1
	exitValidation = 2
	exitNotFound   = 3
	exitRejected   = 4 // illegal transition, blocked, cycle
	exitForbidden  = 5
	exitConflict   = 6
)

func exitCode(err error) int {
	switch model.KindOf(err) {
	case model.ErrKindValidation:
		return exitValidation
	case model.ErrKindNotFound:
		return exitNotFound
	case model.ErrKindIllegalTransition, model.ErrKindBlocked, model.ErrKindCyclic:
		return exitRejected
	case model.ErrKindForbidden:
		return exitForbidden
	case model.ErrKindConflict:
		return exitConflict
	}
	return exitError
}

// reportError prints err with its kind and any offending ids.
func reportError(err error) {
	kind := model.KindOf(err)
	if flagJSON {
		printJSON(ErrorJSON{Kind: string(kind), Message: err.Error(), IDs: model.OffendingIDs(err)})
		return
	}
	label := "error:"
	if kind != model.ErrKindInternal {
		label = string(kind) + ":"
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render(label), err)
	if ids := model.OffendingIDs(err); len(ids) > 0 {
		fmt.Fprintf(os.Stderr, "  involved: %s\n", strings.Join(ids, ", "))
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(err)
		if store != nil {
			_ = store.Close()
			store = nil
		}
		return exitCode(err)
	}
	return 0
}
