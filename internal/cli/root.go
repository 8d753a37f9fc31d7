// Package cli is the grocerylist command line. Every command runs against the
// same repository the HTTP server uses.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukerupert/grocerylist/internal/config"
	"github.com/dukerupert/grocerylist/internal/database"
	"github.com/dukerupert/grocerylist/internal/logging"
	"github.com/dukerupert/grocerylist/internal/store"
	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// app carries what every subcommand needs once the root pre-run has loaded
// configuration.
type app struct {
	out    io.Writer
	errOut io.Writer

	dbPath  string
	verbose bool

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

func NewRootCommand(out, errOut io.Writer, build BuildInfo) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           "grocerylist",
		Short:         "A grocery list backed by SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "Database file (overrides GROCERY_DB_PATH)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log at the configured level instead of warn")

	cmd.AddCommand(
		newServeCommand(a),
		newListCommand(a),
		newAddCommand(a),
		newToggleCommand(a),
		newUpdateCommand(a),
		newDeleteCommand(a),
		newClearCommand(a),
		newBackupCommand(a),
		newVersionCommand(out, build),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}

	opts := logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Writer:     a.errOut,
	}
	// One-shot commands stay quiet unless asked.
	if cmd.Name() != "serve" && !a.verbose {
		opts.Level = "warn"
	}

	logger, closer, err := logging.Setup(opts)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	a.cfg, a.logger, a.logCloser = cfg, logger, closer
	return nil
}

// openStore opens the configured database and creates the schema.
func (a *app) openStore(ctx context.Context) (*store.GroceryStore, *database.Conn, error) {
	conn := database.New(a.cfg.DBPath, a.logger.With("component", "database"))
	gs := store.NewGroceryStore(conn, a.logger.With("component", "store"))
	if err := gs.Initialize(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return gs, conn, nil
}

// withStore runs fn against an initialized store and closes it afterwards.
func (a *app) withStore(ctx context.Context, fn func(*store.GroceryStore) error) error {
	gs, conn, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(gs)
}

func newVersionCommand(out io.Writer, build BuildInfo) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return printJSON(out, build)
			}
			_, err := fmt.Fprintf(out, "version=%s commit=%s build_time=%s\n", build.Version, build.Commit, build.BuildTime)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version as JSON")
	return cmd
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
