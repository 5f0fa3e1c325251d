package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/friendsync/internal/config"
	"github.com/roach88/friendsync/internal/ir"
)

// RootOptions holds global flags for all commands, plus the configuration
// they resolve to.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Backend    string
	Database   string

	// Config is loaded by the root PersistentPreRunE.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the friendsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "friendsync",
		Version: ir.Version,
		Short:   "friendsync - keep records sharing a number mutually friended",
		Long: `friendsync maintains a symmetric friendship index over user records.

Two records are friends exactly when their numbers are equal. External writers
change numbers with create and set-number; every write leaves a change
notification in the store's outbox, and serve or drain reconcile them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend (sqlite|bolt), overrides config")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the store file, overrides config")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewSetNumberCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewDrainCommand(opts))

	return cmd
}

// resolve loads the config file, applies flag overrides and installs the
// process logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Backend != "" {
		cfg.Store.Backend = o.Backend
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	switch cfg.Store.Backend {
	case config.BackendSQLite, config.BackendBolt:
	default:
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid backend %q: must be %s or %s", cfg.Store.Backend, config.BackendSQLite, config.BackendBolt))
	}
	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), cfg, o.Verbose)
	slog.SetDefault(o.Logger)
	return nil
}

func newLogger(w io.Writer, cfg config.Config, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
