package cli

import (
	"context"
	"log/slog"

	"github.com/dmitrijs2005/idsync/internal/buildinfo"
	"github.com/dmitrijs2005/idsync/internal/config"
	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/spf13/cobra"
)

type rootState struct {
	cfg     *config.Config
	verbose bool
	noColor bool

	log     logging.Logger
	printer *Printer
}

// NewRootCmd builds the idctl command tree. args (without the program name)
// are only inspected for a -c/--config file; cobra parses them later.
func NewRootCmd(args []string) (*cobra.Command, error) {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return nil, err
	}
	r := &rootState{cfg: cfg}

	cmd := &cobra.Command{
		Use:   "idctl",
		Short: "Identity resolution client",
		Long: `idctl drives the identity resolver against locally stored state.

Example usage:
  idctl login --id email=a@b.com      # log in and switch the current user
  idctl attr set plan gold            # set an attribute on the current user
  idctl cart add --sku s1 --price 9.5 # add a product to the current cart
  idctl whoami                        # show the current identity`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.init(cmd)
		},
	}

	cfg.BindFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "debug logging to stderr")
	cmd.PersistentFlags().BoolVar(&r.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		r.identifyCmd(),
		r.loginCmd(),
		r.logoutCmd(),
		r.modifyCmd(),
		r.whoamiCmd(),
		r.attrCmd(),
		r.tagCmd(),
		r.cartCmd(),
		r.migrateCmd(),
		versionCmd(),
	)
	return cmd, nil
}

func (r *rootState) init(cmd *cobra.Command) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	level := slog.LevelWarn
	if r.verbose {
		level = slog.LevelDebug
	}
	r.log = logging.NewTextLogger(cmd.ErrOrStderr(), level)
	r.printer = newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolveColors(r.noColor))
	return nil
}

// run opens the app for one command and closes it afterwards.
func (r *rootState) run(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, r.cfg, r.log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
			return nil
		},
	}
}
