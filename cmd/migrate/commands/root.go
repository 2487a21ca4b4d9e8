// Package commands provides the command line interface of the attachments migration tool.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/estimote/attachments-migration/internal/cli"
	"github.com/estimote/attachments-migration/internal/cloud"
	"github.com/estimote/attachments-migration/internal/constants"
	"github.com/estimote/attachments-migration/internal/migration"
	"github.com/estimote/attachments-migration/internal/tracing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int  `mapstructure:"verbose" yaml:"verbose,omitempty"`
	JSONLogs  bool `mapstructure:"json-logs" yaml:"json-logs,omitempty"`

	ServerURL string        `mapstructure:"server_url" yaml:"server_url,omitempty"`
	NoIBeacon bool          `mapstructure:"no-ibeacon" yaml:"no-ibeacon,omitempty"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	DryRun    bool          `mapstructure:"dry-run" yaml:"dry-run,omitempty"`
	Parallel  uint          `mapstructure:"parallel" yaml:"parallel,omitempty"`
	Summary   string        `mapstructure:"summary" yaml:"summary,omitempty"`
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName + " <app_id> <app_token>",
		Short: "Migrate tag attachments and iBeacon settings to attachments",
		Long: `Migrate the attachments embedded in device tags and the iBeacon settings of every device
of an application to attachments.

Existing attachments are merged with the migrated values, migrated values taking precedence.`,
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.cmd.ErrOrStderr(), a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config, cli.DecodeHooks()); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetSlog(a.cmd.ErrOrStderr(), a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Invalid values are reported as usage errors.
			a.cmd.SilenceUsage = false
			m, err := a.newMigrator(args[0], args[1])
			if err != nil {
				return err
			}
			a.cmd.SilenceUsage = true

			return a.run(cmd.Context(), m)
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	cmd.Flags().StringVar(&app.config.ServerURL, "server_url", constants.DefaultServerURL, "base URL of the cloud")
	cmd.Flags().BoolVar(&app.config.NoIBeacon, "no-ibeacon", false, "do not migrate iBeacon settings")
	cmd.Flags().DurationVar(&app.config.Timeout, "timeout", constants.DefaultRequestTimeout, "timeout of each request sent to the cloud")
	cmd.Flags().BoolVarP(&app.config.DryRun, "dry-run", "d", false, "read devices and attachments without writing anything")
	cmd.Flags().UintVarP(&app.config.Parallel, "parallel", "p", constants.DefaultParallel,
		fmt.Sprintf("number of devices migrated concurrently, up to %d", constants.MaxParallel))
	cmd.Flags().StringVarP(&app.config.Summary, "summary", "s", constants.DefaultSummaryFormat,
		fmt.Sprintf("format of the summary printed at the end of the run (%s)", strings.Join(constants.SummaryFormats, ", ")))
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) newMigrator(appID, appToken string) (migration.Migrator, error) {
	if !slices.Contains(constants.SummaryFormats, a.config.Summary) {
		return migration.Migrator{}, fmt.Errorf("invalid summary format %q, expected one of %s",
			a.config.Summary, strings.Join(constants.SummaryFormats, ", "))
	}

	client, err := cloud.New(cloud.Credentials{ServerURL: a.config.ServerURL, AppID: appID, AppToken: appToken},
		cloud.WithTimeout(a.config.Timeout),
		cloud.WithDryRun(a.config.DryRun),
		cloud.WithOutput(a.cmd.OutOrStdout()))
	if err != nil {
		return migration.Migrator{}, err
	}

	return migration.New(client, migration.Config{
		IncludeIBeacon: !a.config.NoIBeacon,
		Parallel:       a.config.Parallel,
		DryRun:         a.config.DryRun,
	})
}

func (a *App) run(ctx context.Context, m migration.Migrator) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cleanup, err := tracing.Init(ctx, constants.CmdName, constants.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %v", err)
	}
	defer cleanup()

	slog.Info("Disabled iBeacon import", "disabled", a.config.NoIBeacon)

	s, err := m.Run(ctx)
	// Devices migrated before an error are not rolled back: report them.
	if err == nil || s.Devices > 0 {
		if rErr := s.Render(a.cmd.OutOrStdout(), a.config.Summary); rErr != nil {
			slog.Warn("Failed to print summary", "error", rErr)
		}
	}
	if err != nil {
		return fmt.Errorf("migration aborted: %w", err)
	}

	return nil
}
